// Package billing es el cliente del proveedor de pagos (API estilo Stripe):
// customers, checkout sessions en modo suscripción, suscripciones y webhooks firmados.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Estados de checkout session y de suscripción tal como los reporta el proveedor.
const (
	SessionOpen     = "open"
	SessionComplete = "complete"
	SessionExpired  = "expired"

	PaymentPaid              = "paid"
	PaymentUnpaid            = "unpaid"
	PaymentNoPaymentRequired = "no_payment_required"

	SubTrialing          = "trialing"
	SubActive            = "active"
	SubPastDue           = "past_due"
	SubUnpaid            = "unpaid"
	SubCanceled          = "canceled"
	SubIncomplete        = "incomplete"
	SubIncompleteExpired = "incomplete_expired"
	SubPaused            = "paused"
)

// MetadataRegistrationKey es la clave de metadata que correlaciona sesión, suscripción y registro.
const MetadataRegistrationKey = "registration_uuid"

// Customer es el cliente del proveedor asociado a una práctica.
type Customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata"`
}

// CheckoutSession es la sesión de pago hospedada por el proveedor.
type CheckoutSession struct {
	ID                string            `json:"id"`
	URL               string            `json:"url"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// Completed reporta si el proveedor confirmó el pago (o no lo requiere, ej. trial).
func (s *CheckoutSession) Completed() bool {
	if s == nil || s.Status != SessionComplete {
		return false
	}
	return s.PaymentStatus == PaymentPaid || s.PaymentStatus == PaymentNoPaymentRequired
}

// RegistrationID retorna el UUID del registro: client_reference_id o, si falta, la metadata.
func (s *CheckoutSession) RegistrationID() string {
	if s == nil {
		return ""
	}
	if s.ClientReferenceID != "" {
		return s.ClientReferenceID
	}
	return s.Metadata[MetadataRegistrationKey]
}

// Subscription es la suscripción del proveedor. Única fuente del estado de facturación.
type Subscription struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	TrialEnd          int64             `json:"trial_end"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	Metadata          map[string]string `json:"metadata"`
}

// TrialEndsAt convierte trial_end (unix) a time. nil si no hay trial.
func (s *Subscription) TrialEndsAt() *time.Time {
	if s == nil || s.TrialEnd <= 0 {
		return nil
	}
	t := time.Unix(s.TrialEnd, 0).UTC()
	return &t
}

// CreateCustomerParams son los datos del customer.
type CreateCustomerParams struct {
	Email          string
	Name           string
	RegistrationID string
	IdempotencyKey string
}

// CheckoutParams describe una checkout session en modo suscripción.
type CheckoutParams struct {
	CustomerID     string
	PriceID        string
	TrialDays      int
	RegistrationID string // viaja como client_reference_id y metadata
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// Provider es lo que el onboarding necesita del proveedor de pagos.
type Provider interface {
	CreateCustomer(ctx context.Context, p CreateCustomerParams) (*Customer, error)
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	// CancelSubscription cancela al fin del período y retorna la suscripción resultante.
	CancelSubscription(ctx context.Context, id string) (*Subscription, error)
}

// ProviderError es un fallo del proveedor. Se loguea con ids y se expone como 502 genérico.
type ProviderError struct {
	Op         string
	StatusCode int
	Type       string
	Code       string
	Message    string
	RequestID  string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("billing: %s: status %d: %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("billing: %s: %s", e.Op, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NotFound reporta un 404 del proveedor (sesión o suscripción inexistente).
func (e *ProviderError) NotFound() bool { return e.StatusCode == 404 }

// Retryable: errores de red, 429 y 5xx.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// IsProviderError extrae el ProviderError si err lo contiene.
func IsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

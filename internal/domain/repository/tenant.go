package repository

import (
	"context"
	"time"
)

// BillingStatus es el estado de facturación de un tenant.
type BillingStatus string

const (
	BillingPending  BillingStatus = "pending"
	BillingTrial    BillingStatus = "trial"
	BillingActive   BillingStatus = "active"
	BillingCanceled BillingStatus = "canceled"
)

// Valid indica si el estado pertenece al conjunto conocido.
func (s BillingStatus) Valid() bool {
	switch s {
	case BillingPending, BillingTrial, BillingActive, BillingCanceled:
		return true
	}
	return false
}

// Tenant es una práctica (organización cliente) con su base aislada.
type Tenant struct {
	ID                   string // slug inmutable una vez provisionado
	CompanyName          string
	Domain               string
	BillingStatus        BillingStatus
	RequiresBillingSetup bool
	SubscriptionPlanID   string
	StripeCustomerID     string
	StripeSubscriptionID string
	RegistrationID       string // UUID de la PendingRegistration que lo originó
	TrialEndsAt          *time.Time
	ProvisionedAt        *time.Time // flag de completitud del provisioning
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsProvisioned reporta si el provisioning terminó todos sus pasos.
func (t *Tenant) IsProvisioned() bool {
	return t != nil && t.ProvisionedAt != nil
}

// CreateTenantInput contiene los datos para insertar un tenant en estado pending.
type CreateTenantInput struct {
	ID                 string
	CompanyName        string
	Domain             string
	SubscriptionPlanID string
	StripeCustomerID   string
	RegistrationID     string
}

// BillingUpdate es el resultado de derivar el estado desde la suscripción del proveedor.
type BillingUpdate struct {
	Status               BillingStatus
	RequiresBillingSetup bool
	TrialEndsAt          *time.Time
	StripeSubscriptionID string
	StripeCustomerID     string
}

// TenantRepository es el registro central de tenants.
type TenantRepository interface {
	// Create inserta el tenant. Retorna ErrConflict si el id o el dominio ya existen.
	Create(ctx context.Context, in CreateTenantInput) (*Tenant, error)

	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetByDomain(ctx context.Context, domain string) (*Tenant, error)
	GetByStripeCustomer(ctx context.Context, customerID string) (*Tenant, error)
	GetByRegistrationID(ctx context.Context, registrationID string) (*Tenant, error)

	List(ctx context.Context, limit, offset int) ([]Tenant, error)

	// UpdateBilling persiste el estado derivado del proveedor.
	UpdateBilling(ctx context.Context, id string, upd BillingUpdate) (*Tenant, error)

	// MarkProvisioned setea el flag de completitud. Solo el provisioner lo llama.
	MarkProvisioned(ctx context.Context, id string, at time.Time) error
}

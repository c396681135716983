package repository

import (
	"context"
	"time"
)

// PendingRegistration guarda el registro cifrado hasta que el pago se confirma.
// Se borra al crear el tenant; su existencia es la guarda de idempotencia.
type PendingRegistration struct {
	ID                string // UUID, viaja como client_reference_id al proveedor
	EncryptedToken    string
	Domain            string
	TenantID          string
	Email             string
	CheckoutSessionID string
	StripeCustomerID  string
	ExpiresAt         time.Time
	CreatedAt         time.Time
}

// Expired reporta si el registro venció (expiración perezosa, sin sweeper).
func (p *PendingRegistration) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// PendingRegistrationRepository persiste registros pendientes en la base central.
type PendingRegistrationRepository interface {
	// Create retorna ErrConflict si ya hay un registro para el dominio o el tenant id.
	Create(ctx context.Context, p PendingRegistration) error

	GetByID(ctx context.Context, id string) (*PendingRegistration, error)
	GetByDomain(ctx context.Context, domain string) (*PendingRegistration, error)
	GetByTenantID(ctx context.Context, tenantID string) (*PendingRegistration, error)
	GetByCheckoutSession(ctx context.Context, sessionID string) (*PendingRegistration, error)

	// AttachCheckout guarda la sesión de checkout y el customer creados en el proveedor.
	AttachCheckout(ctx context.Context, id, sessionID, customerID string) error

	// Delete retorna ErrNotFound si ya no existe.
	Delete(ctx context.Context, id string) error
}

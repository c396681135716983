package repository

import "context"

// CentralStore agrupa los repositorios de la base central.
type CentralStore interface {
	Tenants() TenantRepository
	Registrations() PendingRegistrationRepository
	Users() UserRepository
	TenantUsers() TenantUserRepository

	// WithTx ejecuta fn dentro de una transacción. Si fn retorna error se hace rollback.
	WithTx(ctx context.Context, fn func(tx CentralStore) error) error

	Ping(ctx context.Context) error
}

// DataAccessLayer resuelve el acceso a la base aislada de un tenant.
type DataAccessLayer interface {
	// ForTenant retorna ErrNoDatabase si la base del tenant no existe todavía.
	ForTenant(ctx context.Context, tenantID string) (TenantDataAccess, error)
}

// TenantDataAccess es el handle explícito a la base de un tenant.
type TenantDataAccess interface {
	TenantID() string

	Users() LocalUserRepository
	Roles() RoleRepository
	Consents() ConsentRepository
	Invitations() InvitationRepository
	Patients() PatientRepository
	Practitioners() PractitionerRepository
	Wallets() WalletRepository
	Organization() OrganizationRepository

	// WithTx ejecuta fn dentro de una transacción de la base del tenant.
	WithTx(ctx context.Context, fn func(tx TenantDataAccess) error) error
}

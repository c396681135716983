package repository

import (
	"context"
	"time"
)

// User es la identidad central, única por email en todo el sistema.
type User struct {
	ID              int64
	Name            string
	Email           string
	PasswordHash    string
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
}

// CreateUserInput contiene los datos para crear un usuario central.
type CreateUserInput struct {
	Name            string
	Email           string
	PasswordHash    string
	EmailVerifiedAt *time.Time
}

// UserRepository opera sobre la tabla central de usuarios.
type UserRepository interface {
	// Create retorna ErrConflict si el email ya existe.
	Create(ctx context.Context, in CreateUserInput) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	MarkEmailVerified(ctx context.Context, id int64, at time.Time) error
}

// TenantUser otorga a un usuario central acceso a un tenant.
type TenantUser struct {
	UserID    int64
	TenantID  string
	Role      string
	CreatedAt time.Time
}

// TenantUserRepository opera sobre la relación user↔tenant.
type TenantUserRepository interface {
	// Ensure crea la fila si no existe. created=false si ya estaba.
	Ensure(ctx context.Context, userID int64, tenantID, role string) (created bool, err error)
	Get(ctx context.Context, userID int64, tenantID string) (*TenantUser, error)
	ListByUser(ctx context.Context, userID int64) ([]TenantUser, error)
	ListByTenant(ctx context.Context, tenantID string) ([]TenantUser, error)
}

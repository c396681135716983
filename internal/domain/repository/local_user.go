package repository

import (
	"context"
	"time"
)

// LocalUser es la copia de una identidad dentro de la base de un tenant.
// Name puede divergir del nombre central y nunca se pisa desde la sync.
type LocalUser struct {
	ID              int64
	CentralUserID   *int64
	Name            string
	Email           string
	PasswordHash    string
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InsertLocalUserInput: ID == 0 deja que la base asigne el id.
type InsertLocalUserInput struct {
	ID              int64
	CentralUserID   *int64
	Name            string
	Email           string
	PasswordHash    string
	EmailVerifiedAt *time.Time
}

// LocalUserRepository opera sobre la tabla users del tenant.
type LocalUserRepository interface {
	GetByID(ctx context.Context, id int64) (*LocalUser, error)
	GetByEmail(ctx context.Context, email string) (*LocalUser, error)

	// Insert retorna ErrConflict si el id o el email ya existen.
	Insert(ctx context.Context, in InsertLocalUserInput) (*LocalUser, error)

	// UpdateCredentials actualiza hash, verificación y vínculo central. No toca el nombre.
	UpdateCredentials(ctx context.Context, id int64, passwordHash string, verifiedAt *time.Time, centralUserID *int64) error
}

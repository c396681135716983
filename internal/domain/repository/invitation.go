package repository

import (
	"context"
	"time"
)

// InvitationStatus es el estado persistido de una invitación.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
)

// Invitation habilita crear cuenta y asociarse al tenant. El token crudo
// solo viaja en el link; se persiste su hash.
type Invitation struct {
	ID         int64
	TokenHash  string
	Target     EntityRef
	Email      string
	Status     InvitationStatus
	ExpiresAt  time.Time
	AcceptedAt *time.Time
	InvitedBy  *int64
	CreatedAt  time.Time
}

// EffectiveStatus calcula el estado al momento now. La expiración no se persiste.
func (i *Invitation) EffectiveStatus(now time.Time) InvitationStatus {
	if i.Status != InvitationPending {
		return i.Status
	}
	if !now.Before(i.ExpiresAt) {
		return InvitationExpired
	}
	return InvitationPending
}

// CreateInvitationInput contiene los datos para emitir una invitación.
type CreateInvitationInput struct {
	TokenHash string
	Target    EntityRef
	Email     string
	ExpiresAt time.Time
	InvitedBy *int64
}

type InvitationRepository interface {
	Create(ctx context.Context, in CreateInvitationInput) (*Invitation, error)
	GetByTokenHash(ctx context.Context, hash string) (*Invitation, error)

	// MarkAccepted transiciona pending→accepted una sola vez.
	// Retorna ErrConflict si la invitación ya no está pending.
	MarkAccepted(ctx context.Context, id int64, at time.Time) error
}

package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

type invitationRepo struct{ q querier }

const invitationCols = `id, token_hash, entity_type, entity_id, email, status, expires_at, accepted_at, invited_by, created_at`

func scanInvitation(row pgx.Row) (*repository.Invitation, error) {
	var inv repository.Invitation
	var kind, status string
	if err := row.Scan(&inv.ID, &inv.TokenHash, &kind, &inv.Target.ID, &inv.Email, &status, &inv.ExpiresAt,
		&inv.AcceptedAt, &inv.InvitedBy, &inv.CreatedAt); err != nil {
		return nil, err
	}
	inv.Target.Kind = repository.EntityKind(kind)
	inv.Status = repository.InvitationStatus(status)
	return &inv, nil
}

func (r *invitationRepo) Create(ctx context.Context, in repository.CreateInvitationInput) (*repository.Invitation, error) {
	inv, err := scanInvitation(r.q.QueryRow(ctx, `
		INSERT INTO invitations (token_hash, entity_type, entity_id, email, expires_at, invited_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+invitationCols,
		in.TokenHash, string(in.Target.Kind), in.Target.ID, in.Email, in.ExpiresAt, in.InvitedBy))
	if err != nil {
		return nil, wrapErr("create invitation", err)
	}
	return inv, nil
}

func (r *invitationRepo) GetByTokenHash(ctx context.Context, hash string) (*repository.Invitation, error) {
	inv, err := scanInvitation(r.q.QueryRow(ctx, `SELECT `+invitationCols+` FROM invitations WHERE token_hash = $1`, hash))
	if err != nil {
		return nil, wrapErr("get invitation", err)
	}
	return inv, nil
}

func (r *invitationRepo) MarkAccepted(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE invitations SET status = 'accepted', accepted_at = $2
		WHERE id = $1 AND status = 'pending'`, id, at)
	if err != nil {
		return wrapErr("accept invitation", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invitations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return wrapErr("accept invitation", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

package pg

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

type registrationRepo struct{ q querier }

const registrationCols = `id::text, encrypted_token, domain, tenant_id, email, checkout_session_id,
	stripe_customer_id, expires_at, created_at`

func scanRegistration(row pgx.Row) (*repository.PendingRegistration, error) {
	var (
		p                 repository.PendingRegistration
		session, customer *string
	)
	if err := row.Scan(&p.ID, &p.EncryptedToken, &p.Domain, &p.TenantID, &p.Email, &session,
		&customer, &p.ExpiresAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.CheckoutSessionID = deref(session)
	p.StripeCustomerID = deref(customer)
	return &p, nil
}

func (r *registrationRepo) Create(ctx context.Context, p repository.PendingRegistration) error {
	const q = `
		INSERT INTO pending_registrations (id, encrypted_token, domain, tenant_id, email,
			checkout_session_id, stripe_customer_id, expires_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.q.Exec(ctx, q, p.ID, p.EncryptedToken, p.Domain, p.TenantID, p.Email,
		nullIfEmpty(p.CheckoutSessionID), nullIfEmpty(p.StripeCustomerID), p.ExpiresAt)
	return wrapErr("create registration", err)
}

func (r *registrationRepo) getOne(ctx context.Context, op, where string, arg any) (*repository.PendingRegistration, error) {
	p, err := scanRegistration(r.q.QueryRow(ctx, `SELECT `+registrationCols+` FROM pending_registrations WHERE `+where+` LIMIT 1`, arg))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return p, nil
}

func (r *registrationRepo) GetByID(ctx context.Context, id string) (*repository.PendingRegistration, error) {
	return r.getOne(ctx, "get registration", `id::text = $1`, id)
}

func (r *registrationRepo) GetByDomain(ctx context.Context, domain string) (*repository.PendingRegistration, error) {
	return r.getOne(ctx, "get registration by domain", `LOWER(domain) = LOWER($1)`, domain)
}

func (r *registrationRepo) GetByTenantID(ctx context.Context, tenantID string) (*repository.PendingRegistration, error) {
	return r.getOne(ctx, "get registration by tenant", `tenant_id = $1`, tenantID)
}

func (r *registrationRepo) GetByCheckoutSession(ctx context.Context, sessionID string) (*repository.PendingRegistration, error) {
	return r.getOne(ctx, "get registration by session", `checkout_session_id = $1`, sessionID)
}

func (r *registrationRepo) AttachCheckout(ctx context.Context, id, sessionID, customerID string) error {
	const q = `
		UPDATE pending_registrations
		SET checkout_session_id = $2, stripe_customer_id = COALESCE($3, stripe_customer_id)
		WHERE id::text = $1`
	tag, err := r.q.Exec(ctx, q, id, sessionID, nullIfEmpty(customerID))
	if err != nil {
		return wrapErr("attach checkout", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *registrationRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM pending_registrations WHERE id::text = $1`, id)
	if err != nil {
		return wrapErr("delete registration", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

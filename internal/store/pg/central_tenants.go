package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

type tenantRepo struct{ q querier }

const tenantCols = `id, company_name, domain, billing_status, requires_billing_setup, subscription_plan_id,
	stripe_customer_id, stripe_subscription_id, registration_id::text, trial_ends_at, provisioned_at,
	created_at, updated_at`

func scanTenant(row pgx.Row) (*repository.Tenant, error) {
	var t repository.Tenant
	var status string
	var customer, subscription, reg *string
	if err := row.Scan(&t.ID, &t.CompanyName, &t.Domain, &status, &t.RequiresBillingSetup, &t.SubscriptionPlanID,
		&customer, &subscription, &reg, &t.TrialEndsAt, &t.ProvisionedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.BillingStatus = repository.BillingStatus(status)
	t.StripeCustomerID = deref(customer)
	t.StripeSubscriptionID = deref(subscription)
	t.RegistrationID = deref(reg)
	return &t, nil
}

func (r *tenantRepo) Create(ctx context.Context, in repository.CreateTenantInput) (*repository.Tenant, error) {
	const q = `
		INSERT INTO tenants (id, company_name, domain, subscription_plan_id, stripe_customer_id, registration_id)
		VALUES ($1, $2, $3, $4, $5, $6::uuid)
		RETURNING ` + tenantCols
	t, err := scanTenant(r.q.QueryRow(ctx, q, in.ID, in.CompanyName, in.Domain, in.SubscriptionPlanID,
		nullIfEmpty(in.StripeCustomerID), nullIfEmpty(in.RegistrationID)))
	if err != nil {
		return nil, wrapErr("create tenant", err)
	}
	return t, nil
}

func (r *tenantRepo) getOne(ctx context.Context, op, where string, arg any) (*repository.Tenant, error) {
	t, err := scanTenant(r.q.QueryRow(ctx, `SELECT `+tenantCols+` FROM tenants WHERE `+where+` LIMIT 1`, arg))
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return t, nil
}

func (r *tenantRepo) GetByID(ctx context.Context, id string) (*repository.Tenant, error) {
	return r.getOne(ctx, "get tenant", `id = $1`, id)
}

func (r *tenantRepo) GetByDomain(ctx context.Context, domain string) (*repository.Tenant, error) {
	return r.getOne(ctx, "get tenant by domain", `LOWER(domain) = LOWER($1)`, domain)
}

func (r *tenantRepo) GetByStripeCustomer(ctx context.Context, customerID string) (*repository.Tenant, error) {
	return r.getOne(ctx, "get tenant by customer", `stripe_customer_id = $1`, customerID)
}

func (r *tenantRepo) GetByRegistrationID(ctx context.Context, registrationID string) (*repository.Tenant, error) {
	return r.getOne(ctx, "get tenant by registration", `registration_id::text = $1`, registrationID)
}

func (r *tenantRepo) List(ctx context.Context, limit, offset int) ([]repository.Tenant, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.Query(ctx, `SELECT `+tenantCols+` FROM tenants ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, wrapErr("list tenants", err)
	}
	defer rows.Close()

	var out []repository.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, wrapErr("scan tenant", err)
		}
		out = append(out, *t)
	}
	return out, wrapErr("list tenants", rows.Err())
}

func (r *tenantRepo) UpdateBilling(ctx context.Context, id string, upd repository.BillingUpdate) (*repository.Tenant, error) {
	const q = `
		UPDATE tenants SET
			billing_status = $2,
			requires_billing_setup = $3,
			trial_ends_at = $4,
			stripe_subscription_id = COALESCE($5, stripe_subscription_id),
			stripe_customer_id = COALESCE($6, stripe_customer_id),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + tenantCols
	t, err := scanTenant(r.q.QueryRow(ctx, q, id, string(upd.Status), upd.RequiresBillingSetup, upd.TrialEndsAt,
		nullIfEmpty(upd.StripeSubscriptionID), nullIfEmpty(upd.StripeCustomerID)))
	if err != nil {
		return nil, wrapErr("update billing", err)
	}
	return t, nil
}

func (r *tenantRepo) MarkProvisioned(ctx context.Context, id string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE tenants SET provisioned_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	if err != nil {
		return wrapErr("mark provisioned", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

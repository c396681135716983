package pg

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

type walletRepo struct{ q querier }

const walletCols = `id, owner_type, name, currency, balance_cents, created_at`

func scanWallet(row pgx.Row) (*repository.Wallet, error) {
	var w repository.Wallet
	if err := row.Scan(&w.ID, &w.OwnerType, &w.Name, &w.Currency, &w.BalanceCents, &w.CreatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *walletRepo) EnsureSystemWallet(ctx context.Context, currency string) (*repository.Wallet, bool, error) {
	w, err := scanWallet(r.q.QueryRow(ctx, `
		INSERT INTO wallets (owner_type, name, currency) VALUES ($1, 'System', $2)
		ON CONFLICT (owner_type) WHERE owner_type = 'SYSTEM' DO NOTHING
		RETURNING `+walletCols, repository.WalletOwnerSystem, currency))
	if err == pgx.ErrNoRows {
		w, err = r.GetSystemWallet(ctx)
		return w, false, err
	}
	if err != nil {
		return nil, false, wrapErr("ensure system wallet", err)
	}
	return w, true, nil
}

func (r *walletRepo) GetSystemWallet(ctx context.Context) (*repository.Wallet, error) {
	w, err := scanWallet(r.q.QueryRow(ctx, `SELECT `+walletCols+` FROM wallets WHERE owner_type = $1`, repository.WalletOwnerSystem))
	if err != nil {
		return nil, wrapErr("get system wallet", err)
	}
	return w, nil
}

type organizationRepo struct{ q querier }

func (r *organizationRepo) Get(ctx context.Context) (*repository.OrganizationSettings, error) {
	var s repository.OrganizationSettings
	err := r.q.QueryRow(ctx, `
		SELECT display_name, contact_email, phone, address, timezone, updated_at
		FROM organization_settings WHERE id = 1`).
		Scan(&s.DisplayName, &s.ContactEmail, &s.Phone, &s.Address, &s.Timezone, &s.UpdatedAt)
	if err != nil {
		return nil, wrapErr("get organization", err)
	}
	return &s, nil
}

func (r *organizationRepo) Upsert(ctx context.Context, s repository.OrganizationSettings) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO organization_settings (id, display_name, contact_email, phone, address, timezone, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			contact_email = EXCLUDED.contact_email,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address,
			timezone = EXCLUDED.timezone,
			updated_at = NOW()`,
		s.DisplayName, s.ContactEmail, s.Phone, s.Address, s.Timezone)
	return wrapErr("upsert organization", err)
}

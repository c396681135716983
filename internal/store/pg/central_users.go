package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

type userRepo struct{ q querier }

const userCols = `id, name, email, password_hash, email_verified_at, created_at`

func scanUser(row pgx.Row) (*repository.User, error) {
	var u repository.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.EmailVerifiedAt, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserta dentro de un savepoint: un email duplicado devuelve ErrConflict
// sin abortar la transacción del caller, que puede releer por email.
func (r *userRepo) Create(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	const q = `
		INSERT INTO users (name, email, password_hash, email_verified_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userCols
	var u *repository.User
	err := withTx(ctx, r.q, func(tx pgx.Tx) error {
		var err error
		u, err = scanUser(tx.QueryRow(ctx, q, in.Name, in.Email, in.PasswordHash, in.EmailVerifiedAt))
		return wrapErr("create user", err)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*repository.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr("get user", err)
	}
	return u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
	if err != nil {
		return nil, wrapErr("get user by email", err)
	}
	return u, nil
}

func (r *userRepo) MarkEmailVerified(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE users SET email_verified_at = COALESCE(email_verified_at, $2) WHERE id = $1`, id, at)
	if err != nil {
		return wrapErr("mark email verified", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type tenantUserRepo struct{ q querier }

func (r *tenantUserRepo) Ensure(ctx context.Context, userID int64, tenantID, role string) (bool, error) {
	const q = `
		INSERT INTO tenant_users (user_id, tenant_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, tenant_id) DO NOTHING`
	tag, err := r.q.Exec(ctx, q, userID, tenantID, role)
	if err != nil {
		return false, wrapErr("ensure tenant user", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *tenantUserRepo) Get(ctx context.Context, userID int64, tenantID string) (*repository.TenantUser, error) {
	var tu repository.TenantUser
	err := r.q.QueryRow(ctx, `SELECT user_id, tenant_id, role, created_at FROM tenant_users WHERE user_id = $1 AND tenant_id = $2`,
		userID, tenantID).Scan(&tu.UserID, &tu.TenantID, &tu.Role, &tu.CreatedAt)
	if err != nil {
		return nil, wrapErr("get tenant user", err)
	}
	return &tu, nil
}

func (r *tenantUserRepo) list(ctx context.Context, op, where string, arg any) ([]repository.TenantUser, error) {
	rows, err := r.q.Query(ctx, `SELECT user_id, tenant_id, role, created_at FROM tenant_users WHERE `+where+` ORDER BY created_at, user_id`, arg)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	var out []repository.TenantUser
	for rows.Next() {
		var tu repository.TenantUser
		if err := rows.Scan(&tu.UserID, &tu.TenantID, &tu.Role, &tu.CreatedAt); err != nil {
			return nil, wrapErr(op, err)
		}
		out = append(out, tu)
	}
	return out, wrapErr(op, rows.Err())
}

func (r *tenantUserRepo) ListByUser(ctx context.Context, userID int64) ([]repository.TenantUser, error) {
	return r.list(ctx, "list tenant users by user", `user_id = $1`, userID)
}

func (r *tenantUserRepo) ListByTenant(ctx context.Context, tenantID string) ([]repository.TenantUser, error) {
	return r.list(ctx, "list tenant users by tenant", `tenant_id = $1`, tenantID)
}

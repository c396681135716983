package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

type localUserRepo struct{ q querier }

const localUserCols = `id, central_user_id, name, email, password_hash, email_verified_at, created_at, updated_at`

func scanLocalUser(row pgx.Row) (*repository.LocalUser, error) {
	var u repository.LocalUser
	if err := row.Scan(&u.ID, &u.CentralUserID, &u.Name, &u.Email, &u.PasswordHash, &u.EmailVerifiedAt,
		&u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *localUserRepo) GetByID(ctx context.Context, id int64) (*repository.LocalUser, error) {
	u, err := scanLocalUser(r.q.QueryRow(ctx, `SELECT `+localUserCols+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr("get local user", err)
	}
	return u, nil
}

func (r *localUserRepo) GetByEmail(ctx context.Context, email string) (*repository.LocalUser, error) {
	u, err := scanLocalUser(r.q.QueryRow(ctx, `SELECT `+localUserCols+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
	if err != nil {
		return nil, wrapErr("get local user by email", err)
	}
	return u, nil
}

// Insert corre en un savepoint: un conflicto no aborta la transacción externa
// y el caller puede reintentar con id autogenerado.
func (r *localUserRepo) Insert(ctx context.Context, in repository.InsertLocalUserInput) (*repository.LocalUser, error) {
	var out *repository.LocalUser
	err := withTx(ctx, r.q, func(tx pgx.Tx) error {
		var row pgx.Row
		if in.ID > 0 {
			row = tx.QueryRow(ctx, `
				INSERT INTO users (id, central_user_id, name, email, password_hash, email_verified_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING `+localUserCols,
				in.ID, in.CentralUserID, in.Name, in.Email, in.PasswordHash, in.EmailVerifiedAt)
		} else {
			row = tx.QueryRow(ctx, `
				INSERT INTO users (central_user_id, name, email, password_hash, email_verified_at)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING `+localUserCols,
				in.CentralUserID, in.Name, in.Email, in.PasswordHash, in.EmailVerifiedAt)
		}
		u, err := scanLocalUser(row)
		if err != nil {
			return wrapErr("insert local user", err)
		}
		if in.ID > 0 {
			// La secuencia queda detrás de un id explícito.
			if _, err := tx.Exec(ctx, `SELECT setval(pg_get_serial_sequence('users', 'id'), (SELECT MAX(id) FROM users))`); err != nil {
				return wrapErr("bump users sequence", err)
			}
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *localUserRepo) UpdateCredentials(ctx context.Context, id int64, passwordHash string, verifiedAt *time.Time, centralUserID *int64) error {
	const q = `
		UPDATE users SET
			password_hash = $2,
			email_verified_at = COALESCE($3, email_verified_at),
			central_user_id = COALESCE($4, central_user_id),
			updated_at = NOW()
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, q, id, passwordHash, verifiedAt, centralUserID)
	if err != nil {
		return wrapErr("update local credentials", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

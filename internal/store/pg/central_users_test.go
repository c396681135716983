package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

func TestWrapErr_MapsPostgresCodes(t *testing.T) {
	assert.NoError(t, wrapErr("op", nil))
	assert.ErrorIs(t, wrapErr("op", pgx.ErrNoRows), repository.ErrNotFound)
	assert.True(t, repository.IsConflict(wrapErr("op", &pgconn.PgError{Code: "23505"})))
	assert.True(t, repository.IsNotFound(wrapErr("op", &pgconn.PgError{Code: "23503"})))

	other := errors.New("boom")
	err := wrapErr("op", other)
	assert.ErrorIs(t, err, other)
	assert.False(t, repository.IsConflict(err))
	assert.Contains(t, err.Error(), "pg: op")
}

func userRow(id int64, email string) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "name", "email", "password_hash", "email_verified_at", "created_at"}).
		AddRow(id, "Ana", email, "hash", nil, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
}

func anyArgs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = pgxmock.AnyArg()
	}
	return out
}

func TestUserCreate_ConflictKeepsOuterTxUsable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// transacción del caller, savepoint del insert, rollback del savepoint
	// y relectura por email dentro de la misma transacción.
	mock.ExpectBegin()
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(anyArgs(4)...).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()
	mock.ExpectQuery(`FROM users WHERE LOWER\(email\) = LOWER\(\$1\)`).
		WithArgs("ana@example.test").
		WillReturnRows(userRow(7, "ana@example.test"))
	mock.ExpectCommit()

	store := &CentralStore{q: mock}
	var got *repository.User
	err = store.WithTx(context.Background(), func(tx repository.CentralStore) error {
		_, err := tx.Users().Create(context.Background(), repository.CreateUserInput{
			Name:         "Ana",
			Email:        "ana@example.test",
			PasswordHash: "hash",
		})
		if !repository.IsConflict(err) {
			return err
		}
		got, err = tx.Users().GetByEmail(context.Background(), "ana@example.test")
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.ID)
	assert.Nil(t, got.EmailVerifiedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreate_CommitsSavepoint(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(anyArgs(4)...).
		WillReturnRows(userRow(3, "bob@example.test"))
	mock.ExpectCommit()

	store := &CentralStore{q: mock}
	u, err := store.Users().Create(context.Background(), repository.CreateUserInput{
		Name:  "Bob",
		Email: "bob@example.test",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), u.ID)
	assert.Equal(t, "bob@example.test", u.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

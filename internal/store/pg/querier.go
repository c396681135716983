package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

// querier lo implementan *pgxpool.Pool y pgx.Tx. Begin sobre un Tx abre un savepoint.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// withTx ejecuta fn en una transacción (o savepoint si q ya es un Tx).
func withTx(ctx context.Context, q querier, fn func(tx pgx.Tx) error) error {
	tx, err := q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pg: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pg: commit: %w", err)
	}
	return nil
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reporta si err es una violación de unique constraint.
func IsUniqueViolation(err error) bool { return pgCode(err) == pgUniqueViolation }

// wrapErr traduce errores pgx a los sentinels del dominio.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	switch pgCode(err) {
	case pgUniqueViolation:
		return fmt.Errorf("pg: %s: %w", op, repository.ErrConflict)
	case pgForeignKeyViolation:
		return fmt.Errorf("pg: %s: %w", op, repository.ErrNotFound)
	}
	return fmt.Errorf("pg: %s: %w", op, err)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

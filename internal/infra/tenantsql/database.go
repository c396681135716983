package tenantsql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/dropDatabas3/hellocare/internal/observability/logger"
)

// pgDuplicateDatabase / pgDuplicateSchema: otro proceso la creó en paralelo.
const (
	pgDuplicateDatabase = "42P04"
	pgDuplicateSchema   = "42P06"
)

func (m *Manager) exists(ctx context.Context, tenantID string) (bool, error) {
	q := `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`
	if m.cfg.Mode == ModeSchema {
		q = `SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`
	}
	var ok bool
	if err := m.cfg.Admin.QueryRow(ctx, q, m.ObjectName(tenantID)).Scan(&ok); err != nil {
		return false, fmt.Errorf("tenantsql: check %s: %w", m.ObjectName(tenantID), err)
	}
	return ok, nil
}

// EnsureDatabase crea la base (o schema) del tenant si no existe.
func (m *Manager) EnsureDatabase(ctx context.Context, tenantID string) (bool, error) {
	ok, err := m.exists(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}

	name := m.ObjectName(tenantID)
	stmt := "CREATE DATABASE " + pgIdentifier(name)
	dup := pgDuplicateDatabase
	if m.cfg.Mode == ModeSchema {
		stmt = "CREATE SCHEMA IF NOT EXISTS " + pgIdentifier(name)
		dup = pgDuplicateSchema
	}
	if _, err := m.cfg.Admin.Exec(ctx, stmt); err != nil {
		if pgCode(err) == dup {
			return false, nil
		}
		return false, fmt.Errorf("tenantsql: create %s: %w", name, err)
	}
	logger.From(ctx).Info("tenant_database_created",
		logger.TenantID(tenantID), zap.String("object", name), zap.String("mode", string(m.cfg.Mode)))
	return true, nil
}

// pgIdentifier sanitizes a string to be used as a PostgreSQL identifier.
func pgIdentifier(s string) string {
	return pgx.Identifier{s}.Sanitize()
}

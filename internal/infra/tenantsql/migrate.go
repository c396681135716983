package tenantsql

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/hellocare/internal/observability/logger"
	"github.com/dropDatabas3/hellocare/internal/store"
)

// lockID genera un ID único para pg_advisory_lock basado en el tenant y el propósito.
func lockID(purpose, tenantID string) int64 {
	h := sha256.Sum256([]byte(purpose + ":" + tenantID))
	return int64(binary.BigEndian.Uint64(h[:8]))
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// advisoryLock toma el lock sobre una conexión dedicada: los advisory locks
// son de sesión y deben liberarse desde la misma conexión.
func advisoryLock(ctx context.Context, pool *pgxpool.Pool, key int64) (*pgxpool.Conn, func(), error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, nil, err
	}
	if !acquired {
		logger.From(ctx).Debug("advisory_lock_waiting", logger.Any("lock_key", key))
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", key); err != nil {
			conn.Release()
			return nil, nil, err
		}
	}
	release := func() {
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", key); err != nil {
			logger.L().Warn("advisory_unlock_failed", logger.Err(err))
		}
		conn.Release()
	}
	return conn, release, nil
}

// Lock toma el lock exclusivo de provisioning del tenant sobre la base admin.
func (m *Manager) Lock(ctx context.Context, tenantID string) (func(), error) {
	_, release, err := advisoryLock(ctx, m.cfg.Admin, lockID("tenant_provision", tenantID))
	if err != nil {
		return nil, fmt.Errorf("tenantsql: provisioning lock for %s: %w", tenantID, err)
	}
	return release, nil
}

// Migrate aplica las migraciones pendientes del tenant. Usa el pool cacheado si existe.
func (m *Manager) Migrate(ctx context.Context, tenantID string) (*store.MigrationResult, error) {
	m.mu.RLock()
	s, ok := m.stores[tenantID]
	m.mu.RUnlock()
	if ok {
		return m.runMigrations(ctx, tenantID, s.Pool())
	}

	pool, err := m.openPool(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	defer pool.Close()
	return m.runMigrations(ctx, tenantID, pool)
}

// runMigrations corre las migraciones con advisory lock sobre la base del tenant
// para evitar carreras entre instancias.
func (m *Manager) runMigrations(ctx context.Context, tenantID string, pool *pgxpool.Pool) (*store.MigrationResult, error) {
	lockCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	conn, release, err := advisoryLock(lockCtx, pool, lockID("tenant_migration", tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire migration lock for tenant %s: %w", tenantID, err)
	}
	defer release()

	res, err := m.cfg.Migrator.Run(ctx, conn)
	if m.cfg.MetricsFunc != nil && res != nil {
		m.cfg.MetricsFunc(tenantID, res.Outcome(), res.Duration)
	}
	if err != nil {
		return res, err
	}
	if len(res.Applied) > 0 {
		logger.From(ctx).Info("tenant_migrations_applied", logger.TenantID(tenantID), logger.Count(len(res.Applied)))
	}
	return res, nil
}

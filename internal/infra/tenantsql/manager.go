package tenantsql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
	"github.com/dropDatabas3/hellocare/internal/store"
	"github.com/dropDatabas3/hellocare/internal/store/pg"
)

// Mode define cómo se aísla cada tenant.
type Mode string

const (
	// ModeDatabase crea una base de datos por tenant (default).
	ModeDatabase Mode = "database"
	// ModeSchema crea un schema por tenant dentro de la base central.
	ModeSchema Mode = "schema"
)

var ErrTenantNotFound = errors.New("tenant not found")

// TenantRegistry resuelve tenants en el registro central.
type TenantRegistry interface {
	GetByID(ctx context.Context, id string) (*repository.Tenant, error)
}

// MigrationMetricsFunc callback para reportar métricas de migraciones
type MigrationMetricsFunc func(tenant, result string, duration time.Duration)

// Config permite personalizar la instancia del Manager.
type Config struct {
	Mode Mode
	// Admin es el pool con permisos para CREATE DATABASE / CREATE SCHEMA y advisory locks.
	Admin *pgxpool.Pool
	// DSNTemplate es el DSN de las bases de tenant; {db} se reemplaza por el nombre de la base.
	DSNTemplate string
	// Prefix del nombre de base o schema (default "tenant_").
	Prefix      string
	Registry    TenantRegistry
	Pool        pg.PoolConfig
	Migrator    *store.Migrator
	MetricsFunc MigrationMetricsFunc // Opcional: callback para métricas
}

// PoolStat es un snapshot del estado de un pool específico.
type PoolStat struct {
	Tenant   string
	Acquired int32
	Idle     int32
	Total    int32
}

// Manager administra pools por tenant, aplicando migraciones on-demand
// y evitando creaciones en paralelo mediante singleflight.
type Manager struct {
	cfg Config

	mu     sync.RWMutex
	stores map[string]*pg.TenantStore
	sf     singleflight.Group
}

var _ repository.DataAccessLayer = (*Manager)(nil)

// New crea un nuevo Manager con la configuración indicada.
func New(cfg Config) (*Manager, error) {
	if cfg.Admin == nil {
		return nil, errors.New("tenantsql: admin pool is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("tenantsql: tenant registry is required")
	}
	if cfg.Migrator == nil {
		return nil, errors.New("tenantsql: migrator is required")
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeDatabase
	case ModeDatabase, ModeSchema:
	default:
		return nil, fmt.Errorf("tenantsql: unknown mode %q", cfg.Mode)
	}
	if cfg.Mode == ModeDatabase && !strings.Contains(cfg.DSNTemplate, "{db}") {
		return nil, errors.New("tenantsql: dsn template must contain {db} in database mode")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "tenant_"
	}
	if cfg.Pool.MaxConns <= 0 {
		cfg.Pool.MaxConns = 5
	}
	if cfg.Pool.ConnMaxLifetime <= 0 {
		cfg.Pool.ConnMaxLifetime = 30 * time.Minute
	}
	return &Manager{cfg: cfg, stores: make(map[string]*pg.TenantStore)}, nil
}

// ObjectName es el nombre de la base o schema del tenant.
func (m *Manager) ObjectName(tenantID string) string {
	return m.cfg.Prefix + strings.ReplaceAll(tenantID, "-", "_")
}

// ForTenant devuelve (o crea) el store del tenant. Retorna ErrNoDatabase si
// el tenant existe pero su base todavía no fue creada.
func (m *Manager) ForTenant(ctx context.Context, tenantID string) (repository.TenantDataAccess, error) {
	return m.Store(ctx, tenantID)
}

// Store es ForTenant con el tipo concreto.
func (m *Manager) Store(ctx context.Context, tenantID string) (*pg.TenantStore, error) {
	tenantID = strings.TrimSpace(tenantID)

	m.mu.RLock()
	if s, ok := m.stores[tenantID]; ok {
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()

	result, err, _ := m.sf.Do(tenantID, func() (interface{}, error) {
		m.mu.RLock()
		if s, ok := m.stores[tenantID]; ok {
			m.mu.RUnlock()
			return s, nil
		}
		m.mu.RUnlock()

		s, err := m.createStore(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.stores[tenantID] = s
		m.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*pg.TenantStore), nil
}

func (m *Manager) createStore(ctx context.Context, tenantID string) (*pg.TenantStore, error) {
	if _, err := m.cfg.Registry.GetByID(ctx, tenantID); err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
		}
		return nil, err
	}
	exists, err := m.exists(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, repository.ErrNoDatabase
	}

	pool, err := m.openPool(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	// Las migraciones corren al abrir el pool para que un deploy nuevo
	// encuentre el schema al día.
	if _, err := m.runMigrations(ctx, tenantID, pool); err != nil {
		pool.Close()
		return nil, err
	}

	logger.From(ctx).Info("tenant_pg_pool_ready",
		logger.TenantID(tenantID), zap.Int("max_conns", m.cfg.Pool.MaxConns))
	return pg.NewTenantStore(tenantID, pool), nil
}

func (m *Manager) openPool(ctx context.Context, tenantID string) (*pgxpool.Pool, error) {
	cfg := m.cfg.Pool
	dsn := m.cfg.DSNTemplate
	switch m.cfg.Mode {
	case ModeSchema:
		cfg.SearchPath = m.ObjectName(tenantID)
		if dsn == "" {
			dsn = m.cfg.Admin.Config().ConnString()
		}
	default:
		dsn = strings.ReplaceAll(dsn, "{db}", m.ObjectName(tenantID))
	}
	return pg.Open(ctx, dsn, cfg)
}

// PoolCount retorna el número de pools activos.
func (m *Manager) PoolCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stores)
}

// Stats devuelve un snapshot con los stats actuales de cada pool.
func (m *Manager) Stats() map[string]PoolStat {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]PoolStat, len(m.stores))
	for slug, s := range m.stores {
		if stat := s.PoolStats(); stat != nil {
			out[slug] = PoolStat{
				Tenant:   slug,
				Acquired: stat.AcquiredConns(),
				Idle:     stat.IdleConns(),
				Total:    stat.TotalConns(),
			}
		}
	}
	return out
}

// Evict cierra y descarta el pool cacheado del tenant.
func (m *Manager) Evict(tenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stores[tenantID]; ok {
		s.Close()
		delete(m.stores, tenantID)
	}
}

// Close cierra todos los pools activos.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for slug, s := range m.stores {
		s.Close()
		delete(m.stores, slug)
	}
	return nil
}

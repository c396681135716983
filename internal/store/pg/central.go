package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

// CentralStore implementa repository.CentralStore.
type CentralStore struct {
	pool *pgxpool.Pool
	q    querier
}

var _ repository.CentralStore = (*CentralStore)(nil)

func NewCentralStore(pool *pgxpool.Pool) *CentralStore {
	return &CentralStore{pool: pool, q: pool}
}

// Pool expone el pool para métricas y migraciones.
func (s *CentralStore) Pool() *pgxpool.Pool { return s.pool }

func (s *CentralStore) Tenants() repository.TenantRepository { return &tenantRepo{q: s.q} }
func (s *CentralStore) Registrations() repository.PendingRegistrationRepository {
	return &registrationRepo{q: s.q}
}
func (s *CentralStore) Users() repository.UserRepository             { return &userRepo{q: s.q} }
func (s *CentralStore) TenantUsers() repository.TenantUserRepository { return &tenantUserRepo{q: s.q} }

func (s *CentralStore) WithTx(ctx context.Context, fn func(tx repository.CentralStore) error) error {
	return withTx(ctx, s.q, func(tx pgx.Tx) error {
		return fn(&CentralStore{pool: s.pool, q: tx})
	})
}

func (s *CentralStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *CentralStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

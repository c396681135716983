package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

// TenantStore implementa repository.TenantDataAccess sobre la base de un tenant.
type TenantStore struct {
	tenantID string
	pool     *pgxpool.Pool
	q        querier
}

var _ repository.TenantDataAccess = (*TenantStore)(nil)

func NewTenantStore(tenantID string, pool *pgxpool.Pool) *TenantStore {
	return &TenantStore{tenantID: tenantID, pool: pool, q: pool}
}

func (s *TenantStore) TenantID() string { return s.tenantID }

// Pool expone el pool interno para métricas y migraciones.
func (s *TenantStore) Pool() *pgxpool.Pool { return s.pool }

// PoolStats devuelve un snapshot del estado del pool.
func (s *TenantStore) PoolStats() *pgxpool.Stat {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Stat()
}

// Close cierra el pool subyacente.
func (s *TenantStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *TenantStore) Users() repository.LocalUserRepository  { return &localUserRepo{q: s.q} }
func (s *TenantStore) Roles() repository.RoleRepository       { return &roleRepo{q: s.q} }
func (s *TenantStore) Consents() repository.ConsentRepository { return &consentRepo{q: s.q} }
func (s *TenantStore) Patients() repository.PatientRepository { return &patientRepo{q: s.q} }
func (s *TenantStore) Wallets() repository.WalletRepository   { return &walletRepo{q: s.q} }
func (s *TenantStore) Invitations() repository.InvitationRepository {
	return &invitationRepo{q: s.q}
}
func (s *TenantStore) Practitioners() repository.PractitionerRepository {
	return &practitionerRepo{q: s.q}
}
func (s *TenantStore) Organization() repository.OrganizationRepository {
	return &organizationRepo{q: s.q}
}

func (s *TenantStore) WithTx(ctx context.Context, fn func(tx repository.TenantDataAccess) error) error {
	return withTx(ctx, s.q, func(tx pgx.Tx) error {
		return fn(&TenantStore{tenantID: s.tenantID, pool: s.pool, q: tx})
	})
}

func (s *TenantStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

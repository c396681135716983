// Package provisioning lleva un tenant recién insertado a un estado usable:
// base aislada, migraciones, seed, admin sincronizado y wallet de sistema.
// provisioned_at se setea solo al final; un tenant sin ese flag se considera
// incompleto y la próxima reconciliación vuelve a correr Provision.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/hellocare/internal/domain/errs"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/email"
	"github.com/dropDatabas3/hellocare/internal/metrics"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
	"github.com/dropDatabas3/hellocare/internal/store"
	"github.com/dropDatabas3/hellocare/internal/usersync"
)

// Pasos del provisioning (logs, métricas y StepError).
const (
	StepLock     = "lock"
	StepDatabase = "database"
	StepMigrate  = "migrate"
	StepSeed     = "seed"
	StepAdmin    = "admin_sync"
	StepWallet   = "wallet"
	StepComplete = "complete"
)

var ErrNoAdmin = errors.New("provisioning: tenant has no admin user")

// StepError indica en qué paso falló el provisioning.
type StepError struct {
	Step     string
	TenantID string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("provision tenant %s: %s: %v", e.TenantID, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Databases es el ciclo de vida de las bases de tenant (tenantsql.Manager o memory.DAL).
type Databases interface {
	repository.DataAccessLayer
	EnsureDatabase(ctx context.Context, tenantID string) (bool, error)
	Migrate(ctx context.Context, tenantID string) (*store.MigrationResult, error)
	// Lock serializa provisionings del mismo tenant (advisory lock en Postgres).
	Lock(ctx context.Context, tenantID string) (func(), error)
}

// WelcomeSender envía el email de bienvenida al admin.
type WelcomeSender interface {
	SendWelcome(ctx context.Context, in email.WelcomeMail) error
}

type Deps struct {
	Central     repository.CentralStore
	Databases   Databases
	Syncer      *usersync.Syncer
	Seed        Seed
	Mailer      WelcomeSender // opcional
	Metrics     *metrics.Metrics
	BaseURL     string
	LockTimeout time.Duration
	Now         func() time.Time
}

// Result resume un Provision.
type Result struct {
	Tenant             *repository.Tenant
	AlreadyProvisioned bool
	CreatedDatabase    bool
	Migration          *store.MigrationResult
	AdminLocalUserID   int64
	Warnings           []errs.SyncWarning
}

type Provisioner struct {
	deps Deps
}

func New(deps Deps) *Provisioner {
	if deps.Syncer == nil {
		deps.Syncer = usersync.New()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.LockTimeout <= 0 {
		deps.LockTimeout = 30 * time.Second
	}
	if deps.Seed.WalletCurrency == "" && len(deps.Seed.Roles) == 0 && len(deps.Seed.Consents) == 0 {
		deps.Seed = DefaultSeed()
	}
	return &Provisioner{deps: deps}
}

// Provision ejecuta todos los pasos para tenant con admin como administrador.
// Es seguro reintentarlo: cada paso es idempotente y un tenant ya provisionado
// se devuelve sin cambios.
func (p *Provisioner) Provision(ctx context.Context, tenant *repository.Tenant, admin *repository.User) (res *Result, err error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("provisioning"),
		logger.Op("Provision"),
		logger.TenantID(tenant.ID),
	)
	start := time.Now()
	outcome := "error"
	defer func() {
		p.deps.Metrics.ObserveProvision(outcome, time.Since(start))
	}()

	if admin == nil {
		return nil, &StepError{Step: StepAdmin, TenantID: tenant.ID, Err: ErrNoAdmin}
	}

	lockCtx, cancel := context.WithTimeout(ctx, p.deps.LockTimeout)
	unlock, err := p.deps.Databases.Lock(lockCtx, tenant.ID)
	cancel()
	if err != nil {
		log.Error("provision lock failed", logger.Err(err))
		return nil, &StepError{Step: StepLock, TenantID: tenant.ID, Err: err}
	}
	defer unlock()

	// Releer bajo el lock: otro reconciliador pudo terminar mientras esperábamos.
	current, err := p.deps.Central.Tenants().GetByID(ctx, tenant.ID)
	if err != nil {
		return nil, &StepError{Step: StepLock, TenantID: tenant.ID, Err: err}
	}
	res = &Result{Tenant: current}
	if current.IsProvisioned() {
		outcome = "skipped"
		res.AlreadyProvisioned = true
		log.Debug("tenant already provisioned")
		return res, nil
	}

	fail := func(step string, err error) (*Result, error) {
		log.Error("provision step failed", logger.Step(step), logger.Err(err))
		return nil, &StepError{Step: step, TenantID: tenant.ID, Err: err}
	}

	created, err := p.deps.Databases.EnsureDatabase(ctx, tenant.ID)
	if err != nil {
		return fail(StepDatabase, err)
	}
	res.CreatedDatabase = created

	mig, err := p.deps.Databases.Migrate(ctx, tenant.ID)
	if err != nil {
		return fail(StepMigrate, err)
	}
	res.Migration = mig

	tda, err := p.deps.Databases.ForTenant(ctx, tenant.ID)
	if err != nil {
		return fail(StepMigrate, err)
	}

	if err := p.seed(ctx, tda); err != nil {
		return fail(StepSeed, err)
	}

	sync, err := p.deps.Syncer.Sync(ctx, tda, admin, repository.RoleAdmin, "")
	if err != nil {
		return fail(StepAdmin, err)
	}
	res.AdminLocalUserID = sync.LocalUser.ID
	res.Warnings = append(res.Warnings, sync.Warnings...)

	if _, _, err := tda.Wallets().EnsureSystemWallet(ctx, p.deps.Seed.WalletCurrency); err != nil {
		return fail(StepWallet, err)
	}

	now := p.deps.Now().UTC()
	if err := p.deps.Central.Tenants().MarkProvisioned(ctx, tenant.ID, now); err != nil {
		return fail(StepComplete, err)
	}
	current.ProvisionedAt = &now
	outcome = "ok"

	log.Info("tenant provisioned",
		logger.Bool("created_database", created),
		logger.Int("migrations_applied", len(mig.Applied)),
		logger.Count(len(res.Warnings)),
		logger.Duration(time.Since(start)),
	)

	if w := p.sendWelcome(ctx, tda, current, admin); w != nil {
		log.Warn("welcome email not sent", logger.Err(w.Err))
		res.Warnings = append(res.Warnings, *w)
	}
	return res, nil
}

// ProvisionByID resuelve el tenant y su admin desde la base central (CLI y reintentos manuales).
func (p *Provisioner) ProvisionByID(ctx context.Context, tenantID string) (*Result, error) {
	tenant, err := p.deps.Central.Tenants().GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	admin, err := p.AdminFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return p.Provision(ctx, tenant, admin)
}

// AdminFor retorna el primer usuario central con rol admin en el tenant.
func (p *Provisioner) AdminFor(ctx context.Context, tenantID string) (*repository.User, error) {
	members, err := p.deps.Central.TenantUsers().ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.Role == repository.RoleAdmin {
			return p.deps.Central.Users().GetByID(ctx, m.UserID)
		}
	}
	return nil, ErrNoAdmin
}

func (p *Provisioner) seed(ctx context.Context, tda repository.TenantDataAccess) error {
	at := p.deps.Now().UTC()
	return tda.WithTx(ctx, func(tx repository.TenantDataAccess) error {
		for _, r := range p.deps.Seed.Roles {
			if _, err := tx.Roles().EnsureRole(ctx, r.Name, r.Description, r.Permissions); err != nil {
				return fmt.Errorf("role %s: %w", r.Name, err)
			}
		}
		for _, c := range p.deps.Seed.Consents {
			if _, _, err := tx.Consents().EnsureConsent(ctx, c, at); err != nil {
				return fmt.Errorf("consent %s/%s: %w", c.EntityType, c.Key, err)
			}
		}
		return nil
	})
}

func (p *Provisioner) sendWelcome(ctx context.Context, tda repository.TenantDataAccess, tenant *repository.Tenant, admin *repository.User) *errs.SyncWarning {
	if p.deps.Mailer == nil {
		return nil
	}
	settings, err := tda.Organization().Get(ctx)
	if err != nil && !repository.IsNotFound(err) {
		return &errs.SyncWarning{Step: "welcome_email", TenantID: tenant.ID, Err: err}
	}
	mail := email.WelcomeMail{
		To:          admin.Email,
		Name:        admin.Name,
		TrialEndsAt: tenant.TrialEndsAt,
		Org:         email.OrganizationFrom(tenant, settings, p.deps.BaseURL),
	}
	if err := p.deps.Mailer.SendWelcome(ctx, mail); err != nil {
		return &errs.SyncWarning{Step: "welcome_email", TenantID: tenant.ID, Err: err}
	}
	return nil
}

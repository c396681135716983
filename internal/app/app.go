// Package app arma el contenedor de dependencias del servicio a partir de la
// config: stores, cache, billing, email, sesiones, servicios y router HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/hellocare/internal/billing"
	"github.com/dropDatabas3/hellocare/internal/cache"
	"github.com/dropDatabas3/hellocare/internal/config"
	"github.com/dropDatabas3/hellocare/internal/consent"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/email"
	adminctrl "github.com/dropDatabas3/hellocare/internal/http/controllers/admin"
	consentctrl "github.com/dropDatabas3/hellocare/internal/http/controllers/consent"
	healthctrl "github.com/dropDatabas3/hellocare/internal/http/controllers/health"
	invitationctrl "github.com/dropDatabas3/hellocare/internal/http/controllers/invitation"
	regctrl "github.com/dropDatabas3/hellocare/internal/http/controllers/registration"
	ssoctrl "github.com/dropDatabas3/hellocare/internal/http/controllers/sso"
	httperrors "github.com/dropDatabas3/hellocare/internal/http/errors"
	"github.com/dropDatabas3/hellocare/internal/http/helpers"
	"github.com/dropDatabas3/hellocare/internal/http/router"
	"github.com/dropDatabas3/hellocare/internal/infra/tenantsql"
	"github.com/dropDatabas3/hellocare/internal/invitation"
	"github.com/dropDatabas3/hellocare/internal/metrics"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
	"github.com/dropDatabas3/hellocare/internal/onboarding"
	"github.com/dropDatabas3/hellocare/internal/provisioning"
	"github.com/dropDatabas3/hellocare/internal/rate"
	"github.com/dropDatabas3/hellocare/internal/security/password"
	"github.com/dropDatabas3/hellocare/internal/security/secretbox"
	"github.com/dropDatabas3/hellocare/internal/session"
	"github.com/dropDatabas3/hellocare/internal/store"
	"github.com/dropDatabas3/hellocare/internal/store/memory"
	pgstore "github.com/dropDatabas3/hellocare/internal/store/pg"
	"github.com/dropDatabas3/hellocare/internal/usersync"
	migrations "github.com/dropDatabas3/hellocare/migrations/postgres"
)

// Container expone los componentes ya conectados. Lo usan cmd/service y el CLI.
type Container struct {
	Config *config.Config

	Central   repository.CentralStore
	Databases provisioning.Databases
	Cache     cache.Client
	Billing   billing.Provider
	Mailer    *email.Mailer
	Metrics   *metrics.Metrics
	Issuer    *session.Issuer
	// Outbox captura los emails cuando no hay SMTP configurado.
	Outbox *email.LogSender

	Provisioner *provisioning.Provisioner
	Coordinator *onboarding.Coordinator
	Ledger      *consent.Ledger
	Invitations *invitation.Workflow

	Handler http.Handler

	closers []func()
}

// Close libera pools y conexiones en orden inverso de apertura.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build conecta todas las dependencias. Ante error cierra lo que ya abrió.
func Build(ctx context.Context, cfg *config.Config) (c *Container, err error) {
	c = &Container{Config: cfg}
	defer func() {
		if err != nil {
			c.Close()
			c = nil
		}
	}()
	log := logger.From(ctx).With(logger.Component("app"))
	httperrors.ExposeDetails(!cfg.IsProd())

	reg := prometheus.NewRegistry()
	if c.Metrics, err = metrics.New(reg); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	if err = c.openStores(ctx, cfg); err != nil {
		return nil, err
	}
	rdb, err := c.openCache(cfg)
	if err != nil {
		return nil, err
	}

	box, err := openSecretBox(ctx, cfg)
	if err != nil {
		return nil, err
	}
	policy, err := passwordPolicy(cfg)
	if err != nil {
		return nil, err
	}

	var sender email.Sender
	if strings.TrimSpace(cfg.SMTP.Host) != "" {
		sender = email.NewSMTPSender(email.SMTPConfig{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			Username:           cfg.SMTP.Username,
			Password:           cfg.SMTP.Password,
			From:               cfg.SMTP.From,
			TLSMode:            cfg.SMTP.TLS,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		})
	} else {
		log.Warn("smtp host not configured, emails go to the log")
		c.Outbox = email.NewLogSender()
		sender = c.Outbox
	}
	if c.Mailer, err = email.NewMailer(sender, cfg.App.Name); err != nil {
		return nil, err
	}

	if c.Billing, err = billingProvider(ctx, cfg); err != nil {
		return nil, err
	}

	if c.Issuer, err = session.NewIssuer(session.Config{
		Issuer:     cfg.Session.Issuer,
		Seed:       cfg.Session.SigningSeed,
		SessionTTL: config.Dur(cfg.Session.TTL, 0),
		HandoffTTL: config.Dur(cfg.Session.HandoffTTL, 0),
	}); err != nil {
		return nil, fmt.Errorf("session issuer: %w", err)
	}
	if cfg.Session.SigningSeed == "" {
		log.Warn("session signing seed not set, using an ephemeral key")
	}

	seed, err := provisioning.LoadSeed(cfg.Provisioning.SeedFile)
	if err != nil {
		return nil, err
	}
	syncer := usersync.New()
	c.Provisioner = provisioning.New(provisioning.Deps{
		Central:     c.Central,
		Databases:   c.Databases,
		Syncer:      syncer,
		Seed:        seed,
		Mailer:      c.Mailer,
		Metrics:     c.Metrics,
		BaseURL:     cfg.Server.BaseURL,
		LockTimeout: config.Dur(cfg.Provisioning.LockTimeout, 0),
	})
	c.Coordinator = onboarding.New(onboarding.Deps{
		Central:          c.Central,
		Billing:          c.Billing,
		Provisioner:      c.Provisioner,
		Box:              box,
		Cache:            c.Cache,
		Mailer:           c.Mailer,
		Metrics:          c.Metrics,
		Policy:           policy,
		Plans:            cfg.Billing.Plans,
		TrialDays:        cfg.Billing.TrialDays,
		SuccessURL:       cfg.Billing.SuccessURL,
		CancelURL:        cfg.Billing.CancelURL,
		RegistrationTTL:  config.Dur(cfg.Registration.TTL, 0),
		AbandonAfter:     config.Dur(cfg.Registration.AbandonAfter, 0),
		CodeTTL:          config.Dur(cfg.Registration.CodeTTL, 0),
		VerifiedTTL:      config.Dur(cfg.Registration.VerifiedTTL, 0),
		WebhookSecret:    cfg.Billing.WebhookSecret,
		WebhookTolerance: config.Dur(cfg.Billing.WebhookTolerance, 0),
		WebhookDedupeTTL: config.Dur(cfg.Billing.WebhookDedupeTTL, 0),
		Retry: onboarding.Retry{
			Attempts: cfg.Billing.Retry.Attempts,
			Backoff:  config.Dur(cfg.Billing.Retry.Backoff, 0),
		},
	})
	c.Ledger = consent.New(c.Metrics)
	c.Invitations = invitation.New(invitation.Deps{
		Central: c.Central,
		Syncer:  syncer,
		Ledger:  c.Ledger,
		Mailer:  c.Mailer,
		Metrics: c.Metrics,
		Policy:  policy,
		BaseURL: cfg.Invitation.BaseURL,
		TTL:     config.Dur(cfg.Invitation.TTL, 0),
	})

	sessions := &helpers.Sessions{
		Issuer: c.Issuer,
		Cookie: session.CookieConfig{
			Name:        cfg.Session.CookieName,
			Domain:      cfg.Session.Domain,
			SameSite:    cfg.Session.SameSite,
			Secure:      cfg.Session.Secure,
			AllowBearer: true,
		},
		BaseURL: cfg.Server.BaseURL,
	}
	c.Handler = router.New(router.Deps{
		Controllers: router.Controllers{
			Health:       healthctrl.NewController(c.Central, c.Cache, cfg.App.Version),
			Registration: regctrl.NewController(c.Coordinator, sessions),
			SSO: ssoctrl.NewController(ssoctrl.Deps{
				Central:  c.Central,
				Syncer:   syncer,
				Sessions: sessions,
				Cache:    c.Cache,
			}),
			Invitation: invitationctrl.NewController(c.Invitations, sessions),
			Consent:    consentctrl.NewController(c.Ledger),
			Admin: adminctrl.NewController(adminctrl.Deps{
				Invitations: c.Invitations,
				Ledger:      c.Ledger,
				Billing:     c.Coordinator,
				EchoLinks:   cfg.Email.DebugEchoLinks,
			}),
		},
		Central:  c.Central,
		DAL:      c.Databases,
		Issuer:   c.Issuer,
		Cookie:   sessions.Cookie,
		Metrics:  c.Metrics,
		Limiters: limiters(cfg, rdb),
	})

	log.Info("container ready",
		logger.String("storage", cfg.Storage.Driver),
		logger.String("cache", cfg.Cache.Kind),
		logger.Bool("rate_limit", cfg.Rate.Enabled),
	)
	return c, nil
}

func (c *Container) openStores(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage.Driver != "postgres" {
		c.Central = memory.NewCentral()
		c.Databases = memory.NewDAL()
		return nil
	}

	lifetime := config.Dur(cfg.Storage.Postgres.ConnMaxLifetime, 0)
	pool, err := pgstore.Open(ctx, cfg.Storage.DSN, pgstore.PoolConfig{
		MaxConns:        cfg.Storage.Postgres.MaxOpenConns,
		MinConns:        cfg.Storage.Postgres.MaxIdleConns,
		ConnMaxLifetime: lifetime,
	})
	if err != nil {
		return fmt.Errorf("open central db: %w", err)
	}
	central := pgstore.NewCentralStore(pool)
	c.closers = append(c.closers, central.Close)
	c.Central = central

	if cfg.Flags.Migrate {
		if _, err := MigrateCentral(ctx, pool); err != nil {
			return err
		}
	}

	mgr, err := tenantsql.New(tenantsql.Config{
		Mode:        tenantsql.Mode(cfg.Tenancy.Mode),
		Admin:       pool,
		DSNTemplate: cfg.Tenancy.DSNTemplate,
		Prefix:      cfg.Tenancy.Prefix,
		Registry:    central.Tenants(),
		Pool: pgstore.PoolConfig{
			MaxConns:        cfg.Tenancy.Pool.MaxConns,
			MinConns:        cfg.Tenancy.Pool.MinConns,
			ConnMaxLifetime: config.Dur(cfg.Tenancy.Pool.ConnMaxLifetime, 0),
		},
		Migrator:    store.NewMigrator(migrations.TenantFS, migrations.TenantDir),
		MetricsFunc: c.Metrics.RecordTenantMigration,
	})
	if err != nil {
		return err
	}
	c.closers = append(c.closers, func() { _ = mgr.Close() })
	c.Databases = mgr

	return c.Metrics.Register(metrics.NewDBPoolCollector(central.Pool, mgr))
}

// MigrateCentral aplica las migraciones embebidas de la base central.
func MigrateCentral(ctx context.Context, pool *pgxpool.Pool) (*store.MigrationResult, error) {
	res, err := store.NewMigrator(migrations.CentralFS, migrations.CentralDir).Run(ctx, pool)
	if err != nil {
		return res, fmt.Errorf("central migrations: %w", err)
	}
	if len(res.Applied) > 0 {
		logger.From(ctx).Info("central_migrations_applied", logger.Count(len(res.Applied)))
	}
	return res, nil
}

func (c *Container) openCache(cfg *config.Config) (*redis.Client, error) {
	if cfg.Cache.Kind != "redis" {
		c.Cache = cache.NewMemory(cfg.Cache.Redis.Prefix)
		return nil, nil
	}
	rdb, err := cache.NewRedisClient(cache.Config{
		Driver:   "redis",
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	c.Cache = cache.NewRedis(rdb, cfg.Cache.Redis.Prefix)
	c.closers = append(c.closers, func() { _ = c.Cache.Close() })
	return rdb, nil
}

// openSecretBox usa la master key configurada. Fuera de prod, sin clave, genera
// una efímera: los registros pendientes no sobreviven un reinicio.
func openSecretBox(ctx context.Context, cfg *config.Config) (*secretbox.Box, error) {
	key := strings.TrimSpace(cfg.Security.SecretBoxMasterKey)
	if key == "" {
		if cfg.IsProd() {
			return nil, errors.New("secretbox master key is required in prod")
		}
		logger.From(ctx).Warn("secretbox master key not set, using an ephemeral key")
		var err error
		if key, err = secretbox.GenerateKey(); err != nil {
			return nil, err
		}
	}
	box, err := secretbox.FromString(key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: %w", err)
	}
	return box, nil
}

func passwordPolicy(cfg *config.Config) (password.Policy, error) {
	pp := cfg.Security.PasswordPolicy
	policy := password.Policy{
		MinLength:     pp.MinLength,
		RequireUpper:  pp.RequireUpper,
		RequireLower:  pp.RequireLower,
		RequireDigit:  pp.RequireDigit,
		RequireSymbol: pp.RequireSymbol,
	}
	if path := cfg.Security.PasswordBlacklistPath; path != "" {
		bl, err := password.LoadBlacklist(path)
		if err != nil {
			return policy, fmt.Errorf("password blacklist: %w", err)
		}
		policy.Blacklist = bl
	}
	return policy, nil
}

// billingProvider usa Stripe si hay secret key. En dev sin clave usa el fake
// que completa el checkout al primer poll.
func billingProvider(ctx context.Context, cfg *config.Config) (billing.Provider, error) {
	if key := strings.TrimSpace(cfg.Billing.SecretKey); key != "" {
		return billing.NewStripeClient(billing.StripeConfig{
			BaseURL:    cfg.Billing.BaseURL,
			SecretKey:  key,
			Timeout:    config.Dur(cfg.Billing.Timeout, 0),
			RetryCount: 2,
		}), nil
	}
	if cfg.IsProd() {
		return nil, errors.New("billing.secret_key is required in prod")
	}
	logger.From(ctx).Warn("billing secret key not set, using the in-memory provider")
	fake := billing.NewFake()
	fake.AutoComplete = true
	return fake, nil
}

// limiters arma los limiters por endpoint. Con redis los contadores se
// comparten entre instancias.
func limiters(cfg *config.Config, rdb *redis.Client) router.Limiters {
	if !cfg.Rate.Enabled {
		return router.Limiters{}
	}
	var backend rate.MultiLimiter
	if rdb != nil {
		backend = rate.NewMultiRedisLimiter(rdb, cfg.Cache.Redis.Prefix+"rl:")
	} else {
		backend = rate.NewMemoryLimiter()
	}
	r := cfg.Rate
	return router.Limiters{
		Register:   rate.Fixed(backend, "register", r.Register.Limit, config.Dur(r.Register.Window, 0)),
		EmailCode:  rate.Fixed(backend, "email_code", r.EmailCode.Limit, config.Dur(r.EmailCode.Window, 0)),
		Status:     rate.Fixed(backend, "status", r.Status.Limit, config.Dur(r.Status.Window, 0)),
		Invitation: rate.Fixed(backend, "invitation", r.Invitation.Limit, config.Dur(r.Invitation.Window, 0)),
	}
}

// Package onboarding coordina el alta de una práctica: verificación de email,
// registro pendiente cifrado, checkout en el proveedor de pagos y la
// reconciliación (webhook o polling) que crea y provisiona el tenant.
//
//	register ──► PendingRegistration ──► checkout ──► pago
//	                                                    │
//	        webhook / poll ──► ReconcilePayment ◄───────┘
//	                               │
//	                     Tenant + User + TenantUser (tx central)
//	                               │
//	                          Provisioner
package onboarding

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/hellocare/internal/billing"
	"github.com/dropDatabas3/hellocare/internal/cache"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/metrics"
	"github.com/dropDatabas3/hellocare/internal/provisioning"
	"github.com/dropDatabas3/hellocare/internal/security/password"
	"github.com/dropDatabas3/hellocare/internal/security/secretbox"
)

var (
	ErrCorrelationMismatch = errors.New("onboarding: checkout session does not belong to registration")
	ErrCheckoutNotStarted  = errors.New("onboarding: registration has no checkout session")
	ErrBadWebhook          = errors.New("onboarding: invalid webhook")
	ErrCustomerMismatch    = errors.New("onboarding: subscription belongs to another customer")
)

// Provisioner es el subconjunto de provisioning.Provisioner que usa el coordinador.
type Provisioner interface {
	Provision(ctx context.Context, tenant *repository.Tenant, admin *repository.User) (*provisioning.Result, error)
	AdminFor(ctx context.Context, tenantID string) (*repository.User, error)
}

// VerificationMailer envía el código de verificación de email.
type VerificationMailer interface {
	SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error
}

// Retry es el loop acotado de ReconcileWithRetry.
type Retry struct {
	Attempts int
	Backoff  time.Duration
}

type Deps struct {
	Central     repository.CentralStore
	Billing     billing.Provider
	Provisioner Provisioner
	Box         *secretbox.Box
	Cache       cache.Client
	Mailer      VerificationMailer
	Metrics     *metrics.Metrics

	Policy    password.Policy
	Plans     map[string]string // plan -> price id; vacío acepta cualquier plan
	TrialDays map[string]int

	SuccessURL string
	CancelURL  string

	RegistrationTTL time.Duration
	AbandonAfter    time.Duration
	CodeTTL         time.Duration
	VerifiedTTL     time.Duration

	WebhookSecret    string
	WebhookTolerance time.Duration
	WebhookDedupeTTL time.Duration

	Retry Retry

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Coordinator es el Billing Coordinator: único dueño de las transiciones
// PendingRegistration → Tenant y del billing_status.
type Coordinator struct {
	deps Deps
}

func New(deps Deps) *Coordinator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepCtx
	}
	if deps.Policy.MinLength == 0 {
		deps.Policy = password.DefaultPolicy
	}
	if deps.RegistrationTTL <= 0 {
		deps.RegistrationTTL = 24 * time.Hour
	}
	if deps.AbandonAfter <= 0 {
		deps.AbandonAfter = 30 * time.Minute
	}
	if deps.CodeTTL <= 0 {
		deps.CodeTTL = 15 * time.Minute
	}
	if deps.VerifiedTTL <= 0 {
		deps.VerifiedTTL = 24 * time.Hour
	}
	if deps.WebhookTolerance <= 0 {
		deps.WebhookTolerance = billing.DefaultTolerance
	}
	if deps.WebhookDedupeTTL <= 0 {
		deps.WebhookDedupeTTL = 48 * time.Hour
	}
	if deps.Retry.Attempts <= 0 {
		deps.Retry.Attempts = 3
	}
	if deps.Retry.Backoff <= 0 {
		deps.Retry.Backoff = 2 * time.Second
	}
	return &Coordinator{deps: deps}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

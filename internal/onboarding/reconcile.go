package onboarding

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/hellocare/internal/billing"
	"github.com/dropDatabas3/hellocare/internal/domain/errs"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
)

// ReconcileStatus es el estado que ve el endpoint de polling.
type ReconcileStatus string

const (
	StatusPending   ReconcileStatus = "pending"
	StatusCompleted ReconcileStatus = "completed"
)

// Origen de la reconciliación (logs y métricas).
const (
	SourcePoll    = "poll"
	SourceWebhook = "webhook"
	SourceCLI     = "cli"
)

// ReconcileResult es Tenant | Pending.
type ReconcileResult struct {
	Status ReconcileStatus
	Tenant *repository.Tenant
	// Admin es el usuario central dueño del registro (para emitir la sesión).
	Admin *repository.User
	// Created indica que esta llamada creó el tenant.
	Created bool
	// RaceLost indica que otro actor lo creó entre el chequeo y el insert.
	RaceLost bool
	// IssueSession habilita la sesión del admin y el hand-off. Solo vale si el
	// tenant se creó en esta llamada o dentro de RegistrationTTL: un polling
	// tardío con el mismo identificador no vuelve a abrir sesión.
	IssueSession bool
	// SessionStatus es el estado del checkout cuando Status == pending.
	SessionStatus string
	Warnings      []errs.SyncWarning
}

// ReconcilePayment resuelve identifier (id de checkout session o UUID del
// registro) y, si el pago está confirmado, crea el tenant de forma idempotente
// y lo provisiona. Llamarla varias veces, o en paralelo desde webhook y polling,
// produce un solo tenant.
func (c *Coordinator) ReconcilePayment(ctx context.Context, identifier, source string) (res *ReconcileResult, err error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("onboarding"),
		logger.Op("ReconcilePayment"),
		logger.String("source", source),
	)
	defer func() {
		outcome := "error"
		switch {
		case err != nil:
		case res.Status == StatusPending:
			outcome = "pending"
		case res.RaceLost:
			outcome = "race_lost"
		case res.Created:
			outcome = "created"
		default:
			outcome = "existing"
		}
		c.deps.Metrics.ObserveReconcile(source, outcome)
	}()

	regID, sessionID, err := c.resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	log = log.With(logger.RegistrationID(regID), logger.SessionID(sessionID))

	// 1. ¿Ya existe el tenant para este registro?
	if t, err := c.deps.Central.Tenants().GetByRegistrationID(ctx, regID); err == nil {
		return c.complete(ctx, log, t, nil, &ReconcileResult{Status: StatusCompleted})
	} else if !repository.IsNotFound(err) {
		return nil, err
	}

	p, err := c.deps.Central.Registrations().GetByID(ctx, regID)
	if repository.IsNotFound(err) {
		// Borrado por otro actor que acaba de crear el tenant.
		if t, terr := c.deps.Central.Tenants().GetByRegistrationID(ctx, regID); terr == nil {
			return c.complete(ctx, log, t, nil, &ReconcileResult{Status: StatusCompleted, RaceLost: true})
		}
		return nil, errs.Token(errs.TokenInvalid, "registration")
	}
	if err != nil {
		return nil, err
	}
	if p.CheckoutSessionID == "" {
		if p.Expired(c.deps.Now()) {
			return nil, errs.Token(errs.TokenExpired, "registration")
		}
		return nil, ErrCheckoutNotStarted
	}

	// 2. Consultar al proveedor.
	sess, err := c.deps.Billing.GetCheckoutSession(ctx, p.CheckoutSessionID)
	if err != nil {
		log.Error("get checkout session failed", logger.Err(err))
		return nil, err
	}
	if sess.RegistrationID() != p.ID {
		log.Error("checkout session correlation mismatch", logger.String("client_reference_id", sess.RegistrationID()))
		return nil, ErrCorrelationMismatch
	}
	if !sess.Completed() {
		if p.Expired(c.deps.Now()) || sess.Status == billing.SessionExpired {
			return nil, errs.Token(errs.TokenExpired, "registration")
		}
		log.Debug("payment not completed yet", logger.String("session_status", sess.Status))
		return &ReconcileResult{Status: StatusPending, SessionStatus: sess.Status}, nil
	}

	var sub *billing.Subscription
	if sess.Subscription != "" {
		if sub, err = c.deps.Billing.GetSubscription(ctx, sess.Subscription); err != nil {
			log.Error("get subscription failed", logger.SubscriptionID(sess.Subscription), logger.Err(err))
			return nil, err
		}
	}

	payload, err := c.decrypt(p)
	if err != nil {
		return nil, err
	}

	// 3. Crear tenant + usuario + relación en una sola transacción central.
	res = &ReconcileResult{Status: StatusCompleted}
	tenant, admin, err := c.createTenant(ctx, p, payload, sess, sub)
	switch {
	case errors.Is(err, errs.ErrRaceLost):
		log.Info("tenant created by concurrent reconciler")
		res.RaceLost = true
		tenant, err = c.deps.Central.Tenants().GetByRegistrationID(ctx, regID)
		if err != nil {
			return nil, fmt.Errorf("reload tenant after race: %w", err)
		}
		admin = nil
	case err != nil:
		log.Error("create tenant failed", logger.Err(err))
		return nil, err
	default:
		res.Created = true
		log.Info("tenant created", logger.TenantID(tenant.ID), logger.CustomerID(tenant.StripeCustomerID))
	}
	return c.complete(ctx, log, tenant, admin, res)
}

// resolve traduce el identificador al UUID del registro. Un id de sesión se
// resuelve por la PendingRegistration o, si ya se borró, por el
// client_reference_id de la sesión en el proveedor.
func (c *Coordinator) resolve(ctx context.Context, identifier string) (regID, sessionID string, err error) {
	if identifier == "" {
		return "", "", errs.Validation("identifier", "required")
	}
	if _, perr := uuid.Parse(identifier); perr == nil {
		return identifier, "", nil
	}
	sessionID = identifier
	p, err := c.deps.Central.Registrations().GetByCheckoutSession(ctx, sessionID)
	if err == nil {
		return p.ID, sessionID, nil
	}
	if !repository.IsNotFound(err) {
		return "", "", err
	}
	sess, err := c.deps.Billing.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		var pe *billing.ProviderError
		if errors.As(err, &pe) && pe.NotFound() {
			return "", "", errs.Token(errs.TokenInvalid, "checkout session")
		}
		return "", "", err
	}
	if sess.RegistrationID() == "" {
		return "", "", errs.Token(errs.TokenInvalid, "checkout session")
	}
	return sess.RegistrationID(), sessionID, nil
}

func (c *Coordinator) createTenant(ctx context.Context, p *repository.PendingRegistration, payload *registrationPayload, sess *billing.CheckoutSession, sub *billing.Subscription) (*repository.Tenant, *repository.User, error) {
	var tenant *repository.Tenant
	var admin *repository.User
	now := c.deps.Now().UTC()

	err := c.deps.Central.WithTx(ctx, func(tx repository.CentralStore) error {
		// Re-chequeo inmediatamente antes del insert.
		if _, err := tx.Tenants().GetByRegistrationID(ctx, p.ID); err == nil {
			return errs.ErrRaceLost
		} else if !repository.IsNotFound(err) {
			return err
		}

		customerID := sess.Customer
		if customerID == "" {
			customerID = p.StripeCustomerID
		}
		t, err := tx.Tenants().Create(ctx, repository.CreateTenantInput{
			ID:                 payload.TenantID,
			CompanyName:        payload.CompanyName,
			Domain:             payload.Domain,
			SubscriptionPlanID: payload.Plan,
			StripeCustomerID:   customerID,
			RegistrationID:     p.ID,
		})
		if repository.IsConflict(err) {
			// La unique constraint es el árbitro final.
			return errs.ErrRaceLost
		}
		if err != nil {
			return fmt.Errorf("create tenant: %w", err)
		}

		if sub != nil {
			upd := DeriveBillingState(sub)
			upd.StripeCustomerID = customerID
			if t, err = tx.Tenants().UpdateBilling(ctx, t.ID, upd); err != nil {
				return fmt.Errorf("update billing: %w", err)
			}
		}

		u, err := tx.Users().GetByEmail(ctx, payload.AdminEmail)
		switch {
		case repository.IsNotFound(err):
			u, err = tx.Users().Create(ctx, repository.CreateUserInput{
				Name:            payload.AdminName,
				Email:           payload.AdminEmail,
				PasswordHash:    payload.PasswordHash,
				EmailVerifiedAt: &now,
			})
			if err != nil {
				return fmt.Errorf("create admin user: %w", err)
			}
		case err != nil:
			return err
		case u.EmailVerifiedAt == nil:
			if err := tx.Users().MarkEmailVerified(ctx, u.ID, now); err != nil {
				return err
			}
			u.EmailVerifiedAt = &now
		}

		if _, err := tx.TenantUsers().Ensure(ctx, u.ID, t.ID, repository.RoleAdmin); err != nil {
			return fmt.Errorf("ensure tenant user: %w", err)
		}
		if err := tx.Registrations().Delete(ctx, p.ID); err != nil && !repository.IsNotFound(err) {
			return fmt.Errorf("delete pending registration: %w", err)
		}
		tenant, admin = t, u
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return tenant, admin, nil
}

// complete provisiona el tenant si todavía no lo está y arma el resultado.
func (c *Coordinator) complete(ctx context.Context, log *zap.Logger, t *repository.Tenant, admin *repository.User, res *ReconcileResult) (*ReconcileResult, error) {
	var err error
	if admin == nil {
		if admin, err = c.deps.Provisioner.AdminFor(ctx, t.ID); err != nil {
			return nil, fmt.Errorf("resolve tenant admin: %w", err)
		}
	}
	res.Admin = admin
	res.Tenant = t
	res.IssueSession = res.Created || res.RaceLost || c.deps.Now().Sub(t.CreatedAt) <= c.deps.RegistrationTTL
	if !res.IssueSession {
		log.Info("registration already completed, session not issued", logger.TenantID(t.ID))
	}
	if t.IsProvisioned() {
		return res, nil
	}

	pr, err := c.deps.Provisioner.Provision(ctx, t, admin)
	if err != nil {
		log.Error("provisioning failed, tenant left incomplete", logger.TenantID(t.ID), logger.Err(err))
		return nil, err
	}
	if pr.Tenant != nil {
		res.Tenant = pr.Tenant
	}
	res.Warnings = append(res.Warnings, pr.Warnings...)
	for _, w := range pr.Warnings {
		log.Warn("provisioning warning", logger.Step(w.Step), logger.TenantID(t.ID), logger.Err(w.Err))
	}
	return res, nil
}

// ReconcileWithRetry reintenta ReconcilePayment mientras el pago siga pendiente
// o el proveedor devuelva un error reintentable, con una espera fija entre intentos.
func (c *Coordinator) ReconcileWithRetry(ctx context.Context, identifier, source string) (*ReconcileResult, error) {
	var (
		res *ReconcileResult
		err error
	)
	for attempt := 1; attempt <= c.deps.Retry.Attempts; attempt++ {
		res, err = c.ReconcilePayment(ctx, identifier, source)
		if err == nil && res.Status == StatusCompleted {
			return res, nil
		}
		if err != nil && !retryable(err) {
			return nil, err
		}
		if attempt == c.deps.Retry.Attempts {
			break
		}
		logger.From(ctx).Debug("reconcile retry",
			logger.Component("onboarding"), logger.Attempt(attempt), logger.Err(err))
		if serr := c.deps.Sleep(ctx, c.deps.Retry.Backoff); serr != nil {
			return nil, serr
		}
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func retryable(err error) bool {
	var pe *billing.ProviderError
	return errors.As(err, &pe) && pe.Retryable()
}

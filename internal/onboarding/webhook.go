package onboarding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dropDatabas3/hellocare/internal/billing"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
)

// WebhookResult describe qué se hizo con un evento.
type WebhookResult struct {
	EventID   string
	EventType string
	Duplicate bool
	Ignored   bool
	TenantID  string
}

func webhookKey(eventID string) string { return "webhook:event:" + eventID }

// HandleWebhook verifica la firma, descarta eventos ya procesados y despacha.
// Si el procesamiento falla se libera la marca de dedupe para que el reintento
// del proveedor vuelva a entrar.
func (c *Coordinator) HandleWebhook(ctx context.Context, payload []byte, signature string) (res *WebhookResult, err error) {
	ev, err := billing.ConstructEvent(payload, signature, c.deps.WebhookSecret, c.deps.WebhookTolerance, c.deps.Now())
	if err != nil {
		c.deps.Metrics.ObserveWebhook("unknown", "rejected")
		return nil, fmt.Errorf("%w: %v", ErrBadWebhook, err)
	}
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("onboarding"),
		logger.Op("HandleWebhook"),
		logger.EventID(ev.ID),
		logger.EventType(ev.Type),
	)
	res = &WebhookResult{EventID: ev.ID, EventType: ev.Type}

	fresh, err := c.deps.Cache.SetNX(ctx, webhookKey(ev.ID), ev.Type, c.deps.WebhookDedupeTTL)
	if err != nil {
		return nil, fmt.Errorf("webhook dedupe: %w", err)
	}
	if !fresh {
		log.Debug("duplicate webhook event")
		res.Duplicate = true
		c.deps.Metrics.ObserveWebhook(ev.Type, "duplicate")
		return res, nil
	}

	defer func() {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
			if derr := c.deps.Cache.Delete(ctx, webhookKey(ev.ID)); derr != nil {
				log.Warn("release webhook dedupe key failed", logger.Err(derr))
			}
		case res.Ignored:
			outcome = "ignored"
		}
		c.deps.Metrics.ObserveWebhook(ev.Type, outcome)
	}()

	switch ev.Type {
	case billing.EventCheckoutCompleted:
		sess, err := ev.CheckoutSession()
		if err != nil {
			return nil, err
		}
		rr, err := c.ReconcilePayment(ctx, sess.ID, SourceWebhook)
		if err != nil {
			log.Error("webhook reconcile failed", logger.SessionID(sess.ID), logger.Err(err))
			return nil, err
		}
		if rr.Tenant != nil {
			res.TenantID = rr.Tenant.ID
		}

	case billing.EventSubscriptionCreated, billing.EventSubscriptionUpdated, billing.EventSubscriptionDeleted:
		sub, err := ev.Subscription()
		if err != nil {
			return nil, err
		}
		return c.applySubscription(ctx, log, res, sub)

	case billing.EventInvoicePaymentSucceeded:
		inv, err := ev.Invoice()
		if err != nil {
			return nil, err
		}
		if inv.Subscription == "" {
			res.Ignored = true
			return res, nil
		}
		sub, err := c.deps.Billing.GetSubscription(ctx, inv.Subscription)
		if err != nil {
			log.Error("get subscription failed", logger.SubscriptionID(inv.Subscription), logger.Err(err))
			return nil, err
		}
		return c.applySubscription(ctx, log, res, sub)

	default:
		res.Ignored = true
	}
	return res, nil
}

// applySubscription actualiza el tenant dueño del customer. Si el tenant todavía
// no existe el evento se ignora: la reconciliación deriva el estado al crearlo.
func (c *Coordinator) applySubscription(ctx context.Context, log *zap.Logger, res *WebhookResult, sub *billing.Subscription) (*WebhookResult, error) {
	t, err := c.deps.Central.Tenants().GetByStripeCustomer(ctx, sub.Customer)
	if repository.IsNotFound(err) {
		log.Debug("no tenant for customer yet", logger.CustomerID(sub.Customer))
		res.Ignored = true
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	br, err := c.UpdateBillingStatus(ctx, t.ID, sub)
	if err != nil {
		return nil, err
	}
	res.TenantID = t.ID
	res.Ignored = br.Ignored
	return res, nil
}

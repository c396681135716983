package onboarding

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/hellocare/internal/billing"
	"github.com/dropDatabas3/hellocare/internal/domain/errs"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
)

// DeriveBillingState calcula billing_status y trial_ends_at solo a partir de la
// suscripción del proveedor.
//
//	trialing                             -> trial
//	active, past_due                     -> active
//	unpaid, canceled, incomplete_expired -> canceled
//	incomplete, paused, otros            -> pending
func DeriveBillingState(sub *billing.Subscription) repository.BillingUpdate {
	upd := repository.BillingUpdate{
		StripeSubscriptionID: sub.ID,
		StripeCustomerID:     sub.Customer,
	}
	switch sub.Status {
	case billing.SubTrialing:
		upd.Status = repository.BillingTrial
		upd.TrialEndsAt = sub.TrialEndsAt()
	case billing.SubActive, billing.SubPastDue:
		upd.Status = repository.BillingActive
	case billing.SubUnpaid, billing.SubCanceled, billing.SubIncompleteExpired:
		upd.Status = repository.BillingCanceled
		upd.RequiresBillingSetup = true
	default:
		upd.Status = repository.BillingPending
		upd.RequiresBillingSetup = true
	}
	return upd
}

var statusRank = map[repository.BillingStatus]int{
	repository.BillingPending: 0,
	repository.BillingTrial:   1,
	repository.BillingActive:  2,
}

// allowedTransition: el estado nunca retrocede salvo por cancelación explícita.
// Desde canceled se permite reactivar a trial o active.
func allowedTransition(from, to repository.BillingStatus) bool {
	if from == to || to == repository.BillingCanceled {
		return true
	}
	if from == repository.BillingCanceled {
		return to == repository.BillingTrial || to == repository.BillingActive
	}
	return statusRank[to] > statusRank[from]
}

// BillingResult es el resultado de UpdateBillingStatus.
type BillingResult struct {
	Tenant *repository.Tenant
	// Ignored indica que el evento implicaba retroceder y no se aplicó el estado.
	Ignored bool
}

// UpdateBillingStatus aplica el estado derivado de sub al tenant.
func (c *Coordinator) UpdateBillingStatus(ctx context.Context, tenantID string, sub *billing.Subscription) (*BillingResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("onboarding"),
		logger.Op("UpdateBillingStatus"),
		logger.TenantID(tenantID),
		logger.SubscriptionID(sub.ID),
	)

	t, err := c.deps.Central.Tenants().GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.StripeCustomerID != "" && sub.Customer != "" && t.StripeCustomerID != sub.Customer {
		log.Error("subscription customer mismatch", logger.CustomerID(sub.Customer))
		return nil, ErrCustomerMismatch
	}

	upd := DeriveBillingState(sub)
	if upd.StripeCustomerID == "" {
		upd.StripeCustomerID = t.StripeCustomerID
	}
	if !allowedTransition(t.BillingStatus, upd.Status) {
		log.Warn("ignoring backward billing transition",
			logger.String("from", string(t.BillingStatus)),
			logger.String("to", string(upd.Status)),
			logger.String("subscription_status", sub.Status),
		)
		return &BillingResult{Tenant: t, Ignored: true}, nil
	}

	t, err = c.deps.Central.Tenants().UpdateBilling(ctx, tenantID, upd)
	if err != nil {
		return nil, fmt.Errorf("update billing: %w", err)
	}
	log.Info("billing status updated", logger.String("billing_status", string(t.BillingStatus)))
	return &BillingResult{Tenant: t}, nil
}

// CancelSubscription cancela al fin del período y aplica la suscripción devuelta.
func (c *Coordinator) CancelSubscription(ctx context.Context, tenantID string) (*BillingResult, error) {
	t, err := c.deps.Central.Tenants().GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.StripeSubscriptionID == "" {
		return nil, errs.Validation("subscription", "missing")
	}
	sub, err := c.deps.Billing.CancelSubscription(ctx, t.StripeSubscriptionID)
	if err != nil {
		logger.From(ctx).Error("cancel subscription failed",
			logger.Component("onboarding"), logger.TenantID(tenantID),
			logger.SubscriptionID(t.StripeSubscriptionID), logger.Err(err))
		return nil, err
	}
	return c.UpdateBillingStatus(ctx, tenantID, sub)
}

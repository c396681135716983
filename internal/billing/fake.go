package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Fake es un Provider en memoria. Lo usan los tests y el modo dev sin secret key.
// Con AutoComplete, GetCheckoutSession completa la sesión al primer poll.
type Fake struct {
	AutoComplete bool
	// TrialDays se aplica a las suscripciones creadas al completar sesiones.
	TrialDays int

	mu        sync.Mutex
	now       func() time.Time
	customers map[string]*Customer
	sessions  map[string]*CheckoutSession
	subs      map[string]*Subscription
	idem      map[string]any
	failures  map[string]error
	calls     map[string]int
}

var _ Provider = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		now:       time.Now,
		customers: map[string]*Customer{},
		sessions:  map[string]*CheckoutSession{},
		subs:      map[string]*Subscription{},
		idem:      map[string]any{},
		failures:  map[string]error{},
		calls:     map[string]int{},
	}
}

// SetClock fija el reloj usado para trial_end.
func (f *Fake) SetClock(now func() time.Time) { f.now = now }

// FailNext hace que la próxima llamada a op falle con err.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

// Calls retorna cuántas veces se llamó op.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) enter(op string) error {
	f.calls[op]++
	if err, ok := f.failures[op]; ok {
		delete(f.failures, op)
		return err
	}
	return nil
}

func (f *Fake) CreateCustomer(_ context.Context, p CreateCustomerParams) (*Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("create_customer"); err != nil {
		return nil, err
	}
	if c, ok := f.idem["cus:"+p.IdempotencyKey].(*Customer); ok && p.IdempotencyKey != "" {
		cp := *c
		return &cp, nil
	}
	c := &Customer{
		ID:       "cus_" + shortID(),
		Email:    p.Email,
		Name:     p.Name,
		Metadata: map[string]string{MetadataRegistrationKey: p.RegistrationID},
	}
	f.customers[c.ID] = c
	if p.IdempotencyKey != "" {
		f.idem["cus:"+p.IdempotencyKey] = c
	}
	cp := *c
	return &cp, nil
}

func (f *Fake) CreateCheckoutSession(_ context.Context, p CheckoutParams) (*CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("create_checkout_session"); err != nil {
		return nil, err
	}
	if s, ok := f.idem["cs:"+p.IdempotencyKey].(*CheckoutSession); ok && p.IdempotencyKey != "" {
		cp := *s
		return &cp, nil
	}
	id := "cs_" + shortID()
	s := &CheckoutSession{
		ID:                id,
		URL:               "https://checkout.example.test/pay/" + id,
		Status:            SessionOpen,
		PaymentStatus:     PaymentUnpaid,
		Customer:          p.CustomerID,
		ClientReferenceID: p.RegistrationID,
		Metadata:          map[string]string{MetadataRegistrationKey: p.RegistrationID},
	}
	f.sessions[id] = s
	if p.IdempotencyKey != "" {
		f.idem["cs:"+p.IdempotencyKey] = s
	}
	cp := *s
	return &cp, nil
}

func (f *Fake) GetCheckoutSession(_ context.Context, id string) (*CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get_checkout_session"); err != nil {
		return nil, err
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, &ProviderError{Op: "get_checkout_session", StatusCode: 404, Message: "No such checkout.session: " + id}
	}
	if f.AutoComplete && s.Status == SessionOpen {
		f.completeLocked(s, SubTrialing)
	}
	cp := *s
	return &cp, nil
}

func (f *Fake) GetSubscription(_ context.Context, id string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get_subscription"); err != nil {
		return nil, err
	}
	sub, ok := f.subs[id]
	if !ok {
		return nil, &ProviderError{Op: "get_subscription", StatusCode: 404, Message: "No such subscription: " + id}
	}
	cp := *sub
	return &cp, nil
}

func (f *Fake) CancelSubscription(_ context.Context, id string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("cancel_subscription"); err != nil {
		return nil, err
	}
	sub, ok := f.subs[id]
	if !ok {
		return nil, &ProviderError{Op: "cancel_subscription", StatusCode: 404, Message: "No such subscription: " + id}
	}
	sub.CancelAtPeriodEnd = true
	cp := *sub
	return &cp, nil
}

// CompleteSession simula el pago: crea la suscripción con el estado dado y completa la sesión.
func (f *Fake) CompleteSession(id, subStatus string) (*CheckoutSession, *Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, nil, fmt.Errorf("fake: unknown session %s", id)
	}
	sub := f.completeLocked(s, subStatus)
	cs, csub := *s, *sub
	return &cs, &csub, nil
}

// SetSubscriptionStatus cambia el estado de una suscripción existente.
func (f *Fake) SetSubscriptionStatus(id, status string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[id]
	if !ok {
		return nil, fmt.Errorf("fake: unknown subscription %s", id)
	}
	sub.Status = status
	cp := *sub
	return &cp, nil
}

func (f *Fake) completeLocked(s *CheckoutSession, subStatus string) *Subscription {
	sub := &Subscription{
		ID:       "sub_" + shortID(),
		Customer: s.Customer,
		Status:   subStatus,
		Metadata: map[string]string{MetadataRegistrationKey: s.RegistrationID()},
	}
	now := f.now()
	sub.CurrentPeriodEnd = now.AddDate(0, 1, 0).Unix()
	if subStatus == SubTrialing {
		days := f.TrialDays
		if days <= 0 {
			days = 14
		}
		sub.TrialEnd = now.AddDate(0, 0, days).Unix()
	}
	f.subs[sub.ID] = sub
	s.Status = SessionComplete
	s.PaymentStatus = PaymentPaid
	s.Subscription = sub.ID
	return sub
}

func shortID() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:8])
}

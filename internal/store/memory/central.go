// Package memory implementa los repositorios en memoria. Se usa en modo dev
// (storage.driver: memory) y como fake en tests. Las transacciones se serializan
// y hacen rollback restaurando un snapshot del estado.
package memory

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

type tenantUserKey struct {
	userID   int64
	tenantID string
}

type centralState struct {
	tenants     map[string]repository.Tenant
	regs        map[string]repository.PendingRegistration
	users       map[int64]repository.User
	nextUserID  int64
	tenantUsers map[tenantUserKey]repository.TenantUser
}

func (s centralState) clone() centralState {
	return centralState{
		tenants:     maps.Clone(s.tenants),
		regs:        maps.Clone(s.regs),
		users:       maps.Clone(s.users),
		nextUserID:  s.nextUserID,
		tenantUsers: maps.Clone(s.tenantUsers),
	}
}

type centralDB struct {
	mu    sync.Mutex
	state centralState
	now   func() time.Time
}

// Central implementa repository.CentralStore.
type Central struct {
	db   *centralDB
	inTx bool
}

var _ repository.CentralStore = (*Central)(nil)

func NewCentral() *Central {
	return &Central{db: &centralDB{
		state: centralState{
			tenants:     map[string]repository.Tenant{},
			regs:        map[string]repository.PendingRegistration{},
			users:       map[int64]repository.User{},
			nextUserID:  1,
			tenantUsers: map[tenantUserKey]repository.TenantUser{},
		},
		now: time.Now,
	}}
}

// lock serializa operaciones sueltas; dentro de una tx el lock ya está tomado.
func (c *Central) lock() func() {
	if c.inTx {
		return func() {}
	}
	c.db.mu.Lock()
	return c.db.mu.Unlock
}

func (c *Central) Tenants() repository.TenantRepository                    { return tenantRepo{c} }
func (c *Central) Registrations() repository.PendingRegistrationRepository { return registrationRepo{c} }
func (c *Central) Users() repository.UserRepository                        { return userRepo{c} }
func (c *Central) TenantUsers() repository.TenantUserRepository            { return tenantUserRepo{c} }

func (c *Central) WithTx(ctx context.Context, fn func(tx repository.CentralStore) error) error {
	if c.inTx {
		return fn(c)
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	snap := c.db.state.clone()
	if err := fn(&Central{db: c.db, inTx: true}); err != nil {
		c.db.state = snap
		return err
	}
	return nil
}

func (c *Central) Ping(ctx context.Context) error { return ctx.Err() }

// SetClock reemplaza el reloj usado para timestamps (tests).
func (c *Central) SetClock(now func() time.Time) { c.db.now = now }

type tenantRepo struct{ c *Central }

func (r tenantRepo) Create(_ context.Context, in repository.CreateTenantInput) (*repository.Tenant, error) {
	defer r.c.lock()()
	st := &r.c.db.state
	if _, ok := st.tenants[in.ID]; ok {
		return nil, repository.ErrConflict
	}
	for _, t := range st.tenants {
		if strings.EqualFold(t.Domain, in.Domain) {
			return nil, repository.ErrConflict
		}
		if in.RegistrationID != "" && t.RegistrationID == in.RegistrationID {
			return nil, repository.ErrConflict
		}
	}
	now := r.c.db.now()
	t := repository.Tenant{
		ID:                   in.ID,
		CompanyName:          in.CompanyName,
		Domain:               in.Domain,
		BillingStatus:        repository.BillingPending,
		RequiresBillingSetup: true,
		SubscriptionPlanID:   in.SubscriptionPlanID,
		StripeCustomerID:     in.StripeCustomerID,
		RegistrationID:       in.RegistrationID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	st.tenants[t.ID] = t
	return &t, nil
}

func (r tenantRepo) find(match func(repository.Tenant) bool) (*repository.Tenant, error) {
	defer r.c.lock()()
	for _, t := range r.c.db.state.tenants {
		if match(t) {
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r tenantRepo) GetByID(_ context.Context, id string) (*repository.Tenant, error) {
	return r.find(func(t repository.Tenant) bool { return t.ID == id })
}

func (r tenantRepo) GetByDomain(_ context.Context, domain string) (*repository.Tenant, error) {
	return r.find(func(t repository.Tenant) bool { return strings.EqualFold(t.Domain, domain) })
}

func (r tenantRepo) GetByStripeCustomer(_ context.Context, customerID string) (*repository.Tenant, error) {
	return r.find(func(t repository.Tenant) bool { return customerID != "" && t.StripeCustomerID == customerID })
}

func (r tenantRepo) GetByRegistrationID(_ context.Context, registrationID string) (*repository.Tenant, error) {
	return r.find(func(t repository.Tenant) bool { return registrationID != "" && t.RegistrationID == registrationID })
}

func (r tenantRepo) List(_ context.Context, limit, offset int) ([]repository.Tenant, error) {
	defer r.c.lock()()
	out := make([]repository.Tenant, 0, len(r.c.db.state.tenants))
	for _, t := range r.c.db.state.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit <= 0 {
		limit = 50
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r tenantRepo) UpdateBilling(_ context.Context, id string, upd repository.BillingUpdate) (*repository.Tenant, error) {
	defer r.c.lock()()
	st := &r.c.db.state
	t, ok := st.tenants[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t.BillingStatus = upd.Status
	t.RequiresBillingSetup = upd.RequiresBillingSetup
	t.TrialEndsAt = upd.TrialEndsAt
	if upd.StripeSubscriptionID != "" {
		t.StripeSubscriptionID = upd.StripeSubscriptionID
	}
	if upd.StripeCustomerID != "" {
		t.StripeCustomerID = upd.StripeCustomerID
	}
	t.UpdatedAt = r.c.db.now()
	st.tenants[id] = t
	return &t, nil
}

func (r tenantRepo) MarkProvisioned(_ context.Context, id string, at time.Time) error {
	defer r.c.lock()()
	st := &r.c.db.state
	t, ok := st.tenants[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.ProvisionedAt = &at
	t.UpdatedAt = r.c.db.now()
	st.tenants[id] = t
	return nil
}

type registrationRepo struct{ c *Central }

func (r registrationRepo) Create(_ context.Context, p repository.PendingRegistration) error {
	defer r.c.lock()()
	st := &r.c.db.state
	if _, ok := st.regs[p.ID]; ok {
		return repository.ErrConflict
	}
	for _, e := range st.regs {
		if strings.EqualFold(e.Domain, p.Domain) || e.TenantID == p.TenantID {
			return repository.ErrConflict
		}
		if p.CheckoutSessionID != "" && e.CheckoutSessionID == p.CheckoutSessionID {
			return repository.ErrConflict
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.c.db.now()
	}
	st.regs[p.ID] = p
	return nil
}

func (r registrationRepo) find(match func(repository.PendingRegistration) bool) (*repository.PendingRegistration, error) {
	defer r.c.lock()()
	for _, p := range r.c.db.state.regs {
		if match(p) {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r registrationRepo) GetByID(_ context.Context, id string) (*repository.PendingRegistration, error) {
	return r.find(func(p repository.PendingRegistration) bool { return p.ID == id })
}

func (r registrationRepo) GetByDomain(_ context.Context, domain string) (*repository.PendingRegistration, error) {
	return r.find(func(p repository.PendingRegistration) bool { return strings.EqualFold(p.Domain, domain) })
}

func (r registrationRepo) GetByTenantID(_ context.Context, tenantID string) (*repository.PendingRegistration, error) {
	return r.find(func(p repository.PendingRegistration) bool { return p.TenantID == tenantID })
}

func (r registrationRepo) GetByCheckoutSession(_ context.Context, sessionID string) (*repository.PendingRegistration, error) {
	return r.find(func(p repository.PendingRegistration) bool {
		return sessionID != "" && p.CheckoutSessionID == sessionID
	})
}

func (r registrationRepo) AttachCheckout(_ context.Context, id, sessionID, customerID string) error {
	defer r.c.lock()()
	st := &r.c.db.state
	p, ok := st.regs[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, e := range st.regs {
		if e.ID != id && sessionID != "" && e.CheckoutSessionID == sessionID {
			return repository.ErrConflict
		}
	}
	p.CheckoutSessionID = sessionID
	if customerID != "" {
		p.StripeCustomerID = customerID
	}
	st.regs[id] = p
	return nil
}

func (r registrationRepo) Delete(_ context.Context, id string) error {
	defer r.c.lock()()
	if _, ok := r.c.db.state.regs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.c.db.state.regs, id)
	return nil
}

type userRepo struct{ c *Central }

func (r userRepo) Create(_ context.Context, in repository.CreateUserInput) (*repository.User, error) {
	defer r.c.lock()()
	st := &r.c.db.state
	for _, u := range st.users {
		if strings.EqualFold(u.Email, in.Email) {
			return nil, repository.ErrConflict
		}
	}
	u := repository.User{
		ID:              st.nextUserID,
		Name:            in.Name,
		Email:           in.Email,
		PasswordHash:    in.PasswordHash,
		EmailVerifiedAt: in.EmailVerifiedAt,
		CreatedAt:       r.c.db.now(),
	}
	st.nextUserID++
	st.users[u.ID] = u
	return &u, nil
}

func (r userRepo) GetByID(_ context.Context, id int64) (*repository.User, error) {
	defer r.c.lock()()
	u, ok := r.c.db.state.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*repository.User, error) {
	defer r.c.lock()()
	for _, u := range r.c.db.state.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r userRepo) MarkEmailVerified(_ context.Context, id int64, at time.Time) error {
	defer r.c.lock()()
	u, ok := r.c.db.state.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if u.EmailVerifiedAt == nil {
		u.EmailVerifiedAt = &at
		r.c.db.state.users[id] = u
	}
	return nil
}

type tenantUserRepo struct{ c *Central }

func (r tenantUserRepo) Ensure(_ context.Context, userID int64, tenantID, role string) (bool, error) {
	defer r.c.lock()()
	st := &r.c.db.state
	if _, ok := st.users[userID]; !ok {
		return false, repository.ErrNotFound
	}
	if _, ok := st.tenants[tenantID]; !ok {
		return false, repository.ErrNotFound
	}
	k := tenantUserKey{userID, tenantID}
	if _, ok := st.tenantUsers[k]; ok {
		return false, nil
	}
	st.tenantUsers[k] = repository.TenantUser{UserID: userID, TenantID: tenantID, Role: role, CreatedAt: r.c.db.now()}
	return true, nil
}

func (r tenantUserRepo) Get(_ context.Context, userID int64, tenantID string) (*repository.TenantUser, error) {
	defer r.c.lock()()
	tu, ok := r.c.db.state.tenantUsers[tenantUserKey{userID, tenantID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &tu, nil
}

func (r tenantUserRepo) list(match func(repository.TenantUser) bool) []repository.TenantUser {
	defer r.c.lock()()
	var out []repository.TenantUser
	for _, tu := range r.c.db.state.tenantUsers {
		if match(tu) {
			out = append(out, tu)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID == out[j].UserID {
			return out[i].TenantID < out[j].TenantID
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (r tenantUserRepo) ListByUser(_ context.Context, userID int64) ([]repository.TenantUser, error) {
	return r.list(func(tu repository.TenantUser) bool { return tu.UserID == userID }), nil
}

func (r tenantUserRepo) ListByTenant(_ context.Context, tenantID string) ([]repository.TenantUser, error) {
	return r.list(func(tu repository.TenantUser) bool { return tu.TenantID == tenantID }), nil
}

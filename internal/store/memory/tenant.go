package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

type userRoleKey struct{ userID, roleID int64 }

type acceptanceKey struct {
	entity    repository.EntityRef
	versionID int64
}

type tenantState struct {
	users       map[int64]repository.LocalUser
	roles       map[int64]repository.Role
	userRoles   map[userRoleKey]bool
	consents    map[int64]repository.Consent
	versions    map[int64]repository.ConsentVersion
	accepted    map[acceptanceKey]time.Time
	invitations map[int64]repository.Invitation
	patients    map[int64]repository.Patient
	practs      map[int64]repository.Practitioner
	members     map[int64]repository.PractitionerMembership
	wallet      *repository.Wallet
	org         *repository.OrganizationSettings
	seq         map[string]int64
}

func newTenantState() tenantState {
	return tenantState{
		users:       map[int64]repository.LocalUser{},
		roles:       map[int64]repository.Role{},
		userRoles:   map[userRoleKey]bool{},
		consents:    map[int64]repository.Consent{},
		versions:    map[int64]repository.ConsentVersion{},
		accepted:    map[acceptanceKey]time.Time{},
		invitations: map[int64]repository.Invitation{},
		patients:    map[int64]repository.Patient{},
		practs:      map[int64]repository.Practitioner{},
		members:     map[int64]repository.PractitionerMembership{},
		seq:         map[string]int64{},
	}
}

func (s tenantState) clone() tenantState {
	out := tenantState{
		users:       maps.Clone(s.users),
		roles:       maps.Clone(s.roles),
		userRoles:   maps.Clone(s.userRoles),
		consents:    maps.Clone(s.consents),
		versions:    maps.Clone(s.versions),
		accepted:    maps.Clone(s.accepted),
		invitations: maps.Clone(s.invitations),
		patients:    maps.Clone(s.patients),
		practs:      maps.Clone(s.practs),
		members:     maps.Clone(s.members),
		seq:         maps.Clone(s.seq),
	}
	if s.wallet != nil {
		w := *s.wallet
		out.wallet = &w
	}
	if s.org != nil {
		o := *s.org
		out.org = &o
	}
	return out
}

// next devuelve el próximo id de la "secuencia" name.
func (s *tenantState) next(name string) int64 {
	s.seq[name]++
	return s.seq[name]
}

type tenantDB struct {
	mu       sync.Mutex
	state    tenantState
	migrated bool
	now      func() time.Time
}

// Tenant implementa repository.TenantDataAccess sobre un tenantDB.
type Tenant struct {
	id   string
	db   *tenantDB
	inTx bool
}

var _ repository.TenantDataAccess = (*Tenant)(nil)

func (t *Tenant) lock() func() {
	if t.inTx {
		return func() {}
	}
	t.db.mu.Lock()
	return t.db.mu.Unlock
}

func (t *Tenant) TenantID() string { return t.id }

func (t *Tenant) Users() repository.LocalUserRepository            { return localUserRepo{t} }
func (t *Tenant) Roles() repository.RoleRepository                 { return roleRepo{t} }
func (t *Tenant) Consents() repository.ConsentRepository           { return consentRepo{t} }
func (t *Tenant) Invitations() repository.InvitationRepository     { return invitationRepo{t} }
func (t *Tenant) Patients() repository.PatientRepository           { return patientRepo{t} }
func (t *Tenant) Practitioners() repository.PractitionerRepository { return practitionerRepo{t} }
func (t *Tenant) Wallets() repository.WalletRepository             { return walletRepo{t} }
func (t *Tenant) Organization() repository.OrganizationRepository  { return organizationRepo{t} }

func (t *Tenant) WithTx(ctx context.Context, fn func(tx repository.TenantDataAccess) error) error {
	if t.inTx {
		return fn(t)
	}
	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	snap := t.db.state.clone()
	if err := fn(&Tenant{id: t.id, db: t.db, inTx: true}); err != nil {
		t.db.state = snap
		return err
	}
	return nil
}

type localUserRepo struct{ t *Tenant }

func (r localUserRepo) GetByID(_ context.Context, id int64) (*repository.LocalUser, error) {
	defer r.t.lock()()
	u, ok := r.t.db.state.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r localUserRepo) GetByEmail(_ context.Context, email string) (*repository.LocalUser, error) {
	defer r.t.lock()()
	for _, u := range r.t.db.state.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r localUserRepo) Insert(_ context.Context, in repository.InsertLocalUserInput) (*repository.LocalUser, error) {
	defer r.t.lock()()
	st := &r.t.db.state
	if in.ID > 0 {
		if _, ok := st.users[in.ID]; ok {
			return nil, repository.ErrConflict
		}
	}
	for _, u := range st.users {
		if strings.EqualFold(u.Email, in.Email) {
			return nil, repository.ErrConflict
		}
	}
	id := in.ID
	if id > 0 {
		// Igual que setval: la secuencia nunca queda detrás de un id explícito.
		if st.seq["users"] < id {
			st.seq["users"] = id
		}
	} else {
		for {
			id = st.next("users")
			if _, taken := st.users[id]; !taken {
				break
			}
		}
	}
	now := r.t.db.now()
	u := repository.LocalUser{
		ID:              id,
		CentralUserID:   in.CentralUserID,
		Name:            in.Name,
		Email:           in.Email,
		PasswordHash:    in.PasswordHash,
		EmailVerifiedAt: in.EmailVerifiedAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	st.users[id] = u
	return &u, nil
}

func (r localUserRepo) UpdateCredentials(_ context.Context, id int64, passwordHash string, verifiedAt *time.Time, centralUserID *int64) error {
	defer r.t.lock()()
	st := &r.t.db.state
	u, ok := st.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = passwordHash
	if verifiedAt != nil {
		u.EmailVerifiedAt = verifiedAt
	}
	if centralUserID != nil {
		u.CentralUserID = centralUserID
	}
	u.UpdatedAt = r.t.db.now()
	st.users[id] = u
	return nil
}

type roleRepo struct{ t *Tenant }

func (r roleRepo) byName(name string) (repository.Role, bool) {
	for _, role := range r.t.db.state.roles {
		if role.Name == name {
			return role, true
		}
	}
	return repository.Role{}, false
}

func (r roleRepo) EnsureRole(_ context.Context, name, description string, permissions []string) (*repository.Role, error) {
	defer r.t.lock()()
	st := &r.t.db.state
	role, ok := r.byName(name)
	if !ok {
		role = repository.Role{ID: st.next("roles"), Name: name, Description: description}
	}
	perms := slices.Clone(role.Permissions)
	for _, p := range permissions {
		if !slices.Contains(perms, p) {
			perms = append(perms, p)
		}
	}
	sort.Strings(perms)
	role.Permissions = perms
	st.roles[role.ID] = role
	return &role, nil
}

func (r roleRepo) GetByName(_ context.Context, name string) (*repository.Role, error) {
	defer r.t.lock()()
	role, ok := r.byName(name)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &role, nil
}

func (r roleRepo) List(_ context.Context) ([]repository.Role, error) {
	defer r.t.lock()()
	out := make([]repository.Role, 0, len(r.t.db.state.roles))
	for _, role := range r.t.db.state.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r roleRepo) AssignToUser(_ context.Context, localUserID, roleID int64) error {
	defer r.t.lock()()
	st := &r.t.db.state
	if _, ok := st.users[localUserID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := st.roles[roleID]; !ok {
		return repository.ErrNotFound
	}
	st.userRoles[userRoleKey{localUserID, roleID}] = true
	return nil
}

func (r roleRepo) UserRoles(_ context.Context, localUserID int64) ([]string, error) {
	defer r.t.lock()()
	st := &r.t.db.state
	var out []string
	for k := range st.userRoles {
		if k.userID == localUserID {
			out = append(out, st.roles[k.roleID].Name)
		}
	}
	sort.Strings(out)
	return out, nil
}

type consentRepo struct{ t *Tenant }

func (r consentRepo) findConsent(kind repository.EntityKind, key string) (repository.Consent, bool) {
	for _, c := range r.t.db.state.consents {
		if c.EntityType == kind && c.Key == key {
			return c, true
		}
	}
	return repository.Consent{}, false
}

func (r consentRepo) insertConsent(def repository.ConsentDefinition) repository.Consent {
	st := &r.t.db.state
	c := repository.Consent{
		ID:         st.next("consents"),
		Key:        def.Key,
		Title:      def.Title,
		EntityType: def.EntityType,
		IsRequired: def.IsRequired,
		CreatedAt:  r.t.db.now(),
	}
	st.consents[c.ID] = c
	return c
}

func (r consentRepo) CreateConsent(_ context.Context, def repository.ConsentDefinition) (*repository.Consent, error) {
	defer r.t.lock()()
	if _, ok := r.findConsent(def.EntityType, def.Key); ok {
		return nil, repository.ErrConflict
	}
	c := r.insertConsent(def)
	return &c, nil
}

func (r consentRepo) EnsureConsent(_ context.Context, def repository.ConsentDefinition, at time.Time) (*repository.Consent, bool, error) {
	defer r.t.lock()()
	if c, ok := r.findConsent(def.EntityType, def.Key); ok {
		return &c, false, nil
	}
	c := r.insertConsent(def)
	r.publish(c.ID, def.Body, at)
	return &c, true, nil
}

func (r consentRepo) GetConsent(_ context.Context, id int64) (*repository.Consent, error) {
	defer r.t.lock()()
	c, ok := r.t.db.state.consents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r consentRepo) publish(consentID int64, body string, at time.Time) repository.ConsentVersion {
	st := &r.t.db.state
	latest := 0
	for id, v := range st.versions {
		if v.ConsentID != consentID {
			continue
		}
		if v.Version > latest {
			latest = v.Version
		}
		if v.Status == repository.ConsentActive {
			v.Status = repository.ConsentArchived
			st.versions[id] = v
		}
	}
	v := repository.ConsentVersion{
		ID:          st.next("consent_versions"),
		ConsentID:   consentID,
		Version:     latest + 1,
		Status:      repository.ConsentActive,
		Body:        body,
		PublishedAt: &at,
		CreatedAt:   r.t.db.now(),
	}
	st.versions[v.ID] = v
	return v
}

func (r consentRepo) PublishVersion(_ context.Context, consentID int64, body string, at time.Time) (*repository.ConsentVersion, error) {
	defer r.t.lock()()
	if _, ok := r.t.db.state.consents[consentID]; !ok {
		return nil, repository.ErrNotFound
	}
	v := r.publish(consentID, body, at)
	return &v, nil
}

func (r consentRepo) ListActive(_ context.Context, kind repository.EntityKind) ([]repository.VersionedConsent, error) {
	defer r.t.lock()()
	st := &r.t.db.state
	var out []repository.VersionedConsent
	for _, v := range st.versions {
		if v.Status != repository.ConsentActive {
			continue
		}
		c := st.consents[v.ConsentID]
		if c.EntityType == kind {
			out = append(out, repository.VersionedConsent{Consent: c, Version: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Consent.ID < out[j].Consent.ID })
	return out, nil
}

func (r consentRepo) GetVersion(_ context.Context, versionID int64) (*repository.VersionedConsent, error) {
	defer r.t.lock()()
	st := &r.t.db.state
	v, ok := st.versions[versionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &repository.VersionedConsent{Consent: st.consents[v.ConsentID], Version: v}, nil
}

func (r consentRepo) AcceptedVersionIDs(_ context.Context, entity repository.EntityRef) (map[int64]time.Time, error) {
	defer r.t.lock()()
	out := make(map[int64]time.Time)
	for k, at := range r.t.db.state.accepted {
		if k.entity == entity {
			out[k.versionID] = at
		}
	}
	return out, nil
}

func (r consentRepo) RecordAcceptance(_ context.Context, entity repository.EntityRef, versionID int64, at time.Time) (bool, error) {
	defer r.t.lock()()
	st := &r.t.db.state
	if _, ok := st.versions[versionID]; !ok {
		return false, repository.ErrNotFound
	}
	k := acceptanceKey{entity: entity, versionID: versionID}
	if _, ok := st.accepted[k]; ok {
		return false, nil
	}
	st.accepted[k] = at
	return true, nil
}

func (r consentRepo) CountAcceptances(_ context.Context, entity repository.EntityRef) (int, error) {
	defer r.t.lock()()
	n := 0
	for k := range r.t.db.state.accepted {
		if k.entity == entity {
			n++
		}
	}
	return n, nil
}

type invitationRepo struct{ t *Tenant }

func (r invitationRepo) Create(_ context.Context, in repository.CreateInvitationInput) (*repository.Invitation, error) {
	defer r.t.lock()()
	st := &r.t.db.state
	for _, inv := range st.invitations {
		if inv.TokenHash == in.TokenHash {
			return nil, repository.ErrConflict
		}
	}
	inv := repository.Invitation{
		ID:        st.next("invitations"),
		TokenHash: in.TokenHash,
		Target:    in.Target,
		Email:     in.Email,
		Status:    repository.InvitationPending,
		ExpiresAt: in.ExpiresAt,
		InvitedBy: in.InvitedBy,
		CreatedAt: r.t.db.now(),
	}
	st.invitations[inv.ID] = inv
	return &inv, nil
}

func (r invitationRepo) GetByTokenHash(_ context.Context, hash string) (*repository.Invitation, error) {
	defer r.t.lock()()
	for _, inv := range r.t.db.state.invitations {
		if inv.TokenHash == hash {
			return &inv, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r invitationRepo) MarkAccepted(_ context.Context, id int64, at time.Time) error {
	defer r.t.lock()()
	st := &r.t.db.state
	inv, ok := st.invitations[id]
	if !ok {
		return repository.ErrNotFound
	}
	if inv.Status != repository.InvitationPending {
		return repository.ErrConflict
	}
	inv.Status = repository.InvitationAccepted
	inv.AcceptedAt = &at
	st.invitations[id] = inv
	return nil
}

type patientRepo struct{ t *Tenant }

func (r patientRepo) Create(_ context.Context, in repository.CreatePersonInput) (*repository.Patient, error) {
	defer r.t.lock()()
	st := &r.t.db.state
	p := repository.Patient{ID: st.next("patients"), FirstName: in.FirstName, LastName: in.LastName, Email: in.Email, CreatedAt: r.t.db.now()}
	st.patients[p.ID] = p
	return &p, nil
}

func (r patientRepo) GetByID(_ context.Context, id int64) (*repository.Patient, error) {
	defer r.t.lock()()
	p, ok := r.t.db.state.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r patientRepo) LinkUser(_ context.Context, id, userID int64) error {
	defer r.t.lock()()
	st := &r.t.db.state
	p, ok := st.patients[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.UserID != nil && *p.UserID != userID {
		return repository.ErrConflict
	}
	p.UserID = &userID
	st.patients[id] = p
	return nil
}

type practitionerRepo struct{ t *Tenant }

func (r practitionerRepo) Create(_ context.Context, in repository.CreatePersonInput) (*repository.Practitioner, error) {
	defer r.t.lock()()
	st := &r.t.db.state
	p := repository.Practitioner{ID: st.next("practitioners"), FirstName: in.FirstName, LastName: in.LastName, Email: in.Email, CreatedAt: r.t.db.now()}
	st.practs[p.ID] = p
	st.members[p.ID] = repository.PractitionerMembership{PractitionerID: p.ID, Status: repository.MembershipInvited}
	return &p, nil
}

func (r practitionerRepo) GetByID(_ context.Context, id int64) (*repository.Practitioner, error) {
	defer r.t.lock()()
	p, ok := r.t.db.state.practs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r practitionerRepo) LinkUser(_ context.Context, id, userID int64) error {
	defer r.t.lock()()
	st := &r.t.db.state
	p, ok := st.practs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.UserID != nil && *p.UserID != userID {
		return repository.ErrConflict
	}
	p.UserID = &userID
	st.practs[id] = p
	return nil
}

func (r practitionerRepo) GetMembership(_ context.Context, id int64) (*repository.PractitionerMembership, error) {
	defer r.t.lock()()
	m, ok := r.t.db.state.members[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r practitionerRepo) SetMembershipStatus(_ context.Context, id int64, status repository.MembershipStatus, at time.Time) error {
	defer r.t.lock()()
	st := &r.t.db.state
	if _, ok := st.practs[id]; !ok {
		return repository.ErrNotFound
	}
	m := repository.PractitionerMembership{PractitionerID: id, Status: status}
	if status == repository.MembershipAccepted {
		m.AcceptedAt = &at
	}
	st.members[id] = m
	return nil
}

type walletRepo struct{ t *Tenant }

func (r walletRepo) EnsureSystemWallet(_ context.Context, currency string) (*repository.Wallet, bool, error) {
	defer r.t.lock()()
	st := &r.t.db.state
	if st.wallet != nil {
		w := *st.wallet
		return &w, false, nil
	}
	w := repository.Wallet{ID: st.next("wallets"), OwnerType: repository.WalletOwnerSystem, Name: "System", Currency: currency, CreatedAt: r.t.db.now()}
	st.wallet = &w
	out := w
	return &out, true, nil
}

func (r walletRepo) GetSystemWallet(_ context.Context) (*repository.Wallet, error) {
	defer r.t.lock()()
	if r.t.db.state.wallet == nil {
		return nil, repository.ErrNotFound
	}
	w := *r.t.db.state.wallet
	return &w, nil
}

type organizationRepo struct{ t *Tenant }

func (r organizationRepo) Get(_ context.Context) (*repository.OrganizationSettings, error) {
	defer r.t.lock()()
	if r.t.db.state.org == nil {
		return nil, repository.ErrNotFound
	}
	o := *r.t.db.state.org
	return &o, nil
}

func (r organizationRepo) Upsert(_ context.Context, s repository.OrganizationSettings) error {
	defer r.t.lock()()
	s.UpdatedAt = r.t.db.now()
	r.t.db.state.org = &s
	return nil
}

package invitation

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellocare/internal/domain/errs"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/email"
	"github.com/dropDatabas3/hellocare/internal/provisioning"
	"github.com/dropDatabas3/hellocare/internal/security/password"
	tokens "github.com/dropDatabas3/hellocare/internal/security/token"
	"github.com/dropDatabas3/hellocare/internal/store/memory"
)

const goodPassword = "Aa1!aaaa"

type env struct {
	now     time.Time
	central *memory.Central
	tda     repository.TenantDataAccess
	tenant  *repository.Tenant
	sender  *email.LogSender
	wf      *Workflow
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	e := &env{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC), central: memory.NewCentral(), sender: email.NewLogSender()}
	dal := memory.NewDAL()

	tenant, err := e.central.Tenants().Create(ctx, repository.CreateTenantInput{ID: "acme", CompanyName: "Acme Clinic", Domain: "acme.test"})
	require.NoError(t, err)
	admin, err := e.central.Users().Create(ctx, repository.CreateUserInput{Name: "Ana", Email: "ana@acme.test", PasswordHash: "h", EmailVerifiedAt: &e.now})
	require.NoError(t, err)
	_, err = e.central.TenantUsers().Ensure(ctx, admin.ID, "acme", repository.RoleAdmin)
	require.NoError(t, err)

	prov := provisioning.New(provisioning.Deps{Central: e.central, Databases: dal, Seed: provisioning.DefaultSeed()})
	res, err := prov.Provision(ctx, tenant, admin)
	require.NoError(t, err)
	e.tenant = res.Tenant
	e.tda, err = dal.ForTenant(ctx, "acme")
	require.NoError(t, err)

	mailer, err := email.NewMailer(e.sender, "HelloCare")
	require.NoError(t, err)
	e.wf = New(Deps{
		Central: e.central,
		Mailer:  mailer,
		BaseURL: "https://app.test",
		Now:     func() time.Time { return e.now },
	})
	return e
}

var linkRe = regexp.MustCompile(`https://app\.test/t/acme/invitation/([A-Za-z0-9_-]+)`)

// invite crea la invitación y retorna el token tal como llega en el email.
func (e *env) invite(t *testing.T, kind repository.EntityKind, id int64, to string) string {
	t.Helper()
	created, err := e.wf.Create(context.Background(), e.tenant, e.tda, CreateInput{Kind: string(kind), EntityID: id}, nil)
	require.NoError(t, err)
	require.NoError(t, created.MailErr)

	msg, ok := e.sender.Last(to)
	require.True(t, ok)
	m := linkRe.FindStringSubmatch(msg.TextBody)
	require.Len(t, m, 2)
	require.Equal(t, created.Token, m[1])
	return m[1]
}

func (e *env) countConsents(t *testing.T, ref repository.EntityRef) int {
	t.Helper()
	n, err := e.tda.Consents().CountAcceptances(context.Background(), ref)
	require.NoError(t, err)
	return n
}

func TestAccept_NewPatient(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	p, err := e.tda.Patients().Create(ctx, repository.CreatePersonInput{FirstName: "Pat", LastName: "Doe", Email: "pat@example.com"})
	require.NoError(t, err)
	tok := e.invite(t, repository.EntityPatient, p.ID, "pat@example.com")

	view, err := e.wf.Show(ctx, e.tda, tok)
	require.NoError(t, err)
	require.False(t, view.HasUser)
	require.Equal(t, "Pat Doe", view.Entity.Name)

	res, err := e.wf.Accept(ctx, e.tenant, e.tda, tok, AcceptInput{Password: goodPassword, PasswordConfirmation: goodPassword, Terms: true})
	require.NoError(t, err)
	require.True(t, res.CreatedUser)
	require.True(t, res.TenantUserCreated)
	require.Equal(t, repository.RolePatient, res.Role)
	require.Equal(t, 2, res.Consents.AcceptedCount)

	u, err := e.central.Users().GetByEmail(ctx, "pat@example.com")
	require.NoError(t, err)
	require.Equal(t, res.User.ID, u.ID)
	require.NotNil(t, u.EmailVerifiedAt)
	require.True(t, password.Verify(goodPassword, u.PasswordHash))

	tu, err := e.central.TenantUsers().Get(ctx, u.ID, "acme")
	require.NoError(t, err)
	require.Equal(t, repository.RolePatient, tu.Role)

	inv, err := e.tda.Invitations().GetByTokenHash(ctx, view.Invitation.TokenHash)
	require.NoError(t, err)
	require.Equal(t, repository.InvitationAccepted, inv.Status)

	linked, err := e.tda.Patients().GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, *linked.UserID)

	ref := repository.EntityRef{Kind: repository.EntityPatient, ID: p.ID}
	require.Equal(t, 2, e.countConsents(t, ref))

	local, err := e.tda.Users().GetByEmail(ctx, "pat@example.com")
	require.NoError(t, err)
	roles, err := e.tda.Roles().UserRoles(ctx, local.ID)
	require.NoError(t, err)
	require.Equal(t, []string{repository.RolePatient}, roles)
}

func TestAccept_ExistingPractitioner(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	hash, err := password.Hash(password.Default, goodPassword)
	require.NoError(t, err)
	doc, err := e.central.Users().Create(ctx, repository.CreateUserInput{Name: "Dr. Who", Email: "doc@example.com", PasswordHash: hash, EmailVerifiedAt: &e.now})
	require.NoError(t, err)

	pr, err := e.tda.Practitioners().Create(ctx, repository.CreatePersonInput{FirstName: "Doc", LastName: "Who", Email: "doc@example.com"})
	require.NoError(t, err)
	require.NoError(t, e.tda.Practitioners().LinkUser(ctx, pr.ID, doc.ID))
	tok := e.invite(t, repository.EntityPractitioner, pr.ID, "doc@example.com")

	view, err := e.wf.Show(ctx, e.tda, tok)
	require.NoError(t, err)
	require.True(t, view.HasUser)

	res, err := e.wf.Accept(ctx, e.tenant, e.tda, tok, AcceptInput{Terms: true})
	require.NoError(t, err)
	require.False(t, res.CreatedUser)
	require.True(t, res.TenantUserCreated)
	require.Equal(t, doc.ID, res.User.ID)
	require.Equal(t, repository.RolePractitioner, res.Role)

	tu, err := e.central.TenantUsers().Get(ctx, doc.ID, "acme")
	require.NoError(t, err)
	require.Equal(t, repository.RolePractitioner, tu.Role)

	m, err := e.tda.Practitioners().GetMembership(ctx, pr.ID)
	require.NoError(t, err)
	require.Equal(t, repository.MembershipAccepted, m.Status)
	require.NotNil(t, m.AcceptedAt)

	require.Equal(t, 2, e.countConsents(t, repository.EntityRef{Kind: repository.EntityPractitioner, ID: pr.ID}))
}

func TestAccept_TwiceHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	p, err := e.tda.Patients().Create(ctx, repository.CreatePersonInput{FirstName: "Pat", Email: "pat@example.com"})
	require.NoError(t, err)
	tok := e.invite(t, repository.EntityPatient, p.ID, "pat@example.com")
	in := AcceptInput{Password: goodPassword, PasswordConfirmation: goodPassword, Terms: true}

	first, err := e.wf.Accept(ctx, e.tenant, e.tda, tok, in)
	require.NoError(t, err)
	tenantUsers, err := e.central.TenantUsers().ListByTenant(ctx, "acme")
	require.NoError(t, err)
	ref := repository.EntityRef{Kind: repository.EntityPatient, ID: p.ID}
	consents := e.countConsents(t, ref)

	_, err = e.wf.Accept(ctx, e.tenant, e.tda, tok, in)
	te, ok := errs.IsToken(err)
	require.True(t, ok)
	require.Equal(t, errs.TokenUsed, te.Kind)

	_, err = e.wf.Show(ctx, e.tda, tok)
	te, ok = errs.IsToken(err)
	require.True(t, ok)
	require.Equal(t, errs.TokenUsed, te.Kind)

	after, err := e.central.TenantUsers().ListByTenant(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, after, len(tenantUsers))
	require.Equal(t, consents, e.countConsents(t, ref))
	u, err := e.central.Users().GetByEmail(ctx, "pat@example.com")
	require.NoError(t, err)
	require.Equal(t, first.User.ID, u.ID)
}

var errConsentWrite = errors.New("consent write failed")

type failingConsents struct{ repository.ConsentRepository }

func (failingConsents) RecordAcceptance(context.Context, repository.EntityRef, int64, time.Time) (bool, error) {
	return false, errConsentWrite
}

// failingTenant rompe la escritura de consents dentro de la transacción del tenant.
type failingTenant struct{ repository.TenantDataAccess }

func (f failingTenant) Consents() repository.ConsentRepository {
	return failingConsents{f.TenantDataAccess.Consents()}
}

func (f failingTenant) WithTx(ctx context.Context, fn func(tx repository.TenantDataAccess) error) error {
	return f.TenantDataAccess.WithTx(ctx, func(tx repository.TenantDataAccess) error {
		return fn(failingTenant{tx})
	})
}

func TestAccept_TenantFailureRollsBackCentral(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	p, err := e.tda.Patients().Create(ctx, repository.CreatePersonInput{FirstName: "Pat", Email: "pat@example.com"})
	require.NoError(t, err)
	tok := e.invite(t, repository.EntityPatient, p.ID, "pat@example.com")
	in := AcceptInput{Password: goodPassword, PasswordConfirmation: goodPassword, Terms: true}
	before, err := e.central.TenantUsers().ListByTenant(ctx, "acme")
	require.NoError(t, err)

	_, err = e.wf.Accept(ctx, e.tenant, failingTenant{e.tda}, tok, in)
	require.ErrorIs(t, err, errConsentWrite)

	_, err = e.central.Users().GetByEmail(ctx, "pat@example.com")
	require.True(t, repository.IsNotFound(err))
	after, err := e.central.TenantUsers().ListByTenant(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, after, len(before))

	view, err := e.wf.Show(ctx, e.tda, tok)
	require.NoError(t, err)
	require.Equal(t, repository.InvitationPending, view.Invitation.Status)
	require.False(t, view.HasUser)
	unlinked, err := e.tda.Patients().GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Nil(t, unlinked.UserID)
	_, err = e.tda.Users().GetByEmail(ctx, "pat@example.com")
	require.True(t, repository.IsNotFound(err))

	// El reintento sigue la rama de usuario nuevo.
	res, err := e.wf.Accept(ctx, e.tenant, e.tda, tok, in)
	require.NoError(t, err)
	require.True(t, res.CreatedUser)
	require.True(t, res.TenantUserCreated)
	require.Equal(t, 2, e.countConsents(t, repository.EntityRef{Kind: repository.EntityPatient, ID: p.ID}))
}

func TestAccept_Expired(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	p, err := e.tda.Patients().Create(ctx, repository.CreatePersonInput{FirstName: "Pat", Email: "pat@example.com"})
	require.NoError(t, err)
	tok := e.invite(t, repository.EntityPatient, p.ID, "pat@example.com")

	e.now = e.now.Add(7*24*time.Hour + time.Second)
	_, err = e.wf.Show(ctx, e.tda, tok)
	te, ok := errs.IsToken(err)
	require.True(t, ok)
	require.Equal(t, errs.TokenExpired, te.Kind)

	_, err = e.wf.Accept(ctx, e.tenant, e.tda, tok, AcceptInput{Password: goodPassword, PasswordConfirmation: goodPassword, Terms: true})
	te, ok = errs.IsToken(err)
	require.True(t, ok)
	require.Equal(t, errs.TokenExpired, te.Kind)

	_, err = e.central.Users().GetByEmail(ctx, "pat@example.com")
	require.True(t, repository.IsNotFound(err))
	inv, err := e.tda.Invitations().GetByTokenHash(ctx, hashOf(tok))
	require.NoError(t, err)
	require.Equal(t, repository.InvitationPending, inv.Status)
}

func TestAccept_NewUserValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	p, err := e.tda.Patients().Create(ctx, repository.CreatePersonInput{FirstName: "Pat", Email: "pat@example.com"})
	require.NoError(t, err)
	tok := e.invite(t, repository.EntityPatient, p.ID, "pat@example.com")

	_, err = e.wf.Accept(ctx, e.tenant, e.tda, tok, AcceptInput{Password: "short", PasswordConfirmation: "other"})
	ve, ok := errs.IsValidation(err)
	require.True(t, ok)
	require.True(t, ve.Has("password", "too_short"))
	require.True(t, ve.Has("password_confirmation", "mismatch"))
	require.True(t, ve.Has("terms", "required"))

	_, err = e.central.Users().GetByEmail(ctx, "pat@example.com")
	require.True(t, repository.IsNotFound(err))

	// El token sigue válido después de un formulario rechazado.
	_, err = e.wf.Accept(ctx, e.tenant, e.tda, tok, AcceptInput{Password: goodPassword, PasswordConfirmation: goodPassword, Terms: true})
	require.NoError(t, err)
}

func TestAccept_UnlinkedAccountNeedsItsPassword(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	hash, err := password.Hash(password.Default, goodPassword)
	require.NoError(t, err)
	existing, err := e.central.Users().Create(ctx, repository.CreateUserInput{Name: "Pat", Email: "pat@example.com", PasswordHash: hash})
	require.NoError(t, err)
	p, err := e.tda.Patients().Create(ctx, repository.CreatePersonInput{FirstName: "Pat", Email: "pat@example.com"})
	require.NoError(t, err)
	tok := e.invite(t, repository.EntityPatient, p.ID, "pat@example.com")

	_, err = e.wf.Accept(ctx, e.tenant, e.tda, tok, AcceptInput{Password: "Wrong1!x", Terms: true})
	ve, ok := errs.IsValidation(err)
	require.True(t, ok)
	require.True(t, ve.Has("password", "invalid_credentials"))

	res, err := e.wf.Accept(ctx, e.tenant, e.tda, tok, AcceptInput{Password: goodPassword, Terms: true})
	require.NoError(t, err)
	require.False(t, res.CreatedUser)
	require.Equal(t, existing.ID, res.User.ID)
	require.NotNil(t, res.User.EmailVerifiedAt)
}

func TestShow_UnknownToken(t *testing.T) {
	e := newEnv(t)
	for _, tok := range []string{"", "nope"} {
		_, err := e.wf.Show(context.Background(), e.tda, tok)
		te, ok := errs.IsToken(err)
		require.True(t, ok)
		require.Equal(t, errs.TokenInvalid, te.Kind)
	}
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.wf.Create(ctx, e.tenant, e.tda, CreateInput{Kind: "robot", EntityID: 1}, nil)
	ve, ok := errs.IsValidation(err)
	require.True(t, ok)
	require.True(t, ve.Has("kind", "invalid_entitykind"))

	_, err = e.wf.Create(ctx, e.tenant, e.tda, CreateInput{Kind: "patient", EntityID: 99}, nil)
	ve, ok = errs.IsValidation(err)
	require.True(t, ok)
	require.True(t, ve.Has("entity_id", "not_found"))

	p, err := e.tda.Patients().Create(ctx, repository.CreatePersonInput{FirstName: "No", LastName: "Mail"})
	require.NoError(t, err)
	_, err = e.wf.Create(ctx, e.tenant, e.tda, CreateInput{Kind: "patient", EntityID: p.ID}, nil)
	ve, ok = errs.IsValidation(err)
	require.True(t, ok)
	require.True(t, ve.Has("entity_id", "missing_email"))
}

func hashOf(tok string) string { return tokens.SHA256Base64URL(tok) }

package provisioning

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/email"
	"github.com/dropDatabas3/hellocare/internal/store/memory"
)

type fixture struct {
	central *memory.Central
	dal     *memory.DAL
	sender  *email.LogSender
	prov    *Provisioner
	tenant  *repository.Tenant
	admin   *repository.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{central: memory.NewCentral(), dal: memory.NewDAL(), sender: email.NewLogSender()}

	tenant, err := f.central.Tenants().Create(ctx, repository.CreateTenantInput{ID: "acme", CompanyName: "Acme Clinic", Domain: "acme.test"})
	require.NoError(t, err)
	f.tenant = tenant
	now := time.Now().UTC()
	f.admin, err = f.central.Users().Create(ctx, repository.CreateUserInput{Name: "Ana", Email: "ana@acme.test", PasswordHash: "h", EmailVerifiedAt: &now})
	require.NoError(t, err)
	_, err = f.central.TenantUsers().Ensure(ctx, f.admin.ID, "acme", repository.RoleAdmin)
	require.NoError(t, err)

	mailer, err := email.NewMailer(f.sender, "HelloCare")
	require.NoError(t, err)
	f.prov = New(Deps{
		Central:   f.central,
		Databases: f.dal,
		Seed:      DefaultSeed(),
		Mailer:    mailer,
		BaseURL:   "https://app.test",
	})
	return f
}

func TestProvision_AllSteps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.prov.Provision(ctx, f.tenant, f.admin)
	require.NoError(t, err)
	require.True(t, res.CreatedDatabase)
	require.False(t, res.AlreadyProvisioned)
	require.Empty(t, res.Warnings)

	tenant, err := f.central.Tenants().GetByID(ctx, "acme")
	require.NoError(t, err)
	require.True(t, tenant.IsProvisioned())

	tda, err := f.dal.ForTenant(ctx, "acme")
	require.NoError(t, err)
	roles, err := tda.Roles().List(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 4)

	active, err := tda.Consents().ListActive(ctx, repository.EntityPatient)
	require.NoError(t, err)
	require.Len(t, active, 3)

	userRoles, err := tda.Roles().UserRoles(ctx, res.AdminLocalUserID)
	require.NoError(t, err)
	require.Equal(t, []string{repository.RoleAdmin}, userRoles)

	w, err := tda.Wallets().GetSystemWallet(ctx)
	require.NoError(t, err)
	require.Equal(t, "USD", w.Currency)

	msg, ok := f.sender.Last("ana@acme.test")
	require.True(t, ok)
	require.Contains(t, msg.TextBody, "https://app.test/t/acme")
}

func TestProvision_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.prov.Provision(ctx, f.tenant, f.admin)
	require.NoError(t, err)
	res, err := f.prov.Provision(ctx, f.tenant, f.admin)
	require.NoError(t, err)
	require.True(t, res.AlreadyProvisioned)
	require.Len(t, f.sender.Messages(), 1)
}

func TestProvision_FailureLeavesTenantIncomplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	boom := errors.New("migration exploded")
	f.dal.MigrateHook = func(string) error { return boom }

	_, err := f.prov.Provision(ctx, f.tenant, f.admin)
	require.ErrorIs(t, err, boom)
	var se *StepError
	require.ErrorAs(t, err, &se)
	require.Equal(t, StepMigrate, se.Step)

	tenant, err := f.central.Tenants().GetByID(ctx, "acme")
	require.NoError(t, err)
	require.False(t, tenant.IsProvisioned())

	// El reintento completa sin duplicar el seed.
	f.dal.MigrateHook = nil
	res, err := f.prov.ProvisionByID(ctx, "acme")
	require.NoError(t, err)
	require.False(t, res.CreatedDatabase)

	tda, err := f.dal.ForTenant(ctx, "acme")
	require.NoError(t, err)
	active, err := tda.Consents().ListActive(ctx, repository.EntityPractitioner)
	require.NoError(t, err)
	require.Len(t, active, 2)
}

func TestProvision_ConcurrentCallsProvisionOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.prov.Provision(ctx, f.tenant, f.admin)
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.True(t, results[0].AlreadyProvisioned != results[1].AlreadyProvisioned)
	require.Len(t, f.sender.Messages(), 1)
}

func TestProvision_RequiresAdmin(t *testing.T) {
	f := newFixture(t)
	_, err := f.prov.Provision(context.Background(), f.tenant, nil)
	require.ErrorIs(t, err, ErrNoAdmin)
}

func TestLoadSeed_MergesWithDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
wallet_currency: ARS
roles:
  - name: staff
    description: Recepción
    permissions: [patients.read]
  - name: billing
    permissions: [billing.manage]
consents:
  - key: marketing
    title: Novedades
    entity_type: patient
    required: false
    body: Texto nuevo
  - key: telehealth
    title: Teleconsulta
    entity_type: PATIENT
    required: true
    body: Acepto la atención por video.
`), 0o600))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	require.Equal(t, "ARS", seed.WalletCurrency)
	require.Len(t, seed.Roles, 5)
	require.Len(t, seed.Consents, 6)

	for _, r := range seed.Roles {
		if r.Name == repository.RoleStaff {
			require.Equal(t, []string{PermPatientsRead}, r.Permissions)
		}
	}
	for _, c := range seed.Consents {
		if c.Key == "marketing" {
			require.Equal(t, "Texto nuevo", c.Body)
			require.Equal(t, repository.EntityPatient, c.EntityType)
		}
	}
}

func TestLoadSeed_RejectsUnknownKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("consents:\n  - key: x\n    entity_type: robot\n"), 0o600))
	_, err := LoadSeed(path)
	require.Error(t, err)
}

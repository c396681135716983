package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

func newTenant(t *testing.T, d *DAL, id string) repository.TenantDataAccess {
	t.Helper()
	ctx := context.Background()
	_, err := d.EnsureDatabase(ctx, id)
	require.NoError(t, err)
	_, err = d.Migrate(ctx, id)
	require.NoError(t, err)
	tda, err := d.ForTenant(ctx, id)
	require.NoError(t, err)
	return tda
}

func TestCentral_WithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	c := NewCentral()

	boom := errors.New("boom")
	err := c.WithTx(ctx, func(tx repository.CentralStore) error {
		_, err := tx.Tenants().Create(ctx, repository.CreateTenantInput{ID: "acme", CompanyName: "Acme", Domain: "acme.test"})
		require.NoError(t, err)
		_, err = tx.Users().Create(ctx, repository.CreateUserInput{Name: "A", Email: "a@acme.test", PasswordHash: "h"})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = c.Tenants().GetByID(ctx, "acme")
	require.True(t, repository.IsNotFound(err))
	_, err = c.Users().GetByEmail(ctx, "a@acme.test")
	require.True(t, repository.IsNotFound(err))
}

func TestCentral_UniqueConstraints(t *testing.T) {
	ctx := context.Background()
	c := NewCentral()

	_, err := c.Tenants().Create(ctx, repository.CreateTenantInput{ID: "acme", Domain: "Acme.test", RegistrationID: "r1"})
	require.NoError(t, err)
	_, err = c.Tenants().Create(ctx, repository.CreateTenantInput{ID: "acme-1", Domain: "acme.TEST"})
	require.True(t, repository.IsConflict(err))
	_, err = c.Tenants().Create(ctx, repository.CreateTenantInput{ID: "other", Domain: "other.test", RegistrationID: "r1"})
	require.True(t, repository.IsConflict(err))

	reg := repository.PendingRegistration{ID: "p1", Domain: "x.test", TenantID: "x", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, c.Registrations().Create(ctx, reg))
	reg.ID = "p2"
	require.True(t, repository.IsConflict(c.Registrations().Create(ctx, reg)))

	require.NoError(t, c.Registrations().Delete(ctx, "p1"))
	require.True(t, repository.IsNotFound(c.Registrations().Delete(ctx, "p1")))

	u, err := c.Users().Create(ctx, repository.CreateUserInput{Email: "Jane@x.test"})
	require.NoError(t, err)
	_, err = c.Users().Create(ctx, repository.CreateUserInput{Email: "jane@X.test"})
	require.True(t, repository.IsConflict(err))

	created, err := c.TenantUsers().Ensure(ctx, u.ID, "acme", repository.RoleAdmin)
	require.NoError(t, err)
	require.True(t, created)
	created, err = c.TenantUsers().Ensure(ctx, u.ID, "acme", repository.RoleAdmin)
	require.NoError(t, err)
	require.False(t, created)
}

func TestDAL_ForTenantRequiresMigratedDatabase(t *testing.T) {
	ctx := context.Background()
	d := NewDAL()

	_, err := d.ForTenant(ctx, "acme")
	require.True(t, repository.IsNoDatabase(err))

	created, err := d.EnsureDatabase(ctx, "acme")
	require.NoError(t, err)
	require.True(t, created)
	_, err = d.ForTenant(ctx, "acme")
	require.True(t, repository.IsNoDatabase(err))

	res, err := d.Migrate(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "applied", res.Outcome())
	res, err = d.Migrate(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "skipped", res.Outcome())

	tda, err := d.ForTenant(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "acme", tda.TenantID())
}

func TestDAL_LockHonoursContext(t *testing.T) {
	d := NewDAL()
	unlock, err := d.Lock(context.Background(), "acme")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = d.Lock(ctx, "acme")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, err := d.Lock(context.Background(), "acme")
	require.NoError(t, err)
	unlock2()
}

func TestLocalUsers_ExplicitIDAdvancesSequence(t *testing.T) {
	ctx := context.Background()
	tda := newTenant(t, NewDAL(), "acme")

	u, err := tda.Users().Insert(ctx, repository.InsertLocalUserInput{ID: 7, Name: "A", Email: "a@x.test"})
	require.NoError(t, err)
	require.EqualValues(t, 7, u.ID)

	_, err = tda.Users().Insert(ctx, repository.InsertLocalUserInput{ID: 7, Name: "B", Email: "b@x.test"})
	require.True(t, repository.IsConflict(err))

	auto, err := tda.Users().Insert(ctx, repository.InsertLocalUserInput{Name: "B", Email: "b@x.test"})
	require.NoError(t, err)
	require.EqualValues(t, 8, auto.ID)
}

func TestConsents_PublishKeepsSingleActiveVersion(t *testing.T) {
	ctx := context.Background()
	tda := newTenant(t, NewDAL(), "acme")
	now := time.Now()

	def := repository.ConsentDefinition{Key: "privacy", Title: "Privacy", EntityType: repository.EntityPatient, IsRequired: true, Body: "v1"}
	c, created, err := tda.Consents().EnsureConsent(ctx, def, now)
	require.NoError(t, err)
	require.True(t, created)
	_, created, err = tda.Consents().EnsureConsent(ctx, def, now)
	require.NoError(t, err)
	require.False(t, created)

	v2, err := tda.Consents().PublishVersion(ctx, c.ID, "v2", now)
	require.NoError(t, err)
	require.Equal(t, 2, v2.Version)

	active, err := tda.Consents().ListActive(ctx, repository.EntityPatient)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, v2.ID, active[0].Version.ID)

	none, err := tda.Consents().ListActive(ctx, repository.EntityPractitioner)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestInvitations_MarkAcceptedOnce(t *testing.T) {
	ctx := context.Background()
	tda := newTenant(t, NewDAL(), "acme")

	inv, err := tda.Invitations().Create(ctx, repository.CreateInvitationInput{
		TokenHash: "h", Target: repository.EntityRef{Kind: repository.EntityPatient, ID: 1},
		Email: "p@x.test", ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, tda.Invitations().MarkAccepted(ctx, inv.ID, time.Now()))
	require.True(t, repository.IsConflict(tda.Invitations().MarkAccepted(ctx, inv.ID, time.Now())))
	require.True(t, repository.IsNotFound(tda.Invitations().MarkAccepted(ctx, 99, time.Now())))
}

func TestTenant_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	tda := newTenant(t, NewDAL(), "acme")

	err := tda.WithTx(ctx, func(tx repository.TenantDataAccess) error {
		_, err := tx.Patients().Create(ctx, repository.CreatePersonInput{FirstName: "Ana"})
		require.NoError(t, err)
		return errors.New("abort")
	})
	require.Error(t, err)
	_, err = tda.Patients().GetByID(ctx, 1)
	require.True(t, repository.IsNotFound(err))
}

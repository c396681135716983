package usersync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/store/memory"
)

func newTenant(t *testing.T, roles ...string) repository.TenantDataAccess {
	t.Helper()
	ctx := context.Background()
	dal := memory.NewDAL()
	_, err := dal.EnsureDatabase(ctx, "acme")
	require.NoError(t, err)
	_, err = dal.Migrate(ctx, "acme")
	require.NoError(t, err)
	tda, err := dal.ForTenant(ctx, "acme")
	require.NoError(t, err)
	for _, r := range roles {
		_, err := tda.Roles().EnsureRole(ctx, r, r, nil)
		require.NoError(t, err)
	}
	return tda
}

func centralUser(id int64) *repository.User {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return &repository.User{ID: id, Name: "Ana Central", Email: "ana@acme.test", PasswordHash: "hash-1", EmailVerifiedAt: &now}
}

func TestSync_InsertsWithCentralID(t *testing.T) {
	ctx := context.Background()
	tda := newTenant(t, repository.RoleAdmin)

	res, err := New().Sync(ctx, tda, centralUser(42), repository.RoleAdmin, "")
	require.NoError(t, err)
	require.True(t, res.Created)
	require.True(t, res.ReusedCentralID)
	require.Equal(t, int64(42), res.LocalUser.ID)
	require.Empty(t, res.Warnings)

	roles, err := tda.Roles().UserRoles(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, []string{repository.RoleAdmin}, roles)
}

func TestSync_IsIdempotentAndKeepsLocalName(t *testing.T) {
	ctx := context.Background()
	tda := newTenant(t, repository.RoleAdmin)
	s := New()

	_, err := s.Sync(ctx, tda, centralUser(42), repository.RoleAdmin, "Dra. Ana")
	require.NoError(t, err)

	u := centralUser(42)
	u.Name = "Otro Nombre"
	u.PasswordHash = "hash-2"
	res, err := s.Sync(ctx, tda, u, repository.RoleAdmin, "")
	require.NoError(t, err)
	require.False(t, res.Created)

	local, err := tda.Users().GetByID(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, "Dra. Ana", local.Name)
	require.Equal(t, "hash-2", local.PasswordHash)

	roles, err := tda.Roles().UserRoles(ctx, 42)
	require.NoError(t, err)
	require.Len(t, roles, 1)
}

func TestSync_FallsBackToAutoIDWhenTaken(t *testing.T) {
	ctx := context.Background()
	tda := newTenant(t)
	_, err := tda.Users().Insert(ctx, repository.InsertLocalUserInput{ID: 42, Name: "Local", Email: "local@acme.test"})
	require.NoError(t, err)

	res, err := New().Sync(ctx, tda, centralUser(42), "", "")
	require.NoError(t, err)
	require.True(t, res.Created)
	require.False(t, res.ReusedCentralID)
	require.NotEqual(t, int64(42), res.LocalUser.ID)
	require.NotNil(t, res.LocalUser.CentralUserID)
	require.Equal(t, int64(42), *res.LocalUser.CentralUserID)
}

func TestSync_MissingRoleIsWarning(t *testing.T) {
	ctx := context.Background()
	tda := newTenant(t)

	res, err := New().Sync(ctx, tda, centralUser(7), repository.RoleAdmin, "")
	require.NoError(t, err)
	require.True(t, res.Created)
	require.Len(t, res.Warnings, 1)
	require.Equal(t, "role_assignment", res.Warnings[0].Step)
	require.Equal(t, "acme", res.Warnings[0].TenantID)
}

func TestSync_RequiresIdentity(t *testing.T) {
	_, err := New().Sync(context.Background(), newTenant(t), nil, "", "")
	require.ErrorIs(t, err, ErrMissingIdentity)
}

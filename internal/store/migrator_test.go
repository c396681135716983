package store

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	migrations "github.com/dropDatabas3/hellocare/migrations/postgres"
)

func TestParseMigrations_OrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0010_later.sql":  {Data: []byte("SELECT 10")},
		"m/0002_second.sql": {Data: []byte("SELECT 2")},
		"m/0001_first.sql":  {Data: []byte("SELECT 1")},
		"m/README.md":       {Data: []byte("ignored")},
	}
	migs, err := NewMigrator(fsys, "m").ParseMigrations()
	require.NoError(t, err)
	require.Len(t, migs, 3)
	require.Equal(t, []int{1, 2, 10}, []int{migs[0].Version, migs[1].Version, migs[2].Version})
	require.Equal(t, "first", migs[0].Name)
	require.Equal(t, "SELECT 10", migs[2].SQL)
}

func TestParseMigrations_RejectsDuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0001_a.sql": {Data: []byte("SELECT 1")},
		"m/1_b.sql":    {Data: []byte("SELECT 1")},
	}
	_, err := NewMigrator(fsys, "m").ParseMigrations()
	require.Error(t, err)
}

func TestEmbeddedMigrations_Parse(t *testing.T) {
	central, err := NewMigrator(migrations.CentralFS, migrations.CentralDir).ParseMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, central)

	tenant, err := NewMigrator(migrations.TenantFS, migrations.TenantDir).ParseMigrations()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(tenant), 3)
}

func TestMigrationResult_Outcome(t *testing.T) {
	v := 3
	require.Equal(t, "failed", (&MigrationResult{Failed: &v}).Outcome())
	require.Equal(t, "applied", (&MigrationResult{Applied: []int{1}}).Outcome())
	require.Equal(t, "skipped", (&MigrationResult{Skipped: []int{1}}).Outcome())
}

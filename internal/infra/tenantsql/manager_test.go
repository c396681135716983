package tenantsql

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockID_StablePerPurpose(t *testing.T) {
	a := lockID("tenant_migration", "acme")
	require.Equal(t, a, lockID("tenant_migration", "acme"))
	require.NotEqual(t, a, lockID("tenant_provision", "acme"))
	require.NotEqual(t, a, lockID("tenant_migration", "acme-1"))
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestObjectName(t *testing.T) {
	m := &Manager{cfg: Config{Prefix: "tenant_"}}
	require.Equal(t, "tenant_clinica_sonrisa_2", m.ObjectName("clinica-sonrisa-2"))
}

func TestPgIdentifier_Quotes(t *testing.T) {
	require.Equal(t, `"tenant_acme"`, pgIdentifier("tenant_acme"))
	require.Equal(t, `"we""ird"`, pgIdentifier(`we"ird`))
}

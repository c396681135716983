package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte(""))
	require.NoError(t, err)

	require.Equal(t, "dev", c.App.Env)
	require.Equal(t, ":8080", c.Server.Addr)
	require.Equal(t, "memory", c.Storage.Driver)
	require.Equal(t, "database", c.Tenancy.Mode)
	require.Equal(t, "tenant_", c.Tenancy.Prefix)
	require.Equal(t, "memory", c.Cache.Kind)
	require.Equal(t, 3, c.Billing.Retry.Attempts)
	require.Equal(t, 2*time.Second, Dur(c.Billing.Retry.Backoff, 0))
	require.Equal(t, 30*time.Minute, Dur(c.Registration.AbandonAfter, 0))
	require.Equal(t, 7*24*time.Hour, Dur(c.Invitation.TTL, 0))
	require.Equal(t, 8, c.Security.PasswordPolicy.MinLength)
	require.True(t, c.Security.PasswordPolicy.RequireSymbol)
	require.Equal(t, "http://localhost:8080", c.Session.Issuer)
}

func TestParse_EnvOverridesAndDerivedDefaults(t *testing.T) {
	t.Setenv("SERVER_BASE_URL", "https://api.hellocare.test")
	t.Setenv("BILLING_PLANS", "basic=price_basic, pro=price_pro")
	t.Setenv("BILLING_TRIAL_DAYS", "basic=14,pro=x")
	t.Setenv("RATE_ENABLED", "true")

	c, err := Parse([]byte("billing:\n  retry:\n    attempts: 5\n"))
	require.NoError(t, err)

	require.Equal(t, "https://api.hellocare.test", c.Session.Issuer)
	require.Equal(t, "https://api.hellocare.test", c.Invitation.BaseURL)
	require.Contains(t, c.Billing.SuccessURL, "https://api.hellocare.test/")
	require.Equal(t, map[string]string{"basic": "price_basic", "pro": "price_pro"}, c.Billing.Plans)
	require.Equal(t, map[string]int{"basic": 14}, c.Billing.TrialDays)
	require.Equal(t, 5, c.Billing.Retry.Attempts)
	require.True(t, c.Rate.Enabled)
}

func TestParse_InvalidDuration(t *testing.T) {
	_, err := Parse([]byte("registration:\n  abandon_after: soon\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "registration.abandon_after")
}

func TestValidate(t *testing.T) {
	_, err := Parse([]byte("storage:\n  driver: postgres\n"))
	require.ErrorContains(t, err, "storage.dsn")

	_, err = Parse([]byte("storage:\n  driver: postgres\n  dsn: postgres://x\ntenancy:\n  dsn_template: postgres://x/db\n"))
	require.ErrorContains(t, err, "{db}")

	_, err = Parse([]byte("storage:\n  driver: postgres\n  dsn: postgres://x\ntenancy:\n  mode: schema\n"))
	require.NoError(t, err)

	_, err = Parse([]byte("cache:\n  kind: redis\n"))
	require.ErrorContains(t, err, "cache.redis.addr")

	t.Setenv("APP_ENV", "PROD")
	_, err = Parse([]byte(""))
	require.ErrorContains(t, err, "secretbox_master_key")
}

func TestParse_ProdDisablesDebugLinks(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("SECRETBOX_MASTER_KEY", "k")
	t.Setenv("BILLING_WEBHOOK_SECRET", "whsec")
	t.Setenv("SESSION_SIGNING_SEED", "seed")
	c, err := Parse([]byte("email:\n  debug_echo_links: true\n"))
	require.NoError(t, err)
	require.True(t, c.IsProd())
	require.False(t, c.Email.DebugEchoLinks)
}

func TestLoad_ResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provisioning:\n  seed_file: seed.yaml\nsecurity:\n  password_blacklist_path: /etc/bl.txt\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "seed.yaml"), c.Provisioning.SeedFile)
	require.Equal(t, "/etc/bl.txt", c.Security.PasswordBlacklistPath)
}

func TestParseKVList(t *testing.T) {
	require.Equal(t, map[string]string{"a": "1", "b": "2=3"}, parseKVList(" a=1 ;b=2=3; =x; c= ", ";"))
	require.Empty(t, parseKVList("  ", ","))
}

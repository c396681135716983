package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env     string `yaml:"app_env"`
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		BaseURL            string   `yaml:"base_url"` // URL pública de la API (links, redirects)
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		ShutdownTimeout    string   `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"` // DSN de la DB central
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Tenancy struct {
		// database | schema
		Mode        string `yaml:"mode"`
		DSNTemplate string `yaml:"dsn_template"` // usa {db} como placeholder
		Prefix      string `yaml:"prefix"`
		Pool        struct {
			MaxConns        int    `yaml:"max_conns"`
			MinConns        int    `yaml:"min_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"pool"`
	} `yaml:"tenancy"`

	Cache struct {
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Rate struct {
		Enabled bool `yaml:"enabled"`

		Register struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"register"`

		EmailCode struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"email_code"`

		Status struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"status"`

		Invitation struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"invitation"`
	} `yaml:"rate"`

	Flags struct {
		Migrate bool `yaml:"migrate"`
	} `yaml:"flags"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"`                  // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	Email struct {
		// Sin SMTP host se usa el sender de log.
		BaseURL        string `yaml:"base_url"`
		DebugEchoLinks bool   `yaml:"debug_echo_links"`
	} `yaml:"email"`

	Security struct {
		SecretBoxMasterKey string `yaml:"secretbox_master_key"` // base64(32 bytes); cifra el payload de registro
		PasswordPolicy     struct {
			MinLength     int  `yaml:"min_length"`
			RequireUpper  bool `yaml:"require_upper"`
			RequireLower  bool `yaml:"require_lower"`
			RequireDigit  bool `yaml:"require_digit"`
			RequireSymbol bool `yaml:"require_symbol"`
		} `yaml:"password_policy"`
		PasswordBlacklistPath string `yaml:"password_blacklist_path"`
	} `yaml:"security"`

	Billing struct {
		BaseURL       string            `yaml:"base_url"`
		SecretKey     string            `yaml:"secret_key"`
		WebhookSecret string            `yaml:"webhook_secret"`
		Plans         map[string]string `yaml:"plans"` // plan id -> price id
		TrialDays     map[string]int    `yaml:"trial_days"`
		SuccessURL    string            `yaml:"success_url"`
		CancelURL     string            `yaml:"cancel_url"`
		Timeout       string            `yaml:"timeout"`
		Retry         struct {
			Attempts int    `yaml:"attempts"`
			Backoff  string `yaml:"backoff"`
		} `yaml:"retry"`
		WebhookTolerance string `yaml:"webhook_tolerance"`
		WebhookDedupeTTL string `yaml:"webhook_dedupe_ttl"`
	} `yaml:"billing"`

	Registration struct {
		TTL          string `yaml:"ttl"`
		AbandonAfter string `yaml:"abandon_after"`
		CodeTTL      string `yaml:"code_ttl"`
		VerifiedTTL  string `yaml:"verified_ttl"`
	} `yaml:"registration"`

	Invitation struct {
		TTL     string `yaml:"ttl"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"invitation"`

	Session struct {
		Issuer     string `yaml:"issuer"`
		CookieName string `yaml:"cookie_name"`
		Domain     string `yaml:"domain"`
		SameSite   string `yaml:"samesite"`
		Secure     bool   `yaml:"secure"`
		TTL        string `yaml:"ttl"`
		HandoffTTL string `yaml:"handoff_ttl"`
		// Seed Ed25519 en base64 (32 bytes). Vacío => clave efímera (sólo dev).
		SigningSeed string `yaml:"signing_seed"`
	} `yaml:"session"`

	Provisioning struct {
		SeedFile    string `yaml:"seed_file"`
		LockTimeout string `yaml:"lock_timeout"`
	} `yaml:"provisioning"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// IsProd reporta si app_env es prod.
func (c *Config) IsProd() bool { return strings.EqualFold(c.App.Env, "prod") }

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}

	// Normalizar rutas relativas respecto al directorio del YAML
	base := filepath.Dir(path)
	c.Security.PasswordBlacklistPath = resolvePath(base, c.Security.PasswordBlacklistPath)
	c.Provisioning.SeedFile = resolvePath(base, c.Provisioning.SeedFile)
	return c, nil
}

// Parse aplica defaults, overrides de entorno y validación sobre un YAML ya leído.
// Un YAML vacío es válido: todo sale de defaults + env.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	// Overrides por env primero: los defaults derivados (base_url, issuer) los respetan.
	c.applyEnvOverrides()
	c.setDefaults()

	// validate string durations
	durations := map[string]string{
		"server.shutdown_timeout":            c.Server.ShutdownTimeout,
		"storage.postgres.conn_max_lifetime": c.Storage.Postgres.ConnMaxLifetime,
		"tenancy.pool.conn_max_lifetime":     c.Tenancy.Pool.ConnMaxLifetime,
		"rate.register.window":               c.Rate.Register.Window,
		"rate.email_code.window":             c.Rate.EmailCode.Window,
		"rate.status.window":                 c.Rate.Status.Window,
		"rate.invitation.window":             c.Rate.Invitation.Window,
		"billing.timeout":                    c.Billing.Timeout,
		"billing.retry.backoff":              c.Billing.Retry.Backoff,
		"billing.webhook_tolerance":          c.Billing.WebhookTolerance,
		"billing.webhook_dedupe_ttl":         c.Billing.WebhookDedupeTTL,
		"registration.ttl":                   c.Registration.TTL,
		"registration.abandon_after":         c.Registration.AbandonAfter,
		"registration.code_ttl":              c.Registration.CodeTTL,
		"registration.verified_ttl":          c.Registration.VerifiedTTL,
		"invitation.ttl":                     c.Invitation.TTL,
		"session.ttl":                        c.Session.TTL,
		"session.handoff_ttl":                c.Session.HandoffTTL,
		"provisioning.lock_timeout":          c.Provisioning.LockTimeout,
	}
	for k, v := range durations {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("config: %s: %w", k, err)
		}
	}

	// Guardia dura: en prod NUNCA exponemos los links por headers.
	if c.IsProd() {
		c.Email.DebugEchoLinks = false
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) setDefaults() {
	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "hellocare"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:8080"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "15s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Postgres.MaxOpenConns == 0 {
		c.Storage.Postgres.MaxOpenConns = 20
	}
	if c.Tenancy.Mode == "" {
		c.Tenancy.Mode = "database"
	}
	if c.Tenancy.Prefix == "" {
		c.Tenancy.Prefix = "tenant_"
	}
	if c.Tenancy.Pool.MaxConns == 0 {
		c.Tenancy.Pool.MaxConns = 5
	}
	if c.Tenancy.Pool.ConnMaxLifetime == "" {
		c.Tenancy.Pool.ConnMaxLifetime = "30m"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "hellocare:"
	}

	// Endpoint-specific rate limit defaults
	if c.Rate.Register.Limit == 0 {
		c.Rate.Register.Limit = 5
	}
	if c.Rate.Register.Window == "" {
		c.Rate.Register.Window = "10m"
	}
	if c.Rate.EmailCode.Limit == 0 {
		c.Rate.EmailCode.Limit = 5
	}
	if c.Rate.EmailCode.Window == "" {
		c.Rate.EmailCode.Window = "15m"
	}
	if c.Rate.Status.Limit == 0 {
		c.Rate.Status.Limit = 60
	}
	if c.Rate.Status.Window == "" {
		c.Rate.Status.Window = "1m"
	}
	if c.Rate.Invitation.Limit == 0 {
		c.Rate.Invitation.Limit = 10
	}
	if c.Rate.Invitation.Window == "" {
		c.Rate.Invitation.Window = "1m"
	}

	// SMTP defaults
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Email.BaseURL == "" {
		c.Email.BaseURL = c.Server.BaseURL
	}

	// Password policy default
	if c.Security.PasswordPolicy.MinLength == 0 {
		c.Security.PasswordPolicy.MinLength = 8
		c.Security.PasswordPolicy.RequireUpper = true
		c.Security.PasswordPolicy.RequireLower = true
		c.Security.PasswordPolicy.RequireDigit = true
		c.Security.PasswordPolicy.RequireSymbol = true
	}

	// Billing
	if c.Billing.BaseURL == "" {
		c.Billing.BaseURL = "https://api.stripe.com"
	}
	if c.Billing.Plans == nil {
		c.Billing.Plans = map[string]string{}
	}
	if c.Billing.TrialDays == nil {
		c.Billing.TrialDays = map[string]int{}
	}
	if c.Billing.Timeout == "" {
		c.Billing.Timeout = "10s"
	}
	if c.Billing.Retry.Attempts == 0 {
		c.Billing.Retry.Attempts = 3
	}
	if c.Billing.Retry.Backoff == "" {
		c.Billing.Retry.Backoff = "2s"
	}
	if c.Billing.WebhookTolerance == "" {
		c.Billing.WebhookTolerance = "5m"
	}
	if c.Billing.WebhookDedupeTTL == "" {
		c.Billing.WebhookDedupeTTL = "48h"
	}
	base := strings.TrimRight(c.Server.BaseURL, "/")
	if c.Billing.SuccessURL == "" {
		c.Billing.SuccessURL = base + "/register/complete?session_id={CHECKOUT_SESSION_ID}"
	}
	if c.Billing.CancelURL == "" {
		c.Billing.CancelURL = base + "/register?canceled=1"
	}

	// Registration
	if c.Registration.TTL == "" {
		c.Registration.TTL = "24h"
	}
	if c.Registration.AbandonAfter == "" {
		c.Registration.AbandonAfter = "30m"
	}
	if c.Registration.CodeTTL == "" {
		c.Registration.CodeTTL = "15m"
	}
	if c.Registration.VerifiedTTL == "" {
		c.Registration.VerifiedTTL = "24h"
	}

	// Invitations
	if c.Invitation.TTL == "" {
		c.Invitation.TTL = "168h" // 7d
	}
	if c.Invitation.BaseURL == "" {
		c.Invitation.BaseURL = c.Server.BaseURL
	}

	// Session
	if c.Session.Issuer == "" {
		c.Session.Issuer = c.Server.BaseURL
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "hc_session"
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "Lax"
	}
	if c.Session.TTL == "" {
		c.Session.TTL = "12h"
	}
	if c.Session.HandoffTTL == "" {
		c.Session.HandoffTTL = "2m"
	}

	if c.Provisioning.LockTimeout == "" {
		c.Provisioning.LockTimeout = "30s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Dur parsea una duración ya validada por Parse. Vacío o inválido => def.
func Dur(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
		return d
	}
	return def
}

func resolvePath(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		if strings.TrimSpace(s) == "" {
			return []string{}, true
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("APP_VERSION"); ok {
		c.App.Version = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("SERVER_BASE_URL"); ok {
		c.Server.BaseURL = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_IDLE_CONNS"); ok {
		c.Storage.Postgres.MaxIdleConns = v
	}
	if v, ok := getEnvStr("POSTGRES_CONN_MAX_LIFETIME"); ok {
		c.Storage.Postgres.ConnMaxLifetime = v
	}

	// TENANCY
	if v, ok := getEnvStr("TENANCY_MODE"); ok {
		c.Tenancy.Mode = strings.ToLower(v)
	}
	if v, ok := getEnvStr("TENANCY_DSN_TEMPLATE"); ok {
		c.Tenancy.DSNTemplate = v
	}
	if v, ok := getEnvStr("TENANCY_PREFIX"); ok {
		c.Tenancy.Prefix = v
	}
	if v, ok := getEnvInt("TENANCY_POOL_MAX_CONNS"); ok {
		c.Tenancy.Pool.MaxConns = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_REGISTER_LIMIT"); ok {
		c.Rate.Register.Limit = v
	}
	if v, ok := getEnvStr("RATE_REGISTER_WINDOW"); ok {
		c.Rate.Register.Window = v
	}
	if v, ok := getEnvInt("RATE_EMAIL_CODE_LIMIT"); ok {
		c.Rate.EmailCode.Limit = v
	}
	if v, ok := getEnvStr("RATE_EMAIL_CODE_WINDOW"); ok {
		c.Rate.EmailCode.Window = v
	}
	if v, ok := getEnvInt("RATE_STATUS_LIMIT"); ok {
		c.Rate.Status.Limit = v
	}
	if v, ok := getEnvStr("RATE_STATUS_WINDOW"); ok {
		c.Rate.Status.Window = v
	}
	if v, ok := getEnvInt("RATE_INVITATION_LIMIT"); ok {
		c.Rate.Invitation.Limit = v
	}
	if v, ok := getEnvStr("RATE_INVITATION_WINDOW"); ok {
		c.Rate.Invitation.Window = v
	}

	// FLAGS
	if v, ok := getEnvBool("FLAGS_MIGRATE"); ok {
		c.Flags.Migrate = v
	}

	// SMTP
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("SMTP_TLS"); ok {
		c.SMTP.TLS = strings.ToLower(v)
	}
	if v, ok := getEnvBool("SMTP_INSECURE_SKIP_VERIFY"); ok {
		c.SMTP.InsecureSkipVerify = v
	}

	// EMAIL
	if v, ok := getEnvStr("EMAIL_BASE_URL"); ok {
		c.Email.BaseURL = v
	}
	if v, ok := getEnvBool("EMAIL_DEBUG_LINKS"); ok {
		c.Email.DebugEchoLinks = v
	}

	// SECURITY
	if v, ok := getEnvStr("SECRETBOX_MASTER_KEY"); ok {
		c.Security.SecretBoxMasterKey = v
	}
	if v, ok := getEnvInt("SECURITY_PASSWORD_POLICY_MIN_LENGTH"); ok {
		c.Security.PasswordPolicy.MinLength = v
	}
	if v, ok := getEnvBool("SECURITY_PASSWORD_POLICY_REQUIRE_UPPER"); ok {
		c.Security.PasswordPolicy.RequireUpper = v
	}
	if v, ok := getEnvBool("SECURITY_PASSWORD_POLICY_REQUIRE_LOWER"); ok {
		c.Security.PasswordPolicy.RequireLower = v
	}
	if v, ok := getEnvBool("SECURITY_PASSWORD_POLICY_REQUIRE_DIGIT"); ok {
		c.Security.PasswordPolicy.RequireDigit = v
	}
	if v, ok := getEnvBool("SECURITY_PASSWORD_POLICY_REQUIRE_SYMBOL"); ok {
		c.Security.PasswordPolicy.RequireSymbol = v
	}
	if v, ok := getEnvStr("SECURITY_PASSWORD_BLACKLIST_PATH"); ok {
		c.Security.PasswordBlacklistPath = v
	}

	// BILLING
	if v, ok := getEnvStr("BILLING_BASE_URL"); ok {
		c.Billing.BaseURL = v
	}
	if v, ok := getEnvStr("BILLING_SECRET_KEY"); ok {
		c.Billing.SecretKey = v
	} else if v, ok := getEnvStr("STRIPE_SECRET_KEY"); ok {
		c.Billing.SecretKey = v
	}
	if v, ok := getEnvStr("BILLING_WEBHOOK_SECRET"); ok {
		c.Billing.WebhookSecret = v
	} else if v, ok := getEnvStr("STRIPE_WEBHOOK_SECRET"); ok {
		c.Billing.WebhookSecret = v
	}
	// BILLING_PLANS="basic=price_1,pro=price_2"
	if v, ok := getEnvKVList("BILLING_PLANS", ","); ok {
		c.Billing.Plans = v
	}
	if v, ok := getEnvKVList("BILLING_TRIAL_DAYS", ","); ok {
		days := make(map[string]int, len(v))
		for plan, s := range v {
			if n, err := strconv.Atoi(s); err == nil {
				days[plan] = n
			}
		}
		c.Billing.TrialDays = days
	}
	if v, ok := getEnvStr("BILLING_SUCCESS_URL"); ok {
		c.Billing.SuccessURL = v
	}
	if v, ok := getEnvStr("BILLING_CANCEL_URL"); ok {
		c.Billing.CancelURL = v
	}
	if v, ok := getEnvInt("BILLING_RETRY_ATTEMPTS"); ok {
		c.Billing.Retry.Attempts = v
	}
	if v, ok := getEnvStr("BILLING_RETRY_BACKOFF"); ok {
		c.Billing.Retry.Backoff = v
	}

	// REGISTRATION
	if v, ok := getEnvStr("REGISTRATION_TTL"); ok {
		c.Registration.TTL = v
	}
	if v, ok := getEnvStr("REGISTRATION_ABANDON_AFTER"); ok {
		c.Registration.AbandonAfter = v
	}

	// INVITATION
	if v, ok := getEnvStr("INVITATION_TTL"); ok {
		c.Invitation.TTL = v
	}
	if v, ok := getEnvStr("INVITATION_BASE_URL"); ok {
		c.Invitation.BaseURL = v
	}

	// SESSION
	if v, ok := getEnvStr("SESSION_ISSUER"); ok {
		c.Session.Issuer = v
	}
	if v, ok := getEnvStr("SESSION_COOKIE_NAME"); ok {
		c.Session.CookieName = v
	}
	if v, ok := getEnvStr("SESSION_DOMAIN"); ok {
		c.Session.Domain = v
	}
	if v, ok := getEnvBool("SESSION_SECURE"); ok {
		c.Session.Secure = v
	}
	if v, ok := getEnvStr("SESSION_TTL"); ok {
		c.Session.TTL = v
	}
	if v, ok := getEnvStr("SESSION_SIGNING_SEED"); ok {
		c.Session.SigningSeed = v
	}

	// PROVISIONING
	if v, ok := getEnvStr("PROVISIONING_SEED_FILE"); ok {
		c.Provisioning.SeedFile = v
	}
}

// Validate performs validation of critical configuration values.
func (c *Config) Validate() error {
	var problems []string
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			problems = append(problems, "storage.dsn is required for driver postgres")
		}
		if c.Tenancy.Mode == "database" && !strings.Contains(c.Tenancy.DSNTemplate, "{db}") {
			problems = append(problems, "tenancy.dsn_template must contain {db} in database mode")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.driver %q not supported (memory|postgres)", c.Storage.Driver))
	}
	switch c.Tenancy.Mode {
	case "database", "schema":
	default:
		problems = append(problems, fmt.Sprintf("tenancy.mode %q not supported (database|schema)", c.Tenancy.Mode))
	}
	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			problems = append(problems, "cache.redis.addr is required for kind redis")
		}
	default:
		problems = append(problems, fmt.Sprintf("cache.kind %q not supported (memory|redis)", c.Cache.Kind))
	}
	if c.Billing.Retry.Attempts < 1 {
		problems = append(problems, "billing.retry.attempts must be >= 1")
	}
	if c.IsProd() {
		if strings.TrimSpace(c.Security.SecretBoxMasterKey) == "" {
			problems = append(problems, "security.secretbox_master_key is required in prod")
		}
		if strings.TrimSpace(c.Billing.WebhookSecret) == "" {
			problems = append(problems, "billing.webhook_secret is required in prod")
		}
		if strings.TrimSpace(c.Session.SigningSeed) == "" {
			problems = append(problems, "session.signing_seed is required in prod")
		}
	}
	if len(problems) > 0 {
		return errors.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// parse env of form "k1=v1<sep>k2=v2" into map
func parseKVList(s, sep string) map[string]string {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]string{}
	}
	items := strings.Split(s, sep)
	out := make(map[string]string, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		// split at first '='
		if i := strings.IndexRune(it, '='); i > 0 {
			k := strings.TrimSpace(it[:i])
			v := strings.TrimSpace(it[i+1:])
			if k != "" && v != "" {
				out[k] = v
			}
		}
	}
	return out
}

func getEnvKVList(key, sep string) (map[string]string, bool) {
	if s, ok := getEnvStr(key); ok {
		return parseKVList(s, sep), true
	}
	return nil, false
}

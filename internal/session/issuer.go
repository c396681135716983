// Package session emite y valida los tokens de sesión (EdDSA) y los tokens
// de hand-off que llevan al usuario del registro central al portal del tenant.
package session

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Tipos de token.
const (
	KindSession = "session"
	KindHandoff = "handoff"
)

var (
	ErrInvalidToken = errors.New("session: invalid token")
	ErrWrongKind    = errors.New("session: unexpected token kind")
)

// Claims son las claims propias más las registradas (iss, sub, exp, jti).
type Claims struct {
	TenantID string `json:"tid"`
	Role     string `json:"role,omitempty"`
	Kind     string `json:"knd"`
	jwtv5.RegisteredClaims
}

// UserID parsea sub como id de usuario central.
func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Config del issuer.
type Config struct {
	Issuer     string
	Seed       string // base64 de 32 bytes; vacío => clave efímera
	SessionTTL time.Duration
	HandoffTTL time.Duration
}

// Issuer firma con una única clave Ed25519 derivada de la seed.
type Issuer struct {
	iss        string
	kid        string
	priv       ed25519.PrivateKey
	pub        ed25519.PublicKey
	sessionTTL time.Duration
	handoffTTL time.Duration
	now        func() time.Time
}

func NewIssuer(cfg Config) (*Issuer, error) {
	var seed []byte
	if strings.TrimSpace(cfg.Seed) == "" {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, err
		}
	} else {
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cfg.Seed))
		if err != nil {
			if b, err = base64.RawURLEncoding.DecodeString(strings.TrimSpace(cfg.Seed)); err != nil {
				return nil, fmt.Errorf("session: seed is not base64: %w", err)
			}
		}
		if len(b) != ed25519.SeedSize {
			return nil, fmt.Errorf("session: seed must be %d bytes, got %d", ed25519.SeedSize, len(b))
		}
		seed = b
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if cfg.HandoffTTL <= 0 {
		cfg.HandoffTTL = 2 * time.Minute
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Issuer{
		iss:        cfg.Issuer,
		kid:        keyID(pub),
		priv:       priv,
		pub:        pub,
		sessionTTL: cfg.SessionTTL,
		handoffTTL: cfg.HandoffTTL,
		now:        time.Now,
	}, nil
}

// SetClock reemplaza el reloj (tests).
func (i *Issuer) SetClock(now func() time.Time) { i.now = now }

// SessionTTL es la duración de la cookie de sesión.
func (i *Issuer) SessionTTL() time.Duration { return i.sessionTTL }

// Issue emite un token de sesión para el usuario dentro del tenant.
func (i *Issuer) Issue(userID int64, tenantID, role string) (string, time.Time, error) {
	exp := i.now().UTC().Add(i.sessionTTL)
	tok, err := i.sign(Claims{TenantID: tenantID, Role: role, Kind: KindSession}, userID, exp)
	return tok, exp, err
}

// IssueHandoff emite un token de un solo uso (jti) para el redirect SSO al tenant.
func (i *Issuer) IssueHandoff(userID int64, tenantID string) (token, jti string, exp time.Time, err error) {
	exp = i.now().UTC().Add(i.handoffTTL)
	jti = uuid.NewString()
	c := Claims{TenantID: tenantID, Kind: KindHandoff}
	c.ID = jti
	token, err = i.sign(c, userID, exp)
	return token, jti, exp, err
}

func (i *Issuer) sign(c Claims, userID int64, exp time.Time) (string, error) {
	now := i.now().UTC()
	c.Issuer = i.iss
	c.Subject = strconv.FormatInt(userID, 10)
	c.IssuedAt = jwtv5.NewNumericDate(now)
	c.NotBefore = jwtv5.NewNumericDate(now)
	c.ExpiresAt = jwtv5.NewNumericDate(exp)
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, c)
	tk.Header["kid"] = i.kid
	tk.Header["typ"] = "JWT"
	return tk.SignedString(i.priv)
}

// Parse valida firma, issuer, expiración y tipo. kind vacío acepta cualquiera.
func (i *Issuer) Parse(token, kind string) (*Claims, error) {
	opts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods([]string{"EdDSA"}),
		jwtv5.WithTimeFunc(i.now),
		jwtv5.WithLeeway(30 * time.Second),
	}
	if i.iss != "" {
		opts = append(opts, jwtv5.WithIssuer(i.iss))
	}
	var c Claims
	tok, err := jwtv5.ParseWithClaims(token, &c, func(*jwtv5.Token) (any, error) { return i.pub, nil }, opts...)
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if kind != "" && c.Kind != kind {
		return nil, ErrWrongKind
	}
	if _, err := c.UserID(); err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return &c, nil
}

// GenerateSeed genera una seed Ed25519 nueva en base64 (CLI keys).
func GenerateSeed() (string, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(seed), nil
}

func keyID(pub ed25519.PublicKey) string {
	return base64.RawURLEncoding.EncodeToString(pub[:8])
}

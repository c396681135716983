package onboarding

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/dropDatabas3/hellocare/internal/billing"
	"github.com/dropDatabas3/hellocare/internal/domain/errs"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
	"github.com/dropDatabas3/hellocare/internal/security/password"
	"github.com/dropDatabas3/hellocare/internal/validation"
)

// RegistrationInput es el formulario de alta de una práctica.
type RegistrationInput struct {
	CompanyName          string `json:"company_name" validate:"required,max=120"`
	Domain               string `json:"domain" validate:"required,hostname_rfc1123,max=253"`
	AdminName            string `json:"admin_name" validate:"required,max=120"`
	AdminEmail           string `json:"admin_email" validate:"required,email,max=200"`
	Password             string `json:"password" validate:"required"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
	Plan                 string `json:"plan" validate:"required"`
	Terms                bool   `json:"terms" validate:"required"`
}

func (in *RegistrationInput) normalize() {
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	in.Domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(in.Domain)), ".")
	in.AdminName = strings.TrimSpace(in.AdminName)
	in.AdminEmail = normalizeEmail(in.AdminEmail)
	in.Plan = strings.TrimSpace(in.Plan)
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// registrationPayload es lo que viaja cifrado en encrypted_token.
type registrationPayload struct {
	CompanyName  string    `json:"company_name"`
	Domain       string    `json:"domain"`
	AdminName    string    `json:"admin_name"`
	AdminEmail   string    `json:"admin_email"`
	PasswordHash string    `json:"password_hash"`
	Plan         string    `json:"plan"`
	TenantID     string    `json:"tenant_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// PendingResult es el resultado de CreatePendingRegistration.
type PendingResult struct {
	RegistrationID string
	Token          string
	TenantID       string
	ExpiresAt      time.Time
	// Replaced indica que se reemplazó un registro abandonado del mismo admin.
	Replaced bool
}

// Checkout es la sesión de pago creada para un registro.
type Checkout struct {
	RegistrationID string
	SessionID      string
	CustomerID     string
	URL            string
}

// CreatePendingRegistration valida el alta y reserva dominio y tenant id hasta
// que el pago se confirme. Falla con *errs.ValidationError por dominio tomado,
// email sin verificar o password fuera de política.
func (c *Coordinator) CreatePendingRegistration(ctx context.Context, in RegistrationInput) (*PendingResult, error) {
	in.normalize()
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("onboarding"),
		logger.Op("CreatePendingRegistration"),
		logger.Email(in.AdminEmail),
	)

	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	ve := &errs.ValidationError{}
	if len(c.deps.Plans) > 0 {
		if _, ok := c.deps.Plans[in.Plan]; !ok {
			ve.Add("plan", "unknown_plan")
		}
	}
	if ok, reasons := c.deps.Policy.Validate(in.Password); !ok {
		ve.Add("password", reasons...)
	}
	verified, err := c.isEmailVerified(ctx, in.AdminEmail)
	if err != nil {
		return nil, err
	}
	if !verified {
		ve.Add("admin_email", "unverified")
	}

	now := c.deps.Now().UTC()
	replaced, err := c.checkDomain(ctx, in, now, ve)
	if err != nil {
		return nil, err
	}
	if !ve.Empty() {
		log.Debug("registration rejected", logger.Any("fields", ve.Fields))
		return nil, ve
	}

	tenantID, err := c.uniqueTenantID(ctx, in.CompanyName, now)
	if err != nil {
		return nil, err
	}

	hash, err := password.Hash(password.Default, in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	raw, err := json.Marshal(registrationPayload{
		CompanyName:  in.CompanyName,
		Domain:       in.Domain,
		AdminName:    in.AdminName,
		AdminEmail:   in.AdminEmail,
		PasswordHash: hash,
		Plan:         in.Plan,
		TenantID:     tenantID,
		CreatedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	token, err := c.deps.Box.Encrypt(raw)
	if err != nil {
		return nil, fmt.Errorf("encrypt registration: %w", err)
	}

	p := repository.PendingRegistration{
		ID:             uuid.NewString(),
		EncryptedToken: token,
		Domain:         in.Domain,
		TenantID:       tenantID,
		Email:          in.AdminEmail,
		ExpiresAt:      now.Add(c.deps.RegistrationTTL),
		CreatedAt:      now,
	}
	if err := c.deps.Central.Registrations().Create(ctx, p); err != nil {
		if repository.IsConflict(err) {
			// Otra request reservó el dominio entre el chequeo y el insert.
			return nil, errs.Validation("domain", "taken")
		}
		return nil, fmt.Errorf("create pending registration: %w", err)
	}

	log.Info("pending registration created",
		logger.RegistrationID(p.ID),
		logger.TenantID(tenantID),
		logger.Bool("replaced", replaced),
	)
	return &PendingResult{
		RegistrationID: p.ID,
		Token:          token,
		TenantID:       tenantID,
		ExpiresAt:      p.ExpiresAt,
		Replaced:       replaced,
	}, nil
}

// checkDomain agrega "taken" a ve si el dominio pertenece a un tenant o a un
// registro vivo. Un registro vencido se borra; uno abandonado por el mismo admin
// (más viejo que AbandonAfter) se reemplaza.
func (c *Coordinator) checkDomain(ctx context.Context, in RegistrationInput, now time.Time, ve *errs.ValidationError) (bool, error) {
	if _, err := c.deps.Central.Tenants().GetByDomain(ctx, in.Domain); err == nil {
		ve.Add("domain", "taken")
		return false, nil
	} else if !repository.IsNotFound(err) {
		return false, fmt.Errorf("lookup tenant domain: %w", err)
	}

	p, err := c.deps.Central.Registrations().GetByDomain(ctx, in.Domain)
	if repository.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup pending domain: %w", err)
	}

	abandoned := p.Email == in.AdminEmail && now.Sub(p.CreatedAt) >= c.deps.AbandonAfter
	if !p.Expired(now) && !abandoned {
		ve.Add("domain", "taken")
		return false, nil
	}
	if !ve.Empty() {
		return false, nil
	}
	if err := c.deps.Central.Registrations().Delete(ctx, p.ID); err != nil && !repository.IsNotFound(err) {
		return false, fmt.Errorf("delete stale registration: %w", err)
	}
	return abandoned && !p.Expired(now), nil
}

// uniqueTenantID genera el slug del nombre y agrega -2, -3... hasta encontrar uno libre.
func (c *Coordinator) uniqueTenantID(ctx context.Context, company string, now time.Time) (string, error) {
	base := Slugify(company)
	if base == "" {
		base = "practice"
	}
	for i := 1; i <= 100; i++ {
		id := base
		if i > 1 {
			suffix := "-" + strconv.Itoa(i)
			if len(id)+len(suffix) > maxSlugLen {
				id = strings.TrimRight(id[:maxSlugLen-len(suffix)], "-")
			}
			id += suffix
		}
		taken, err := c.tenantIDTaken(ctx, id, now)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("onboarding: no free tenant id for %q", base)
}

func (c *Coordinator) tenantIDTaken(ctx context.Context, id string, now time.Time) (bool, error) {
	if _, err := c.deps.Central.Tenants().GetByID(ctx, id); err == nil {
		return true, nil
	} else if !repository.IsNotFound(err) {
		return false, err
	}
	p, err := c.deps.Central.Registrations().GetByTenantID(ctx, id)
	if repository.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if p.Expired(now) {
		if err := c.deps.Central.Registrations().Delete(ctx, p.ID); err != nil && !repository.IsNotFound(err) {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

const maxSlugLen = 40

// Slugify convierte un nombre en un tenant id: minúsculas ASCII, dígitos y guiones simples.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range norm.NFD.String(strings.ToLower(s)) {
		switch {
		case unicode.Is(unicode.Mn, r):
			// diacrítico separado por NFD
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if b.Len() > 0 && !dash {
				b.WriteByte('-')
				dash = true
			}
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}

func (c *Coordinator) decrypt(p *repository.PendingRegistration) (*registrationPayload, error) {
	raw, err := c.deps.Box.Decrypt(p.EncryptedToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt registration %s: %w", p.ID, err)
	}
	var out registrationPayload
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode registration %s: %w", p.ID, err)
	}
	return &out, nil
}

// StartCheckout crea el customer y la sesión de checkout del registro y los
// guarda en la PendingRegistration. Las llamadas al proveedor usan claves de
// idempotencia derivadas del UUID, así que reintentar no duplica nada.
func (c *Coordinator) StartCheckout(ctx context.Context, registrationID string) (*Checkout, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("onboarding"),
		logger.Op("StartCheckout"),
		logger.RegistrationID(registrationID),
	)

	p, err := c.deps.Central.Registrations().GetByID(ctx, registrationID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, errs.Token(errs.TokenInvalid, "registration")
		}
		return nil, err
	}
	if p.Expired(c.deps.Now()) {
		return nil, errs.Token(errs.TokenExpired, "registration")
	}
	payload, err := c.decrypt(p)
	if err != nil {
		return nil, err
	}

	price := payload.Plan
	if mapped, ok := c.deps.Plans[payload.Plan]; ok {
		price = mapped
	}

	cus, err := c.deps.Billing.CreateCustomer(ctx, billing.CreateCustomerParams{
		Email:          payload.AdminEmail,
		Name:           payload.CompanyName,
		RegistrationID: p.ID,
		IdempotencyKey: "cus-" + p.ID,
	})
	if err != nil {
		log.Error("create customer failed", logger.Err(err))
		return nil, err
	}
	sess, err := c.deps.Billing.CreateCheckoutSession(ctx, billing.CheckoutParams{
		CustomerID:     cus.ID,
		PriceID:        price,
		TrialDays:      c.deps.TrialDays[payload.Plan],
		RegistrationID: p.ID,
		SuccessURL:     c.deps.SuccessURL,
		CancelURL:      c.deps.CancelURL,
		IdempotencyKey: "cs-" + p.ID,
	})
	if err != nil {
		log.Error("create checkout session failed", logger.CustomerID(cus.ID), logger.Err(err))
		return nil, err
	}
	if err := c.deps.Central.Registrations().AttachCheckout(ctx, p.ID, sess.ID, cus.ID); err != nil {
		return nil, fmt.Errorf("attach checkout: %w", err)
	}

	log.Info("checkout session created", logger.SessionID(sess.ID), logger.CustomerID(cus.ID))
	return &Checkout{RegistrationID: p.ID, SessionID: sess.ID, CustomerID: cus.ID, URL: sess.URL}, nil
}

// Register es CreatePendingRegistration + StartCheckout. Si el proveedor falla
// se libera la reserva para que el usuario pueda reintentar de inmediato.
func (c *Coordinator) Register(ctx context.Context, in RegistrationInput) (*PendingResult, *Checkout, error) {
	pending, err := c.CreatePendingRegistration(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	checkout, err := c.StartCheckout(ctx, pending.RegistrationID)
	if err != nil {
		if derr := c.deps.Central.Registrations().Delete(ctx, pending.RegistrationID); derr != nil && !repository.IsNotFound(derr) {
			logger.From(ctx).Warn("release pending registration failed",
				logger.RegistrationID(pending.RegistrationID), logger.Err(derr))
		}
		return nil, nil, err
	}
	return pending, checkout, nil
}

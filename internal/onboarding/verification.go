package onboarding

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/dropDatabas3/hellocare/internal/cache"
	"github.com/dropDatabas3/hellocare/internal/domain/errs"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
	tokens "github.com/dropDatabas3/hellocare/internal/security/token"
	"github.com/dropDatabas3/hellocare/internal/validation"
)

const codeDigits = 6

type emailInput struct {
	Email string `json:"email" validate:"required,email,max=200"`
}

func codeKey(email string) string     { return "register:code:" + tokens.SHA256Base64URL(email) }
func verifiedKey(email string) string { return "register:verified:" + tokens.SHA256Base64URL(email) }

// StartEmailVerification genera un código de 6 dígitos y lo envía por email.
// Pedir un código nuevo invalida el anterior.
func (c *Coordinator) StartEmailVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validation.Struct(emailInput{Email: email}); err != nil {
		return err
	}
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("onboarding"),
		logger.Op("StartEmailVerification"),
		logger.Email(email),
	)

	code, err := tokens.NumericCode(codeDigits)
	if err != nil {
		return err
	}
	if err := c.deps.Cache.Set(ctx, codeKey(email), code, c.deps.CodeTTL); err != nil {
		return fmt.Errorf("store verification code: %w", err)
	}
	if err := c.deps.Mailer.SendVerificationCode(ctx, email, code, c.deps.CodeTTL); err != nil {
		log.Error("verification email failed", logger.Err(err))
		return err
	}
	log.Debug("verification code sent")
	return nil
}

// ConfirmEmailVerification valida el código y deja el email marcado como verificado.
func (c *Coordinator) ConfirmEmailVerification(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	if err := validation.Struct(emailInput{Email: email}); err != nil {
		return err
	}
	stored, err := c.deps.Cache.Get(ctx, codeKey(email))
	if cache.IsNotFound(err) {
		return errs.Token(errs.TokenExpired, "verification code")
	}
	if err != nil {
		return fmt.Errorf("load verification code: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return errs.Token(errs.TokenInvalid, "verification code")
	}
	if err := c.deps.Cache.Set(ctx, verifiedKey(email), "1", c.deps.VerifiedTTL); err != nil {
		return fmt.Errorf("store verified marker: %w", err)
	}
	_ = c.deps.Cache.Delete(ctx, codeKey(email))

	logger.From(ctx).Info("email verified",
		logger.Component("onboarding"), logger.Op("ConfirmEmailVerification"), logger.Email(email))
	return nil
}

// isEmailVerified acepta el marker de cache o un usuario central ya verificado.
func (c *Coordinator) isEmailVerified(ctx context.Context, email string) (bool, error) {
	ok, err := c.deps.Cache.Exists(ctx, verifiedKey(email))
	if err != nil {
		return false, fmt.Errorf("check verified marker: %w", err)
	}
	if ok {
		return true, nil
	}
	u, err := c.deps.Central.Users().GetByEmail(ctx, email)
	if repository.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.EmailVerifiedAt != nil, nil
}

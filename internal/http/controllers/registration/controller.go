// Package registration expone el alta de prácticas: verificación de email,
// registro + checkout, polling de estado y el webhook del proveedor de pagos.
package registration

import (
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/dropDatabas3/hellocare/internal/domain/errs"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	dto "github.com/dropDatabas3/hellocare/internal/http/dto/registration"
	httperrors "github.com/dropDatabas3/hellocare/internal/http/errors"
	"github.com/dropDatabas3/hellocare/internal/http/helpers"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
	"github.com/dropDatabas3/hellocare/internal/onboarding"
)

const (
	maxWebhookBody  = 64 << 10
	signatureHeader = "Stripe-Signature"
)

type Controller struct {
	coord    *onboarding.Coordinator
	sessions *helpers.Sessions
}

func NewController(coord *onboarding.Coordinator, sessions *helpers.Sessions) *Controller {
	return &Controller{coord: coord, sessions: sessions}
}

// EmailStart maneja POST /v1/register/email/start
func (c *Controller) EmailStart(w http.ResponseWriter, r *http.Request) {
	var req dto.EmailStartRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if err := c.coord.StartEmailVerification(r.Context(), req.Email); err != nil {
		c.fail(w, r, "EmailStart", err)
		return
	}
	helpers.WriteJSON(w, http.StatusAccepted, map[string]bool{"sent": true})
}

// EmailConfirm maneja POST /v1/register/email/confirm
func (c *Controller) EmailConfirm(w http.ResponseWriter, r *http.Request) {
	var req dto.EmailConfirmRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if err := c.coord.ConfirmEmailVerification(r.Context(), req.Email, req.Code); err != nil {
		c.fail(w, r, "EmailConfirm", err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

// Register maneja POST /v1/register
func (c *Controller) Register(w http.ResponseWriter, r *http.Request) {
	var in onboarding.RegistrationInput
	if err := helpers.ReadJSON(w, r, &in); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	pending, checkout, err := c.coord.Register(r.Context(), in)
	if err != nil {
		c.fail(w, r, "Register", err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, dto.RegisterResponse{
		RegistrationUUID: pending.RegistrationID,
		TenantID:         pending.TenantID,
		CheckoutURL:      checkout.URL,
		ExpiresAt:        pending.ExpiresAt,
	})
}

// Status maneja GET /v1/register/status?session_id=|registration_uuid=
// Al completarse emite la sesión del admin y devuelve el link de hand-off, salvo
// que el registro se haya completado hace más de RegistrationTTL.
func (c *Controller) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Registration.Status"))

	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("registration_uuid"))
	if id == "" {
		id = strings.TrimSpace(q.Get("session_id"))
	}
	if id == "" {
		writeStatusError(w, httperrors.ErrInvalidParameter.WithDetail("session_id or registration_uuid required"))
		return
	}

	res, err := c.coord.ReconcileWithRetry(ctx, id, onboarding.SourcePoll)
	if err != nil {
		appErr := httperrors.FromError(err)
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			log.Error("reconcile failed", logger.Err(err))
		}
		writeStatusError(w, appErr)
		return
	}
	if res.Status == onboarding.StatusPending {
		helpers.WriteJSON(w, http.StatusOK, dto.StatusResponse{Status: string(res.Status), SessionStatus: res.SessionStatus})
		return
	}

	out := dto.StatusResponse{Status: string(res.Status), TenantID: res.Tenant.ID}
	if res.IssueSession && res.Admin != nil {
		if err := c.sessions.Login(w, res.Admin.ID, res.Tenant.ID, repository.RoleAdmin); err != nil {
			writeStatusError(w, httperrors.ErrInternalServerError.WithCause(err))
			return
		}
		if out.RedirectURL, err = c.sessions.HandoffURL(res.Admin.ID, res.Tenant.ID); err != nil {
			writeStatusError(w, httperrors.ErrInternalServerError.WithCause(err))
			return
		}
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

// Webhook maneja POST /v1/billing/webhook. Un 2xx le indica al proveedor que
// no reintente; cualquier error de procesamiento devuelve 5xx.
func (c *Controller) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Registration.Webhook"))

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		httperrors.WriteError(w, httperrors.ErrBodyTooLarge.WithCause(err))
		return
	}
	res, err := c.coord.HandleWebhook(ctx, payload, r.Header.Get(signatureHeader))
	if err != nil {
		if stderrors.Is(err, onboarding.ErrBadWebhook) {
			log.Warn("webhook rejected", logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrBadSignature.WithCause(err))
			return
		}
		if _, ok := errs.IsToken(err); ok {
			// Registro inexistente o vencido: reintentar no lo arregla.
			log.Warn("webhook for unknown registration", logger.Err(err))
			helpers.WriteJSON(w, http.StatusOK, dto.WebhookResponse{Received: true, Ignored: true})
			return
		}
		log.Error("webhook failed", logger.Err(err))
		httperrors.WriteError(w, webhookError(err))
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.WebhookResponse{
		Received:  true,
		Duplicate: res.Duplicate,
		Ignored:   res.Ignored,
		EventType: res.EventType,
	})
}

func (c *Controller) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	appErr := httperrors.FromError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.From(r.Context()).Error("request failed", logger.Layer("controller"), logger.Op("Registration."+op), logger.Err(err))
	}
	httperrors.WriteError(w, appErr)
}

// webhookError fuerza 5xx: un 4xx haría que el proveedor descarte el evento.
func webhookError(err error) *httperrors.AppError {
	appErr := httperrors.FromError(err)
	if appErr.HTTPStatus < http.StatusInternalServerError {
		return httperrors.ErrServiceUnavailable.WithCause(err)
	}
	return appErr
}

func writeStatusError(w http.ResponseWriter, appErr *httperrors.AppError) {
	helpers.WriteJSON(w, appErr.HTTPStatus, dto.StatusResponse{
		Status:  "error",
		Code:    appErr.Code,
		Message: appErr.Message,
	})
}

// Package sso consume el token de hand-off que lleva al usuario desde el alta
// (o una invitación) al portal del tenant con su sesión.
package sso

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/hellocare/internal/cache"
	"github.com/dropDatabas3/hellocare/internal/domain/errs"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	httperrors "github.com/dropDatabas3/hellocare/internal/http/errors"
	"github.com/dropDatabas3/hellocare/internal/http/helpers"
	mw "github.com/dropDatabas3/hellocare/internal/http/middlewares"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
	"github.com/dropDatabas3/hellocare/internal/session"
	"github.com/dropDatabas3/hellocare/internal/usersync"
)

// Deps del controller. Attempts/Backoff acotan la espera de la fila TenantUser.
type Deps struct {
	Central  repository.CentralStore
	Syncer   *usersync.Syncer
	Sessions *helpers.Sessions
	Cache    cache.Client
	Attempts int
	Backoff  time.Duration
}

type Controller struct {
	deps Deps
}

func NewController(deps Deps) *Controller {
	if deps.Syncer == nil {
		deps.Syncer = usersync.New()
	}
	if deps.Attempts <= 0 {
		deps.Attempts = 3
	}
	if deps.Backoff <= 0 {
		deps.Backoff = 300 * time.Millisecond
	}
	return &Controller{deps: deps}
}

func jtiKey(jti string) string { return "sso:jti:" + jti }

// Handoff maneja GET /t/{tenant}/sso?token=
func (c *Controller) Handoff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := mw.GetTenant(ctx)
	tda := mw.GetTenantData(ctx)
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("SSO.Handoff"))

	claims, err := c.deps.Sessions.Issuer.Parse(strings.TrimSpace(r.URL.Query().Get("token")), session.KindHandoff)
	if err != nil || claims.TenantID != tenant.ID {
		httperrors.WriteError(w, errs.Token(errs.TokenInvalid, "handoff"))
		return
	}
	fresh, err := c.deps.Cache.SetNX(ctx, jtiKey(claims.ID), tenant.ID, time.Until(claims.ExpiresAt.Time)+time.Minute)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if !fresh {
		httperrors.WriteError(w, errs.Token(errs.TokenUsed, "handoff"))
		return
	}
	uid, _ := claims.UserID()
	log = log.With(logger.UserID(uid))

	tu, err := c.tenantUser(ctx, uid, tenant.ID)
	if err != nil {
		if repository.IsNotFound(err) {
			log.Warn("tenant user missing after retries")
			httperrors.WriteError(w, httperrors.ErrForbidden.WithCause(err))
			return
		}
		httperrors.WriteError(w, err)
		return
	}
	user, err := c.deps.Central.Users().GetByID(ctx, uid)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	sync, err := c.deps.Syncer.Sync(ctx, tda, user, tu.Role, "")
	if err != nil {
		log.Error("local user sync failed", logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}
	for _, warn := range sync.Warnings {
		log.Warn("sync warning", logger.Step(warn.Step), logger.Err(warn.Err))
	}
	if err := c.deps.Sessions.Login(w, uid, tenant.ID, tu.Role); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	log.Info("sso handoff completed", logger.Role(tu.Role))

	target := c.deps.Sessions.PortalURL(tenant.ID)
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		helpers.WriteJSON(w, http.StatusOK, map[string]any{"tenant_id": tenant.ID, "role": tu.Role, "redirect_url": target})
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// tenantUser reintenta la lectura: justo después de crear el tenant la fila
// puede no ser visible todavía para esta conexión.
func (c *Controller) tenantUser(ctx context.Context, userID int64, tenantID string) (*repository.TenantUser, error) {
	var (
		tu  *repository.TenantUser
		err error
	)
	for attempt := 1; attempt <= c.deps.Attempts; attempt++ {
		tu, err = c.deps.Central.TenantUsers().Get(ctx, userID, tenantID)
		if err == nil || !repository.IsNotFound(err) {
			return tu, err
		}
		if attempt == c.deps.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.deps.Backoff):
		}
	}
	return nil, err
}

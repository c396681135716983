// Package router arma el árbol de rutas HTTP sobre chi.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	adminctrl "github.com/dropDatabas3/hellocare/internal/http/controllers/admin"
	consentctrl "github.com/dropDatabas3/hellocare/internal/http/controllers/consent"
	healthctrl "github.com/dropDatabas3/hellocare/internal/http/controllers/health"
	invitationctrl "github.com/dropDatabas3/hellocare/internal/http/controllers/invitation"
	regctrl "github.com/dropDatabas3/hellocare/internal/http/controllers/registration"
	ssoctrl "github.com/dropDatabas3/hellocare/internal/http/controllers/sso"
	httperrors "github.com/dropDatabas3/hellocare/internal/http/errors"
	mw "github.com/dropDatabas3/hellocare/internal/http/middlewares"
	"github.com/dropDatabas3/hellocare/internal/metrics"
	"github.com/dropDatabas3/hellocare/internal/rate"
	"github.com/dropDatabas3/hellocare/internal/session"
)

// Controllers agrupa los controllers montados por el router.
type Controllers struct {
	Health       *healthctrl.Controller
	Registration *regctrl.Controller
	SSO          *ssoctrl.Controller
	Invitation   *invitationctrl.Controller
	Consent      *consentctrl.Controller
	Admin        *adminctrl.Controller
}

// Limiters por grupo de endpoints. Cualquiera puede ser nil (sin límite).
type Limiters struct {
	Register   rate.Limiter
	EmailCode  rate.Limiter
	Status     rate.Limiter
	Invitation rate.Limiter
}

type Deps struct {
	Controllers Controllers
	Central     repository.CentralStore
	DAL         repository.DataAccessLayer
	Issuer      *session.Issuer
	Cookie      session.CookieConfig
	Metrics     *metrics.Metrics
	Limiters    Limiters
}

// New construye el handler raíz.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithSecurityHeaders(),
		mw.WithLogging(),
		mw.WithMetrics(deps.Metrics, r),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	c := deps.Controllers
	if c.Health != nil {
		r.Get("/healthz", c.Health.Live)
		r.Get("/readyz", c.Health.Ready)
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		registerRegistrationRoutes(r, deps)
	})
	r.Route("/t/{tenant}", func(r chi.Router) {
		r.Use(mw.WithTenant(deps.Central, deps.DAL))
		registerTenantRoutes(r, deps)
		registerAdminRoutes(r, deps)
	})
	return r
}

// limited aplica un limiter por IP a un handler.
func limited(l rate.Limiter, h http.HandlerFunc) http.Handler {
	return mw.Chain(h, mw.WithRateLimit(l, mw.IPOnlyRateKey))
}

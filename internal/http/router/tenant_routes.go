package router

import (
	"github.com/go-chi/chi/v5"

	mw "github.com/dropDatabas3/hellocare/internal/http/middlewares"
)

// registerTenantRoutes monta las rutas de usuarios finales bajo /t/{tenant}.
func registerTenantRoutes(r chi.Router, deps Deps) {
	c := deps.Controllers

	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore())

		if c.SSO != nil {
			// GET /t/{tenant}/sso?token=
			r.Get("/sso", c.SSO.Handoff)
		}
		if c.Invitation != nil {
			// GET /t/{tenant}/invitation/{token}
			r.Method("GET", "/invitation/{token}", limited(deps.Limiters.Invitation, c.Invitation.Show))
			// POST /t/{tenant}/invitation/{token}/accept
			r.Method("POST", "/invitation/{token}/accept", limited(deps.Limiters.Invitation, c.Invitation.Accept))
		}
	})

	if c.Consent != nil {
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireSession(deps.Issuer, deps.Cookie))
			// GET /t/{tenant}/consents/pending?entity_type=&entity_id=
			r.Get("/consents/pending", c.Consent.Pending)
			// POST /t/{tenant}/consents/accept
			r.Post("/consents/accept", c.Consent.Accept)
		})
	}
}

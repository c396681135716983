package router

import (
	"github.com/go-chi/chi/v5"

	mw "github.com/dropDatabas3/hellocare/internal/http/middlewares"
)

// registerRegistrationRoutes monta el alta self-service y el webhook de billing.
func registerRegistrationRoutes(r chi.Router, deps Deps) {
	c := deps.Controllers.Registration
	if c == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(mw.WithNoStore())

		// POST /v1/register/email/start
		r.Method("POST", "/register/email/start", limited(deps.Limiters.EmailCode, c.EmailStart))
		// POST /v1/register/email/confirm
		r.Method("POST", "/register/email/confirm", limited(deps.Limiters.EmailCode, c.EmailConfirm))
		// POST /v1/register
		r.Method("POST", "/register", limited(deps.Limiters.Register, c.Register))
		// GET /v1/register/status?session_id=
		r.Method("GET", "/register/status", limited(deps.Limiters.Status, c.Status))
	})

	// POST /v1/billing/webhook (la firma autentica al proveedor)
	r.Post("/billing/webhook", c.Webhook)
}

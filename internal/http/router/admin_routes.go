package router

import (
	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	mw "github.com/dropDatabas3/hellocare/internal/http/middlewares"
)

// registerAdminRoutes monta la administración de la práctica. Staff puede
// invitar; el resto es solo admin.
func registerAdminRoutes(r chi.Router, deps Deps) {
	c := deps.Controllers.Admin
	if c == nil {
		return
	}
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireSession(deps.Issuer, deps.Cookie))

		r.With(mw.RequireRole(repository.RoleAdmin, repository.RoleStaff)).
			Post("/invitations", c.CreateInvitation)

		r.Route("/admin", func(r chi.Router) {
			r.Use(mw.RequireRole(repository.RoleAdmin))

			r.Get("/consents", c.ListConsents)
			r.Post("/consents", c.CreateConsent)
			r.Post("/consents/{id}/versions", c.PublishVersion)

			r.Get("/organization", c.GetOrganization)
			r.Put("/organization", c.PutOrganization)

			r.Get("/roles", c.ListRoles)
			r.Put("/users/{id}/roles/{role}", c.AssignRole)

			r.Get("/billing", c.GetBilling)
			r.Post("/billing/cancel", c.CancelSubscription)
		})
	})
}

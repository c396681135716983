// Package invitation expone la pantalla y la aceptación de invitaciones.
package invitation

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	dto "github.com/dropDatabas3/hellocare/internal/http/dto/tenant"
	httperrors "github.com/dropDatabas3/hellocare/internal/http/errors"
	"github.com/dropDatabas3/hellocare/internal/http/helpers"
	mw "github.com/dropDatabas3/hellocare/internal/http/middlewares"
	invsvc "github.com/dropDatabas3/hellocare/internal/invitation"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
)

type Controller struct {
	wf       *invsvc.Workflow
	sessions *helpers.Sessions
}

func NewController(wf *invsvc.Workflow, sessions *helpers.Sessions) *Controller {
	return &Controller{wf: wf, sessions: sessions}
}

// Show maneja GET /t/{tenant}/invitation/{token}
func (c *Controller) Show(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := c.wf.Show(ctx, mw.GetTenantData(ctx), chi.URLParam(r, "token"))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.InvitationResponse{
		Kind:       string(view.Invitation.Target.Kind),
		EntityID:   view.Invitation.Target.ID,
		Name:       view.Entity.Name,
		Email:      view.Invitation.Email,
		ExpiresAt:  view.Invitation.ExpiresAt,
		HasAccount: view.HasUser,
	})
}

// Accept maneja POST /t/{tenant}/invitation/{token}/accept. Ambas ramas
// terminan con la sesión del usuario en el tenant.
func (c *Controller) Accept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Invitation.Accept"))
	tenant := mw.GetTenant(ctx)

	var in invsvc.AcceptInput
	if err := helpers.ReadJSON(w, r, &in); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	res, err := c.wf.Accept(ctx, tenant, mw.GetTenantData(ctx), chi.URLParam(r, "token"), in)
	if err != nil {
		if appErr := httperrors.FromError(err); appErr.HTTPStatus >= http.StatusInternalServerError {
			log.Error("accept failed", logger.Err(err))
		}
		httperrors.WriteError(w, err)
		return
	}
	if err := c.sessions.Login(w, res.User.ID, tenant.ID, res.Role); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.AcceptInvitationResponse{
		UserID:          res.User.ID,
		Role:            res.Role,
		CreatedAccount:  res.CreatedUser,
		ConsentsCreated: res.Consents.AcceptedCount,
		RedirectURL:     c.sessions.PortalURL(tenant.ID),
	})
}

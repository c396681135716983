// Package consent expone el listado de consents pendientes y su aceptación.
package consent

import (
	"context"
	"net/http"
	"slices"

	consentsvc "github.com/dropDatabas3/hellocare/internal/consent"
	"github.com/dropDatabas3/hellocare/internal/domain/errs"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	dto "github.com/dropDatabas3/hellocare/internal/http/dto/tenant"
	httperrors "github.com/dropDatabas3/hellocare/internal/http/errors"
	"github.com/dropDatabas3/hellocare/internal/http/helpers"
	mw "github.com/dropDatabas3/hellocare/internal/http/middlewares"
	"github.com/dropDatabas3/hellocare/internal/session"
)

// Roles que pueden operar sobre cualquier entidad del tenant.
var managerRoles = []string{repository.RoleAdmin, repository.RoleStaff}

type Controller struct {
	ledger *consentsvc.Ledger
}

func NewController(ledger *consentsvc.Ledger) *Controller {
	return &Controller{ledger: ledger}
}

// Pending maneja GET /t/{tenant}/consents/pending?entity_type=&entity_id=
func (c *Controller) Pending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tda := mw.GetTenantData(ctx)

	kind, err := repository.ParseEntityKind(r.URL.Query().Get("entity_type"))
	if err != nil {
		httperrors.WriteError(w, errs.Validation("entity_type", "invalid_entitykind"))
		return
	}
	id, err := helpers.Int64Query(r, "entity_id")
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	ref := repository.EntityRef{Kind: kind, ID: id}
	if err := authorize(ctx, tda, mw.GetClaims(ctx), ref); err != nil {
		httperrors.WriteError(w, err)
		return
	}

	pending, err := c.ledger.ListPending(ctx, tda, ref)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	out := dto.PendingConsentsResponse{Pending: make([]dto.PendingConsent, 0, len(pending))}
	for _, p := range pending {
		out.Pending = append(out.Pending, dto.PendingConsent{
			ConsentID:  p.ConsentID,
			Key:        p.Key,
			Title:      p.Title,
			IsRequired: p.IsRequired,
			VersionID:  p.VersionID,
			Version:    p.Version,
			Body:       p.Body,
		})
		out.Blocking = out.Blocking || p.IsRequired
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

// Accept maneja POST /t/{tenant}/consents/accept
func (c *Controller) Accept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tda := mw.GetTenantData(ctx)

	var req dto.AcceptConsentsRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	kind, err := repository.ParseEntityKind(req.EntityType)
	if err != nil {
		httperrors.WriteError(w, errs.Validation("entity_type", "invalid_entitykind"))
		return
	}
	ref := repository.EntityRef{Kind: kind, ID: req.EntityID}
	if err := authorize(ctx, tda, mw.GetClaims(ctx), ref); err != nil {
		httperrors.WriteError(w, err)
		return
	}

	res, err := c.ledger.Accept(ctx, tda, ref, req.ConsentVersionIDs)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.AcceptConsentsResponse{
		AcceptedCount:   res.AcceptedCount,
		Accepted:        res.Accepted,
		AlreadyAccepted: res.AlreadyAccepted,
	})
}

// authorize: admin/staff operan sobre cualquier entidad; el resto solo sobre
// la entidad vinculada a su usuario.
func authorize(ctx context.Context, tda repository.TenantDataAccess, claims *session.Claims, ref repository.EntityRef) error {
	if claims == nil {
		return httperrors.ErrUnauthorized
	}
	ent, err := repository.LookupEntity(ctx, tda, ref)
	if err != nil {
		return err
	}
	if slices.Contains(managerRoles, claims.Role) {
		return nil
	}
	uid, err := claims.UserID()
	if err != nil || ent.UserID == nil || *ent.UserID != uid {
		return httperrors.ErrForbidden
	}
	return nil
}

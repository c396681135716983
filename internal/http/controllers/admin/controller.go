// Package admin expone la administración de una práctica: invitaciones,
// consents, datos de la organización, roles y suscripción.
package admin

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	consentsvc "github.com/dropDatabas3/hellocare/internal/consent"
	"github.com/dropDatabas3/hellocare/internal/domain/errs"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	dto "github.com/dropDatabas3/hellocare/internal/http/dto/tenant"
	httperrors "github.com/dropDatabas3/hellocare/internal/http/errors"
	"github.com/dropDatabas3/hellocare/internal/http/helpers"
	mw "github.com/dropDatabas3/hellocare/internal/http/middlewares"
	invsvc "github.com/dropDatabas3/hellocare/internal/invitation"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
	"github.com/dropDatabas3/hellocare/internal/onboarding"
	"github.com/dropDatabas3/hellocare/internal/validation"
)

type Deps struct {
	Invitations *invsvc.Workflow
	Ledger      *consentsvc.Ledger
	Billing     *onboarding.Coordinator
	// EchoLinks devuelve el link de invitación en la respuesta (solo dev).
	EchoLinks bool
}

type Controller struct {
	deps Deps
}

func NewController(deps Deps) *Controller {
	return &Controller{deps: deps}
}

// CreateInvitation maneja POST /t/{tenant}/invitations
func (c *Controller) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in invsvc.CreateInput
	if err := helpers.ReadJSON(w, r, &in); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	var invitedBy *int64
	if cl := mw.GetClaims(ctx); cl != nil {
		if uid, err := cl.UserID(); err == nil {
			invitedBy = &uid
		}
	}
	created, err := c.deps.Invitations.Create(ctx, mw.GetTenant(ctx), mw.GetTenantData(ctx), in, invitedBy)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	out := dto.CreateInvitationResponse{
		ID:        created.Invitation.ID,
		Email:     created.Invitation.Email,
		ExpiresAt: created.Invitation.ExpiresAt,
		EmailSent: created.MailErr == nil,
	}
	if c.deps.EchoLinks {
		out.Link = created.Link
	}
	helpers.WriteJSON(w, http.StatusCreated, out)
}

// =================================================================================
// CONSENTS
// =================================================================================

// ListConsents maneja GET /t/{tenant}/admin/consents (versiones ACTIVE).
func (c *Controller) ListConsents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tda := mw.GetTenantData(ctx)
	out := []dto.ConsentResponse{}
	for _, kind := range repository.EntityKinds {
		active, err := tda.Consents().ListActive(ctx, kind)
		if err != nil {
			httperrors.WriteError(w, err)
			return
		}
		for _, vc := range active {
			out = append(out, toConsent(vc.Consent, &vc.Version))
		}
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

// CreateConsent maneja POST /t/{tenant}/admin/consents
func (c *Controller) CreateConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in consentsvc.DefinitionInput
	if err := helpers.ReadJSON(w, r, &in); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	cs, v, err := c.deps.Ledger.CreateDefinition(ctx, mw.GetTenantData(ctx), in)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, toConsent(*cs, v))
}

// PublishVersion maneja POST /t/{tenant}/admin/consents/{id}/versions
func (c *Controller) PublishVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := helpers.Int64Param(r, "id")
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	var req dto.PublishVersionRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	v, err := c.deps.Ledger.PublishVersion(ctx, mw.GetTenantData(ctx), id, req.Body)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, toVersion(*v))
}

func toConsent(cs repository.Consent, v *repository.ConsentVersion) dto.ConsentResponse {
	out := dto.ConsentResponse{
		ID:         cs.ID,
		Key:        cs.Key,
		Title:      cs.Title,
		EntityType: string(cs.EntityType),
		IsRequired: cs.IsRequired,
	}
	if v != nil {
		vr := toVersion(*v)
		out.ActiveVersion = &vr
	}
	return out
}

func toVersion(v repository.ConsentVersion) dto.ConsentVersionResponse {
	return dto.ConsentVersionResponse{
		ID:          v.ID,
		ConsentID:   v.ConsentID,
		Version:     v.Version,
		Status:      string(v.Status),
		PublishedAt: v.PublishedAt,
	}
}

// =================================================================================
// ORGANIZACIÓN
// =================================================================================

// GetOrganization maneja GET /t/{tenant}/admin/organization
func (c *Controller) GetOrganization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := mw.GetTenant(ctx)
	s, err := mw.GetTenantData(ctx).Organization().Get(ctx)
	if repository.IsNotFound(err) {
		helpers.WriteJSON(w, http.StatusOK, dto.OrganizationResponse{TenantID: tenant.ID, DisplayName: tenant.CompanyName})
		return
	}
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, toOrganization(tenant.ID, s))
}

// PutOrganization maneja PUT /t/{tenant}/admin/organization
func (c *Controller) PutOrganization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tda := mw.GetTenantData(ctx)
	var req dto.OrganizationRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.ContactEmail = strings.ToLower(strings.TrimSpace(req.ContactEmail))
	if err := validation.Struct(req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	err := tda.Organization().Upsert(ctx, repository.OrganizationSettings{
		DisplayName:  req.DisplayName,
		ContactEmail: req.ContactEmail,
		Phone:        strings.TrimSpace(req.Phone),
		Address:      strings.TrimSpace(req.Address),
		Timezone:     req.Timezone,
	})
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	s, err := tda.Organization().Get(ctx)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, toOrganization(mw.GetTenant(ctx).ID, s))
}

func toOrganization(tenantID string, s *repository.OrganizationSettings) dto.OrganizationResponse {
	updated := s.UpdatedAt
	return dto.OrganizationResponse{
		TenantID:     tenantID,
		DisplayName:  s.DisplayName,
		ContactEmail: s.ContactEmail,
		Phone:        s.Phone,
		Address:      s.Address,
		Timezone:     s.Timezone,
		UpdatedAt:    &updated,
	}
}

// =================================================================================
// ROLES
// =================================================================================

// ListRoles maneja GET /t/{tenant}/admin/roles
func (c *Controller) ListRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roles, err := mw.GetTenantData(ctx).Roles().List(ctx)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	out := make([]dto.RoleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, dto.RoleResponse{Name: role.Name, Description: role.Description, Permissions: role.Permissions})
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

// AssignRole maneja PUT /t/{tenant}/admin/users/{id}/roles/{role} (id de usuario local).
func (c *Controller) AssignRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tda := mw.GetTenantData(ctx)
	id, err := helpers.Int64Param(r, "id")
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if _, err := tda.Users().GetByID(ctx, id); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	role, err := tda.Roles().GetByName(ctx, chi.URLParam(r, "role"))
	if repository.IsNotFound(err) {
		httperrors.WriteError(w, errs.Validation("role", "unknown"))
		return
	}
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if err := tda.Roles().AssignToUser(ctx, id, role.ID); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	roles, err := tda.Roles().UserRoles(ctx, id)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	logger.From(ctx).Info("role assigned", logger.Layer("controller"), logger.LocalUserID(id), logger.Role(role.Name))
	helpers.WriteJSON(w, http.StatusOK, dto.UserRolesResponse{UserID: id, Roles: roles})
}

// =================================================================================
// BILLING
// =================================================================================

// GetBilling maneja GET /t/{tenant}/admin/billing
func (c *Controller) GetBilling(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, toBilling(mw.GetTenant(r.Context()), false))
}

// CancelSubscription maneja POST /t/{tenant}/admin/billing/cancel
func (c *Controller) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := c.deps.Billing.CancelSubscription(ctx, mw.GetTenant(ctx).ID)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, toBilling(res.Tenant, res.Ignored))
}

func toBilling(t *repository.Tenant, ignored bool) dto.BillingResponse {
	return dto.BillingResponse{
		TenantID:             t.ID,
		BillingStatus:        string(t.BillingStatus),
		RequiresBillingSetup: t.RequiresBillingSetup,
		TrialEndsAt:          t.TrialEndsAt,
		Ignored:              ignored,
	}
}

// Package invitation emite y consume los links que permiten a un paciente o
// profesional crear (o reutilizar) su cuenta y quedar asociado a un tenant.
//
// Estado por invitación: pending --Accept--> accepted. La expiración no se
// persiste; se calcula al leer con Invitation.EffectiveStatus.
package invitation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/hellocare/internal/consent"
	"github.com/dropDatabas3/hellocare/internal/domain/errs"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/email"
	"github.com/dropDatabas3/hellocare/internal/metrics"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
	"github.com/dropDatabas3/hellocare/internal/security/password"
	tokens "github.com/dropDatabas3/hellocare/internal/security/token"
	"github.com/dropDatabas3/hellocare/internal/usersync"
)

const tokenBytes = 32

var ErrNoEmail = errors.New("invitation: entity has no email")

// Mailer envía el email con el link de la invitación.
type Mailer interface {
	SendInvitation(ctx context.Context, in email.InvitationMail) error
}

type Deps struct {
	Central repository.CentralStore
	Syncer  *usersync.Syncer
	Ledger  *consent.Ledger
	Mailer  Mailer
	Metrics *metrics.Metrics
	Policy  password.Policy
	// BaseURL arma el link: {BaseURL}/t/{tenant}/invitation/{token}.
	BaseURL string
	TTL     time.Duration
	Now     func() time.Time
}

type Workflow struct {
	deps Deps
}

func New(deps Deps) *Workflow {
	if deps.Syncer == nil {
		deps.Syncer = usersync.New()
	}
	if deps.Ledger == nil {
		deps.Ledger = consent.New(deps.Metrics)
	}
	if deps.Policy.MinLength == 0 {
		deps.Policy = password.DefaultPolicy
	}
	if deps.TTL <= 0 {
		deps.TTL = 7 * 24 * time.Hour
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Workflow{deps: deps}
}

// View es lo que muestra la pantalla de aceptación.
type View struct {
	Invitation *repository.Invitation
	Entity     *repository.EntityRecord
	// HasUser indica la rama: true no pide password nuevo.
	HasUser bool
}

// Show resuelve el token. Un token vencido o ya usado retorna un TokenError
// con el motivo para que la UI lo distinga.
func (w *Workflow) Show(ctx context.Context, tda repository.TenantDataAccess, rawToken string) (*View, error) {
	inv, err := w.lookup(ctx, tda, rawToken)
	if err != nil {
		return nil, err
	}
	ent, err := repository.LookupEntity(ctx, tda, inv.Target)
	if err != nil {
		return nil, fmt.Errorf("lookup invited entity: %w", err)
	}
	hasUser := ent.UserID != nil
	if !hasUser {
		_, err := w.deps.Central.Users().GetByEmail(ctx, inv.Email)
		switch {
		case err == nil:
			hasUser = true
		case !repository.IsNotFound(err):
			return nil, err
		}
	}
	return &View{Invitation: inv, Entity: ent, HasUser: hasUser}, nil
}

func (w *Workflow) lookup(ctx context.Context, tda repository.TenantDataAccess, rawToken string) (*repository.Invitation, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, errs.Token(errs.TokenInvalid, "invitation")
	}
	inv, err := tda.Invitations().GetByTokenHash(ctx, tokens.SHA256Base64URL(rawToken))
	if repository.IsNotFound(err) {
		return nil, errs.Token(errs.TokenInvalid, "invitation")
	}
	if err != nil {
		return nil, err
	}
	switch inv.EffectiveStatus(w.deps.Now()) {
	case repository.InvitationExpired:
		return nil, errs.Token(errs.TokenExpired, "invitation")
	case repository.InvitationAccepted:
		return nil, errs.Token(errs.TokenUsed, "invitation")
	}
	return inv, nil
}

// CreateInput es el alta de una invitación desde el panel del tenant.
type CreateInput struct {
	Kind     string `json:"kind" validate:"required,entitykind"`
	EntityID int64  `json:"entity_id" validate:"required,min=1"`
}

// Created devuelve el token crudo: es la única vez que existe fuera del email.
type Created struct {
	Invitation *repository.Invitation
	Token      string
	Link       string
	// MailErr no es fatal: la invitación queda creada y se puede reenviar.
	MailErr error
}

// Create emite una invitación pending para el email de la entidad y envía el link.
func (w *Workflow) Create(ctx context.Context, tenant *repository.Tenant, tda repository.TenantDataAccess, in CreateInput, invitedBy *int64) (*Created, error) {
	kind, err := repository.ParseEntityKind(in.Kind)
	if err != nil {
		return nil, errs.Validation("kind", "invalid_entitykind")
	}
	if in.EntityID <= 0 {
		return nil, errs.Validation("entity_id", "required")
	}
	ref := repository.EntityRef{Kind: kind, ID: in.EntityID}
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("invitation"),
		logger.Op("Create"),
		logger.TenantID(tenant.ID),
		logger.EntityKind(string(kind)),
		logger.EntityID(ref.ID),
	)

	ent, err := repository.LookupEntity(ctx, tda, ref)
	if repository.IsNotFound(err) {
		return nil, errs.Validation("entity_id", "not_found")
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(ent.Email) == "" {
		return nil, errs.Validation("entity_id", "missing_email")
	}

	raw, err := tokens.GenerateOpaqueToken(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate invitation token: %w", err)
	}
	now := w.deps.Now().UTC()
	inv, err := tda.Invitations().Create(ctx, repository.CreateInvitationInput{
		TokenHash: tokens.SHA256Base64URL(raw),
		Target:    ref,
		Email:     strings.ToLower(strings.TrimSpace(ent.Email)),
		ExpiresAt: now.Add(w.deps.TTL),
		InvitedBy: invitedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}
	out := &Created{Invitation: inv, Token: raw, Link: w.link(tenant.ID, raw)}
	log = log.With(logger.InvitationID(inv.ID))

	settings, err := tda.Organization().Get(ctx)
	if err != nil && !repository.IsNotFound(err) {
		log.Warn("organization settings unavailable", logger.Err(err))
	}
	if w.deps.Mailer != nil {
		out.MailErr = w.deps.Mailer.SendInvitation(ctx, email.InvitationMail{
			To:        inv.Email,
			Name:      ent.Name,
			Role:      roleLabel(kind),
			Link:      out.Link,
			ExpiresAt: inv.ExpiresAt,
			Org:       email.OrganizationFrom(tenant, settings, w.deps.BaseURL),
		})
		if out.MailErr != nil {
			log.Warn("invitation email failed", logger.Err(out.MailErr))
		}
	}
	log.Info("invitation created")
	return out, nil
}

func (w *Workflow) link(tenantID, raw string) string {
	return strings.TrimRight(w.deps.BaseURL, "/") + "/t/" + tenantID + "/invitation/" + raw
}

func roleLabel(k repository.EntityKind) string {
	if k == repository.EntityPractitioner {
		return "profesional"
	}
	return "paciente"
}

// Package consent lleva, por tenant, qué versión de cada documento de
// consentimiento aceptó cada entidad (paciente o profesional). Las aceptaciones
// son append-only; el Ledger no bloquea accesos, solo informa qué falta.
package consent

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dropDatabas3/hellocare/internal/domain/errs"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/metrics"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
	"github.com/dropDatabas3/hellocare/internal/validation"
)

// Pending es una versión ACTIVE que la entidad todavía no aceptó.
type Pending struct {
	ConsentID  int64
	Key        string
	Title      string
	IsRequired bool
	VersionID  int64
	Version    int
	Body       string
}

// AcceptResult distingue lo aceptado ahora de lo que ya estaba.
type AcceptResult struct {
	AcceptedCount   int
	Accepted        []int64
	AlreadyAccepted []int64
}

type Ledger struct {
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(m *metrics.Metrics) *Ledger {
	return &Ledger{metrics: m, now: time.Now}
}

// SetClock reemplaza el reloj (tests).
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// ListPending retorna los consents del tipo de la entidad cuya versión ACTIVE no
// fue aceptada. Un consent sin versión ACTIVE todavía no es exigible.
func (l *Ledger) ListPending(ctx context.Context, tda repository.TenantDataAccess, entity repository.EntityRef) ([]Pending, error) {
	if _, err := repository.LookupEntity(ctx, tda, entity); err != nil {
		return nil, err
	}
	active, err := tda.Consents().ListActive(ctx, entity.Kind)
	if err != nil {
		return nil, fmt.Errorf("list active consents: %w", err)
	}
	accepted, err := tda.Consents().AcceptedVersionIDs(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("list accepted versions: %w", err)
	}
	out := make([]Pending, 0, len(active))
	for _, vc := range active {
		if _, ok := accepted[vc.Version.ID]; ok {
			continue
		}
		out = append(out, Pending{
			ConsentID:  vc.Consent.ID,
			Key:        vc.Consent.Key,
			Title:      vc.Consent.Title,
			IsRequired: vc.Consent.IsRequired,
			VersionID:  vc.Version.ID,
			Version:    vc.Version.Version,
			Body:       vc.Version.Body,
		})
	}
	return out, nil
}

// HasBlockingConsents indica si queda algún consent requerido sin aceptar.
func (l *Ledger) HasBlockingConsents(ctx context.Context, tda repository.TenantDataAccess, entity repository.EntityRef) (bool, error) {
	pending, err := l.ListPending(ctx, tda, entity)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(pending, func(p Pending) bool { return p.IsRequired }), nil
}

// Accept registra la aceptación de cada versión. Solo se aceptan versiones
// ACTIVE de consents del mismo tipo que la entidad; ids repetidos cuentan una vez.
// Una doble submisión concurrente no duplica filas: el insert es "si no existe".
func (l *Ledger) Accept(ctx context.Context, tda repository.TenantDataAccess, entity repository.EntityRef, versionIDs []int64) (*AcceptResult, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("consent"),
		logger.Op("Accept"),
		logger.TenantID(tda.TenantID()),
		logger.EntityKind(string(entity.Kind)),
		logger.EntityID(entity.ID),
	)
	if len(versionIDs) == 0 {
		return nil, errs.Validation("consent_version_ids", "required")
	}
	if _, err := repository.LookupEntity(ctx, tda, entity); err != nil {
		return nil, err
	}

	ids := slices.Clone(versionIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	already, err := tda.Consents().AcceptedVersionIDs(ctx, entity)
	if err != nil {
		return nil, err
	}

	ve := &errs.ValidationError{}
	for _, id := range ids {
		if _, ok := already[id]; ok {
			// Aceptada antes: vale aunque la versión ya esté archivada.
			continue
		}
		vc, err := tda.Consents().GetVersion(ctx, id)
		if repository.IsNotFound(err) {
			ve.Add("consent_version_ids", fmt.Sprintf("unknown:%d", id))
			continue
		}
		if err != nil {
			return nil, err
		}
		if vc.Consent.EntityType != entity.Kind {
			ve.Add("consent_version_ids", fmt.Sprintf("wrong_entity_type:%d", id))
		} else if vc.Version.Status != repository.ConsentActive {
			ve.Add("consent_version_ids", fmt.Sprintf("not_active:%d", id))
		}
	}
	if !ve.Empty() {
		return nil, ve
	}

	at := l.now().UTC()
	res := &AcceptResult{Accepted: []int64{}, AlreadyAccepted: []int64{}}
	for _, id := range ids {
		if _, ok := already[id]; ok {
			res.AlreadyAccepted = append(res.AlreadyAccepted, id)
			continue
		}
		created, err := tda.Consents().RecordAcceptance(ctx, entity, id, at)
		if err != nil {
			return nil, fmt.Errorf("record acceptance %d: %w", id, err)
		}
		if created {
			res.Accepted = append(res.Accepted, id)
		} else {
			// Lo insertó otra request entre la lectura y el insert.
			res.AlreadyAccepted = append(res.AlreadyAccepted, id)
		}
	}
	res.AcceptedCount = len(res.Accepted)
	l.metrics.ConsentsAccepted(strings.ToLower(string(entity.Kind)), res.AcceptedCount)

	log.Info("consents accepted",
		logger.Count(res.AcceptedCount),
		logger.Int("already_accepted", len(res.AlreadyAccepted)),
	)
	return res, nil
}

// AcceptRequired acepta todas las versiones requeridas pendientes (invitaciones).
func (l *Ledger) AcceptRequired(ctx context.Context, tda repository.TenantDataAccess, entity repository.EntityRef) (*AcceptResult, error) {
	pending, err := l.ListPending(ctx, tda, entity)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, p := range pending {
		if p.IsRequired {
			ids = append(ids, p.VersionID)
		}
	}
	if len(ids) == 0 {
		return &AcceptResult{Accepted: []int64{}, AlreadyAccepted: []int64{}}, nil
	}
	return l.Accept(ctx, tda, entity, ids)
}

// DefinitionInput es el alta de un consent desde la administración.
type DefinitionInput struct {
	Key        string `json:"key" validate:"required,consentkey"`
	Title      string `json:"title" validate:"required,max=200"`
	EntityType string `json:"entity_type" validate:"required,entitykind"`
	IsRequired bool   `json:"is_required"`
	// Body opcional: si viene se publica como versión 1.
	Body string `json:"body" validate:"max=20000"`
}

// CreateDefinition crea un consent y, si trae cuerpo, publica su primera versión.
func (l *Ledger) CreateDefinition(ctx context.Context, tda repository.TenantDataAccess, in DefinitionInput) (*repository.Consent, *repository.ConsentVersion, error) {
	in.Key = strings.TrimSpace(in.Key)
	in.Title = strings.TrimSpace(in.Title)
	if err := validation.Struct(in); err != nil {
		return nil, nil, err
	}
	kind, err := repository.ParseEntityKind(in.EntityType)
	if err != nil {
		return nil, nil, errs.Validation("entity_type", "invalid_entitykind")
	}
	def := repository.ConsentDefinition{Key: in.Key, Title: in.Title, EntityType: kind, IsRequired: in.IsRequired, Body: in.Body}

	var (
		c *repository.Consent
		v *repository.ConsentVersion
	)
	err = tda.WithTx(ctx, func(tx repository.TenantDataAccess) error {
		var err error
		c, err = tx.Consents().CreateConsent(ctx, def)
		if repository.IsConflict(err) {
			return errs.Validation("key", "taken")
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(in.Body) != "" {
			v, err = tx.Consents().PublishVersion(ctx, c.ID, in.Body, l.now().UTC())
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return c, v, nil
}

// PublishVersion archiva la versión ACTIVE y publica body como nueva ACTIVE.
func (l *Ledger) PublishVersion(ctx context.Context, tda repository.TenantDataAccess, consentID int64, body string) (*repository.ConsentVersion, error) {
	if strings.TrimSpace(body) == "" {
		return nil, errs.Validation("body", "required")
	}
	var v *repository.ConsentVersion
	err := tda.WithTx(ctx, func(tx repository.TenantDataAccess) error {
		if _, err := tx.Consents().GetConsent(ctx, consentID); err != nil {
			return err
		}
		var err error
		v, err = tx.Consents().PublishVersion(ctx, consentID, body, l.now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.From(ctx).Info("consent version published",
		logger.Component("consent"), logger.TenantID(tda.TenantID()),
		logger.Int("consent_id", int(consentID)), logger.Int("version", v.Version))
	return v, nil
}

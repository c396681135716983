// Package usersync replica una identidad central dentro de la base de un tenant
// para que el SSO encuentre al usuario local. Sync es idempotente: se puede
// llamar en cada login, reconciliación o aceptación de invitación.
package usersync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/hellocare/internal/domain/errs"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
)

var ErrMissingIdentity = errors.New("usersync: central user is required")

// Result describe lo que hizo Sync.
type Result struct {
	LocalUser *repository.LocalUser
	Created   bool
	// ReusedCentralID indica que el usuario local quedó con el mismo id que el central.
	ReusedCentralID bool
	Warnings        []errs.SyncWarning
}

// Syncer no tiene estado: el tenant llega como handle explícito en cada llamada.
type Syncer struct{}

func New() *Syncer { return &Syncer{} }

// Sync crea o actualiza el usuario local de central en el tenant y le asigna role.
// Si el usuario ya existe solo se actualizan hash, verificación y vínculo central;
// el nombre local nunca se pisa. localName reemplaza al nombre central solo al insertar.
func (s *Syncer) Sync(ctx context.Context, tda repository.TenantDataAccess, central *repository.User, role, localName string) (*Result, error) {
	if central == nil || central.ID == 0 {
		return nil, ErrMissingIdentity
	}
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("usersync"),
		logger.Op("Sync"),
		logger.TenantID(tda.TenantID()),
		logger.UserID(central.ID),
	)

	res := &Result{}
	local, err := tda.Users().GetByEmail(ctx, central.Email)
	switch {
	case err == nil:
		if err := s.update(ctx, tda, local, central); err != nil {
			return nil, err
		}
	case repository.IsNotFound(err):
		local, err = s.insert(ctx, tda, central, localName, res)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("usersync: lookup local user: %w", err)
	}
	res.LocalUser = local

	if role != "" {
		if w := s.assignRole(ctx, tda, local.ID, role); w != nil {
			log.Warn("role assignment skipped", logger.Role(role), logger.Err(w.Err))
			res.Warnings = append(res.Warnings, *w)
		}
	}

	log.Debug("user synced",
		logger.LocalUserID(local.ID),
		logger.Bool("created", res.Created),
		logger.Bool("reused_central_id", res.ReusedCentralID),
	)
	return res, nil
}

func (s *Syncer) insert(ctx context.Context, tda repository.TenantDataAccess, central *repository.User, localName string, res *Result) (*repository.LocalUser, error) {
	name := strings.TrimSpace(localName)
	if name == "" {
		name = central.Name
	}
	cid := central.ID
	in := repository.InsertLocalUserInput{
		ID:              central.ID,
		CentralUserID:   &cid,
		Name:            name,
		Email:           central.Email,
		PasswordHash:    central.PasswordHash,
		EmailVerifiedAt: central.EmailVerifiedAt,
	}

	// Preferimos el id central; si está ocupado por otro usuario local, id automático.
	if taken, err := tda.Users().GetByID(ctx, central.ID); err == nil && taken != nil {
		in.ID = 0
	} else if err != nil && !repository.IsNotFound(err) {
		return nil, fmt.Errorf("usersync: lookup local id: %w", err)
	}

	local, err := tda.Users().Insert(ctx, in)
	if err != nil && repository.IsConflict(err) {
		// Otro sync concurrente insertó el mismo email, o el id se ocupó entre medio.
		if existing, gerr := tda.Users().GetByEmail(ctx, central.Email); gerr == nil {
			return existing, s.update(ctx, tda, existing, central)
		}
		in.ID = 0
		local, err = tda.Users().Insert(ctx, in)
	}
	if err != nil {
		return nil, fmt.Errorf("usersync: insert local user: %w", err)
	}
	res.Created = true
	res.ReusedCentralID = local.ID == central.ID
	return local, nil
}

func (s *Syncer) update(ctx context.Context, tda repository.TenantDataAccess, local *repository.LocalUser, central *repository.User) error {
	cid := central.ID
	if err := tda.Users().UpdateCredentials(ctx, local.ID, central.PasswordHash, central.EmailVerifiedAt, &cid); err != nil {
		return fmt.Errorf("usersync: update local user: %w", err)
	}
	local.PasswordHash = central.PasswordHash
	if central.EmailVerifiedAt != nil {
		local.EmailVerifiedAt = central.EmailVerifiedAt
	}
	local.CentralUserID = &cid
	return nil
}

func (s *Syncer) assignRole(ctx context.Context, tda repository.TenantDataAccess, localUserID int64, role string) *errs.SyncWarning {
	r, err := tda.Roles().GetByName(ctx, role)
	if err != nil {
		if repository.IsNotFound(err) {
			err = fmt.Errorf("role %q not found", role)
		}
		return &errs.SyncWarning{Step: "role_assignment", TenantID: tda.TenantID(), Err: err}
	}
	if err := tda.Roles().AssignToUser(ctx, localUserID, r.ID); err != nil {
		return &errs.SyncWarning{Step: "role_assignment", TenantID: tda.TenantID(), Err: err}
	}
	return nil
}

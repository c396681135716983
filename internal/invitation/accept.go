package invitation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/hellocare/internal/consent"
	"github.com/dropDatabas3/hellocare/internal/domain/errs"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
	"github.com/dropDatabas3/hellocare/internal/security/password"
)

// AcceptInput es el formulario de aceptación. En la rama de usuario existente
// solo importa Terms; Password se usa si la cuenta central existe pero no está
// vinculada a la entidad (confirma que es la misma persona).
type AcceptInput struct {
	Name                 string `json:"name"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	Terms                bool   `json:"terms"`
}

// AcceptResult es el estado final común a ambas ramas.
type AcceptResult struct {
	User        *repository.User
	Entity      repository.EntityRef
	Role        string
	CreatedUser bool
	// TenantUserCreated es false si el usuario ya tenía acceso al tenant.
	TenantUserCreated bool
	LocalUser         *repository.LocalUser
	Consents          *consent.AcceptResult
	Warnings          []errs.SyncWarning
}

// Accept consume la invitación. Un token vencido o ya aceptado retorna un
// TokenError sin escribir nada. La rama (usuario nuevo o existente) solo decide
// si se crea el User central; el resto de la secuencia es la misma.
func (w *Workflow) Accept(ctx context.Context, tenant *repository.Tenant, tda repository.TenantDataAccess, rawToken string, in AcceptInput) (*AcceptResult, error) {
	inv, err := w.lookup(ctx, tda, rawToken)
	if err != nil {
		return nil, err
	}
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("invitation"),
		logger.Op("Accept"),
		logger.TenantID(tenant.ID),
		logger.InvitationID(inv.ID),
		logger.EntityKind(string(inv.Target.Kind)),
		logger.EntityID(inv.Target.ID),
	)
	ent, err := repository.LookupEntity(ctx, tda, inv.Target)
	if err != nil {
		return nil, fmt.Errorf("lookup invited entity: %w", err)
	}

	existing, err := w.existingUser(ctx, ent, inv.Email)
	if err != nil {
		return nil, err
	}
	if err := w.validate(existing, ent, in); err != nil {
		return nil, err
	}

	role := inv.Target.Kind.DefaultRole()
	res := &AcceptResult{Entity: inv.Target, Role: role}
	now := w.deps.Now().UTC()

	var hash string
	if existing == nil {
		if hash, err = password.Hash(password.Default, in.Password); err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	// Central: User (solo rama nueva) + TenantUser. La transacción del tenant
	// corre adentro, así un fallo en el tenant deshace también la cuenta central
	// y la invitación queda pendiente para reintentar.
	err = w.deps.Central.WithTx(ctx, func(tx repository.CentralStore) error {
		u := existing
		if u == nil {
			name := strings.TrimSpace(in.Name)
			if name == "" {
				name = ent.Name
			}
			u, err = tx.Users().Create(ctx, repository.CreateUserInput{
				Name:            name,
				Email:           inv.Email,
				PasswordHash:    hash,
				EmailVerifiedAt: &now,
			})
			if repository.IsConflict(err) {
				// Otra aceptación concurrente creó la cuenta con el mismo email.
				u, err = tx.Users().GetByEmail(ctx, inv.Email)
			} else if err == nil {
				res.CreatedUser = true
			}
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
		} else if u.EmailVerifiedAt == nil {
			if err := tx.Users().MarkEmailVerified(ctx, u.ID, now); err != nil {
				return err
			}
			verified := *u
			verified.EmailVerifiedAt = &now
			u = &verified
		}
		created, err := tx.TenantUsers().Ensure(ctx, u.ID, tenant.ID, role)
		if err != nil {
			return fmt.Errorf("ensure tenant user: %w", err)
		}
		res.TenantUserCreated = created
		res.User = u
		return w.acceptInTenant(ctx, tda, inv, ent, res, now)
	})
	if err != nil {
		log.Warn("invitation accept failed", logger.Err(err))
		return nil, err
	}
	log = log.With(logger.UserID(res.User.ID))

	w.deps.Metrics.InvitationAccepted(strings.ToLower(string(inv.Target.Kind)))
	log.Info("invitation accepted",
		logger.Bool("created_user", res.CreatedUser),
		logger.Bool("tenant_user_created", res.TenantUserCreated),
		logger.Count(res.Consents.AcceptedCount),
	)
	return res, nil
}

// acceptInTenant consume la invitación primero para que un segundo accept
// concurrente haga rollback de todo lo demás.
func (w *Workflow) acceptInTenant(ctx context.Context, tda repository.TenantDataAccess, inv *repository.Invitation, ent *repository.EntityRecord, res *AcceptResult, now time.Time) error {
	return tda.WithTx(ctx, func(tx repository.TenantDataAccess) error {
		if err := tx.Invitations().MarkAccepted(ctx, inv.ID, now); err != nil {
			if repository.IsConflict(err) {
				return errs.Token(errs.TokenUsed, "invitation")
			}
			return fmt.Errorf("mark invitation accepted: %w", err)
		}
		if err := repository.LinkEntityUser(ctx, tx, inv.Target, res.User.ID); err != nil {
			if repository.IsConflict(err) {
				return errs.Token(errs.TokenInvalid, "invitation")
			}
			return fmt.Errorf("link entity: %w", err)
		}
		if inv.Target.Kind == repository.EntityPractitioner {
			if err := tx.Practitioners().SetMembershipStatus(ctx, inv.Target.ID, repository.MembershipAccepted, now); err != nil {
				return fmt.Errorf("accept membership: %w", err)
			}
		}
		sync, err := w.deps.Syncer.Sync(ctx, tx, res.User, res.Role, ent.Name)
		if err != nil {
			return fmt.Errorf("sync local user: %w", err)
		}
		res.LocalUser = sync.LocalUser
		res.Warnings = append(res.Warnings, sync.Warnings...)

		if res.Consents, err = w.deps.Ledger.AcceptRequired(ctx, tx, inv.Target); err != nil {
			return fmt.Errorf("record consents: %w", err)
		}
		return nil
	})
}

// existingUser resuelve la cuenta central de la entidad: primero por el vínculo,
// luego por el email invitado.
func (w *Workflow) existingUser(ctx context.Context, ent *repository.EntityRecord, email string) (*repository.User, error) {
	users := w.deps.Central.Users()
	if ent.UserID != nil {
		u, err := users.GetByID(ctx, *ent.UserID)
		if err == nil {
			return u, nil
		}
		if !repository.IsNotFound(err) {
			return nil, err
		}
	}
	u, err := users.GetByEmail(ctx, email)
	if repository.IsNotFound(err) {
		return nil, nil
	}
	return u, err
}

func (w *Workflow) validate(existing *repository.User, ent *repository.EntityRecord, in AcceptInput) error {
	ve := &errs.ValidationError{}
	if !in.Terms {
		ve.Add("terms", "required")
	}
	switch {
	case existing != nil && ent.UserID != nil && *ent.UserID == existing.ID:
		// Vinculado: alcanza con la sesión que emite el caller.
	case existing != nil:
		// Cuenta con el mismo email sin vínculo: se confirma con su password.
		if in.Password == "" {
			ve.Add("password", "required")
		} else if !password.Verify(in.Password, existing.PasswordHash) {
			ve.Add("password", "invalid_credentials")
		}
	default:
		if ok, reasons := w.deps.Policy.Validate(in.Password); !ok {
			ve.Add("password", reasons...)
		}
		if in.Password != in.PasswordConfirmation {
			ve.Add("password_confirmation", "mismatch")
		}
	}
	if !ve.Empty() {
		return ve
	}
	return nil
}

package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

const personCols = `id, first_name, last_name, email, user_id, created_at`

// linkUser vincula el usuario si la fila no tiene otro. Mismo usuario es no-op.
func linkUser(ctx context.Context, q querier, table string, id, userID int64) error {
	tag, err := q.Exec(ctx, `UPDATE `+table+` SET user_id = $2 WHERE id = $1 AND (user_id IS NULL OR user_id = $2)`, id, userID)
	if err != nil {
		return wrapErr("link "+table+" user", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return wrapErr("link "+table+" user", err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

type patientRepo struct{ q querier }

func scanPatient(row pgx.Row) (*repository.Patient, error) {
	var p repository.Patient
	if err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.UserID, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepo) Create(ctx context.Context, in repository.CreatePersonInput) (*repository.Patient, error) {
	p, err := scanPatient(r.q.QueryRow(ctx, `
		INSERT INTO patients (first_name, last_name, email) VALUES ($1, $2, $3)
		RETURNING `+personCols, in.FirstName, in.LastName, in.Email))
	if err != nil {
		return nil, wrapErr("create patient", err)
	}
	return p, nil
}

func (r *patientRepo) GetByID(ctx context.Context, id int64) (*repository.Patient, error) {
	p, err := scanPatient(r.q.QueryRow(ctx, `SELECT `+personCols+` FROM patients WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr("get patient", err)
	}
	return p, nil
}

func (r *patientRepo) LinkUser(ctx context.Context, id, userID int64) error {
	return linkUser(ctx, r.q, "patients", id, userID)
}

type practitionerRepo struct{ q querier }

func scanPractitioner(row pgx.Row) (*repository.Practitioner, error) {
	var p repository.Practitioner
	if err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.UserID, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserta el profesional y su membresía en estado INVITED.
func (r *practitionerRepo) Create(ctx context.Context, in repository.CreatePersonInput) (*repository.Practitioner, error) {
	var out *repository.Practitioner
	err := withTx(ctx, r.q, func(tx pgx.Tx) error {
		p, err := scanPractitioner(tx.QueryRow(ctx, `
			INSERT INTO practitioners (first_name, last_name, email) VALUES ($1, $2, $3)
			RETURNING `+personCols, in.FirstName, in.LastName, in.Email))
		if err != nil {
			return wrapErr("create practitioner", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO tenant_practitioners (practitioner_id, status) VALUES ($1, 'INVITED')`, p.ID); err != nil {
			return wrapErr("create practitioner membership", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *practitionerRepo) GetByID(ctx context.Context, id int64) (*repository.Practitioner, error) {
	p, err := scanPractitioner(r.q.QueryRow(ctx, `SELECT `+personCols+` FROM practitioners WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr("get practitioner", err)
	}
	return p, nil
}

func (r *practitionerRepo) LinkUser(ctx context.Context, id, userID int64) error {
	return linkUser(ctx, r.q, "practitioners", id, userID)
}

func (r *practitionerRepo) GetMembership(ctx context.Context, id int64) (*repository.PractitionerMembership, error) {
	var m repository.PractitionerMembership
	var status string
	err := r.q.QueryRow(ctx, `SELECT practitioner_id, status, accepted_at FROM tenant_practitioners WHERE practitioner_id = $1`, id).
		Scan(&m.PractitionerID, &status, &m.AcceptedAt)
	if err != nil {
		return nil, wrapErr("get membership", err)
	}
	m.Status = repository.MembershipStatus(status)
	return &m, nil
}

func (r *practitionerRepo) SetMembershipStatus(ctx context.Context, id int64, status repository.MembershipStatus, at time.Time) error {
	var acceptedAt *time.Time
	if status == repository.MembershipAccepted {
		acceptedAt = &at
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO tenant_practitioners (practitioner_id, status, accepted_at) VALUES ($1, $2, $3)
		ON CONFLICT (practitioner_id) DO UPDATE SET status = EXCLUDED.status, accepted_at = EXCLUDED.accepted_at`,
		id, string(status), acceptedAt)
	return wrapErr("set membership status", err)
}

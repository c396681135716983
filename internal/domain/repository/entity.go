package repository

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EntityKind es el conjunto cerrado de entidades que pueden aceptar consents
// y recibir invitaciones.
type EntityKind string

const (
	EntityPatient      EntityKind = "PATIENT"
	EntityPractitioner EntityKind = "PRACTITIONER"
)

// EntityKinds lista todas las variantes, en orden estable.
var EntityKinds = []EntityKind{EntityPatient, EntityPractitioner}

// ParseEntityKind acepta el nombre en cualquier capitalización.
func ParseEntityKind(s string) (EntityKind, error) {
	switch EntityKind(strings.ToUpper(strings.TrimSpace(s))) {
	case EntityPatient:
		return EntityPatient, nil
	case EntityPractitioner:
		return EntityPractitioner, nil
	}
	return "", fmt.Errorf("%w: unknown entity kind %q", ErrInvalidInput, s)
}

func (k EntityKind) Valid() bool {
	_, err := ParseEntityKind(string(k))
	return err == nil
}

// DefaultRole es el rol que recibe en el tenant el usuario vinculado a la entidad.
func (k EntityKind) DefaultRole() string {
	switch k {
	case EntityPatient:
		return RolePatient
	case EntityPractitioner:
		return RolePractitioner
	}
	panic("repository: unhandled entity kind " + string(k))
}

// EntityRef referencia a un paciente o profesional dentro de un tenant.
// Es la variante tipada del "consentable" polimórfico.
type EntityRef struct {
	Kind EntityKind
	ID   int64
}

func (r EntityRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Patient es un paciente de la práctica.
type Patient struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	UserID    *int64 // usuario central vinculado
	CreatedAt time.Time
}

// Practitioner es un profesional de la práctica.
type Practitioner struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	UserID    *int64
	CreatedAt time.Time
}

// CreatePersonInput sirve para pacientes y profesionales.
type CreatePersonInput struct {
	FirstName string
	LastName  string
	Email     string
}

// MembershipStatus es el estado de la relación tenant↔profesional.
type MembershipStatus string

const (
	MembershipInvited  MembershipStatus = "INVITED"
	MembershipAccepted MembershipStatus = "ACCEPTED"
)

// PractitionerMembership es la relación del profesional con la práctica.
type PractitionerMembership struct {
	PractitionerID int64
	Status         MembershipStatus
	AcceptedAt     *time.Time
}

type PatientRepository interface {
	Create(ctx context.Context, in CreatePersonInput) (*Patient, error)
	GetByID(ctx context.Context, id int64) (*Patient, error)
	// LinkUser vincula el usuario central. ErrConflict si ya tiene otro usuario.
	LinkUser(ctx context.Context, id, userID int64) error
}

type PractitionerRepository interface {
	Create(ctx context.Context, in CreatePersonInput) (*Practitioner, error)
	GetByID(ctx context.Context, id int64) (*Practitioner, error)
	LinkUser(ctx context.Context, id, userID int64) error
	GetMembership(ctx context.Context, id int64) (*PractitionerMembership, error)
	SetMembershipStatus(ctx context.Context, id int64, status MembershipStatus, at time.Time) error
}

// EntityRecord es la vista común de una entidad, independiente de su variante.
type EntityRecord struct {
	Ref    EntityRef
	Name   string
	Email  string
	UserID *int64
}

// LookupEntity resuelve la entidad referenciada con la función de lookup de su variante.
func LookupEntity(ctx context.Context, tda TenantDataAccess, ref EntityRef) (*EntityRecord, error) {
	switch ref.Kind {
	case EntityPatient:
		p, err := tda.Patients().GetByID(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return &EntityRecord{Ref: ref, Name: fullName(p.FirstName, p.LastName), Email: p.Email, UserID: p.UserID}, nil
	case EntityPractitioner:
		p, err := tda.Practitioners().GetByID(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		return &EntityRecord{Ref: ref, Name: fullName(p.FirstName, p.LastName), Email: p.Email, UserID: p.UserID}, nil
	}
	return nil, fmt.Errorf("%w: unknown entity kind %q", ErrInvalidInput, ref.Kind)
}

// LinkEntityUser vincula el usuario central a la entidad referenciada.
func LinkEntityUser(ctx context.Context, tda TenantDataAccess, ref EntityRef, userID int64) error {
	switch ref.Kind {
	case EntityPatient:
		return tda.Patients().LinkUser(ctx, ref.ID, userID)
	case EntityPractitioner:
		return tda.Practitioners().LinkUser(ctx, ref.ID, userID)
	}
	return fmt.Errorf("%w: unknown entity kind %q", ErrInvalidInput, ref.Kind)
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

package repository

import (
	"context"
	"time"
)

// Consent es un documento de consentimiento para un tipo de entidad.
type Consent struct {
	ID         int64
	Key        string // único dentro de EntityType
	Title      string
	EntityType EntityKind
	IsRequired bool
	CreatedAt  time.Time
}

// ConsentVersionStatus es el estado de publicación de una versión.
type ConsentVersionStatus string

const (
	ConsentDraft    ConsentVersionStatus = "DRAFT"
	ConsentActive   ConsentVersionStatus = "ACTIVE"
	ConsentArchived ConsentVersionStatus = "ARCHIVED"
)

// ConsentVersion es una revisión publicada de un Consent.
// Como máximo una versión ACTIVE por consent.
type ConsentVersion struct {
	ID          int64
	ConsentID   int64
	Version     int
	Status      ConsentVersionStatus
	Body        string
	PublishedAt *time.Time
	CreatedAt   time.Time
}

// VersionedConsent une un Consent con una de sus versiones.
type VersionedConsent struct {
	Consent Consent
	Version ConsentVersion
}

// EntityConsent registra que una entidad aceptó una versión. Nunca se modifica.
type EntityConsent struct {
	ID               int64
	Entity           EntityRef
	ConsentVersionID int64
	ConsentedAt      time.Time
}

// ConsentDefinition es la forma de seed/administración de un consent.
type ConsentDefinition struct {
	Key        string     `yaml:"key"`
	Title      string     `yaml:"title"`
	EntityType EntityKind `yaml:"entity_type"`
	IsRequired bool       `yaml:"required"`
	Body       string     `yaml:"body"`
}

// ConsentRepository opera sobre consents, versiones y aceptaciones de un tenant.
type ConsentRepository interface {
	// CreateConsent crea la definición sin versiones. ErrConflict si (entity_type, key) existe.
	CreateConsent(ctx context.Context, def ConsentDefinition) (*Consent, error)

	// EnsureConsent crea la definición y una versión ACTIVE inicial solo si no existen.
	EnsureConsent(ctx context.Context, def ConsentDefinition, at time.Time) (*Consent, bool, error)

	GetConsent(ctx context.Context, id int64) (*Consent, error)

	// PublishVersion archiva la versión ACTIVE previa y publica una nueva como ACTIVE.
	PublishVersion(ctx context.Context, consentID int64, body string, at time.Time) (*ConsentVersion, error)

	// ListActive lista los consents del tipo que tienen versión ACTIVE.
	ListActive(ctx context.Context, kind EntityKind) ([]VersionedConsent, error)

	// GetVersion retorna la versión junto a su consent.
	GetVersion(ctx context.Context, versionID int64) (*VersionedConsent, error)

	// AcceptedVersionIDs retorna los ids de versión aceptados por la entidad.
	AcceptedVersionIDs(ctx context.Context, entity EntityRef) (map[int64]time.Time, error)

	// RecordAcceptance inserta la aceptación si no existe. created=false si ya estaba.
	RecordAcceptance(ctx context.Context, entity EntityRef, versionID int64, at time.Time) (created bool, err error)

	// CountAcceptances cuenta filas de aceptación de la entidad (auditoría/tests).
	CountAcceptances(ctx context.Context, entity EntityRef) (int, error)
}

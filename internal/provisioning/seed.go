package provisioning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

// RoleSeed es un rol del sistema con sus permisos.
type RoleSeed struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// Seed es el contenido inicial de cada tenant. Todo se aplica con semántica "ensure".
type Seed struct {
	Roles          []RoleSeed                     `yaml:"roles"`
	Consents       []repository.ConsentDefinition `yaml:"consents"`
	WalletCurrency string                         `yaml:"wallet_currency"`
}

// Permisos base.
const (
	PermOrganizationManage = "organization.manage"
	PermRolesManage        = "roles.manage"
	PermBillingManage      = "billing.manage"
	PermConsentsManage     = "consents.manage"
	PermInvitationsCreate  = "invitations.create"
	PermPatientsRead       = "patients.read"
	PermPatientsWrite      = "patients.write"
	PermPractitionersRead  = "practitioners.read"
	PermRecordsRead        = "records.read"
	PermRecordsWrite       = "records.write"
	PermPortalAccess       = "portal.access"
)

// DefaultSeed retorna el seed embebido.
func DefaultSeed() Seed {
	return Seed{
		Roles: []RoleSeed{
			{
				Name:        repository.RoleAdmin,
				Description: "Administrador de la práctica",
				Permissions: []string{
					PermOrganizationManage, PermRolesManage, PermBillingManage, PermConsentsManage,
					PermInvitationsCreate, PermPatientsRead, PermPatientsWrite, PermPractitionersRead,
					PermRecordsRead, PermRecordsWrite, PermPortalAccess,
				},
			},
			{
				Name:        repository.RoleStaff,
				Description: "Recepción y administración",
				Permissions: []string{PermInvitationsCreate, PermPatientsRead, PermPatientsWrite, PermPractitionersRead, PermPortalAccess},
			},
			{
				Name:        repository.RolePractitioner,
				Description: "Profesional de la salud",
				Permissions: []string{PermPatientsRead, PermRecordsRead, PermRecordsWrite, PermPortalAccess},
			},
			{
				Name:        repository.RolePatient,
				Description: "Paciente",
				Permissions: []string{PermPortalAccess},
			},
		},
		Consents: []repository.ConsentDefinition{
			{
				Key:        "terms_of_service",
				Title:      "Términos y condiciones",
				EntityType: repository.EntityPatient,
				IsRequired: true,
				Body:       "Acepto los términos y condiciones del portal de pacientes.",
			},
			{
				Key:        "privacy_policy",
				Title:      "Política de privacidad",
				EntityType: repository.EntityPatient,
				IsRequired: true,
				Body:       "Acepto el tratamiento de mis datos de salud según la política de privacidad.",
			},
			{
				Key:        "marketing",
				Title:      "Comunicaciones",
				EntityType: repository.EntityPatient,
				IsRequired: false,
				Body:       "Acepto recibir recordatorios y novedades por email.",
			},
			{
				Key:        "terms_of_service",
				Title:      "Términos para profesionales",
				EntityType: repository.EntityPractitioner,
				IsRequired: true,
				Body:       "Acepto los términos de uso de la plataforma para profesionales.",
			},
			{
				Key:        "data_processing",
				Title:      "Acuerdo de tratamiento de datos",
				EntityType: repository.EntityPractitioner,
				IsRequired: true,
				Body:       "Me comprometo a tratar los datos de pacientes según la normativa vigente.",
			},
		},
		WalletCurrency: "USD",
	}
}

// LoadSeed lee un seed YAML y lo combina con el default: roles y consents con el
// mismo nombre/clave reemplazan al default, los nuevos se agregan.
func LoadSeed(path string) (Seed, error) {
	seed := DefaultSeed()
	if path == "" {
		return seed, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}
	var custom Seed
	if err := yaml.Unmarshal(b, &custom); err != nil {
		return Seed{}, fmt.Errorf("parse seed file: %w", err)
	}
	if err := custom.validate(); err != nil {
		return Seed{}, fmt.Errorf("seed file %s: %w", path, err)
	}
	return seed.merge(custom), nil
}

func (s Seed) validate() error {
	for i, r := range s.Roles {
		if r.Name == "" {
			return fmt.Errorf("roles[%d]: name is required", i)
		}
	}
	for i, c := range s.Consents {
		if c.Key == "" {
			return fmt.Errorf("consents[%d]: key is required", i)
		}
		kind, err := repository.ParseEntityKind(string(c.EntityType))
		if err != nil {
			return fmt.Errorf("consents[%d]: %w", i, err)
		}
		s.Consents[i].EntityType = kind
	}
	return nil
}

func (s Seed) merge(o Seed) Seed {
	out := Seed{WalletCurrency: s.WalletCurrency}
	if o.WalletCurrency != "" {
		out.WalletCurrency = o.WalletCurrency
	}

	out.Roles = append(out.Roles, s.Roles...)
	for _, r := range o.Roles {
		replaced := false
		for i := range out.Roles {
			if out.Roles[i].Name == r.Name {
				out.Roles[i] = r
				replaced = true
			}
		}
		if !replaced {
			out.Roles = append(out.Roles, r)
		}
	}

	out.Consents = append(out.Consents, s.Consents...)
	for _, c := range o.Consents {
		replaced := false
		for i := range out.Consents {
			if out.Consents[i].Key == c.Key && out.Consents[i].EntityType == c.EntityType {
				out.Consents[i] = c
				replaced = true
			}
		}
		if !replaced {
			out.Consents = append(out.Consents, c)
		}
	}
	return out
}

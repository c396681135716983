package email

import (
	"strings"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
)

// Organization son los datos de la práctica que muestran los templates.
// Se arma una vez por envío desde el tenant y sus settings.
type Organization struct {
	TenantID     string
	Name         string
	ContactEmail string
	Phone        string
	Address      string
	Timezone     string
	// URL base del portal del tenant (ej: https://app.example.com/t/acme).
	PortalURL string
}

// OrganizationFrom arma la Organization. settings puede ser nil (tenant sin configurar).
func OrganizationFrom(t *repository.Tenant, settings *repository.OrganizationSettings, baseURL string) Organization {
	org := Organization{}
	if t != nil {
		org.TenantID = t.ID
		org.Name = t.CompanyName
		org.PortalURL = strings.TrimRight(baseURL, "/") + "/t/" + t.ID
	}
	if settings != nil {
		if strings.TrimSpace(settings.DisplayName) != "" {
			org.Name = settings.DisplayName
		}
		org.ContactEmail = settings.ContactEmail
		org.Phone = settings.Phone
		org.Address = settings.Address
		org.Timezone = settings.Timezone
	}
	if org.Name == "" {
		org.Name = org.TenantID
	}
	return org
}

// Package registration contiene los DTOs del alta de prácticas.
package registration

import "time"

// EmailStartRequest inicia la verificación del email del admin.
type EmailStartRequest struct {
	Email string `json:"email"`
}

type EmailConfirmRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// RegisterResponse devuelve el id de correlación y el link de pago.
type RegisterResponse struct {
	RegistrationUUID string    `json:"registration_uuid"`
	TenantID         string    `json:"tenant_id"`
	CheckoutURL      string    `json:"checkout_url"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// StatusResponse es la respuesta del polling: pending | completed | error.
type StatusResponse struct {
	Status        string `json:"status"`
	TenantID      string `json:"tenant_id,omitempty"`
	RedirectURL   string `json:"redirect_url,omitempty"`
	SessionStatus string `json:"session_status,omitempty"`
	Code          string `json:"code,omitempty"`
	Message       string `json:"message,omitempty"`
}

type WebhookResponse struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
	EventType string `json:"event_type,omitempty"`
}

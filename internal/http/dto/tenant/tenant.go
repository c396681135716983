// Package tenant contiene los DTOs de las rutas /t/{tenant}.
package tenant

import "time"

// =================================================================================
// INVITACIONES
// =================================================================================

type InvitationResponse struct {
	Kind      string    `json:"kind"`
	EntityID  int64     `json:"entity_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	// HasAccount: la UI no pide password nuevo.
	HasAccount bool `json:"has_account"`
}

type AcceptInvitationResponse struct {
	UserID          int64  `json:"user_id"`
	Role            string `json:"role"`
	CreatedAccount  bool   `json:"created_account"`
	ConsentsCreated int    `json:"consents_created"`
	RedirectURL     string `json:"redirect_url"`
}

type CreateInvitationResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	EmailSent bool      `json:"email_sent"`
	// Link solo se expone fuera de prod (debug_echo_links).
	Link string `json:"link,omitempty"`
}

// =================================================================================
// CONSENTS
// =================================================================================

type PendingConsent struct {
	ConsentID  int64  `json:"consent_id"`
	Key        string `json:"key"`
	Title      string `json:"title"`
	IsRequired bool   `json:"is_required"`
	VersionID  int64  `json:"version_id"`
	Version    int    `json:"version"`
	Body       string `json:"body"`
}

type PendingConsentsResponse struct {
	Pending  []PendingConsent `json:"pending"`
	Blocking bool             `json:"blocking"`
}

type AcceptConsentsRequest struct {
	EntityType        string  `json:"entity_type"`
	EntityID          int64   `json:"entity_id"`
	ConsentVersionIDs []int64 `json:"consent_version_ids"`
}

type AcceptConsentsResponse struct {
	AcceptedCount   int     `json:"accepted_count"`
	Accepted        []int64 `json:"accepted"`
	AlreadyAccepted []int64 `json:"already_accepted"`
}

type ConsentResponse struct {
	ID         int64  `json:"id"`
	Key        string `json:"key"`
	Title      string `json:"title"`
	EntityType string `json:"entity_type"`
	IsRequired bool   `json:"is_required"`
	// ActiveVersion es nil si el consent todavía no tiene versión publicada.
	ActiveVersion *ConsentVersionResponse `json:"active_version,omitempty"`
}

type ConsentVersionResponse struct {
	ID          int64      `json:"id"`
	ConsentID   int64      `json:"consent_id"`
	Version     int        `json:"version"`
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

type PublishVersionRequest struct {
	Body string `json:"body"`
}

// =================================================================================
// ADMIN
// =================================================================================

type OrganizationRequest struct {
	DisplayName  string `json:"display_name" validate:"required,max=200"`
	ContactEmail string `json:"contact_email" validate:"omitempty,email"`
	Phone        string `json:"phone" validate:"max=50"`
	Address      string `json:"address" validate:"max=500"`
	Timezone     string `json:"timezone" validate:"omitempty,timezone"`
}

type OrganizationResponse struct {
	TenantID     string     `json:"tenant_id"`
	DisplayName  string     `json:"display_name"`
	ContactEmail string     `json:"contact_email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Address      string     `json:"address,omitempty"`
	Timezone     string     `json:"timezone,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

type RoleResponse struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type UserRolesResponse struct {
	UserID int64    `json:"user_id"`
	Roles  []string `json:"roles"`
}

type BillingResponse struct {
	TenantID             string     `json:"tenant_id"`
	BillingStatus        string     `json:"billing_status"`
	RequiresBillingSetup bool       `json:"requires_billing_setup"`
	TrialEndsAt          *time.Time `json:"trial_ends_at,omitempty"`
	Ignored              bool       `json:"ignored,omitempty"`
}

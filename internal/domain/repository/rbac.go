package repository

import "context"

// Roles del sistema sembrados en cada tenant.
const (
	RoleAdmin        = "admin"
	RoleStaff        = "staff"
	RolePractitioner = "practitioner"
	RolePatient      = "patient"
)

// Role es un rol del tenant con sus permisos.
type Role struct {
	ID          int64
	Name        string
	Description string
	Permissions []string
}

// RoleRepository opera sobre roles, permisos y asignaciones del tenant.
type RoleRepository interface {
	// EnsureRole crea el rol y agrega los permisos faltantes. Idempotente.
	EnsureRole(ctx context.Context, name, description string, permissions []string) (*Role, error)
	GetByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]Role, error)

	// AssignToUser es idempotente.
	AssignToUser(ctx context.Context, localUserID, roleID int64) error
	UserRoles(ctx context.Context, localUserID int64) ([]string, error)
}

package repository

import (
	"context"
	"time"
)

// OrganizationSettings son los datos de la práctica editables por el admin.
type OrganizationSettings struct {
	DisplayName  string
	ContactEmail string
	Phone        string
	Address      string
	Timezone     string
	UpdatedAt    time.Time
}

type OrganizationRepository interface {
	// Get retorna ErrNotFound si todavía no se guardó nada.
	Get(ctx context.Context) (*OrganizationSettings, error)
	Upsert(ctx context.Context, s OrganizationSettings) error
}

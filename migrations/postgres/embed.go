// Package migrations embeds SQL migration files.
package migrations

import "embed"

// CentralFS contains the migrations for the central (landlord) database.
//
//go:embed central/*.sql
var CentralFS embed.FS

// CentralDir is the directory within CentralFS where migrations live.
const CentralDir = "central"

// TenantFS contains the tenant migrations for per-tenant databases.
//
//go:embed tenant/*.sql
var TenantFS embed.FS

// TenantDir is the directory within TenantFS where migrations live.
const TenantDir = "tenant"

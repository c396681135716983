// Package repository define las interfaces de repositorio de dominio.
//
// Hay dos familias de repositorios:
//
//   - Central: identidad global (users), registro de tenants, registros pendientes
//     y la relación user↔tenant. Se accede via CentralStore.
//   - Tenant: cada tenant tiene su base aislada (users locales, roles, consents,
//     invitaciones, pacientes, profesionales, wallets). Se accede via
//     DataAccessLayer.ForTenant, que devuelve un TenantDataAccess explícito.
//
// Las implementaciones viven en internal/store/central/pg, internal/store/tenant/pg
// y internal/store/memory.
//
//	┌──────────────────────────────────────────────────────────┐
//	│      onboarding / provisioning / usersync / consent      │
//	│                    invitation / http                      │
//	└──────────────────────────────────────────────────────────┘
//	                 │                         │
//	                 ▼                         ▼
//	┌──────────────────────────┐  ┌────────────────────────────┐
//	│  CentralStore            │  │  TenantDataAccess          │
//	│  (central database)      │  │  (una base por tenant)     │
//	└──────────────────────────┘  └────────────────────────────┘
//
// Convenciones:
//   - Context siempre es el primer parámetro.
//   - No existe "tenant actual" global: el tenant viaja en el handle.
//   - Errores de dominio están en errors.go.
package repository

package middlewares

import (
	"context"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/session"
)

// =================================================================================
// CONTEXT KEYS
// =================================================================================

type ctxKey string

const (
	ctxRequestIDKey ctxKey = "request_id"
	ctxTenantKey    ctxKey = "tenant"
	ctxTDAKey       ctxKey = "tenant_data"
	ctxClaimsKey    ctxKey = "claims"
)

func setRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, id)
}

func withTenant(ctx context.Context, t *repository.Tenant, tda repository.TenantDataAccess) context.Context {
	ctx = context.WithValue(ctx, ctxTenantKey, t)
	return context.WithValue(ctx, ctxTDAKey, tda)
}

func withClaims(ctx context.Context, c *session.Claims) context.Context {
	return context.WithValue(ctx, ctxClaimsKey, c)
}

// =================================================================================
// CONTEXT GETTERS
// =================================================================================

// GetRequestID retorna "" si WithRequestID no corrió.
func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxRequestIDKey).(string)
	return s
}

// GetTenant retorna nil fuera de las rutas /t/{tenant}.
func GetTenant(ctx context.Context) *repository.Tenant {
	t, _ := ctx.Value(ctxTenantKey).(*repository.Tenant)
	return t
}

// GetTenantData retorna el handle a la base del tenant de la ruta.
func GetTenantData(ctx context.Context) repository.TenantDataAccess {
	tda, _ := ctx.Value(ctxTDAKey).(repository.TenantDataAccess)
	return tda
}

// GetClaims retorna nil si la ruta no exige sesión.
func GetClaims(ctx context.Context) *session.Claims {
	c, _ := ctx.Value(ctxClaimsKey).(*session.Claims)
	return c
}

package middlewares

import (
	"errors"
	"net/http"
	"slices"

	httperrors "github.com/dropDatabas3/hellocare/internal/http/errors"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
	"github.com/dropDatabas3/hellocare/internal/session"
)

// RequireSession valida la cookie (o Bearer) de sesión. En rutas /t/{tenant}
// la sesión tiene que ser de ese tenant.
func RequireSession(iss *session.Issuer, cookie session.CookieConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := cookie.TokenFromRequest(r)
			if raw == "" {
				httperrors.WriteError(w, httperrors.ErrUnauthorized)
				return
			}
			claims, err := iss.Parse(raw, session.KindSession)
			if err != nil {
				if errors.Is(err, session.ErrWrongKind) {
					httperrors.WriteError(w, httperrors.ErrUnauthorized.WithCause(err))
					return
				}
				httperrors.WriteError(w, httperrors.ErrSessionExpired.WithCause(err))
				return
			}
			ctx := r.Context()
			if t := GetTenant(ctx); t != nil && t.ID != claims.TenantID {
				httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("session belongs to another tenant"))
				return
			}
			uid, _ := claims.UserID()
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.UserID(uid), logger.Role(claims.Role)))
			next.ServeHTTP(w, r.WithContext(withClaims(ctx, claims)))
		})
	}
}

// RequireRole exige que el rol de la sesión esté entre roles. Va después de RequireSession.
func RequireRole(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := GetClaims(r.Context())
			if c == nil {
				httperrors.WriteError(w, httperrors.ErrUnauthorized)
				return
			}
			if !slices.Contains(roles, c.Role) {
				httperrors.WriteError(w, httperrors.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

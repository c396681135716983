package middlewares

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	httperrors "github.com/dropDatabas3/hellocare/internal/http/errors"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
)

// WithTenant resuelve {tenant} de la ruta contra el registro central y abre el
// handle a su base. Un tenant sin provisioning completo responde 503.
func WithTenant(central repository.CentralStore, dal repository.DataAccessLayer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "tenant")))
			if id == "" {
				httperrors.WriteError(w, httperrors.ErrTenantNotFound)
				return
			}
			t, err := central.Tenants().GetByID(ctx, id)
			if repository.IsNotFound(err) {
				httperrors.WriteError(w, httperrors.ErrTenantNotFound)
				return
			}
			if err != nil {
				httperrors.WriteError(w, err)
				return
			}
			if !t.IsProvisioned() {
				httperrors.WriteError(w, httperrors.ErrTenantNotReady)
				return
			}
			tda, err := dal.ForTenant(ctx, t.ID)
			if err != nil {
				httperrors.WriteError(w, err)
				return
			}
			ctx = withTenant(ctx, t, tda)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.TenantID(t.ID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

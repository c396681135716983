package middlewares

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/hellocare/internal/metrics"
)

// WithMetrics mide cada request etiquetando por el patrón de ruta de chi
// (/t/{tenant}/invitation/{token}) para no explotar la cardinalidad con ids.
func WithMetrics(m *metrics.Metrics, routes chi.Routes) Middleware {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			label := "unmatched"
			if routes != nil {
				rctx := chi.NewRouteContext()
				if routes.Match(rctx, r.Method, r.URL.Path) {
					label = rctx.RoutePattern()
				}
			}
			done := m.HTTPStart(r.Method, label)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			done(rec.status)
		})
	}
}

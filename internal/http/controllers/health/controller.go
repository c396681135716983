package health

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/hellocare/internal/cache"
	"github.com/dropDatabas3/hellocare/internal/domain/repository"
	"github.com/dropDatabas3/hellocare/internal/http/helpers"
	"github.com/dropDatabas3/hellocare/internal/observability/logger"
)

type Controller struct {
	central repository.CentralStore
	cache   cache.Client
	version string
}

func NewController(central repository.CentralStore, c cache.Client, version string) *Controller {
	return &Controller{central: central, cache: c, version: version}
}

// Live maneja GET /healthz: el proceso responde.
func (c *Controller) Live(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": c.version})
}

// Ready maneja GET /readyz: base central y cache accesibles.
func (c *Controller) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"central_db": "ok", "cache": "ok"}
	status := http.StatusOK
	if err := c.central.Ping(ctx); err != nil {
		logger.From(ctx).Warn("readiness: central db down", logger.Err(err))
		checks["central_db"] = "down"
		status = http.StatusServiceUnavailable
	}
	body := map[string]any{"checks": checks, "version": c.version}
	if c.cache != nil {
		if err := c.cache.Ping(ctx); err != nil {
			logger.From(ctx).Warn("readiness: cache down", logger.Err(err))
			checks["cache"] = "down"
			status = http.StatusServiceUnavailable
		} else if st, err := c.cache.Stats(ctx); err == nil {
			body["cache"] = map[string]any{"driver": st.Driver, "keys": st.Keys}
		}
	}
	helpers.WriteJSON(w, status, body)
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellocare/internal/infra/tenantsql"
)

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	m.ObserveProvision("provisioned", time.Second)
	m.ObserveReconcile("poll", "created")
	m.ObserveWebhook("checkout.session.completed", "ok")
	m.RecordTenantMigration("acme", "applied", time.Second)
	m.InvitationAccepted("PATIENT")
	m.ConsentsAccepted("PATIENT", 2)
	m.HTTPStart("GET", "/healthz")(200)
	require.NoError(t, m.Register(prometheus.NewCounter(prometheus.CounterOpts{Name: "x"})))
}

func TestCountersAndHandler(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	m.ObserveReconcile("webhook", "created")
	m.ObserveReconcile("webhook", "created")
	m.ConsentsAccepted("PRACTITIONER", 3)
	m.HTTPStart("POST", "/v1/register")(201)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `billing_reconcile_total{result="created",source="webhook"} 2`))
	require.True(t, strings.Contains(body, `consents_accepted_total{kind="PRACTITIONER"} 3`))
	require.True(t, strings.Contains(body, `http_requests_total{method="POST",path="/v1/register",status="201"} 1`))
}

type fakePools map[string]tenantsql.PoolStat

func (f fakePools) Stats() map[string]tenantsql.PoolStat { return f }

func TestDBPoolCollector(t *testing.T) {
	c := NewDBPoolCollector(nil, fakePools{"acme": {Tenant: "acme", Acquired: 1, Idle: 2, Total: 3}})
	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)
	n := 0
	for range ch {
		n++
	}
	require.Equal(t, 4, n)
}

// Package metrics define las métricas Prometheus del servicio. Todos los métodos
// de *Metrics aceptan receptor nil para que los servicios puedan omitirlas en tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics agrupa los collectors registrados en un registry propio.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        *prometheus.GaugeVec

	tenantMigrationsTotal   *prometheus.CounterVec
	tenantMigrationDuration *prometheus.HistogramVec

	provisionTotal    *prometheus.CounterVec
	provisionDuration prometheus.Histogram

	reconcileTotal *prometheus.CounterVec
	webhookTotal   *prometheus.CounterVec

	invitationsAccepted *prometheus.CounterVec
	consentsAccepted    *prometheus.CounterVec
}

// New crea y registra todas las métricas. Si reg es nil se usa un registry nuevo.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpInflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Requests en vuelo por método y ruta",
		}, []string{"method", "path"}),
		tenantMigrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenant_migrations_total",
			Help: "Total de migraciones de tenant por resultado",
		}, []string{"tenant", "result"}), // result: applied|skipped|failed
		tenantMigrationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenant_migration_duration_seconds",
			Help:    "Duración de migraciones de tenant",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
		}, []string{"tenant"}),
		provisionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenant_provisioning_total",
			Help: "Provisionings de tenant por resultado",
		}, []string{"result"}), // result: provisioned|already|failed
		provisionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tenant_provisioning_duration_seconds",
			Help:    "Duración del provisioning completo de un tenant",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		reconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_reconcile_total",
			Help: "Reconciliaciones de pago por origen y resultado",
		}, []string{"source", "result"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Eventos de webhook del proveedor de pagos",
		}, []string{"type", "result"}),
		invitationsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invitations_accepted_total",
			Help: "Invitaciones aceptadas por tipo de entidad",
		}, []string{"kind"}),
		consentsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consents_accepted_total",
			Help: "Aceptaciones de consent registradas por tipo de entidad",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{
		m.httpRequestsTotal, m.httpRequestDuration, m.httpInflight,
		m.tenantMigrationsTotal, m.tenantMigrationDuration,
		m.provisionTotal, m.provisionDuration,
		m.reconcileTotal, m.webhookTotal,
		m.invitationsAccepted, m.consentsAccepted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registerCollector(reg, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Register agrega un collector extra (ej. pools de DB).
func (m *Metrics) Register(c prometheus.Collector) error {
	if m == nil {
		return nil
	}
	return registerCollector(m.registry, c)
}

// Handler expone /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// registerCollector registra el collector en el registry indicado, ignorando duplicados.
func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// HTTPStart marca un request en vuelo y devuelve la función que lo cierra.
func (m *Metrics) HTTPStart(method, path string) func(status int) {
	if m == nil {
		return func(int) {}
	}
	m.httpInflight.WithLabelValues(method, path).Inc()
	start := time.Now()
	return func(status int) {
		m.httpInflight.WithLabelValues(method, path).Dec()
		m.httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	}
}

// RecordTenantMigration registra el resultado de una migración de tenant
func (m *Metrics) RecordTenantMigration(tenant, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.tenantMigrationsTotal.WithLabelValues(tenant, result).Inc()
	m.tenantMigrationDuration.WithLabelValues(tenant).Observe(duration.Seconds())
}

func (m *Metrics) ObserveProvision(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.provisionTotal.WithLabelValues(result).Inc()
	m.provisionDuration.Observe(duration.Seconds())
}

func (m *Metrics) ObserveReconcile(source, result string) {
	if m == nil {
		return
	}
	m.reconcileTotal.WithLabelValues(source, result).Inc()
}

func (m *Metrics) ObserveWebhook(eventType, result string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) InvitationAccepted(kind string) {
	if m == nil {
		return
	}
	m.invitationsAccepted.WithLabelValues(kind).Inc()
}

func (m *Metrics) ConsentsAccepted(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.consentsAccepted.WithLabelValues(kind).Add(float64(n))
}

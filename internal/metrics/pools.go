package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropDatabas3/hellocare/internal/infra/tenantsql"
)

// TenantPools lo implementa *tenantsql.Manager.
type TenantPools interface {
	Stats() map[string]tenantsql.PoolStat
}

// dbPoolCollector expone gauges para el pool central y los pools por tenant.
type dbPoolCollector struct {
	tenants TenantPools
	central func() *pgxpool.Pool

	tenantCountDesc    *prometheus.Desc
	tenantAcquiredDesc *prometheus.Desc
	tenantIdleDesc     *prometheus.Desc
	tenantTotalDesc    *prometheus.Desc

	centralAcquiredDesc *prometheus.Desc
	centralIdleDesc     *prometheus.Desc
	centralTotalDesc    *prometheus.Desc
}

// NewDBPoolCollector crea el collector. Cualquiera de los dos argumentos puede ser nil.
func NewDBPoolCollector(central func() *pgxpool.Pool, tenants TenantPools) prometheus.Collector {
	return &dbPoolCollector{
		tenants:             tenants,
		central:             central,
		tenantCountDesc:     prometheus.NewDesc("tenant_pool_count", "Cantidad de pools de tenants activos", nil, nil),
		tenantAcquiredDesc:  prometheus.NewDesc("tenant_pgxpool_acquired", "Conexiones adquiridas por tenant", []string{"tenant"}, nil),
		tenantIdleDesc:      prometheus.NewDesc("tenant_pgxpool_idle", "Conexiones inactivas por tenant", []string{"tenant"}, nil),
		tenantTotalDesc:     prometheus.NewDesc("tenant_pgxpool_total", "Conexiones totales por tenant", []string{"tenant"}, nil),
		centralAcquiredDesc: prometheus.NewDesc("pg_central_acquired", "Conexiones centrales adquiridas", nil, nil),
		centralIdleDesc:     prometheus.NewDesc("pg_central_idle", "Conexiones centrales inactivas", nil, nil),
		centralTotalDesc:    prometheus.NewDesc("pg_central_total", "Conexiones centrales totales", nil, nil),
	}
}

func (c *dbPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tenantCountDesc
	ch <- c.tenantAcquiredDesc
	ch <- c.tenantIdleDesc
	ch <- c.tenantTotalDesc
	ch <- c.centralAcquiredDesc
	ch <- c.centralIdleDesc
	ch <- c.centralTotalDesc
}

func (c *dbPoolCollector) Collect(ch chan<- prometheus.Metric) {
	var tenantStats map[string]tenantsql.PoolStat
	if c.tenants != nil {
		tenantStats = c.tenants.Stats()
	}
	ch <- prometheus.MustNewConstMetric(c.tenantCountDesc, prometheus.GaugeValue, float64(len(tenantStats)))
	for slug, snapshot := range tenantStats {
		ch <- prometheus.MustNewConstMetric(c.tenantAcquiredDesc, prometheus.GaugeValue, float64(snapshot.Acquired), slug)
		ch <- prometheus.MustNewConstMetric(c.tenantIdleDesc, prometheus.GaugeValue, float64(snapshot.Idle), slug)
		ch <- prometheus.MustNewConstMetric(c.tenantTotalDesc, prometheus.GaugeValue, float64(snapshot.Total), slug)
	}

	if c.central != nil {
		if pool := c.central(); pool != nil {
			if stat := pool.Stat(); stat != nil {
				ch <- prometheus.MustNewConstMetric(c.centralAcquiredDesc, prometheus.GaugeValue, float64(stat.AcquiredConns()))
				ch <- prometheus.MustNewConstMetric(c.centralIdleDesc, prometheus.GaugeValue, float64(stat.IdleConns()))
				ch <- prometheus.MustNewConstMetric(c.centralTotalDesc, prometheus.GaugeValue, float64(stat.TotalConns()))
			}
		}
	}
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var DefaultDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ExportsTotal           *prometheus.CounterVec
	ExportDatasheetsTotal  *prometheus.CounterVec
	FamilyIndexBuildsTotal prometheus.Counter
	FamilyIndexSize        prometheus.Gauge
	KPIEventsTotal         prometheus.Counter
	CatalogWritesTotal     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: DefaultDurationBuckets,
		}, []string{"method", "path"}),
		ExportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "configurateur_exports_total",
			Help: "Archive exports by result (ok, invalid_document, error)",
		}, []string{"result"}),
		ExportDatasheetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "configurateur_export_datasheets_total",
			Help: "Requested datasheets by outcome (included, missing)",
		}, []string{"outcome"}),
		FamilyIndexBuildsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "configurateur_family_index_builds_total",
			Help: "Full rebuilds of the identifier to family index",
		}),
		FamilyIndexSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "configurateur_family_index_size",
			Help: "Identifiers in the current family index",
		}),
		KPIEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "configurateur_kpi_events_total",
			Help: "KPI events collected",
		}),
		CatalogWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "configurateur_catalog_writes_total",
			Help: "Catalog files rewritten through the admin API",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ExportsTotal,
		m.ExportDatasheetsTotal,
		m.FamilyIndexBuildsTotal,
		m.FamilyIndexSize,
		m.KPIEventsTotal,
		m.CatalogWritesTotal,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and durations labelled by the route
// pattern, not the raw URL, to keep cardinality bounded.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

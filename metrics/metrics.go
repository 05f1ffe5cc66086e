package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds the Prometheus collectors for rule compilation and the proxy.
type Metrics struct {
	RecompilesTotal  *prometheus.CounterVec
	ActiveRules      prometheus.Gauge
	ProxyRequests    *prometheus.CounterVec
	SettingsChanges  prometheus.Counter
	RecompileSeconds prometheus.Histogram

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RecompilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uaswitch_recompiles_total",
				Help: "Rule compilations by trigger and result",
			},
			[]string{"trigger", "result"},
		),
		ActiveRules: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uaswitch_active_rules",
			Help: "Number of rules installed by the last successful compilation",
		}),
		ProxyRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uaswitch_proxy_requests_total",
				Help: "Requests seen by the proxy by outcome (rewritten, unmatched)",
			},
			[]string{"outcome", "resource_type"},
		),
		SettingsChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uaswitch_settings_changes_total",
			Help: "Settings change notifications handled",
		}),
		RecompileSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "uaswitch_recompile_duration_seconds",
			Help:    "Time spent clearing, compiling and installing rules",
			Buckets: prometheus.DefBuckets,
		}),
		registry: reg,
	}

	reg.MustRegister(
		m.RecompilesTotal,
		m.ActiveRules,
		m.ProxyRequests,
		m.SettingsChanges,
		m.RecompileSeconds,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Get returns the process-wide Metrics, creating it on first use.
func Get() *Metrics {
	globalMu.RLock()
	m := globalMetrics
	globalMu.RUnlock()
	if m != nil {
		return m
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New()
	}
	return globalMetrics
}

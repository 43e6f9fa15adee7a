package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the check counters of one run. Each instance owns its own
// registry so runs and tests do not share state.
type Metrics struct {
	registry *prometheus.Registry

	checksTotal   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	findingsTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		checksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashcheck",
			Name:      "checks_total",
			Help:      "Total number of check verdicts by check and status.",
		}, []string{"check", "status"}),
		checkDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dashcheck",
			Name:      "check_duration_seconds",
			Help:      "Wall time of a check including its queries.",
			Buckets: []float64{
				0.01, 0.05, 0.1, 0.5,
				1, 5, 10, 30, 60, 300,
			},
		}, []string{"check"}),
		findingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashcheck",
			Name:      "findings_total",
			Help:      "Findings recorded in tenant ledgers by tenant and kind.",
		}, []string{"tenant", "kind"}),
	}
}

// ObserveCheck records one verdict. A nil Metrics is a no-op.
func (m *Metrics) ObserveCheck(check, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.checksTotal.WithLabelValues(check, status).Inc()
	m.checkDuration.WithLabelValues(check).Observe(took.Seconds())
}

// ObserveFinding counts a finding written to a ledger.
func (m *Metrics) ObserveFinding(tenant, kind string) {
	if m == nil {
		return
	}
	m.findingsTotal.WithLabelValues(tenant, kind).Inc()
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the metrics in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

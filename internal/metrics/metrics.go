// Package metrics implements a passive counter tap attached to each
// pipeline stage, with reporting kept isolated from the counting
// itself. Counters are exposed via Prometheus client types.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Tap holds one counter/histogram family per stage category. A Tap is
// created once per run and registered into its own registry so
// concurrent runs (e.g. in tests) never collide on global metric
// names.
type Tap struct {
	Registry *prometheus.Registry

	RecordsTotal   *prometheus.CounterVec // label: resource
	ErrorsTotal    *prometheus.CounterVec // label: kind (connector, mapping_load, mapping_unload, write, read, cas, warning)
	WarningsTotal  prometheus.Counter
	BatchSize      prometheus.Histogram
	ExecLatency    prometheus.Histogram
	InFlight       prometheus.Gauge
	PositionsTotal prometheus.Counter
}

// New builds a Tap with its own private registry.
func New() *Tap {
	reg := prometheus.NewRegistry()
	t := &Tap{
		Registry: reg,
		RecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkcore_records_total",
			Help: "Total records observed by the total-items counter stage, by resource.",
		}, []string{"resource"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkcore_errors_total",
			Help: "Total errors observed, by kind.",
		}, []string{"kind"}),
		WarningsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bulkcore_query_warnings_total",
			Help: "Total server-side query warnings observed.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bulkcore_batch_size_statements",
			Help:    "Number of statements per flushed batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),
		ExecLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bulkcore_exec_latency_seconds",
			Help:    "Executor round-trip latency.",
			Buckets: prometheus.DefBuckets,
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bulkcore_inflight_statements",
			Help: "Statements currently in flight at the executor.",
		}),
		PositionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bulkcore_positions_recorded_total",
			Help: "Total terminal positions recorded (success or logged failure).",
		}),
	}
	reg.MustRegister(t.RecordsTotal, t.ErrorsTotal, t.WarningsTotal, t.BatchSize, t.ExecLatency, t.InFlight, t.PositionsTotal)
	return t
}

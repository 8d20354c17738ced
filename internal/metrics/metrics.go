// Package metrics exposes Prometheus metrics for workflow runs.
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/dqgen/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dqgen"

// Metrics implements core.Recorder on a private registry.
type Metrics struct {
	RowsTotal   *prometheus.CounterVec
	FilesTotal  *prometheus.CounterVec
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates and registers the run metrics. When runtime is true the Go
// and process collectors are registered too.
func New(runtime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "request_rows_total",
				Help:      "Request rows processed by outcome",
			},
			[]string{"workflow", "outcome"},
		),

		FilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_written_total",
				Help:      "Changelog data and fragment files written",
			},
			[]string{"workflow"},
		),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Workflow runs by result",
			},
			[]string{"workflow", "status"}, // "success", "error"
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Workflow run duration",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"workflow"},
		),
	}

	m.registry.MustRegister(m.RowsTotal, m.FilesTotal, m.RunsTotal, m.RunDuration)
	if runtime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// RegisterLimiter exposes the limiter's slot usage as gauges.
func (m *Metrics) RegisterLimiter(status func() core.LimiterStatus) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Workflow runs currently holding a slot",
		}, func() float64 { return float64(status().Active) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_max_concurrent",
			Help:      "Configured workflow run slots",
		}, func() float64 { return float64(status().MaxConcurrent) }),
	)
}

// Handler returns an HTTP handler for metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
	})
}

func (m *Metrics) RowOutcome(wf core.Workflow, o core.Outcome) {
	m.RowsTotal.WithLabelValues(string(wf), string(o)).Inc()
}

func (m *Metrics) FilesWritten(wf core.Workflow, n int) {
	m.FilesTotal.WithLabelValues(string(wf)).Add(float64(n))
}

func (m *Metrics) RunFinished(wf core.Workflow, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RunsTotal.WithLabelValues(string(wf), status).Inc()
	m.RunDuration.WithLabelValues(string(wf)).Observe(d.Seconds())
}

var _ core.Recorder = (*Metrics)(nil)

// Package metrics exports import engine counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/recordimport/internal/core"
)

const namespace = "recordimport"

// Metrics implements core.Observer. Each instance owns its registry so
// servers and tests never collide on collector names.
type Metrics struct {
	registry *prometheus.Registry

	recordsCreated  prometheus.Counter
	writesRejected  prometheus.Counter
	commitConflicts prometheus.Counter
	groupsImported  prometheus.Counter
	groupAttempts   prometheus.Histogram

	filesTotal   *prometheus.CounterVec
	fileDuration *prometheus.HistogramVec
}

var _ core.Observer = (*Metrics)(nil)

// New creates a Metrics with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		recordsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_created_total",
			Help:      "Records created because no record matched a group's resolve key.",
		}),
		writesRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_rejected_total",
			Help:      "Field writes the store refused; each is a soft error on its group.",
		}),
		commitConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_conflicts_total",
			Help:      "Group commits refused by the store and retried.",
		}),
		groupsImported: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_imported_total",
			Help:      "Groups committed.",
		}),
		groupAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "group_attempts",
			Help:      "Commit attempts needed per committed group.",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 50},
		}),
		filesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files imported, by format and result.",
		}, []string{"format", "result"}),
		fileDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_duration_seconds",
			Help:      "Wall time to import one file.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 9),
		}, []string{"format"}),
	}
}

func (m *Metrics) RecordCreated()       { m.recordsCreated.Inc() }
func (m *Metrics) WriteRejected(string) { m.writesRejected.Inc() }
func (m *Metrics) CommitConflict(int)   { m.commitConflicts.Inc() }

func (m *Metrics) GroupImported(_ *core.ImportResult, attempts int) {
	m.groupsImported.Inc()
	m.groupAttempts.Observe(float64(attempts))
}

// FileImported records the outcome of one file. A nil report counts as a
// failure that never started.
func (m *Metrics) FileImported(format string, report *core.FileReport, err error) {
	result := "ok"
	switch {
	case err != nil && core.IsMalformed(err):
		result = "malformed"
	case err != nil:
		result = "error"
	}
	m.filesTotal.WithLabelValues(format, result).Inc()

	var d time.Duration
	if report != nil {
		d = report.Duration
	}
	m.fileDuration.WithLabelValues(format).Observe(d.Seconds())
}

// TrackLimiter exports the limiter's occupancy as gauges.
func (m *Metrics) TrackLimiter(l *core.Limiter) {
	f := promauto.With(m.registry)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "imports_running",
		Help:      "Imports currently holding a limiter slot.",
	}, func() float64 { return float64(l.Running()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "import_slots",
		Help:      "Imports allowed to run at once.",
	}, func() float64 { return float64(l.Slots()) })
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Package metrics records verification run outcomes with Prometheus
// collectors on a per-run registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "sdsverify_"

// Recorder holds the collectors for one process. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	cleanupErrors *prometheus.CounterVec
	insertedTotal prometheus.Counter
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "runs_total",
				Help: "Verification runs by verdict",
			},
			[]string{"verdict"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "stage_duration_seconds",
				Help:    "Time spent in each orchestrator stage",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		cleanupErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cleanup_errors_total",
				Help: "Failed resource deletions during cleanup",
			},
			[]string{"resource"},
		),
		insertedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_inserted_total",
				Help: "Synthetic events accepted by the store",
			},
		),
	}
	r.registry.MustRegister(r.runs, r.stageDuration, r.cleanupErrors, r.insertedTotal)
	return r
}

// Registry exposes the underlying registry (for HTTP exposition or tests).
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RunFinished counts a completed run.
func (r *Recorder) RunFinished(verdict string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(verdict).Inc()
}

// ObserveStage records how long a stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// CleanupFailed counts a failed deletion of the given resource kind.
func (r *Recorder) CleanupFailed(resource string) {
	if r == nil {
		return
	}
	r.cleanupErrors.WithLabelValues(resource).Inc()
}

// EventsInserted counts events accepted by the store.
func (r *Recorder) EventsInserted(n int) {
	if r == nil {
		return
	}
	r.insertedTotal.Add(float64(n))
}

// WriteTextfile writes the registry in the Prometheus text format, for
// collection by a node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

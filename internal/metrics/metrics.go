// Package metrics derives Prometheus run metrics from engine updates.
//
// A Recorder subscribes to an [event.Bus] and counts what every run does:
// iterations per phase, phase outcomes, critique confidence, compactions and
// terminal results. The CLI is a batch process, so the registry is exported
// with [Recorder.WriteTextfile] for the node_exporter textfile collector
// rather than served over HTTP.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Iron-Ham/horizon/internal/event"
)

// Recorder holds the run metrics, registered on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	PhasesTotal      *prometheus.CounterVec
	IterationsTotal  *prometheus.CounterVec
	CompactionsTotal prometheus.Counter
	FilesGenerated   prometheus.Counter
	Confidence       *prometheus.HistogramVec
	RunDuration      prometheus.Histogram
	ActiveRuns       prometheus.Gauge

	mu      sync.Mutex
	started map[string]bool
}

// NewRecorder creates a Recorder with a fresh registry.
//
// Metrics:
//   - horizon_runs_total{outcome} - terminal runs by completed, failed or aborted
//   - horizon_phases_total{phase} - phases that reached phase_complete
//   - horizon_iterations_total{phase} - generation attempts
//   - horizon_compactions_total - context compactions
//   - horizon_files_generated_total - files produced by completed phases
//   - horizon_phase_confidence{phase} - confidence recorded at phase completion
//   - horizon_run_duration_seconds - wall time of terminal runs
//   - horizon_active_runs - runs that started and have not finished
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horizon_runs_total",
				Help: "Total number of finished runs",
			},
			[]string{"outcome"},
		),
		PhasesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horizon_phases_total",
				Help: "Total number of completed phases",
			},
			[]string{"phase"},
		),
		IterationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horizon_iterations_total",
				Help: "Total number of generation attempts",
			},
			[]string{"phase"},
		),
		CompactionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "horizon_compactions_total",
			Help: "Total number of context compactions",
		}),
		FilesGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "horizon_files_generated_total",
			Help: "Total number of files produced by completed phases",
		}),
		Confidence: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "horizon_phase_confidence",
				Help:    "Critique confidence at phase completion",
				Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
			},
			[]string{"phase"},
		),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "horizon_run_duration_seconds",
			Help:    "Duration of finished runs in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
		}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "horizon_active_runs",
			Help: "Number of runs in progress",
		}),
		started: make(map[string]bool),
	}
}

// Registry returns the registry the metrics are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Attach subscribes the recorder to every update on bus and returns the
// subscription ID.
func (r *Recorder) Attach(bus *event.Bus) string {
	return bus.Subscribe(r.Observe)
}

// Observe records a single update. It is safe for concurrent use.
func (r *Recorder) Observe(u event.Update) {
	r.trackActive(u)

	switch u.Type {
	case event.TypeGenerating:
		r.IterationsTotal.WithLabelValues(u.Phase).Inc()
	case event.TypeSummarizing:
		r.CompactionsTotal.Inc()
	case event.TypePhaseComplete:
		r.PhasesTotal.WithLabelValues(u.Phase).Inc()
		if u.Confidence != nil {
			r.Confidence.WithLabelValues(u.Phase).Observe(*u.Confidence)
		}
		if u.FilesGenerated != nil {
			r.FilesGenerated.Add(float64(*u.FilesGenerated))
		}
	case event.TypeCompleted, event.TypeFailed:
		outcome := string(u.Type)
		if u.Result != nil {
			if u.Result.Aborted {
				outcome = "aborted"
			}
			r.RunDuration.Observe(u.Result.Duration.Seconds())
		}
		r.RunsTotal.WithLabelValues(outcome).Inc()
	}
}

func (r *Recorder) trackActive(u event.Update) {
	if u.RunID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	terminal := u.Type == event.TypeCompleted || u.Type == event.TypeFailed
	switch {
	case terminal && r.started[u.RunID]:
		delete(r.started, u.RunID)
		r.ActiveRuns.Dec()
	case !terminal && !r.started[u.RunID]:
		r.started[u.RunID] = true
		r.ActiveRuns.Inc()
	}
}

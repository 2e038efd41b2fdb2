package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for extraction runs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Records finalized, by models.CharityRecord.Outcome
	Records *prometheus.CounterVec

	// Stage waits that hit their ceiling, by error code
	StageTimeouts *prometheus.CounterVec

	// Workers that stopped early, by reason
	WorkerFailures *prometheus.CounterVec

	// Time spent on one identifier, all stages included
	IdentifierDuration prometheus.Histogram

	ActiveWorkers prometheus.Gauge
}

// New creates a Metrics instance registered with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "charitybot_records_total",
			Help: "Charity records finalized, by outcome",
		}, []string{"outcome"}),

		StageTimeouts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "charitybot_stage_timeouts_total",
			Help: "Bounded waits that exceeded their ceiling, by error code",
		}, []string{"code"}),

		WorkerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "charitybot_worker_failures_total",
			Help: "Workers that terminated before finishing their chunk, by reason",
		}, []string{"reason"}),

		IdentifierDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "charitybot_identifier_duration_seconds",
			Help:    "Duration of extracting one identifier across all stages",
			Buckets: []float64{0.5, 1, 2, 4, 6, 8, 12, 20, 30},
		}),

		ActiveWorkers: f.NewGauge(prometheus.GaugeOpts{
			Name: "charitybot_active_workers",
			Help: "Workers currently holding a session",
		}),
	}
}

// IncrementRecord records one finalized record.
func (m *Metrics) IncrementRecord(outcome string) {
	if m != nil {
		m.Records.WithLabelValues(outcome).Inc()
	}
}

// IncrementStageTimeout records a stage wait that hit its ceiling.
func (m *Metrics) IncrementStageTimeout(code string) {
	if m != nil {
		m.StageTimeouts.WithLabelValues(code).Inc()
	}
}

// IncrementWorkerFailure records a worker that stopped early.
func (m *Metrics) IncrementWorkerFailure(reason string) {
	if m != nil {
		m.WorkerFailures.WithLabelValues(reason).Inc()
	}
}

// ObserveIdentifier records how long one identifier took.
func (m *Metrics) ObserveIdentifier(d time.Duration) {
	if m != nil {
		m.IdentifierDuration.Observe(d.Seconds())
	}
}

// WorkerStarted and WorkerStopped track live sessions.
func (m *Metrics) WorkerStarted() {
	if m != nil {
		m.ActiveWorkers.Inc()
	}
}

func (m *Metrics) WorkerStopped() {
	if m != nil {
		m.ActiveWorkers.Dec()
	}
}

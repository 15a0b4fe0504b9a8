package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Evaluation metrics
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpm_evaluations_total",
			Help: "Total number of patient evaluations",
		},
		[]string{"status"}, // status: ok, error, locked
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rpm_evaluation_duration_seconds",
			Help:    "Time taken to evaluate one patient",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// Alert metrics
	AlertsRaisedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpm_alerts_raised_total",
			Help: "Total number of alerts persisted",
		},
		[]string{"rule_id", "severity"},
	)

	AlertsDuplicateTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rpm_alerts_duplicate_total",
			Help: "Pending alerts skipped because an active alert already existed",
		},
	)

	AlertsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpm_alerts_published_total",
			Help: "Total number of alerts published to NATS",
		},
		[]string{"status"}, // status: success, failed
	)

	// Job metrics
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpm_job_runs_total",
			Help: "Total number of scheduled evaluation runs",
		},
		[]string{"status"},
	)

	JobPatients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpm_job_patients",
			Help: "Number of active patients in the last run",
		},
	)

	LockContentionTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rpm_lock_contention_total",
			Help: "Patients skipped because another worker held the lock",
		},
	)

	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpm_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)

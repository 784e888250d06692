// Package metrics holds the prometheus collectors shared by the services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geosafe"

var (
	ReportsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_submitted_total",
			Help:      "Total number of stored reports.",
		},
		[]string{"report_type", "risk_level", "ai_parsed"},
	)
	Votes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Total number of votes cast or changed.",
		},
		[]string{"vote_type"},
	)
	ClassifierFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_fallbacks_total",
			Help:      "Classifier calls answered by the keyword fallback.",
		},
		[]string{"operation"},
	)
	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by outcome.",
		},
		[]string{"job", "result"},
	)
	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Histogram of scheduled job run durations in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"job"},
	)
	ReportsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_swept_total",
			Help:      "Expired reports deleted by the sweep.",
		},
	)
	PatternsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "patterns_active",
			Help:      "Patterns stored by the last successful detection run.",
		},
	)
)

// Init registers every collector with reg.
func Init(reg prometheus.Registerer) {
	reg.MustRegister(
		ReportsSubmitted,
		Votes,
		ClassifierFallbacks,
		JobRuns,
		JobDuration,
		ReportsSwept,
		PatternsActive,
	)
}

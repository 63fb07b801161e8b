// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes
const (
	OutcomeDrafted    = "drafted"
	OutcomeSuppressed = "suppressed"
	OutcomeUndecided  = "undecided"
	OutcomeFailed     = "failed"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_bot_runs_total",
			Help: "Post generation runs by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)
	publishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_bot_publishes_total",
			Help: "LinkedIn publish attempts by status",
		},
		[]string{"status"},
	)
	insightUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_bot_insight_updates_total",
			Help: "Insight records updated from engagement metrics",
		},
		[]string{"category"},
	)
	externalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "content_bot_external_call_duration_seconds",
			Help:    "Latency of calls to external services",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
)

// ObserveRun counts one finished run
func ObserveRun(trigger, outcome string) {
	runsTotal.WithLabelValues(trigger, outcome).Inc()
}

// ObservePublish counts one publish attempt
func ObservePublish(err error) {
	publishesTotal.WithLabelValues(status(err)).Inc()
}

// ObserveInsight counts one insight update
func ObserveInsight(category string) {
	insightUpdatesTotal.WithLabelValues(category).Inc()
}

// ObserveExternal records the latency of a call that started at start
func ObserveExternal(service string, start time.Time, err error) {
	externalDuration.WithLabelValues(service, status(err)).Observe(time.Since(start).Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

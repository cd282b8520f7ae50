// Package metrics exposes Prometheus instrumentation for the ranking engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors
type Metrics struct {
	ScoresApplied   prometheus.Counter
	ScoreFailures   prometheus.Counter
	DuplicateEvents prometheus.Counter
	EventsProcessed prometheus.Counter
	CyclesClosed    prometheus.Counter
	PayoutsGranted  prometheus.Counter
	PayoutsSkipped  prometheus.Counter
	ViewLatency     prometheus.Histogram
}

// New registers the collectors on the given registerer
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ScoresApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "leaderboard",
			Name:      "scores_applied_total",
			Help:      "Score increments applied to ranked sets.",
		}),
		ScoreFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "leaderboard",
			Name:      "score_failures_total",
			Help:      "Score increments that failed against the ranking backend.",
		}),
		DuplicateEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "leaderboard",
			Name:      "duplicate_events_total",
			Help:      "Match events discarded by the dedup filter.",
		}),
		EventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "leaderboard",
			Name:      "events_processed_total",
			Help:      "Match events handled after deduplication.",
		}),
		CyclesClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "leaderboard",
			Name:      "cycles_closed_total",
			Help:      "Leaderboard cycles closed, archived and re-armed.",
		}),
		PayoutsGranted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "leaderboard",
			Name:      "payouts_granted_total",
			Help:      "Tier rewards granted at cycle close.",
		}),
		PayoutsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "leaderboard",
			Name:      "payouts_skipped_total",
			Help:      "Tier rewards skipped for unresolvable players.",
		}),
		ViewLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "leaderboard",
			Name:      "view_latency_seconds",
			Help:      "Latency of composite leaderboard view reads.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// NewNop returns metrics on a private registry, for tests
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

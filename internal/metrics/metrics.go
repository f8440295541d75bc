package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FragmentsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selfgraph_fragments_resolved_total",
			Help: "Fragments resolved, by resolution path",
		},
		[]string{"path"}, // tier_a, created, placeholder
	)

	FragmentsMalformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "selfgraph_fragments_malformed_total",
			Help: "Fragments skipped because they failed validation",
		},
	)

	Merges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selfgraph_merges_total",
			Help: "Entity merges, by tier",
		},
		[]string{"tier"},
	)

	MergesRefused = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "selfgraph_merges_refused_total",
			Help: "Merge attempts refused by the category compatibility gate",
		},
	)

	MergeConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "selfgraph_merge_conflicts_total",
			Help: "Entities flagged with a merge conflict",
		},
	)

	ScoreAnomalies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "selfgraph_score_anomalies_total",
			Help: "Belief scores that were NaN or infinite and clamped",
		},
	)

	SuggestionsSurfaced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "selfgraph_suggestions_surfaced_total",
			Help: "Tier C merge suggestions surfaced to the user",
		},
	)

	CitationsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selfgraph_citations_recorded_total",
			Help: "Citations recorded, by outcome",
		},
		[]string{"outcome"}, // created, incremented, unchanged
	)

	BatchCommitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "selfgraph_batch_commit_duration_seconds",
			Help:    "Time spent committing one reconciliation batch",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	SweepWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "selfgraph_sweep_writes_total",
			Help: "Entities rewritten by decay sweeps",
		},
	)
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selfgraph_http_requests_total",
			Help: "HTTP requests, by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "selfgraph_http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

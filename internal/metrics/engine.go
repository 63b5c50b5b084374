package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "hitdex"

// Hit outcomes at the ingestion boundary.
const (
	HitAccepted    = "accepted"
	HitMalformed   = "malformed"
	HitStopped     = "stopped"
	HitRateLimited = "rate_limited"
)

// Engine Prometheus metrics.
var (
	HitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hits_total",
			Help:      "Hits seen at the ingestion boundary by outcome",
		},
		[]string{"outcome"},
	)

	GroupsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_created_total",
			Help:      "Groups created by grouping path",
		},
		[]string{"path"}, // "identity" / "approximate"
	)

	MergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "Hits merged into an existing group by grouping path",
		},
		[]string{"path"},
	)

	MatchOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_outcomes_total",
			Help:      "Approximate matcher comparisons by outcome",
		},
		[]string{"outcome"},
	)

	RowMovesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_moves_total",
			Help:      "Rows relocated after a sort key change",
		},
	)

	FilterRebuildsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_rebuilds_total",
			Help:      "Store rebuilds triggered by a filter change",
		},
	)

	IdentityCollisionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_collisions_total",
			Help:      "Identity matches with a differing extension or size",
		},
	)

	IndexInconsistenciesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_inconsistencies_total",
			Help:      "Side index divergences detected; each one rebuilds the session",
		},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently held by the registry",
		},
	)
)

var engineMetricsRegistered bool

// RegisterEngineMetrics registers the engine metrics. Must be called once from main.
func RegisterEngineMetrics() {
	if engineMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		HitsTotal,
		GroupsCreatedTotal,
		MergesTotal,
		MatchOutcomesTotal,
		RowMovesTotal,
		FilterRebuildsTotal,
		IdentityCollisionsTotal,
		IndexInconsistenciesTotal,
		SessionsActive,
	)
	engineMetricsRegistered = true
}

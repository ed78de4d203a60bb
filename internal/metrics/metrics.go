// Package metrics exposes the witness pipeline's Prometheus instrumentation:
// per-tick timing, packet-budget consumption, and membership size, so an
// operator can see AOI replication cost without reading logs.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TickDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "witness",
		Name:      "tick_duration_seconds",
		Help:      "Time spent in one witness's update() call.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"phase"})

	BudgetUsedBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "witness",
		Name:      "tick_budget_used_bytes",
		Help:      "Bytes written into a witness's per-tick aggregate bundle.",
		Buckets:   []float64{64, 256, 1024, 4096, 16384, 65536},
	})

	BudgetOverruns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "witness",
		Name:      "tick_budget_overruns_total",
		Help:      "Ticks whose aggregate bundle exceeded PACKET_MAX_SIZE_TCP (warn-and-send path).",
	})

	EntitiesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "witness",
		Name:      "entities_processed_total",
		Help:      "EntityRefs walked across every witness's update().",
	})

	MembershipSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "witness",
		Name:      "membership_size",
		Help:      "AOIMembership size observed at the start of a witness's update().",
		Buckets:   []float64{1, 8, 32, 64, 128, 255, 512},
	})

	AliasFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "witness",
		Name:      "alias_fallbacks_total",
		Help:      "Entity ids written as full 32-bit ids because membership exceeded 255 or aliasing is disabled.",
	})
)

// MustRegister registers every collector against reg. Called once at
// process startup; a duplicate registration is a programmer error and
// panics, matching prometheus's own client idiom.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		TickDuration,
		BudgetUsedBytes,
		BudgetOverruns,
		EntitiesProcessed,
		MembershipSize,
		AliasFallbacks,
	)
}

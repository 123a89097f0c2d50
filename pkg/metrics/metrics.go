package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Materialization metrics
	MaterializeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warp_materialize_duration_seconds",
			Help:    "Time taken to materialize a graph state from checkpoint + chains",
			Buckets: prometheus.DefBuckets,
		},
	)

	MaterializeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warp_materialize_total",
			Help: "Total number of materialize calls by outcome",
		},
		[]string{"outcome"},
	)

	PatchesFoldedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warp_patches_folded_total",
			Help: "Total number of patches folded into a graph state",
		},
	)

	// Chain loader metrics
	ChainLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warp_chain_load_duration_seconds",
			Help:    "Time taken to walk a single writer's patch chain",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Checkpoint cache metrics
	CheckpointsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warp_checkpoints_created_total",
			Help: "Total number of checkpoints successfully created",
		},
	)

	CheckpointsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warp_checkpoints_failed_total",
			Help: "Total number of checkpoint creation attempts that failed",
		},
	)

	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warp_checkpoint_cache_lookups_total",
			Help: "Total cache lookups by result (hit, miss, self_heal)",
		},
		[]string{"result"},
	)

	CacheHitRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warp_checkpoint_cache_hit_ratio",
			Help: "Rolling hit ratio of the checkpoint cache",
		},
	)

	CacheEntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warp_checkpoint_cache_entries",
			Help: "Current number of entries held in the checkpoint cache index",
		},
	)

	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warp_checkpoint_cache_evictions_total",
			Help: "Total number of LRU evictions performed by the checkpoint cache",
		},
	)

	// Sync protocol metrics
	SyncPatchesAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warp_sync_patches_applied_total",
			Help: "Total number of patches applied while processing a sync response",
		},
	)

	SyncWritersSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warp_sync_writers_skipped_total",
			Help: "Total number of writers skipped during sync due to detected divergence",
		},
	)

	// Wormhole metrics
	WormholesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warp_wormholes_created_total",
			Help: "Total number of wormholes created",
		},
	)

	WormholesComposedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warp_wormholes_composed_total",
			Help: "Total number of wormhole compositions performed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		MaterializeDuration,
		MaterializeTotal,
		PatchesFoldedTotal,
		ChainLoadDuration,
		CheckpointsCreatedTotal,
		CheckpointsFailedTotal,
		CacheLookupsTotal,
		CacheHitRatio,
		CacheEntriesTotal,
		CacheEvictionsTotal,
		SyncPatchesAppliedTotal,
		SyncWritersSkippedTotal,
		WormholesCreatedTotal,
		WormholesComposedTotal,
	)
}

// Handler returns the Prometheus HTTP handler for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to the histogram
// selected by labels within histogramVec.
func (t *Timer) ObserveDurationVec(histogramVec *prometheus.HistogramVec, labels ...string) {
	histogramVec.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

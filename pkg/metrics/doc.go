/*
Package metrics defines and registers the Prometheus metrics for warp's
materialization, checkpoint cache, sync, and wormhole subsystems.

Metrics are package-level prometheus.Collector values, registered with
the default registry at init time and exposed for scraping via
Handler(). The Timer helper times an operation and reports the elapsed
duration to a histogram, matching the pattern used throughout the
engine:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.MaterializeDuration)

Naming follows the warp_<subsystem>_<thing>_<unit> convention:
warp_materialize_duration_seconds, warp_checkpoint_cache_entries,
warp_sync_patches_applied_total, and so on.
*/
package metrics

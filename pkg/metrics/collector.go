package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheSizer is the minimal surface CacheCollector needs from a
// checkpoint cache: the number of entries currently indexed. Declared
// here (rather than importing pkg/checkpoint) to avoid a cyclic
// dependency — pkg/checkpoint already imports pkg/metrics to
// increment its counters.
type CacheSizer interface {
	Keys(ctx context.Context) ([]string, error)
}

// CacheCollector is a prometheus.Collector that samples a checkpoint
// cache's current entry count on every scrape, rather than relying
// solely on the Set-time CacheEntriesTotal gauge update — catching
// drift from sweeper-driven evictions between scrapes.
type CacheCollector struct {
	cache       CacheSizer
	entriesDesc *prometheus.Desc
}

// NewCacheCollector constructs a CacheCollector over cache.
func NewCacheCollector(cache CacheSizer) *CacheCollector {
	return &CacheCollector{
		cache: cache,
		entriesDesc: prometheus.NewDesc(
			"warp_checkpoint_cache_entries_live",
			"Live count of checkpoint cache index entries, sampled at scrape time",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entriesDesc
}

// Collect implements prometheus.Collector.
func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	keys, err := c.cache.Keys(context.Background())
	if err != nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.entriesDesc, prometheus.GaugeValue, float64(len(keys)))
}

package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warp/pkg/log"
)

// Sweeper periodically re-applies LRU eviction to a Cache's index,
// catching entries whose lastAccessedAt drifted past MaxEntries
// between explicit Set calls, via a ticker-driven Start/Stop loop.
type Sweeper struct {
	cache    *Cache
	interval time.Duration
	logger   zerolog.Logger
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewSweeper constructs a Sweeper over cache, running every interval.
func NewSweeper(cache *Cache, interval time.Duration) *Sweeper {
	return &Sweeper{
		cache:    cache,
		interval: interval,
		logger:   log.WithComponent("checkpoint-sweeper"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop terminates the sweep loop.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Msg("checkpoint sweeper started")

	for {
		select {
		case <-ticker.C:
			if err := s.Sweep(); err != nil {
				s.logger.Error().Err(err).Msg("checkpoint sweep cycle failed")
			}
		case <-s.stopCh:
			s.logger.Info().Msg("checkpoint sweeper stopped")
			return
		}
	}
}

// Sweep runs one eviction pass immediately, trimming the cache index
// down to its MaxEntries bound. The background loop calls it on every
// tick; cmd/warp's cache sweep command calls it one-shot.
func (s *Sweeper) Sweep() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.cache.mutate(ctx, func(idx index) index {
		evict(idx, s.cache.maxEntries())
		return idx
	})
}

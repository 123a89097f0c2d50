// Package checkpoint implements CheckpointCache: a
// CAS-backed snapshot store keyed by "v1:t<ceiling>-<frontierHash>",
// with LRU eviction and self-healing reads over a simple
// get/put/delete index, plus an optional ticker-driven sweeper in
// sweeper.go.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cuemby/warp/pkg/metrics"
	"github.com/cuemby/warp/pkg/store"
	"github.com/cuemby/warp/pkg/warperr"
)

// DefaultMaxEntries is the LRU cap applied when a Cache is not given
// an explicit MaxEntries.
const DefaultMaxEntries = 200

// maxIndexRetries bounds the read-modify-write retry loop used to
// tolerate transient ref CAS failures on the index.
const maxIndexRetries = 3

// Entry is one index record.
type Entry struct {
	TreeOID        string    `json:"treeOid"`
	CreatedAt      time.Time `json:"createdAt"`
	Ceiling        uint64    `json:"ceiling"`
	FrontierHash   string    `json:"frontierHash"`
	SizeBytes      int64     `json:"sizeBytes"`
	Codec          string    `json:"codec"`
	SchemaVersion  int       `json:"schemaVersion"`
	LastAccessedAt time.Time `json:"lastAccessedAt,omitempty"`
}

func (e Entry) recency() time.Time {
	if !e.LastAccessedAt.IsZero() {
		return e.LastAccessedAt
	}
	return e.CreatedAt
}

// index is the JSON-encoded blob format stored behind IndexRef, unlike
// every other on-disk structure in this module which uses the
// canonical binary codec.
type index struct {
	Entries map[string]Entry `json:"entries"`
}

// Key formats the cache key for a (ceiling, frontierHash) pair.
func Key(ceiling uint64, frontierHash string) string {
	return fmt.Sprintf("v1:t%d-%s", ceiling, frontierHash)
}

// Cache is a process-local, single-writer checkpoint cache.
type Cache struct {
	Store      store.Store
	IndexRef   string
	MaxEntries int

	lookups uint64
	hits    uint64
}

// NewCache constructs a Cache bound to s, storing its index at
// indexRef.
func NewCache(s store.Store, indexRef string) *Cache {
	return &Cache{Store: s, IndexRef: indexRef, MaxEntries: DefaultMaxEntries}
}

func (c *Cache) maxEntries() int {
	if c.MaxEntries > 0 {
		return c.MaxEntries
	}
	return DefaultMaxEntries
}

func (c *Cache) readIndex(ctx context.Context) (index, string, bool, error) {
	oid, ok, err := c.Store.ReadRef(ctx, c.IndexRef)
	if err != nil {
		return index{}, "", false, err
	}
	if !ok {
		return index{Entries: make(map[string]Entry)}, "", false, nil
	}
	data, err := c.Store.ReadBlob(ctx, oid)
	if err != nil {
		return index{}, "", false, err
	}
	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return index{}, "", false, warperr.Wrap(warperr.KindValidation, warperr.CodeInvalidOp,
			"checkpoint index blob is corrupt", nil, err)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]Entry)
	}
	return idx, oid, true, nil
}

func (c *Cache) writeIndex(ctx context.Context, idx index, expectedOID string, expectedOK bool) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	oid, err := c.Store.WriteBlob(ctx, data)
	if err != nil {
		return err
	}
	return c.Store.CompareAndSwapRef(ctx, c.IndexRef, oid, expectedOID, expectedOK)
}

// mutate applies fn to the current index and writes back the result,
// retrying up to maxIndexRetries times with a fresh read between
// attempts on a CAS conflict.
func (c *Cache) mutate(ctx context.Context, fn func(idx index) index) error {
	var lastErr error
	for attempt := 0; attempt < maxIndexRetries; attempt++ {
		idx, oid, existed, err := c.readIndex(ctx)
		if err != nil {
			return err
		}
		updated := fn(idx)
		if err := c.writeIndex(ctx, updated, oid, existed); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return warperr.Wrap(warperr.KindTransient, warperr.CodeInvalidOp,
		"checkpoint index update failed after retries", map[string]any{"ref": c.IndexRef}, lastErr)
}

// Has reports whether key has an index entry.
func (c *Cache) Has(ctx context.Context, key string) (bool, error) {
	idx, _, _, err := c.readIndex(ctx)
	if err != nil {
		return false, err
	}
	_, ok := idx.Entries[key]
	return ok, nil
}

// Keys returns every key currently indexed.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	idx, _, _, err := c.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(idx.Entries))
	for k := range idx.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Get returns the snapshot bytes for key, or (nil, false, nil) if
// absent. If the index entry exists but the backing tree/blob cannot
// be restored (e.g. externally garbage-collected), the entry is
// self-healingly removed from the index and (nil, false, nil) is
// returned rather than an error.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	idx, _, _, err := c.readIndex(ctx)
	if err != nil {
		return nil, false, err
	}
	c.lookups++
	entry, ok := idx.Entries[key]
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		metrics.CacheHitRatio.Set(float64(c.hits) / float64(c.lookups))
		return nil, false, nil
	}

	data, restoreErr := restore(ctx, c.Store, entry.TreeOID)
	if restoreErr != nil {
		metrics.CacheLookupsTotal.WithLabelValues("self_heal").Inc()
		metrics.CacheHitRatio.Set(float64(c.hits) / float64(c.lookups))
		_ = c.mutate(ctx, func(idx index) index {
			delete(idx.Entries, key)
			return idx
		})
		return nil, false, nil
	}

	entry.LastAccessedAt = time.Now().UTC()
	if err := c.mutate(ctx, func(idx index) index {
		idx.Entries[key] = entry
		return idx
	}); err != nil {
		return nil, false, err
	}

	c.hits++
	metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	metrics.CacheHitRatio.Set(float64(c.hits) / float64(c.lookups))
	return data, true, nil
}

// Set stores data under key with the given metadata, then applies LRU
// eviction down to MaxEntries.
func (c *Cache) Set(ctx context.Context, key string, data []byte, ceiling uint64, frontierHash string) error {
	treeOID, err := writeSnapshot(ctx, c.Store, data)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	newEntry := Entry{
		TreeOID: treeOID, CreatedAt: now, Ceiling: ceiling,
		FrontierHash: frontierHash, SizeBytes: int64(len(data)),
		Codec: "cbor", SchemaVersion: 1, LastAccessedAt: now,
	}

	var finalCount int
	err = c.mutate(ctx, func(idx index) index {
		idx.Entries[key] = newEntry
		evict(idx, c.maxEntries())
		finalCount = len(idx.Entries)
		return idx
	})
	if err != nil {
		metrics.CheckpointsFailedTotal.Inc()
		return err
	}
	metrics.CheckpointsCreatedTotal.Inc()
	metrics.CacheEntriesTotal.Set(float64(finalCount))
	return nil
}

// Delete removes key from the index. Missing keys are a no-op.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.mutate(ctx, func(idx index) index {
		delete(idx.Entries, key)
		return idx
	})
}

// Clear empties the index entirely.
func (c *Cache) Clear(ctx context.Context) error {
	return c.mutate(ctx, func(index) index {
		return index{Entries: make(map[string]Entry)}
	})
}

// evict removes the least-recently-used entries in place until the
// index holds at most max entries.
func evict(idx index, max int) {
	if len(idx.Entries) <= max {
		return
	}
	type keyed struct {
		key     string
		recency time.Time
	}
	all := make([]keyed, 0, len(idx.Entries))
	for k, e := range idx.Entries {
		all = append(all, keyed{key: k, recency: e.recency()})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].recency.Before(all[j].recency) })

	toEvict := len(all) - max
	for i := 0; i < toEvict; i++ {
		delete(idx.Entries, all[i].key)
		metrics.CacheEvictionsTotal.Inc()
	}
}

// writeSnapshot and restore treat the snapshot payload as an external
// collaborator: a content-addressed tree with a single
// chunked blob entry, built directly on the module's own BlobPort and
// TreePort rather than a bespoke chunking scheme.
func writeSnapshot(ctx context.Context, s store.Store, data []byte) (string, error) {
	blobOID, err := s.WriteBlob(ctx, data)
	if err != nil {
		return "", err
	}
	return s.WriteTree(ctx, []store.TreeEntry{{Mode: "100644", OID: blobOID, Path: "snapshot.cbor"}})
}

func restore(ctx context.Context, s store.Store, treeOID string) ([]byte, error) {
	files, err := s.ReadTree(ctx, treeOID)
	if err != nil {
		return nil, err
	}
	data, ok := files["snapshot.cbor"]
	if !ok {
		return nil, warperr.New(warperr.KindNotFound, warperr.CodeInvalidOp,
			"snapshot tree is missing its payload entry", map[string]any{"tree": treeOID})
	}
	return data, nil
}

// Package boltstore implements the store ports (pkg/store) on top of
// an embedded BoltDB file, one bucket per concern: the five
// object-store ports (commits, blobs, trees, refs, config) with
// content-addressed keys.
package boltstore

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/warp/pkg/codec"
	"github.com/cuemby/warp/pkg/store"
	"github.com/cuemby/warp/pkg/warperr"
)

var (
	bucketCommits = []byte("commits")
	bucketBlobs   = []byte("blobs")
	bucketTrees   = []byte("trees")
	bucketRefs    = []byte("refs")
	bucketConfig  = []byte("config")
)

// commitRecord is the on-disk encoding of one commit, keyed by its
// content-derived sha.
type commitRecord struct {
	Message string    `cbor:"message"`
	Parents []string  `cbor:"parents"`
	TreeOID string    `cbor:"tree_oid"`
	Author  string    `cbor:"author"`
	Date    time.Time `cbor:"date"`
}

// Store implements store.Store against a single BoltDB file.
type Store struct {
	db     *bolt.DB
	author string
}

// Open opens (creating if necessary) a BoltDB file at dataDir/warp.db
// and ensures every bucket this adapter needs exists.
func Open(dataDir, author string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "warp.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open warp store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketCommits, bucketBlobs, bucketTrees, bucketRefs, bucketConfig} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if author == "" {
		author = "warp"
	}
	return &Store{db: db, author: author}, nil
}

// Close releases the underlying BoltDB file.
func (s *Store) Close() error {
	return s.db.Close()
}

func oidOf(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// CommitNode implements store.CommitPort.
func (s *Store) CommitNode(ctx context.Context, in store.CommitInput) (string, error) {
	return s.commitNodeWithTree(ctx, "", in.Parents, in.Message)
}

// CommitNodeWithTree implements store.CommitPort.
func (s *Store) CommitNodeWithTree(ctx context.Context, in store.CommitTreeInput) (string, error) {
	return s.commitNodeWithTree(ctx, in.TreeOID, in.Parents, in.Message)
}

func (s *Store) commitNodeWithTree(_ context.Context, treeOID string, parents []string, message string) (string, error) {
	rec := commitRecord{
		Message: message,
		Parents: append([]string{}, parents...),
		TreeOID: treeOID,
		Author:  s.author,
		Date:    time.Now().UTC(),
	}
	blob, err := codec.Marshal(rec)
	if err != nil {
		return "", err
	}
	sha := oidOf(blob)

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCommits).Put([]byte(sha), blob)
	})
	if err != nil {
		return "", err
	}
	return sha, nil
}

// ShowNode implements store.CommitPort.
func (s *Store) ShowNode(ctx context.Context, sha string) (string, error) {
	meta, err := s.GetNodeInfo(ctx, sha)
	if err != nil {
		return "", err
	}
	return meta.Message, nil
}

// GetNodeInfo implements store.CommitPort.
func (s *Store) GetNodeInfo(_ context.Context, sha string) (store.CommitMeta, error) {
	var rec commitRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCommits).Get([]byte(sha))
		if data == nil {
			return warperr.New(warperr.KindNotFound, warperr.CodeInvalidOp,
				"commit not found", map[string]any{"sha": sha})
		}
		return codec.Unmarshal(data, &rec)
	})
	if err != nil {
		return store.CommitMeta{}, err
	}
	return store.CommitMeta{
		SHA: sha, Message: rec.Message, Author: rec.Author,
		Date: rec.Date, Parents: rec.Parents,
	}, nil
}

// LogNodes implements store.CommitPort with a simple first-parent
// newline-joined listing, oldest last.
func (s *Store) LogNodes(ctx context.Context, opts store.LogOptions) (string, error) {
	var lines []string
	sha := opts.Ref
	for i := 0; (opts.Limit <= 0 || i < opts.Limit) && sha != ""; i++ {
		meta, err := s.GetNodeInfo(ctx, sha)
		if err != nil {
			break
		}
		lines = append(lines, fmt.Sprintf("%s %s", meta.SHA, meta.Message))
		if len(meta.Parents) == 0 {
			break
		}
		sha = meta.Parents[0]
	}
	return strings.Join(lines, "\n"), nil
}

// LogNodesStream implements store.CommitPort by wrapping LogNodes'
// text in a reader.
func (s *Store) LogNodesStream(ctx context.Context, opts store.LogOptions) (io.ReadCloser, error) {
	text, err := s.LogNodes(ctx, opts)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader([]byte(text))), nil
}

// CountNodes implements store.CommitPort.
func (s *Store) CountNodes(ctx context.Context, ref string) (int, error) {
	count := 0
	sha, ok, err := s.ReadRef(ctx, ref)
	if err != nil || !ok {
		return 0, err
	}
	for sha != "" {
		meta, err := s.GetNodeInfo(ctx, sha)
		if err != nil {
			break
		}
		count++
		if len(meta.Parents) == 0 {
			break
		}
		sha = meta.Parents[0]
	}
	return count, nil
}

// NodeExists implements store.CommitPort.
func (s *Store) NodeExists(_ context.Context, sha string) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bucketCommits).Get([]byte(sha)) != nil
		return nil
	})
	return exists, err
}

// GetCommitTree implements store.CommitPort.
func (s *Store) GetCommitTree(_ context.Context, sha string) (string, error) {
	var rec commitRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCommits).Get([]byte(sha))
		if data == nil {
			return warperr.New(warperr.KindNotFound, warperr.CodeInvalidOp,
				"commit not found", map[string]any{"sha": sha})
		}
		return codec.Unmarshal(data, &rec)
	})
	if err != nil {
		return "", err
	}
	return rec.TreeOID, nil
}

// Ping implements store.CommitPort.
func (s *Store) Ping(context.Context) (store.PingResult, error) {
	start := time.Now()
	err := s.db.View(func(tx *bolt.Tx) error { return nil })
	if err != nil {
		return store.PingResult{OK: false}, err
	}
	return store.PingResult{OK: true, LatencyMs: time.Since(start).Milliseconds()}, nil
}

// WriteBlob implements store.BlobPort: identical bytes always produce
// the same oid because the key is derived from the content itself.
func (s *Store) WriteBlob(_ context.Context, data []byte) (string, error) {
	oid := oidOf(data)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlobs).Put([]byte(oid), data)
	})
	if err != nil {
		return "", err
	}
	return oid, nil
}

// ReadBlob implements store.BlobPort.
func (s *Store) ReadBlob(_ context.Context, oid string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlobs).Get([]byte(oid))
		if v == nil {
			return warperr.New(warperr.KindNotFound, warperr.CodeInvalidOp,
				"blob not found", map[string]any{"oid": oid})
		}
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

// treeRecord is the on-disk encoding of a tree: its entries sorted by
// path, so two trees with the same entries always hash identically.
type treeRecord struct {
	Entries []store.TreeEntry `cbor:"entries"`
}

// WriteTree implements store.TreePort.
func (s *Store) WriteTree(_ context.Context, entries []store.TreeEntry) (string, error) {
	sorted := append([]store.TreeEntry{}, entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	blob, err := codec.Marshal(treeRecord{Entries: sorted})
	if err != nil {
		return "", err
	}
	oid := oidOf(blob)
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTrees).Put([]byte(oid), blob)
	})
	if err != nil {
		return "", err
	}
	return oid, nil
}

func (s *Store) readTreeRecord(treeOID string) (treeRecord, error) {
	if treeOID == store.EmptyTree {
		return treeRecord{}, nil
	}
	var rec treeRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTrees).Get([]byte(treeOID))
		if data == nil {
			return warperr.New(warperr.KindNotFound, warperr.CodeInvalidOp,
				"tree not found", map[string]any{"oid": treeOID})
		}
		return codec.Unmarshal(data, &rec)
	})
	return rec, err
}

// ReadTree implements store.TreePort.
func (s *Store) ReadTree(ctx context.Context, treeOID string) (map[string][]byte, error) {
	rec, err := s.readTreeRecord(treeOID)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(rec.Entries))
	for _, e := range rec.Entries {
		data, err := s.ReadBlob(ctx, e.OID)
		if err != nil {
			return nil, err
		}
		out[e.Path] = data
	}
	return out, nil
}

// ReadTreeOIDs implements store.TreePort.
func (s *Store) ReadTreeOIDs(_ context.Context, treeOID string) (map[string]string, error) {
	rec, err := s.readTreeRecord(treeOID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rec.Entries))
	for _, e := range rec.Entries {
		out[e.Path] = e.OID
	}
	return out, nil
}

// UpdateRef implements store.RefPort.
func (s *Store) UpdateRef(ctx context.Context, ref, oid string) error {
	if !store.ValidRef(ref) {
		return warperr.New(warperr.KindValidation, warperr.CodeInvalidOp,
			"invalid ref name", map[string]any{"ref": ref})
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRefs).Put([]byte(ref), []byte(oid))
	})
}

// ReadRef implements store.RefPort.
func (s *Store) ReadRef(_ context.Context, ref string) (string, bool, error) {
	var oid []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		oid = tx.Bucket(bucketRefs).Get([]byte(ref))
		return nil
	})
	if err != nil {
		return "", false, err
	}
	if oid == nil {
		return "", false, nil
	}
	return string(oid), true, nil
}

// DeleteRef implements store.RefPort.
func (s *Store) DeleteRef(_ context.Context, ref string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRefs).Delete([]byte(ref))
	})
}

// ListRefs implements store.RefPort.
func (s *Store) ListRefs(_ context.Context, prefix string) ([]string, error) {
	var refs []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRefs).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if strings.HasPrefix(string(k), prefix) {
				refs = append(refs, string(k))
			}
		}
		return nil
	})
	return refs, err
}

// CompareAndSwapRef implements store.RefPort.
func (s *Store) CompareAndSwapRef(_ context.Context, ref, newOID, expectedOID string, expectedOK bool) error {
	if !store.ValidRef(ref) {
		return warperr.New(warperr.KindValidation, warperr.CodeInvalidOp,
			"invalid ref name", map[string]any{"ref": ref})
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRefs)
		current := b.Get([]byte(ref))
		switch {
		case !expectedOK && current != nil:
			return warperr.New(warperr.KindConcurrency, warperr.CodeInvalidOp,
				"ref already exists", map[string]any{"ref": ref})
		case expectedOK && (current == nil || string(current) != expectedOID):
			return warperr.New(warperr.KindConcurrency, warperr.CodeInvalidOp,
				"ref compare-and-swap mismatch",
				map[string]any{"ref": ref, "expected": expectedOID})
		}
		return b.Put([]byte(ref), []byte(newOID))
	})
}

// ConfigGet implements store.ConfigPort.
func (s *Store) ConfigGet(_ context.Context, key string) (string, bool, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		value = tx.Bucket(bucketConfig).Get([]byte(key))
		return nil
	})
	if err != nil {
		return "", false, err
	}
	if value == nil {
		return "", false, nil
	}
	return string(value), true, nil
}

// ConfigSet implements store.ConfigPort.
func (s *Store) ConfigSet(_ context.Context, key, value string) error {
	if !store.ValidConfigKey(key) {
		return warperr.New(warperr.KindValidation, warperr.CodeInvalidOp,
			"invalid config key", map[string]any{"key": key})
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConfig).Put([]byte(key), []byte(value))
	})
}

var _ store.Store = (*Store)(nil)

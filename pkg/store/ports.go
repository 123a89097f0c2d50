// Package store declares the object-store ports the engine consumes
//: five narrow interfaces over an external, content-
// addressed commit/blob/tree/ref store. The store itself is explicitly
// out of scope; this package only types the boundary and validates the
// identifiers that cross it. Concrete adapters live in sibling
// packages (pkg/store/boltstore, pkg/store/gitstore).
package store

import (
	"context"
	"io"
	"regexp"
	"time"
)

// EmptyTree is the well-known oid of an empty tree, shared by every
// content-addressed store built on the same hashing scheme git uses.
const EmptyTree = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

var (
	oidPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)
	refPattern = regexp.MustCompile(`^(refs|HEAD)([A-Za-z0-9/_.-]+)?$`)
	cfgPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)
)

// ValidOID reports whether oid is a 40-character lowercase hex string.
func ValidOID(oid string) bool {
	return oidPattern.MatchString(oid)
}

// ValidRef reports whether ref matches the accepted ref grammar and
// does not begin with a dash (which some store backends would
// misparse as a flag).
func ValidRef(ref string) bool {
	if len(ref) == 0 || ref[0] == '-' {
		return false
	}
	return refPattern.MatchString(ref)
}

// ValidConfigKey reports whether key matches git's section.key
// pattern.
func ValidConfigKey(key string) bool {
	return cfgPattern.MatchString(key)
}

// CommitMeta is the subset of commit metadata the engine needs back
// from the store.
type CommitMeta struct {
	SHA     string
	Message string
	Author  string
	Date    time.Time
	Parents []string
}

// CommitInput describes a new commit to create.
type CommitInput struct {
	Message string
	Parents []string
	Sign    bool
}

// CommitTreeInput describes a new commit to create directly against a
// prebuilt tree, bypassing index construction.
type CommitTreeInput struct {
	TreeOID string
	Parents []string
	Message string
	Sign    bool
}

// LogOptions bounds a commit-log query.
type LogOptions struct {
	Ref   string
	Limit int
}

// PingResult reports basic store liveness.
type PingResult struct {
	OK        bool
	LatencyMs int64
}

// CommitPort creates and inspects commits.
type CommitPort interface {
	CommitNode(ctx context.Context, in CommitInput) (string, error)
	CommitNodeWithTree(ctx context.Context, in CommitTreeInput) (string, error)
	ShowNode(ctx context.Context, sha string) (string, error)
	GetNodeInfo(ctx context.Context, sha string) (CommitMeta, error)
	LogNodes(ctx context.Context, opts LogOptions) (string, error)
	LogNodesStream(ctx context.Context, opts LogOptions) (io.ReadCloser, error)
	CountNodes(ctx context.Context, ref string) (int, error)
	NodeExists(ctx context.Context, sha string) (bool, error)
	GetCommitTree(ctx context.Context, sha string) (string, error)
	Ping(ctx context.Context) (PingResult, error)
}

// BlobPort stores and retrieves content-addressed blobs. Writing
// identical bytes twice MUST produce the same oid.
type BlobPort interface {
	WriteBlob(ctx context.Context, data []byte) (string, error)
	ReadBlob(ctx context.Context, oid string) ([]byte, error)
}

// TreeEntry is one line of a tree listing in the git-style
// "<mode> blob <oid>\t<path>" form.
type TreeEntry struct {
	Mode string
	OID  string
	Path string
}

// TreePort builds and reads trees.
type TreePort interface {
	WriteTree(ctx context.Context, entries []TreeEntry) (string, error)
	ReadTree(ctx context.Context, treeOID string) (map[string][]byte, error)
	ReadTreeOIDs(ctx context.Context, treeOID string) (map[string]string, error)
}

// RefPort manages named references.
type RefPort interface {
	UpdateRef(ctx context.Context, ref, oid string) error
	ReadRef(ctx context.Context, ref string) (string, bool, error)
	DeleteRef(ctx context.Context, ref string) error
	ListRefs(ctx context.Context, prefix string) ([]string, error)
	// CompareAndSwapRef atomically sets ref to newOID iff its current
	// value equals expectedOID. expectedOK=false means "ref must not
	// exist yet".
	CompareAndSwapRef(ctx context.Context, ref, newOID, expectedOID string, expectedOK bool) error
}

// ConfigPort reads and writes store-level configuration.
type ConfigPort interface {
	ConfigGet(ctx context.Context, key string) (string, bool, error)
	ConfigSet(ctx context.Context, key, value string) error
}

// Store bundles all five ports, the shape every adapter in this
// module implements.
type Store interface {
	CommitPort
	BlobPort
	TreePort
	RefPort
	ConfigPort
}

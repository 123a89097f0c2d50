// Package gitstore implements the store ports (pkg/store) directly
// against a real, on-disk git object database using go-git's plumbing
// layer rather than its porcelain (no working tree, no index). Every
// commit, tree, and blob this adapter writes is a genuine git object;
// any standard git client can inspect the resulting repository.
//
// Uses go-git/v5's plumbing/object packages to walk and decode commits
// directly, one level below a read-only walker since this adapter also
// has to construct objects, not just read them.
package gitstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/cuemby/warp/pkg/store"
	"github.com/cuemby/warp/pkg/warperr"
)

// Store implements store.Store directly against go-git's plumbing
// storer for a bare repository rooted at a filesystem directory.
type Store struct {
	storer storer.Storer
	author string
}

// Open opens (initializing if necessary) a bare git object database
// at dir.
func Open(dir, author string) (*Store, error) {
	fs := osfs.New(dir)
	st := filesystem.NewStorage(fs, cache.NewObjectLRUDefault())
	if author == "" {
		author = "warp"
	}
	return &Store{storer: st, author: author}, nil
}

func notFound(kind, id string) error {
	return warperr.New(warperr.KindNotFound, warperr.CodeInvalidOp,
		kind+" not found", map[string]any{"id": id})
}

func (s *Store) signature() object.Signature {
	return object.Signature{Name: s.author, Email: s.author + "@warp.local", When: time.Now().UTC()}
}

// CommitNode implements store.CommitPort.
func (s *Store) CommitNode(ctx context.Context, in store.CommitInput) (string, error) {
	return s.commit(in.Message, in.Parents, plumbing.ZeroHash)
}

// CommitNodeWithTree implements store.CommitPort.
func (s *Store) CommitNodeWithTree(ctx context.Context, in store.CommitTreeInput) (string, error) {
	treeHash := plumbing.ZeroHash
	if in.TreeOID != "" && in.TreeOID != store.EmptyTree {
		treeHash = plumbing.NewHash(in.TreeOID)
	}
	return s.commit(in.Message, in.Parents, treeHash)
}

func (s *Store) commit(message string, parents []string, treeHash plumbing.Hash) (string, error) {
	parentHashes := make([]plumbing.Hash, 0, len(parents))
	for _, p := range parents {
		parentHashes = append(parentHashes, plumbing.NewHash(p))
	}

	sig := s.signature()
	c := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     treeHash,
		ParentHashes: parentHashes,
	}

	obj := s.storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		return "", fmt.Errorf("encode commit: %w", err)
	}
	hash, err := s.storer.SetEncodedObject(obj)
	if err != nil {
		return "", fmt.Errorf("store commit: %w", err)
	}
	return hash.String(), nil
}

// ShowNode implements store.CommitPort.
func (s *Store) ShowNode(ctx context.Context, sha string) (string, error) {
	meta, err := s.GetNodeInfo(ctx, sha)
	if err != nil {
		return "", err
	}
	return meta.Message, nil
}

func (s *Store) decodeCommit(sha string) (*object.Commit, error) {
	hash := plumbing.NewHash(sha)
	obj, err := s.storer.EncodedObject(plumbing.CommitObject, hash)
	if err != nil {
		return nil, notFound("commit", sha)
	}
	return object.DecodeCommit(s.storer, obj)
}

// GetNodeInfo implements store.CommitPort.
func (s *Store) GetNodeInfo(_ context.Context, sha string) (store.CommitMeta, error) {
	c, err := s.decodeCommit(sha)
	if err != nil {
		return store.CommitMeta{}, err
	}
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return store.CommitMeta{
		SHA:     sha,
		Message: c.Message,
		Author:  c.Author.Name,
		Date:    c.Author.When,
		Parents: parents,
	}, nil
}

// LogNodes implements store.CommitPort by walking the first-parent
// chain starting at opts.Ref, which is taken as a commit sha; it is not
// resolved as a ref name.
func (s *Store) LogNodes(ctx context.Context, opts store.LogOptions) (string, error) {
	sha := opts.Ref
	var lines []string
	for i := 0; (opts.Limit <= 0 || i < opts.Limit) && sha != "" && sha != plumbing.ZeroHash.String(); i++ {
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

// LogNodesStream implements store.CommitPort.
func (s *Store) LogNodesStream(ctx context.Context, opts store.LogOptions) (io.ReadCloser, error) {
	text, err := s.LogNodes(ctx, opts)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader([]byte(text))), nil
}

// CountNodes implements store.CommitPort.
func (s *Store) CountNodes(ctx context.Context, ref string) (int, error) {
	sha, ok, err := s.ReadRef(ctx, ref)
	if err != nil || !ok {
		return 0, err
	}
	count := 0
	for sha != "" && sha != plumbing.ZeroHash.String() {
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
	_, err := s.storer.EncodedObject(plumbing.CommitObject, plumbing.NewHash(sha))
	return err == nil, nil
}

// GetCommitTree implements store.CommitPort.
func (s *Store) GetCommitTree(ctx context.Context, sha string) (string, error) {
	c, err := s.decodeCommit(sha)
	if err != nil {
		return "", err
	}
	if c.TreeHash == plumbing.ZeroHash {
		return store.EmptyTree, nil
	}
	return c.TreeHash.String(), nil
}

// Ping implements store.CommitPort.
func (s *Store) Ping(context.Context) (store.PingResult, error) {
	start := time.Now()
	if _, err := s.storer.Config(); err != nil {
		return store.PingResult{OK: false}, err
	}
	return store.PingResult{OK: true, LatencyMs: time.Since(start).Milliseconds()}, nil
}

// WriteBlob implements store.BlobPort. go-git's object store is
// already content-addressed, so identical bytes always hash to the
// same oid without any extra bookkeeping here.
func (s *Store) WriteBlob(_ context.Context, data []byte) (string, error) {
	obj := s.storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return "", err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	hash, err := s.storer.SetEncodedObject(obj)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

// ReadBlob implements store.BlobPort.
func (s *Store) ReadBlob(_ context.Context, oid string) ([]byte, error) {
	obj, err := s.storer.EncodedObject(plumbing.BlobObject, plumbing.NewHash(oid))
	if err != nil {
		return nil, notFound("blob", oid)
	}
	blob := &object.Blob{}
	if err := blob.Decode(obj); err != nil {
		return nil, err
	}
	r, err := blob.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// WriteTree implements store.TreePort.
func (s *Store) WriteTree(_ context.Context, entries []store.TreeEntry) (string, error) {
	if len(entries) == 0 {
		return store.EmptyTree, nil
	}

	sorted := append([]store.TreeEntry{}, entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	treeEntries := make([]object.TreeEntry, 0, len(sorted))
	for _, e := range sorted {
		mode := filemode.Regular
		treeEntries = append(treeEntries, object.TreeEntry{
			Name: e.Path,
			Mode: mode,
			Hash: plumbing.NewHash(e.OID),
		})
	}

	tree := &object.Tree{Entries: treeEntries}
	obj := s.storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return "", err
	}
	hash, err := s.storer.SetEncodedObject(obj)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

func (s *Store) decodeTree(treeOID string) (*object.Tree, error) {
	obj, err := s.storer.EncodedObject(plumbing.TreeObject, plumbing.NewHash(treeOID))
	if err != nil {
		return nil, notFound("tree", treeOID)
	}
	return object.DecodeTree(s.storer, obj)
}

// ReadTree implements store.TreePort.
func (s *Store) ReadTree(ctx context.Context, treeOID string) (map[string][]byte, error) {
	if treeOID == store.EmptyTree {
		return map[string][]byte{}, nil
	}
	tree, err := s.decodeTree(treeOID)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(tree.Entries))
	for _, e := range tree.Entries {
		data, err := s.ReadBlob(ctx, e.Hash.String())
		if err != nil {
			return nil, err
		}
		out[e.Name] = data
	}
	return out, nil
}

// ReadTreeOIDs implements store.TreePort.
func (s *Store) ReadTreeOIDs(_ context.Context, treeOID string) (map[string]string, error) {
	if treeOID == store.EmptyTree {
		return map[string]string{}, nil
	}
	tree, err := s.decodeTree(treeOID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(tree.Entries))
	for _, e := range tree.Entries {
		out[e.Name] = e.Hash.String()
	}
	return out, nil
}

// UpdateRef implements store.RefPort.
func (s *Store) UpdateRef(_ context.Context, ref, oid string) error {
	if !store.ValidRef(ref) {
		return warperr.New(warperr.KindValidation, warperr.CodeInvalidOp,
			"invalid ref name", map[string]any{"ref": ref})
	}
	r := plumbing.NewHashReference(plumbing.ReferenceName(ref), plumbing.NewHash(oid))
	return s.storer.SetReference(r)
}

// ReadRef implements store.RefPort.
func (s *Store) ReadRef(_ context.Context, ref string) (string, bool, error) {
	r, err := s.storer.Reference(plumbing.ReferenceName(ref))
	if err != nil {
		return "", false, nil
	}
	return r.Hash().String(), true, nil
}

// DeleteRef implements store.RefPort.
func (s *Store) DeleteRef(_ context.Context, ref string) error {
	return s.storer.RemoveReference(plumbing.ReferenceName(ref))
}

// ListRefs implements store.RefPort.
func (s *Store) ListRefs(_ context.Context, prefix string) ([]string, error) {
	iter, err := s.storer.IterReferences()
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var refs []string
	err = iter.ForEach(func(r *plumbing.Reference) error {
		name := string(r.Name())
		if strings.HasPrefix(name, prefix) {
			refs = append(refs, name)
		}
		return nil
	})
	return refs, err
}

// CompareAndSwapRef implements store.RefPort using go-git's native
// check-and-set reference update. go-git does no check when given no
// old value, so the must-not-exist case reads the ref first.
func (s *Store) CompareAndSwapRef(_ context.Context, ref, newOID, expectedOID string, expectedOK bool) error {
	if !store.ValidRef(ref) {
		return warperr.New(warperr.KindValidation, warperr.CodeInvalidOp,
			"invalid ref name", map[string]any{"ref": ref})
	}
	newRef := plumbing.NewHashReference(plumbing.ReferenceName(ref), plumbing.NewHash(newOID))

	var oldRef *plumbing.Reference
	if expectedOK {
		oldRef = plumbing.NewHashReference(plumbing.ReferenceName(ref), plumbing.NewHash(expectedOID))
	} else if _, err := s.storer.Reference(plumbing.ReferenceName(ref)); err == nil {
		return warperr.New(warperr.KindConcurrency, warperr.CodeInvalidOp,
			"ref compare-and-swap failed: ref already exists", map[string]any{"ref": ref})
	}

	if err := s.storer.CheckAndSetReference(newRef, oldRef); err != nil {
		return warperr.Wrap(warperr.KindConcurrency, warperr.CodeInvalidOp,
			"ref compare-and-swap failed", map[string]any{"ref": ref}, err)
	}
	return nil
}

// warpConfigSection is the git config section warp's own key/value
// pairs are namespaced under, keeping them
// disjoint from git's own sections.
const warpConfigSection = "warp"

// ConfigGet implements store.ConfigPort. Keys are git's
// "section.key" form; anything outside the warp section is read from
// the repository's native config verbatim.
func (s *Store) ConfigGet(_ context.Context, key string) (string, bool, error) {
	cfg, err := s.storer.Config()
	if err != nil {
		return "", false, err
	}
	section, option := splitConfigKey(key)
	value := cfg.Raw.Section(section).Option(option)
	if value == "" {
		return "", false, nil
	}
	return value, true, nil
}

// ConfigSet implements store.ConfigPort.
func (s *Store) ConfigSet(_ context.Context, key, value string) error {
	if !store.ValidConfigKey(key) {
		return warperr.New(warperr.KindValidation, warperr.CodeInvalidOp,
			"invalid config key", map[string]any{"key": key})
	}
	cfg, err := s.storer.Config()
	if err != nil {
		return err
	}
	section, option := splitConfigKey(key)
	cfg.Raw.Section(section).SetOption(option, value)
	return s.storer.SetConfig(cfg)
}

func splitConfigKey(key string) (section, option string) {
	idx := strings.IndexByte(key, '.')
	if idx < 0 {
		return warpConfigSection, key
	}
	return key[:idx], key[idx+1:]
}

var _ store.Store = (*Store)(nil)

// Package refs centralizes the writer, seek-cache and trust-root
// ref-name layout used for every graph this engine manages; pkg/engine,
// pkg/fork and cmd/warp format those refs through it. The checkpoint
// head ref is formatted by pkg/checkpoint.HeadRef instead.
package refs

import "fmt"

// WriterRef is the per-writer patch-chain tip ref.
func WriterRef(graphName, writerID string) string {
	return fmt.Sprintf("refs/warp/%s/writers/%s", graphName, writerID)
}

// WritersPrefix is the ref prefix under which every writer of
// graphName is listed.
func WritersPrefix(graphName string) string {
	return fmt.Sprintf("refs/warp/%s/writers/", graphName)
}

// SeekCacheRef is the checkpoint cache index ref.
func SeekCacheRef(graphName string) string {
	return fmt.Sprintf("refs/warp/%s/seek-cache", graphName)
}

// TrustRootRef is the optional trust-configuration ref; trust/signature
// verification itself is an external collaborator and this
// module never reads or writes it, but the layout constant is kept
// alongside its siblings for completeness.
func TrustRootRef(graphName string) string {
	return fmt.Sprintf("refs/warp/%s/trust/root", graphName)
}

// WriterIDFromRef extracts the writer id suffix from a ref returned by
// ListRefs(WritersPrefix(graphName)).
func WriterIDFromRef(graphName, ref string) string {
	prefix := WritersPrefix(graphName)
	if len(ref) <= len(prefix) {
		return ""
	}
	return ref[len(prefix):]
}

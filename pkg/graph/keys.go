package graph

import (
	"strings"

	"github.com/cuemby/warp/pkg/warperr"
)

// sep is the delimiter used inside encoded edge and property keys. It
// must never appear in a valid identifier.
const sep = "\x00"

// edgePropPrefix marks an edge-property key, disjoint from the node
// namespace because no valid node identifier may begin with this
// byte.
const edgePropPrefix = "\x01"

func containsSeparator(parts ...string) bool {
	for _, p := range parts {
		if strings.Contains(p, sep) {
			return true
		}
	}
	return false
}

func invalidKeyErr(reason string, context map[string]any) error {
	return warperr.New(warperr.KindValidation, warperr.CodeInvalidOp, reason, context)
}

// EncodeEdgeKey encodes (from, to, label) into the string used to key
// edgeAlive. Inputs must not contain the separator byte.
func EncodeEdgeKey(from, to, label string) (string, error) {
	if containsSeparator(from, to, label) {
		return "", invalidKeyErr("edge identifier contains reserved separator byte",
			map[string]any{"from": from, "to": to, "label": label})
	}
	return from + sep + to + sep + label, nil
}

// DecodeEdgeKey is the inverse of EncodeEdgeKey.
func DecodeEdgeKey(key string) (from, to, label string, err error) {
	parts := strings.Split(key, sep)
	if len(parts) != 3 {
		return "", "", "", invalidKeyErr("malformed edge key", map[string]any{"key": key})
	}
	return parts[0], parts[1], parts[2], nil
}

// EncodePropKey encodes a node property key: node ∥ SEP ∥ name.
func EncodePropKey(node, name string) (string, error) {
	if containsSeparator(node, name) {
		return "", invalidKeyErr("property identifier contains reserved separator byte",
			map[string]any{"node": node, "name": name})
	}
	return node + sep + name, nil
}

// DecodePropKey is the inverse of EncodePropKey.
func DecodePropKey(key string) (node, name string, err error) {
	if IsEdgePropKey(key) {
		return "", "", invalidKeyErr("key is an edge-property key, not a node-property key", map[string]any{"key": key})
	}
	parts := strings.Split(key, sep)
	if len(parts) != 2 {
		return "", "", invalidKeyErr("malformed property key", map[string]any{"key": key})
	}
	return parts[0], parts[1], nil
}

// EncodeEdgePropKey encodes an edge-property key:
// EDGE_PROP_PREFIX ∥ from ∥ SEP ∥ to ∥ SEP ∥ label ∥ SEP ∥ name.
func EncodeEdgePropKey(from, to, label, name string) (string, error) {
	if containsSeparator(from, to, label, name) {
		return "", invalidKeyErr("edge-property identifier contains reserved separator byte",
			map[string]any{"from": from, "to": to, "label": label, "name": name})
	}
	return edgePropPrefix + from + sep + to + sep + label + sep + name, nil
}

// DecodeEdgePropKey is the inverse of EncodeEdgePropKey.
func DecodeEdgePropKey(key string) (from, to, label, name string, err error) {
	if !IsEdgePropKey(key) {
		return "", "", "", "", invalidKeyErr("key is not an edge-property key", map[string]any{"key": key})
	}
	rest := strings.TrimPrefix(key, edgePropPrefix)
	parts := strings.Split(rest, sep)
	if len(parts) != 4 {
		return "", "", "", "", invalidKeyErr("malformed edge-property key", map[string]any{"key": key})
	}
	return parts[0], parts[1], parts[2], parts[3], nil
}

// IsEdgePropKey reports whether key belongs to the edge-property
// namespace.
func IsEdgePropKey(key string) bool {
	return strings.HasPrefix(key, edgePropPrefix)
}

package graph

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEdgeKeyRoundTrip(t *testing.T) {
	cases := [][3]string{
		{"alice", "bob", "follows"},
		{"n1", "n1", "self"},
		{"", "b", "l"},
	}
	for _, c := range cases {
		key, err := EncodeEdgeKey(c[0], c[1], c[2])
		require.NoError(t, err)
		from, to, label, err := DecodeEdgeKey(key)
		require.NoError(t, err)
		require.Equal(t, c[0], from)
		require.Equal(t, c[1], to)
		require.Equal(t, c[2], label)
	}
}

func TestEdgeKeyRejectsSeparator(t *testing.T) {
	_, err := EncodeEdgeKey("a\x00b", "c", "d")
	require.Error(t, err)
}

func TestPropKeyRoundTrip(t *testing.T) {
	key, err := EncodePropKey("alice", "age")
	require.NoError(t, err)
	node, name, err := DecodePropKey(key)
	require.NoError(t, err)
	require.Equal(t, "alice", node)
	require.Equal(t, "age", name)
}

func TestEdgePropKeyRoundTrip(t *testing.T) {
	key, err := EncodeEdgePropKey("alice", "bob", "follows", "since")
	require.NoError(t, err)
	require.True(t, IsEdgePropKey(key))

	from, to, label, name, err := DecodeEdgePropKey(key)
	require.NoError(t, err)
	require.Equal(t, "alice", from)
	require.Equal(t, "bob", to)
	require.Equal(t, "follows", label)
	require.Equal(t, "since", name)
}

func TestDecodePropKeyRejectsEdgePropKey(t *testing.T) {
	key, err := EncodeEdgePropKey("a", "b", "l", "k")
	require.NoError(t, err)
	_, _, err = DecodePropKey(key)
	require.Error(t, err)
}

func TestDecodeEdgePropKeyRejectsNodePropKey(t *testing.T) {
	key, err := EncodePropKey("a", "k")
	require.NoError(t, err)
	_, _, _, _, err = DecodeEdgePropKey(key)
	require.Error(t, err)
}

// identRunes is every character random identifiers are drawn from:
// ASCII plus multi-byte runes, none of which is the reserved
// separator or the edge-property prefix byte.
var identRunes = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_.:/@ äöüπλ☃")

func randomIdent(r *rand.Rand) string {
	n := 1 + r.Intn(16)
	out := make([]rune, n)
	for i := range out {
		out[i] = identRunes[r.Intn(len(identRunes))]
	}
	return string(out)
}

// TestKeyEncodingRoundTripsExhaustively exercises the round-trip
// bijection over 10,000 random identifier tuples, the property the
// key scheme must uphold regardless of which characters an
// application chooses for node ids. Seeded so failures reproduce.
func TestKeyEncodingRoundTripsExhaustively(t *testing.T) {
	r := rand.New(rand.NewSource(0x77a9))
	for i := 0; i < 10000; i++ {
		from := randomIdent(r)
		to := randomIdent(r)
		label := randomIdent(r)
		name := randomIdent(r)

		ek, err := EncodeEdgeKey(from, to, label)
		require.NoError(t, err)
		df, dt, dl, err := DecodeEdgeKey(ek)
		require.NoError(t, err)
		require.Equal(t, from, df)
		require.Equal(t, to, dt)
		require.Equal(t, label, dl)

		pk, err := EncodePropKey(from, name)
		require.NoError(t, err)
		dn, dname, err := DecodePropKey(pk)
		require.NoError(t, err)
		require.Equal(t, from, dn)
		require.Equal(t, name, dname)

		epk, err := EncodeEdgePropKey(from, to, label, name)
		require.NoError(t, err)
		ef, et, el, ename, err := DecodeEdgePropKey(epk)
		require.NoError(t, err)
		require.Equal(t, from, ef)
		require.Equal(t, to, et)
		require.Equal(t, label, el)
		require.Equal(t, name, ename)
	}
}

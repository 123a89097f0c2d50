package crdtset

import (
	"testing"

	"github.com/cuemby/warp/pkg/vvector"
	"github.com/stretchr/testify/require"
)

func TestORSetAddContains(t *testing.T) {
	s := NewORSet()
	require.False(t, s.Contains())

	d := vvector.Dot{Writer: "alice", Counter: 1}
	s.Add(d)
	require.True(t, s.Contains())
}

func TestORSetRemoveRequiresObservedDots(t *testing.T) {
	s := NewORSet()
	d1 := vvector.Dot{Writer: "alice", Counter: 1}
	d2 := vvector.Dot{Writer: "bob", Counter: 1}
	s.Add(d1)
	s.Add(d2)

	// removing only one of the two value-dots: still alive.
	s.Remove([]vvector.Dot{d1})
	require.True(t, s.Contains())

	s.Remove([]vvector.Dot{d2})
	require.False(t, s.Contains())
}

func TestORSetMergeUnion(t *testing.T) {
	a := NewORSet()
	a.Add(vvector.Dot{Writer: "alice", Counter: 1})

	b := NewORSet()
	b.Add(vvector.Dot{Writer: "bob", Counter: 1})

	merged := Merge(a, b)
	require.True(t, merged.Contains())
	require.Len(t, merged.ValueDots, 2)
}

func TestORSetMergeDoesNotMutateInputs(t *testing.T) {
	a := NewORSet()
	a.Add(vvector.Dot{Writer: "alice", Counter: 1})
	b := NewORSet()

	_ = Merge(a, b)
	require.Len(t, a.ValueDots, 1)
	require.Len(t, b.ValueDots, 0)
}

func TestLWWRegisterSetPrecedence(t *testing.T) {
	r := &LWWRegister{}
	require.True(t, r.Set("v1", 1, "alice"))
	require.True(t, r.Set("v2", 2, "alice"))
	// lower lamport is rejected
	require.False(t, r.Set("stale", 1, "zeta"))
	require.Equal(t, "v2", r.Value)
}

func TestLWWRegisterTieBreakByWriterID(t *testing.T) {
	r := &LWWRegister{}
	require.True(t, r.Set("from-alice", 5, "alice"))
	// same lamport, higher writer id wins
	require.True(t, r.Set("from-bob", 5, "bob"))
	require.Equal(t, "from-bob", r.Value)
	// same lamport, lower writer id loses
	require.False(t, r.Set("from-aaron", 5, "aaron"))
	require.Equal(t, "from-bob", r.Value)
}

func TestMergeLWW(t *testing.T) {
	a := &LWWRegister{}
	a.Set("a", 3, "alice")
	b := &LWWRegister{}
	b.Set("b", 5, "bob")

	merged := MergeLWW(a, b)
	require.Equal(t, "b", merged.Value)

	require.Equal(t, "a", MergeLWW(a, nil).Value)
	require.Equal(t, "b", MergeLWW(nil, b).Value)
}

package crdtset

// LWWRegister is a last-writer-wins register. Precedence is the
// lexicographic order of (Lamport, WriterID); ties are broken by
// WriterID ascending, which guarantees deterministic convergence under
// concurrent writes to the same property.
type LWWRegister struct {
	Value    any
	Lamport  uint64
	WriterID string
	set      bool
}

// Set applies (value, lamport, writerId) to the register, accepting
// it only if the register is unset or the incoming (lamport, writerId)
// pair strictly exceeds the current one. Returns true if the value was
// accepted.
func (r *LWWRegister) Set(value any, lamport uint64, writerID string) bool {
	if !r.set || greater(lamport, writerID, r.Lamport, r.WriterID) {
		r.Value = value
		r.Lamport = lamport
		r.WriterID = writerID
		r.set = true
		return true
	}
	return false
}

// IsSet reports whether the register has ever been assigned.
func (r *LWWRegister) IsSet() bool {
	return r.set
}

// Clone returns an independent copy of r.
func (r *LWWRegister) Clone() *LWWRegister {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// MergeLWW returns the register that wins between a and b under the
// same precedence rule Set uses. Either input may be nil.
func MergeLWW(a, b *LWWRegister) *LWWRegister {
	switch {
	case a == nil || !a.set:
		return b.Clone()
	case b == nil || !b.set:
		return a.Clone()
	case greater(b.Lamport, b.WriterID, a.Lamport, a.WriterID):
		return b.Clone()
	default:
		return a.Clone()
	}
}

// greater reports whether (lamport1, writer1) strictly exceeds
// (lamport2, writer2) in lexicographic order.
func greater(lamport1 uint64, writer1 string, lamport2 uint64, writer2 string) bool {
	if lamport1 != lamport2 {
		return lamport1 > lamport2
	}
	return writer1 > writer2
}

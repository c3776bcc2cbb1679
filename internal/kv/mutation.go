package kv

// MutationType discriminates the variants of Mutation.
type MutationType int

const (
	// SetValue upserts a single key.
	SetValue MutationType = iota
	// ClearRange removes every key in a half-open range.
	ClearRange
)

// Mutation is one committed write: either a set of a single key or a
// clear of the half-open range [Key, End).
type Mutation struct {
	Type  MutationType
	Key   Key
	Value []byte // set value; nil for clears
	End   Key    // clear-range end; nil for sets
}

// Set builds a SetValue mutation.
func Set(key, value []byte) Mutation {
	return Mutation{Type: SetValue, Key: Key(key), Value: value}
}

// Clear builds a ClearRange mutation over [begin, end).
func Clear(begin, end []byte) Mutation {
	return Mutation{Type: ClearRange, Key: Key(begin), End: Key(end)}
}

// Clone returns a copy that shares no backing storage with m.
func (m Mutation) Clone() Mutation {
	return Mutation{
		Type:  m.Type,
		Key:   m.Key.Clone(),
		Value: append([]byte(nil), m.Value...),
		End:   m.End.Clone(),
	}
}

// MutationBatch holds every mutation committed at one version, in the
// order the transaction issued them.
type MutationBatch struct {
	Version   int64
	Mutations []Mutation
}

// Clone returns a deep copy of the batch.
func (b MutationBatch) Clone() MutationBatch {
	out := MutationBatch{Version: b.Version}
	if b.Mutations != nil {
		out.Mutations = make([]Mutation, len(b.Mutations))
		for i, m := range b.Mutations {
			out.Mutations[i] = m.Clone()
		}
	}
	return out
}

// MutationLog is an ordered sequence of batches in strictly increasing
// version order, spanning a half-open version interval.
type MutationLog []MutationBatch

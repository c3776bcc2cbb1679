// Package kv defines the byte-oriented data model shared by the storage
// engine and the verifier: keys, half-open key ranges, snapshots, and the
// mutation types carried by a change feed.
package kv

import "bytes"

// Key is a raw database key. Keys order bytewise.
type Key []byte

// MaxKey is the first key past the user key space. Ranges that cover the
// whole user key space end here; keys at or above it are reserved.
var MaxKey = Key{0xff}

// Compare returns -1, 0, or 1 ordering k against other bytewise.
func (k Key) Compare(other Key) int {
	return bytes.Compare(k, other)
}

// Clone returns an independent copy of the key.
func (k Key) Clone() Key {
	if k == nil {
		return nil
	}
	return append(Key(nil), k...)
}

// KeyValue is a single key with its value.
type KeyValue struct {
	Key   Key
	Value []byte
}

// Equal reports whether both key and value match bytewise.
func (e KeyValue) Equal(other KeyValue) bool {
	return bytes.Equal(e.Key, other.Key) && bytes.Equal(e.Value, other.Value)
}

// Clone returns a copy that shares no backing storage with e.
func (e KeyValue) Clone() KeyValue {
	return KeyValue{Key: e.Key.Clone(), Value: append([]byte(nil), e.Value...)}
}

// Range is the half-open key interval [Begin, End).
type Range struct {
	Begin Key
	End   Key
}

// NormalRange returns the range covering the full user key space.
func NormalRange() Range {
	return Range{Begin: Key{}, End: MaxKey}
}

// Empty reports whether the range contains no keys.
func (r Range) Empty() bool {
	return bytes.Compare(r.Begin, r.End) >= 0
}

// Contains reports whether k falls inside [Begin, End).
func (r Range) Contains(k Key) bool {
	return bytes.Compare(r.Begin, k) <= 0 && bytes.Compare(k, r.End) < 0
}

// Intersect returns the overlap of r and other. The result is empty when
// the ranges are disjoint.
func (r Range) Intersect(other Range) Range {
	out := r
	if bytes.Compare(other.Begin, out.Begin) > 0 {
		out.Begin = other.Begin
	}
	if bytes.Compare(other.End, out.End) < 0 {
		out.End = other.End
	}
	return out
}

// Snapshot is the complete content of a key range read at a single
// version. Entries are ordered by key and owned by the holder.
type Snapshot struct {
	Entries []KeyValue
	Version int64
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Version: s.Version}
	if s.Entries != nil {
		out.Entries = make([]KeyValue, len(s.Entries))
		for i, e := range s.Entries {
			out.Entries[i] = e.Clone()
		}
	}
	return out
}

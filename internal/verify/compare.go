package verify

import (
	"github.com/sfc-gh-svemuri/feedcheck/internal/kv"
)

// MatchResult reports the outcome of comparing two ordered entry sets:
// a match, a size mismatch carrying both lengths, or the first divergent
// entry with both sides' content.
type MatchResult struct {
	OK           bool
	SizeMismatch bool
	ExpectedLen  int
	ActualLen    int
	Index        int
	Expected     kv.KeyValue
	Actual       kv.KeyValue
}

// Outcome returns a short identifier for the result, used in logs and
// traces.
func (r MatchResult) Outcome() string {
	switch {
	case r.OK:
		return "match"
	case r.SizeMismatch:
		return "size-mismatch"
	default:
		return "entry-mismatch"
	}
}

// Compare checks expected against actual element-wise in key order. Both
// inputs must be sorted by key. A length difference is reported before
// any element inspection; otherwise the first divergence ends the
// comparison. Pure.
func Compare(expected, actual []kv.KeyValue) MatchResult {
	if len(expected) != len(actual) {
		return MatchResult{
			SizeMismatch: true,
			ExpectedLen:  len(expected),
			ActualLen:    len(actual),
		}
	}
	for i := range expected {
		if !expected[i].Equal(actual[i]) {
			return MatchResult{
				ExpectedLen: len(expected),
				ActualLen:   len(actual),
				Index:       i,
				Expected:    expected[i].Clone(),
				Actual:      actual[i].Clone(),
			}
		}
	}
	return MatchResult{OK: true, ExpectedLen: len(expected), ActualLen: len(actual)}
}

package verify

import (
	"testing"

	"github.com/sfc-gh-svemuri/feedcheck/internal/kv"
)

func entries(pairs ...string) []kv.KeyValue {
	return snap(pairs...).Entries
}

func TestCompareEqual(t *testing.T) {
	x := entries("a", "1", "b", "2")
	res := Compare(x, entries("a", "1", "b", "2"))
	if !res.OK {
		t.Fatalf("Compare of equal sets = %+v, want match", res)
	}
	if res.Outcome() != "match" {
		t.Errorf("Outcome() = %q, want match", res.Outcome())
	}
}

func TestCompareBothEmpty(t *testing.T) {
	if res := Compare(nil, nil); !res.OK {
		t.Errorf("Compare(nil, nil) = %+v, want match", res)
	}
}

func TestCompareSizeMismatch(t *testing.T) {
	res := Compare(entries("a", "1", "b", "2"), entries("a", "1"))
	if res.OK || !res.SizeMismatch {
		t.Fatalf("Compare = %+v, want size mismatch", res)
	}
	if res.ExpectedLen != 2 || res.ActualLen != 1 {
		t.Errorf("lengths = %d, %d, want 2, 1", res.ExpectedLen, res.ActualLen)
	}
	// Size mismatches are reported without element inspection.
	if res.Expected.Key != nil || res.Actual.Key != nil {
		t.Errorf("size mismatch should not carry entries, got %+v", res)
	}
	if res.Outcome() != "size-mismatch" {
		t.Errorf("Outcome() = %q, want size-mismatch", res.Outcome())
	}
}

func TestCompareValueDivergence(t *testing.T) {
	res := Compare(entries("a", "1", "b", "2"), entries("a", "1", "b", "9"))
	if res.OK || res.SizeMismatch {
		t.Fatalf("Compare = %+v, want entry mismatch", res)
	}
	if res.Index != 1 {
		t.Errorf("Index = %d, want 1", res.Index)
	}
	if string(res.Expected.Value) != "2" || string(res.Actual.Value) != "9" {
		t.Errorf("values = %q, %q, want 2, 9", res.Expected.Value, res.Actual.Value)
	}
	if res.Outcome() != "entry-mismatch" {
		t.Errorf("Outcome() = %q, want entry-mismatch", res.Outcome())
	}
}

func TestCompareKeyDivergence(t *testing.T) {
	res := Compare(entries("a", "1", "b", "2"), entries("a", "1", "c", "2"))
	if res.OK || res.SizeMismatch {
		t.Fatalf("Compare = %+v, want entry mismatch", res)
	}
	if res.Index != 1 {
		t.Errorf("Index = %d, want 1", res.Index)
	}
	if string(res.Expected.Key) != "b" || string(res.Actual.Key) != "c" {
		t.Errorf("keys = %q, %q, want b, c", res.Expected.Key, res.Actual.Key)
	}
}

func TestCompareStopsAtFirstDivergence(t *testing.T) {
	res := Compare(entries("a", "1", "b", "2", "c", "3"), entries("a", "x", "b", "y", "c", "z"))
	if res.Index != 0 {
		t.Errorf("Index = %d, want 0 (first divergence only)", res.Index)
	}
}

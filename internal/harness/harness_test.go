package harness

import (
	"strings"
	"testing"
)

func loadFixture(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
	if err != nil {
		t.Fatalf("LoadScenario(%s) failed: %v", name, err)
	}
	return s
}

func traceTypes(r *Result) []string {
	types := make([]string, len(r.Trace))
	for i, e := range r.Trace {
		types[i] = e.Type
	}
	return types
}

func TestRunConsistentScenarioPasses(t *testing.T) {
	result, err := Run(loadFixture(t, "set-then-clear"))
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if !result.Pass {
		t.Errorf("Run() failed expectations: %v", result.Errors)
	}
	if !result.Match.OK {
		t.Errorf("comparison diverged: %+v", result.Match)
	}
}

func TestRunTraceShape(t *testing.T) {
	result, err := Run(loadFixture(t, "set-then-clear"))
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	want := []string{
		"register", "commit", "snapshot-a", "commit", "commit",
		"snapshot-b", "batch", "batch", "compare", "retire",
	}
	got := traceTypes(result)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("trace types = %v, want %v", got, want)
	}

	for i, e := range result.Trace {
		if e.Seq != int64(i+1) {
			t.Errorf("trace[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
	}
}

func TestRunDroppedSetDetected(t *testing.T) {
	result, err := Run(loadFixture(t, "dropped-set"))
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if !result.Pass {
		t.Errorf("Run() failed expectations: %v", result.Errors)
	}
	if !result.Match.SizeMismatch {
		t.Errorf("expected a size mismatch, got %+v", result.Match)
	}
	if result.Match.ExpectedLen != 2 || result.Match.ActualLen != 1 {
		t.Errorf("mismatch lengths = %d/%d, want 2/1",
			result.Match.ExpectedLen, result.Match.ActualLen)
	}
}

func TestRunStaleValueDetected(t *testing.T) {
	result, err := Run(loadFixture(t, "stale-value"))
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if !result.Pass {
		t.Errorf("Run() failed expectations: %v", result.Errors)
	}
	m := result.Match
	if m.OK || m.SizeMismatch {
		t.Fatalf("expected an entry mismatch, got %+v", m)
	}
	if m.Index != 0 || string(m.Expected.Value) != "3" || string(m.Actual.Value) != "2" {
		t.Errorf("divergence = index %d expected %q actual %q",
			m.Index, m.Expected.Value, m.Actual.Value)
	}
}

func TestRunWrongExpectationFails(t *testing.T) {
	s := loadFixture(t, "set-then-clear")
	s.Expect = ExpectClause{Outcome: OutcomeMismatch, Kind: KindSizeMismatch}

	result, err := Run(s)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if result.Pass {
		t.Error("Run() passed with a contradicted expectation")
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "observed match") {
		t.Errorf("Errors = %v, want observed-match message", result.Errors)
	}
}

func TestRunDropOutOfRange(t *testing.T) {
	s := loadFixture(t, "dropped-set")
	s.DropMutation = &DropClause{Batch: 5, Index: 0}

	if _, err := Run(s); err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Errorf("Run() = %v, want out-of-range error", err)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	s := loadFixture(t, "stale-value")

	first, err := Run(s)
	if err != nil {
		t.Fatalf("first Run() failed: %v", err)
	}
	second, err := Run(s)
	if err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}

	a, err := MarshalTrace(s, first)
	if err != nil {
		t.Fatalf("MarshalTrace() failed: %v", err)
	}
	b, err := MarshalTrace(s, second)
	if err != nil {
		t.Fatalf("MarshalTrace() failed: %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("traces differ between runs:\n%s\n%s", a, b)
	}
}

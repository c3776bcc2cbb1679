package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return path
}

func TestLoadScenarioFromTestdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	if err != nil {
		t.Fatalf("glob scenarios: %v", err)
	}
	if len(paths) == 0 {
		t.Fatal("no scenario fixtures found")
	}
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			t.Errorf("LoadScenario(%s) failed: %v", path, err)
			continue
		}
		if s.Name != strings.TrimSuffix(filepath.Base(path), ".yaml") {
			t.Errorf("%s: name %q does not match file name", path, s.Name)
		}
	}
}

func TestLoadScenarioRejectsUnknownFields(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: has a misspelled field
expct:
  outcome: match
`)
	if _, err := LoadScenario(path); err == nil {
		t.Error("LoadScenario() accepted an unknown field")
	}
}

func TestLoadScenarioRequiresOutcome(t *testing.T) {
	path := writeScenario(t, `
name: no-expect
description: missing the expect clause
`)
	_, err := LoadScenario(path)
	if err == nil || !strings.Contains(err.Error(), "outcome is required") {
		t.Errorf("LoadScenario() = %v, want outcome-required error", err)
	}
}

func TestLoadScenarioRejectsMismatchWithoutKind(t *testing.T) {
	path := writeScenario(t, `
name: vague-mismatch
description: mismatch without a kind
expect:
  outcome: mismatch
`)
	if _, err := LoadScenario(path); err == nil {
		t.Error("LoadScenario() accepted a mismatch without a kind")
	}
}

func TestLoadScenarioRejectsKindOnMatch(t *testing.T) {
	path := writeScenario(t, `
name: contradictory
description: match cannot carry a mismatch kind
expect:
  outcome: match
  kind: size-mismatch
`)
	if _, err := LoadScenario(path); err == nil {
		t.Error("LoadScenario() accepted a kind on a match expectation")
	}
}

func TestLoadScenarioRejectsAmbiguousOp(t *testing.T) {
	path := writeScenario(t, `
name: ambiguous
description: one op cannot be both a set and a clear
setup:
  - ops:
      - set: {key: a, value: "1"}
        clear: {begin: a, end: b}
expect:
  outcome: match
`)
	_, err := LoadScenario(path)
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("LoadScenario() = %v, want mutually-exclusive error", err)
	}
}

func TestLoadScenarioRejectsEmptyCommit(t *testing.T) {
	path := writeScenario(t, `
name: empty-commit
description: a commit with no ops is meaningless
between:
  - ops: []
expect:
  outcome: match
`)
	if _, err := LoadScenario(path); err == nil {
		t.Error("LoadScenario() accepted an empty commit")
	}
}

func TestLoadScenarioMissingFile(t *testing.T) {
	if _, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadScenario() on a missing file should fail")
	}
}

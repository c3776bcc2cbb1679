package harness

import (
	"path/filepath"
	"testing"
)

func TestSchemaAcceptsFixtures(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	if err != nil {
		t.Fatalf("glob scenarios: %v", err)
	}
	for _, path := range paths {
		msgs, err := ValidateScenarioFile(path)
		if err != nil {
			t.Fatalf("ValidateScenarioFile(%s) failed: %v", path, err)
		}
		if len(msgs) > 0 {
			t.Errorf("%s: schema violations: %v", path, msgs)
		}
	}
}

func TestSchemaRejectsBadOutcome(t *testing.T) {
	path := writeScenario(t, `
name: bad-outcome
description: outcome outside the enum
expect:
  outcome: maybe
`)
	msgs, err := ValidateScenarioFile(path)
	if err != nil {
		t.Fatalf("ValidateScenarioFile() failed: %v", err)
	}
	if len(msgs) == 0 {
		t.Error("schema accepted an unknown outcome")
	}
}

func TestSchemaRejectsNegativeDropIndex(t *testing.T) {
	path := writeScenario(t, `
name: negative-drop
description: drop index below zero
drop_mutation:
  batch: 0
  index: -1
expect:
  outcome: match
`)
	msgs, err := ValidateScenarioFile(path)
	if err != nil {
		t.Fatalf("ValidateScenarioFile() failed: %v", err)
	}
	if len(msgs) == 0 {
		t.Error("schema accepted a negative drop index")
	}
}

func TestSchemaRejectsEmptyName(t *testing.T) {
	path := writeScenario(t, `
name: ""
description: empty names break golden file lookup
expect:
  outcome: match
`)
	msgs, err := ValidateScenarioFile(path)
	if err != nil {
		t.Fatalf("ValidateScenarioFile() failed: %v", err)
	}
	if len(msgs) == 0 {
		t.Error("schema accepted an empty name")
	}
}

func TestSchemaRejectsUnparseableYAML(t *testing.T) {
	path := writeScenario(t, "name: [unclosed")
	msgs, err := ValidateScenarioFile(path)
	if err != nil {
		t.Fatalf("ValidateScenarioFile() failed: %v", err)
	}
	if len(msgs) == 0 {
		t.Error("schema accepted unparseable YAML")
	}
}

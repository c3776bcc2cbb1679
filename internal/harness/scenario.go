package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one deterministic verification test case: a setup
// phase, two snapshots separated by further commits, an optional injected
// fault, and the expected comparison outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description"`

	// RangeID is an optional fixed feed range id. If empty it defaults to
	// "feed-test-default" so golden traces stay deterministic.
	RangeID string `yaml:"range_id,omitempty"`

	// Setup contains commits applied before the first snapshot. They
	// establish initial state and are excluded from the checked interval.
	Setup []Commit `yaml:"setup,omitempty"`

	// Between contains commits applied between the two snapshots. These
	// are the mutations the feed must account for.
	Between []Commit `yaml:"between,omitempty"`

	// DropMutation injects a fault: the addressed mutation is removed from
	// the fetched log before replay, simulating a lossy feed.
	DropMutation *DropClause `yaml:"drop_mutation,omitempty"`

	// Expect is the expected comparison outcome.
	Expect ExpectClause `yaml:"expect"`
}

// Commit is one atomic batch of mutations.
type Commit struct {
	Ops []Op `yaml:"ops"`
}

// Op is a single mutation: exactly one of Set or Clear must be present.
type Op struct {
	Set   *SetOp   `yaml:"set,omitempty"`
	Clear *ClearOp `yaml:"clear,omitempty"`
}

// SetOp writes value under key.
type SetOp struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// ClearOp removes every key in [begin, end).
type ClearOp struct {
	Begin string `yaml:"begin"`
	End   string `yaml:"end"`
}

// DropClause addresses one mutation in the fetched log by batch position
// and position within the batch.
type DropClause struct {
	Batch int `yaml:"batch"`
	Index int `yaml:"index"`
}

// ExpectClause specifies the expected comparison outcome.
type ExpectClause struct {
	// Outcome is "match" or "mismatch".
	Outcome string `yaml:"outcome"`

	// Kind narrows a mismatch: "size-mismatch" or "entry-mismatch".
	// Required when Outcome is "mismatch".
	Kind string `yaml:"kind,omitempty"`

	// Index, when set, is the expected divergence index for an
	// entry-mismatch.
	Index *int `yaml:"index,omitempty"`
}

// Expected outcome values.
const (
	OutcomeMatch    = "match"
	OutcomeMismatch = "mismatch"

	KindSizeMismatch  = "size-mismatch"
	KindEntryMismatch = "entry-mismatch"
)

// defaultRangeID keeps golden traces stable when a scenario does not pin
// its own feed range id.
const defaultRangeID = "feed-test-default"

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected to catch typos, and required fields are validated.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and cross-field consistency.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	for i, c := range s.Setup {
		if err := validateCommit(c); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, c := range s.Between {
		if err := validateCommit(c); err != nil {
			return fmt.Errorf("between[%d]: %w", i, err)
		}
	}

	if d := s.DropMutation; d != nil {
		if d.Batch < 0 || d.Index < 0 {
			return fmt.Errorf("drop_mutation: batch and index must be non-negative")
		}
	}

	switch s.Expect.Outcome {
	case OutcomeMatch:
		if s.Expect.Kind != "" {
			return fmt.Errorf("expect: kind is only valid for outcome %q", OutcomeMismatch)
		}
	case OutcomeMismatch:
		switch s.Expect.Kind {
		case KindSizeMismatch, KindEntryMismatch:
		default:
			return fmt.Errorf("expect: kind must be %q or %q for a mismatch", KindSizeMismatch, KindEntryMismatch)
		}
		if s.Expect.Index != nil && s.Expect.Kind != KindEntryMismatch {
			return fmt.Errorf("expect: index is only valid for kind %q", KindEntryMismatch)
		}
	case "":
		return fmt.Errorf("expect: outcome is required")
	default:
		return fmt.Errorf("expect: unknown outcome %q", s.Expect.Outcome)
	}

	return nil
}

func validateCommit(c Commit) error {
	if len(c.Ops) == 0 {
		return fmt.Errorf("ops list is required and must be non-empty")
	}
	for i, op := range c.Ops {
		switch {
		case op.Set != nil && op.Clear != nil:
			return fmt.Errorf("ops[%d]: set and clear are mutually exclusive", i)
		case op.Set != nil:
			if op.Set.Key == "" {
				return fmt.Errorf("ops[%d]: set.key is required", i)
			}
		case op.Clear != nil:
			if op.Clear.Begin > op.Clear.End {
				return fmt.Errorf("ops[%d]: clear range is inverted", i)
			}
		default:
			return fmt.Errorf("ops[%d]: one of set or clear is required", i)
		}
	}
	return nil
}

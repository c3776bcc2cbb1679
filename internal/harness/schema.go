package harness

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// ValidateScenarioFile checks a scenario YAML file against the embedded
// CUE schema. It returns one error message per violation, empty when the
// file conforms. Schema validation is structural; LoadScenario still
// applies the cross-field rules.
func ValidateScenarioFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return []string{fmt.Sprintf("parse YAML: %v", err)}, nil
	}
	if raw == nil {
		return []string{"scenario is empty"}, nil
	}
	return validateAgainstSchema(raw)
}

func validateAgainstSchema(raw map[string]any) ([]string, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile scenario schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Scenario"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("lookup scenario schema: %w", err)
	}

	val := ctx.Encode(raw)
	if err := val.Err(); err != nil {
		return []string{fmt.Sprintf("encode scenario: %v", err)}, nil
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Final(), cue.Concrete(true)); err != nil {
		var msgs []string
		for _, e := range cueerrors.Errors(err) {
			msgs = append(msgs, e.Error())
		}
		return msgs, nil
	}
	return nil, nil
}

package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the canonical golden-file form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string
	RangeID      string
	Trace        []TraceEvent
}

// toCanonicalMap flattens the snapshot for canonical JSON serialization.
// Each event merges its type-specific fields with the common type and seq
// keys.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"type": event.Type,
			"seq":  event.Seq,
		}
		for k, v := range event.Fields {
			eventMap[k] = v
		}
		traceList[i] = eventMap
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"range_id":      s.RangeID,
		"trace":         traceList,
	}
}

// MarshalTrace renders a scenario run as canonical JSON with a trailing
// newline, the exact bytes stored in golden files.
func MarshalTrace(scenario *Scenario, result *Result) ([]byte, error) {
	rangeID := scenario.RangeID
	if rangeID == "" {
		rangeID = defaultRangeID
	}
	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		RangeID:      rangeID,
		Trace:        result.Trace,
	}
	out, err := MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{name}.golden. Regenerate golden files with:
//
//	go test ./internal/harness -update
//
// An error means the scenario could not run; a trace divergence fails t
// through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	traceJSON, err := MarshalTrace(scenario, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)

	return result, nil
}

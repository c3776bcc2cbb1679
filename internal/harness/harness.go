// Package harness executes deterministic verification scenarios.
//
// A scenario drives one full verification cycle against a fresh in-memory
// engine: register a feed, apply setup commits, take snapshot A, apply
// the between commits, take snapshot B, fetch the feed's mutation log for
// the interval, optionally drop a mutation to simulate a lossy feed,
// replay, and compare. Every step appends a trace event numbered by a
// logical clock, so two runs of the same scenario produce byte-identical
// traces for golden comparison.
package harness

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/sfc-gh-svemuri/feedcheck/internal/engine"
	"github.com/sfc-gh-svemuri/feedcheck/internal/kv"
	"github.com/sfc-gh-svemuri/feedcheck/internal/testutil"
	"github.com/sfc-gh-svemuri/feedcheck/internal/verify"
)

// TraceEvent is one step of a scenario execution. Fields carries the
// step's type-specific details and is flattened into the canonical trace.
type TraceEvent struct {
	Type   string
	Seq    int64
	Fields map[string]any
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when the observed comparison outcome matched the
	// scenario's expect clause.
	Pass bool

	// Trace contains every step in execution order.
	Trace []TraceEvent

	// Errors lists expectation failures. Empty when Pass is true.
	Errors []string

	// Match is the raw comparison result.
	Match verify.MatchResult
}

// NewResult creates a passing result to accumulate into.
func NewResult() *Result {
	return &Result{Pass: true}
}

// AddError records an expectation failure and fails the result.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// harness holds the per-run state shared by the execution steps.
type harness struct {
	eng     *engine.Engine
	db      verify.DB
	clock   *testutil.Clock
	rangeID string
}

func (h *harness) event(result *Result, typ string, fields map[string]any) {
	result.Trace = append(result.Trace, TraceEvent{
		Type:   typ,
		Seq:    h.clock.Next(),
		Fields: fields,
	})
}

// Run executes a scenario against a fresh in-memory engine and returns
// its result. An error means the scenario could not be executed at all;
// expectation failures are reported through Result.Errors instead.
func Run(scenario *Scenario) (*Result, error) {
	eng, err := engine.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory engine: %w", err)
	}
	defer eng.Close()

	rangeID := scenario.RangeID
	if rangeID == "" {
		rangeID = defaultRangeID
	}

	h := &harness{
		eng:     eng,
		db:      verify.WrapEngine(eng),
		clock:   testutil.NewClock(),
		rangeID: rangeID,
	}

	ctx := context.Background()
	result := NewResult()

	regVersion, err := eng.RegisterFeed(ctx, rangeID, kv.NormalRange())
	if err != nil {
		return nil, fmt.Errorf("register feed: %w", err)
	}
	h.event(result, "register", map[string]any{
		"range_id": rangeID,
		"version":  regVersion,
	})

	if err := h.applyCommits(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}

	a, err := h.snapshot(ctx, result, "snapshot-a")
	if err != nil {
		return nil, err
	}

	if err := h.applyCommits(ctx, scenario.Between, result); err != nil {
		return nil, fmt.Errorf("between: %w", err)
	}

	b, err := h.snapshot(ctx, result, "snapshot-b")
	if err != nil {
		return nil, err
	}

	log, err := verify.ReadMutationLog(ctx, h.db, rangeID, a.Version, b.Version, kv.NormalRange())
	if err != nil {
		return nil, fmt.Errorf("read mutation log: %w", err)
	}
	for _, batch := range log {
		h.event(result, "batch", map[string]any{
			"version":   batch.Version,
			"mutations": len(batch.Mutations),
		})
	}

	if d := scenario.DropMutation; d != nil {
		if err := dropMutation(log, d); err != nil {
			return nil, err
		}
		h.event(result, "drop-mutation", map[string]any{
			"batch": d.Batch,
			"index": d.Index,
		})
	}

	advanced := verify.Replay(a, log)
	match := verify.Compare(b.Entries, advanced.Entries)
	result.Match = match
	h.event(result, "compare", compareFields(match))

	if err := eng.RetireFeed(ctx, rangeID, b.Version); err != nil {
		return nil, fmt.Errorf("retire feed: %w", err)
	}
	h.event(result, "retire", map[string]any{
		"through": b.Version,
	})

	evaluateExpect(scenario.Expect, match, result)
	return result, nil
}

// applyCommits commits each batch and traces its version.
func (h *harness) applyCommits(ctx context.Context, commits []Commit, result *Result) error {
	for i, c := range commits {
		muts, err := commitMutations(c)
		if err != nil {
			return fmt.Errorf("commit %d: %w", i, err)
		}
		version, err := h.eng.Apply(ctx, muts)
		if err != nil {
			return fmt.Errorf("commit %d: %w", i, err)
		}
		h.event(result, "commit", map[string]any{
			"version":   version,
			"mutations": len(muts),
		})
	}
	return nil
}

func (h *harness) snapshot(ctx context.Context, result *Result, typ string) (kv.Snapshot, error) {
	snap, err := verify.ReadSnapshot(ctx, h.db, kv.NormalRange())
	if err != nil {
		return kv.Snapshot{}, fmt.Errorf("%s: %w", typ, err)
	}
	h.event(result, typ, map[string]any{
		"version": snap.Version,
		"entries": len(snap.Entries),
	})
	return snap, nil
}

// commitMutations converts a scenario commit to engine mutations.
func commitMutations(c Commit) ([]kv.Mutation, error) {
	muts := make([]kv.Mutation, 0, len(c.Ops))
	for i, op := range c.Ops {
		switch {
		case op.Set != nil:
			muts = append(muts, kv.Set([]byte(op.Set.Key), []byte(op.Set.Value)))
		case op.Clear != nil:
			muts = append(muts, kv.Clear([]byte(op.Clear.Begin), []byte(op.Clear.End)))
		default:
			return nil, fmt.Errorf("ops[%d]: empty operation", i)
		}
	}
	return muts, nil
}

// dropMutation removes the addressed mutation from the fetched log.
func dropMutation(log kv.MutationLog, d *DropClause) error {
	if d.Batch >= len(log) {
		return fmt.Errorf("drop_mutation: batch %d out of range (log has %d batches)", d.Batch, len(log))
	}
	batch := &log[d.Batch]
	if d.Index >= len(batch.Mutations) {
		return fmt.Errorf("drop_mutation: index %d out of range (batch has %d mutations)", d.Index, len(batch.Mutations))
	}
	batch.Mutations = append(batch.Mutations[:d.Index], batch.Mutations[d.Index+1:]...)
	return nil
}

// compareFields flattens a comparison result into trace fields. Keys and
// values are hex encoded since they are arbitrary bytes.
func compareFields(m verify.MatchResult) map[string]any {
	fields := map[string]any{
		"outcome": m.Outcome(),
	}
	if m.OK {
		return fields
	}
	if m.SizeMismatch {
		fields["expected_len"] = m.ExpectedLen
		fields["actual_len"] = m.ActualLen
		return fields
	}
	fields["index"] = m.Index
	fields["expected_key"] = hex.EncodeToString(m.Expected.Key)
	fields["expected_value"] = hex.EncodeToString(m.Expected.Value)
	fields["actual_key"] = hex.EncodeToString(m.Actual.Key)
	fields["actual_value"] = hex.EncodeToString(m.Actual.Value)
	return fields
}

// evaluateExpect checks the observed outcome against the expect clause.
func evaluateExpect(expect ExpectClause, match verify.MatchResult, result *Result) {
	observed := match.Outcome()

	switch expect.Outcome {
	case OutcomeMatch:
		if !match.OK {
			result.AddError(fmt.Sprintf("expected match, observed %s", observed))
		}
	case OutcomeMismatch:
		if match.OK {
			result.AddError(fmt.Sprintf("expected %s, observed match", expect.Kind))
			return
		}
		if observed != expect.Kind {
			result.AddError(fmt.Sprintf("expected %s, observed %s", expect.Kind, observed))
			return
		}
		if expect.Index != nil && match.Index != *expect.Index {
			result.AddError(fmt.Sprintf("expected divergence at index %d, observed index %d", *expect.Index, match.Index))
		}
	}
}

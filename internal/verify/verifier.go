package verify

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sfc-gh-svemuri/feedcheck/internal/kv"
)

// Finding is one detected inconsistency: the compared versions and the
// comparator's divergence report. Findings are diagnostic; they never
// stop the loop.
type Finding struct {
	RangeID  string
	VersionA int64
	VersionB int64
	Result   MatchResult
	Observed time.Time
}

// Reporter receives findings as they are detected.
type Reporter interface {
	Report(Finding)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Finding)

func (f ReporterFunc) Report(fd Finding) { f(fd) }

// Stats is a point-in-time view of a verifier's progress.
type Stats struct {
	Iterations   int64
	Mismatches   int64
	LastVersionA int64
	LastVersionB int64
}

// Verifier drives the verification loop for one change feed: snapshot A,
// wait, snapshot B, fetch the mutation log spanning the two versions,
// replay it on A, compare against B, retire consumed history, repeat.
type Verifier struct {
	db          DB
	rangeID     string
	r           kv.Range
	shortWait   time.Duration
	longWait    time.Duration
	scanTimeout time.Duration
	rnd         *rand.Rand
	log         *slog.Logger
	reporter    Reporter

	registered bool

	iterations   atomic.Int64
	mismatches   atomic.Int64
	lastVersionA atomic.Int64
	lastVersionB atomic.Int64
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithRangeID fixes the feed's range id instead of generating one.
func WithRangeID(id string) Option {
	return func(v *Verifier) { v.rangeID = id }
}

// WithRange restricts verification to r instead of the full user space.
func WithRange(r kv.Range) Option {
	return func(v *Verifier) { v.r = r }
}

// WithWaits sets the upper bounds of the two jittered sleeps: short
// before snapshot A, long between the snapshots.
func WithWaits(short, long time.Duration) Option {
	return func(v *Verifier) {
		v.shortWait = short
		v.longWait = long
	}
}

// WithScanTimeout bounds each snapshot read and log fetch; exceeding it
// is a fatal error. Zero disables the bound.
func WithScanTimeout(d time.Duration) Option {
	return func(v *Verifier) { v.scanTimeout = d }
}

// WithRand injects the randomness source used for sleep jitter, making
// the schedule deterministic in tests.
func WithRand(rnd *rand.Rand) Option {
	return func(v *Verifier) { v.rnd = rnd }
}

// WithLogger sets the logger for loop events and mismatch diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(v *Verifier) { v.log = log }
}

// WithReporter registers a findings sink in addition to the log.
func WithReporter(r Reporter) Option {
	return func(v *Verifier) { v.reporter = r }
}

// New creates a verifier over db. Defaults: a fresh UUID range id, the
// full user key range, 1s/10s wait bounds, time-seeded jitter.
func New(db DB, opts ...Option) *Verifier {
	v := &Verifier{
		db:        db,
		rangeID:   uuid.NewString(),
		r:         kv.NormalRange(),
		shortWait: time.Second,
		longWait:  10 * time.Second,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// RangeID returns the feed's range id.
func (v *Verifier) RangeID() string {
	return v.rangeID
}

// Stats returns a snapshot of the loop's counters.
func (v *Verifier) Stats() Stats {
	return Stats{
		Iterations:   v.iterations.Load(),
		Mismatches:   v.mismatches.Load(),
		LastVersionA: v.lastVersionA.Load(),
		LastVersionB: v.lastVersionB.Load(),
	}
}

// Run registers the feed and verifies until ctx is cancelled.
// Cancellation is the loop's only clean exit and returns nil; any other
// return is a fatal error (see DESIGN.md for the stream-error policy).
func (v *Verifier) Run(ctx context.Context) error {
	if err := v.ensureRegistered(ctx); err != nil {
		return v.orCancelled(ctx, err)
	}
	v.log.Info("verification loop started", "range_id", v.rangeID)

	for {
		if err := v.sleepJitter(ctx, v.shortWait); err != nil {
			return v.orCancelled(ctx, err)
		}
		if err := v.runOnce(ctx); err != nil {
			return v.orCancelled(ctx, err)
		}
	}
}

// RunOnce registers the feed if needed and performs a single
// verification iteration.
func (v *Verifier) RunOnce(ctx context.Context) error {
	if err := v.ensureRegistered(ctx); err != nil {
		return err
	}
	return v.runOnce(ctx)
}

// ensureRegistered registers the feed, retrying the whole transactional
// registration on retryable errors until it succeeds.
func (v *Verifier) ensureRegistered(ctx context.Context) error {
	if v.registered {
		return nil
	}
	for {
		err := v.db.RegisterFeed(ctx, v.rangeID, v.r)
		if err == nil {
			v.registered = true
			return nil
		}
		if rerr := v.db.OnRetryable(ctx, err); rerr != nil {
			return fmt.Errorf("register feed %s: %w", v.rangeID, rerr)
		}
	}
}

func (v *Verifier) runOnce(ctx context.Context) error {
	a, err := v.snapshot(ctx)
	if err != nil {
		return err
	}

	if err := v.sleepJitter(ctx, v.longWait); err != nil {
		return err
	}

	b, err := v.snapshot(ctx)
	if err != nil {
		return err
	}

	log, err := v.mutationLog(ctx, a.Version, b.Version)
	if err != nil {
		return err
	}

	advanced := Replay(a, log)
	result := Compare(b.Entries, advanced.Entries)

	v.iterations.Add(1)
	v.lastVersionA.Store(a.Version)
	v.lastVersionB.Store(b.Version)

	if result.OK {
		v.log.Debug("iteration consistent",
			"range_id", v.rangeID,
			"version_a", a.Version,
			"version_b", b.Version,
			"entries", len(b.Entries),
			"batches", len(log))
	} else {
		v.reportMismatch(a, b, advanced, result)
	}

	// Awaited before looping so feed history cannot grow unboundedly.
	if err := v.db.RetireFeed(ctx, v.rangeID, b.Version); err != nil {
		return fmt.Errorf("retire feed %s: %w", v.rangeID, err)
	}
	return nil
}

func (v *Verifier) snapshot(ctx context.Context) (kv.Snapshot, error) {
	ctx, cancel := v.bounded(ctx)
	defer cancel()
	return ReadSnapshot(ctx, v.db, v.r)
}

func (v *Verifier) mutationLog(ctx context.Context, begin, end int64) (kv.MutationLog, error) {
	ctx, cancel := v.bounded(ctx)
	defer cancel()
	return ReadMutationLog(ctx, v.db, v.rangeID, begin, end, v.r)
}

// bounded applies the scan timeout when one is configured.
func (v *Verifier) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if v.scanTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, v.scanTimeout)
}

// sleepJitter sleeps a uniformly random duration in [0, max).
func (v *Verifier) sleepJitter(ctx context.Context, max time.Duration) error {
	if max <= 0 {
		return nil
	}
	d := time.Duration(v.rnd.Float64() * float64(max))
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// orCancelled treats context cancellation as the loop's clean exit.
func (v *Verifier) orCancelled(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		v.log.Info("verification loop stopped", "range_id", v.rangeID)
		return nil
	}
	return err
}

func (v *Verifier) reportMismatch(a, b, advanced kv.Snapshot, result MatchResult) {
	v.mismatches.Add(1)

	if result.SizeMismatch {
		v.log.Error("change feed size mismatch",
			"range_id", v.rangeID,
			"version_a", a.Version,
			"version_b", b.Version,
			"expected_len", result.ExpectedLen,
			"actual_len", result.ActualLen)
	} else {
		v.log.Error("change feed mutation mismatch",
			"range_id", v.rangeID,
			"version_a", a.Version,
			"version_b", b.Version,
			"index", result.Index,
			"expected_key", hex.EncodeToString(result.Expected.Key),
			"expected_value", hex.EncodeToString(result.Expected.Value),
			"actual_key", hex.EncodeToString(result.Actual.Key),
			"actual_value", hex.EncodeToString(result.Actual.Value))
	}

	// Full dumps stay at debug level; they can be large.
	for i, e := range b.Entries {
		v.log.Debug("change feed base entry",
			"index", i, "key", hex.EncodeToString(e.Key), "value", hex.EncodeToString(e.Value))
	}
	for i, e := range advanced.Entries {
		v.log.Debug("change feed advanced entry",
			"index", i, "key", hex.EncodeToString(e.Key), "value", hex.EncodeToString(e.Value))
	}

	if v.reporter != nil {
		v.reporter.Report(Finding{
			RangeID:  v.rangeID,
			VersionA: a.Version,
			VersionB: b.Version,
			Result:   result,
			Observed: time.Now(),
		})
	}
}

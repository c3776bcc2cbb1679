// Package verify implements the change-feed consistency check: consistent
// snapshot reads, mutation-log retrieval, deterministic replay, ordered
// comparison, and the verification loop driving them.
package verify

import (
	"context"

	"github.com/sfc-gh-svemuri/feedcheck/internal/engine"
	"github.com/sfc-gh-svemuri/feedcheck/internal/kv"
)

// DB is the slice of the storage engine the verifier depends on. It is
// satisfied by WrapEngine and by test fakes.
type DB interface {
	// BeginRead starts a consistent read at a fresh read version.
	BeginRead(ctx context.Context) (ReadTx, error)
	// OnRetryable returns nil once a retryable error has been waited out
	// and the caller should restart from scratch; non-retryable errors
	// come back unchanged.
	OnRetryable(ctx context.Context, err error) error
	// RegisterFeed registers a change feed over r under rangeID.
	RegisterFeed(ctx context.Context, rangeID string, r kv.Range) error
	// OpenFeedStream streams the feed's batches for begin <= version < end.
	OpenFeedStream(ctx context.Context, rangeID string, begin, end int64, r kv.Range) (FeedStream, error)
	// RetireFeed drops feed history below the given version.
	RetireFeed(ctx context.Context, rangeID string, through int64) error
}

// ReadTx is one consistent point-in-time read.
type ReadTx interface {
	Version() int64
	Scan(ctx context.Context, r kv.Range) KVStream
	Close() error
}

// KVStream yields scan chunks, terminated by engine.ErrEndOfStream.
type KVStream interface {
	Recv(ctx context.Context) ([]kv.KeyValue, error)
}

// FeedStream yields mutation batches in increasing version order,
// terminated by engine.ErrEndOfStream.
type FeedStream interface {
	Recv(ctx context.Context) ([]kv.MutationBatch, error)
}

// WrapEngine adapts a concrete engine to the DB interface.
func WrapEngine(e *engine.Engine) DB {
	return engineDB{e}
}

type engineDB struct {
	e *engine.Engine
}

func (d engineDB) BeginRead(ctx context.Context) (ReadTx, error) {
	tx, err := d.e.BeginRead(ctx)
	if err != nil {
		return nil, err
	}
	return engineTx{tx}, nil
}

func (d engineDB) OnRetryable(ctx context.Context, err error) error {
	return d.e.OnRetryable(ctx, err)
}

func (d engineDB) RegisterFeed(ctx context.Context, rangeID string, r kv.Range) error {
	_, err := d.e.RegisterFeed(ctx, rangeID, r)
	return err
}

func (d engineDB) OpenFeedStream(ctx context.Context, rangeID string, begin, end int64, r kv.Range) (FeedStream, error) {
	return d.e.OpenFeedStream(ctx, rangeID, begin, end, r)
}

func (d engineDB) RetireFeed(ctx context.Context, rangeID string, through int64) error {
	return d.e.RetireFeed(ctx, rangeID, through)
}

type engineTx struct {
	tx *engine.ReadTx
}

func (t engineTx) Version() int64 { return t.tx.Version() }

func (t engineTx) Scan(ctx context.Context, r kv.Range) KVStream {
	return t.tx.Scan(ctx, r)
}

func (t engineTx) Close() error { return t.tx.Close() }

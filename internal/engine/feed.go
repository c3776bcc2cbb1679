package engine

import (
	"context"
	"fmt"

	"github.com/sfc-gh-svemuri/feedcheck/internal/kv"
)

// feedChunkSize bounds how many batches a feed stream buffers before
// handing them to the consumer.
const feedChunkSize = 64

// RegisterFeed registers a change feed over r under rangeID and returns
// the registration's commit version. Mutations committed after this
// version are logged for the feed. Range ids are never reused.
func (e *Engine) RegisterFeed(ctx context.Context, rangeID string, r kv.Range) (int64, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin register: %w", err)
	}
	defer tx.Rollback()

	version, err := nextVersion(ctx, tx)
	if err != nil {
		return 0, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO feeds (range_id, begin_key, end_key, registered_version)
		VALUES (?, ?, ?, ?)
	`, rangeID, []byte(r.Begin), []byte(r.End), version)
	if err != nil {
		return 0, fmt.Errorf("register feed %s: %w", rangeID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit register: %w", err)
	}
	return version, nil
}

// RetireFeed deletes the feed's logged history below the given version,
// bounding log growth once a consumer has caught up through it.
func (e *Engine) RetireFeed(ctx context.Context, rangeID string, through int64) error {
	_, err := e.db.ExecContext(ctx, `
		DELETE FROM feed_log WHERE range_id = ? AND version < ?
	`, rangeID, through)
	if err != nil {
		return fmt.Errorf("retire feed %s: %w", rangeID, err)
	}
	return nil
}

// batchChunk carries either a slice of batches or a terminal error.
type batchChunk struct {
	batches []kv.MutationBatch
	err     error
}

// FeedStream yields a feed's mutation batches in increasing version
// order. The stream ends with ErrEndOfStream once every batch in the
// requested interval has been delivered.
type FeedStream struct {
	ch chan batchChunk
}

// Recv returns the next chunk of batches. It returns ErrEndOfStream once
// the interval is exhausted, the stream's failure otherwise, and ctx.Err()
// if the context is cancelled while waiting.
func (s *FeedStream) Recv(ctx context.Context) ([]kv.MutationBatch, error) {
	select {
	case c := <-s.ch:
		return c.batches, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OpenFeedStream streams the mutation batches logged for rangeID with
// begin <= version < end, restricted to r. An empty interval yields an
// immediate end of stream.
func (e *Engine) OpenFeedStream(ctx context.Context, rangeID string, begin, end int64, r kv.Range) (*FeedStream, error) {
	var exists int
	err := e.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM feeds WHERE range_id = ?
	`, rangeID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("open feed %s: %w", rangeID, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("open feed %s: feed not registered", rangeID)
	}

	s := &FeedStream{ch: make(chan batchChunk)}
	go e.streamFeed(ctx, rangeID, begin, end, r, s)
	return s, nil
}

func (e *Engine) streamFeed(ctx context.Context, rangeID string, begin, end int64, r kv.Range, s *FeedStream) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT version, op, key, value, end_key FROM feed_log
		WHERE range_id = ? AND version >= ? AND version < ?
		ORDER BY version, ord
	`, rangeID, begin, end)
	if err != nil {
		s.send(ctx, batchChunk{err: fmt.Errorf("query feed log: %w", err)})
		return
	}
	defer rows.Close()

	var (
		chunk   []kv.MutationBatch
		current *kv.MutationBatch
	)
	for rows.Next() {
		var (
			version      int64
			op           int
			key, val, ek []byte
		)
		if err := rows.Scan(&version, &op, &key, &val, &ek); err != nil {
			s.send(ctx, batchChunk{err: fmt.Errorf("scan feed row: %w", err)})
			return
		}
		m, ok := decodeFeedRow(op, key, val, ek, r)
		if !ok {
			continue
		}
		if current == nil || current.Version != version {
			if current != nil {
				chunk = append(chunk, *current)
				if len(chunk) == feedChunkSize {
					if !s.send(ctx, batchChunk{batches: chunk}) {
						return
					}
					chunk = nil
				}
			}
			current = &kv.MutationBatch{Version: version}
		}
		current.Mutations = append(current.Mutations, m)
	}
	if err := rows.Err(); err != nil {
		s.send(ctx, batchChunk{err: fmt.Errorf("iterate feed log: %w", err)})
		return
	}

	if current != nil {
		chunk = append(chunk, *current)
	}
	if len(chunk) > 0 {
		if !s.send(ctx, batchChunk{batches: chunk}) {
			return
		}
	}
	s.send(ctx, batchChunk{err: ErrEndOfStream})
}

// decodeFeedRow rebuilds a mutation from its logged row, restricted to
// the requested range.
func decodeFeedRow(op int, key, val, endKey []byte, r kv.Range) (kv.Mutation, bool) {
	switch op {
	case 0:
		k := append(kv.Key(nil), key...)
		if !r.Contains(k) {
			return kv.Mutation{}, false
		}
		return kv.Set(k, append([]byte(nil), val...)), true
	case 1:
		clear := kv.Range{
			Begin: append(kv.Key(nil), key...),
			End:   append(kv.Key(nil), endKey...),
		}
		overlap := clear.Intersect(r)
		if overlap.Empty() {
			return kv.Mutation{}, false
		}
		return kv.Clear(overlap.Begin, overlap.End), true
	}
	return kv.Mutation{}, false
}

func (s *FeedStream) send(ctx context.Context, c batchChunk) bool {
	select {
	case s.ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sfc-gh-svemuri/feedcheck/internal/kv"
)

// scanChunkSize bounds how many rows a scan buffers before handing them to
// the consumer.
const scanChunkSize = 1024

// ReadTx is a consistent point-in-time read of the database. It holds the
// engine's single connection until Close, so writers block for its
// duration.
type ReadTx struct {
	tx      *sql.Tx
	version int64
	done    chan struct{} // non-nil while a scan goroutine owns tx
}

// BeginRead starts a read transaction and allocates its read version. The
// caller must Close the transaction on every path.
func (e *Engine) BeginRead(ctx context.Context) (*ReadTx, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin read: %w", err)
	}
	version, err := nextVersion(ctx, tx)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	return &ReadTx{tx: tx, version: version}, nil
}

// Version returns the version this transaction reads at.
func (t *ReadTx) Version() int64 {
	return t.version
}

// Close releases the transaction. If a scan is still running it waits for
// the scan goroutine to stop first; cancelling the scan's context unblocks
// it promptly.
func (t *ReadTx) Close() error {
	if t.done != nil {
		<-t.done
	}
	if err := t.tx.Commit(); err != nil {
		t.tx.Rollback()
		return fmt.Errorf("close read: %w", err)
	}
	return nil
}

// kvChunk carries either a slice of entries or a terminal error.
type kvChunk struct {
	entries []kv.KeyValue
	err     error
}

// KVStream yields a range scan in key order as bounded chunks. The stream
// ends with ErrEndOfStream on normal completion.
type KVStream struct {
	ch chan kvChunk
}

// Recv returns the next chunk of entries. It returns ErrEndOfStream once
// the scan is complete, the scan's failure otherwise, and ctx.Err() if the
// context is cancelled while waiting.
func (s *KVStream) Recv(ctx context.Context) ([]kv.KeyValue, error) {
	select {
	case c := <-s.ch:
		return c.entries, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Scan streams every entry of r at this transaction's version, ordered by
// key. Only one scan may run per transaction.
func (t *ReadTx) Scan(ctx context.Context, r kv.Range) *KVStream {
	s := &KVStream{ch: make(chan kvChunk)}
	t.done = make(chan struct{})
	go t.scan(ctx, r, s)
	return s
}

func (t *ReadTx) scan(ctx context.Context, r kv.Range, s *KVStream) {
	defer close(t.done)

	rows, err := t.tx.QueryContext(ctx, `
		SELECT key, value FROM kv
		WHERE key >= ? AND key < ?
		ORDER BY key
	`, []byte(r.Begin), []byte(r.End))
	if err != nil {
		s.send(ctx, kvChunk{err: fmt.Errorf("scan range: %w", err)})
		return
	}
	defer rows.Close()

	chunk := make([]kv.KeyValue, 0, scanChunkSize)
	for rows.Next() {
		var key, value []byte
		if err := rows.Scan(&key, &value); err != nil {
			s.send(ctx, kvChunk{err: fmt.Errorf("scan row: %w", err)})
			return
		}
		// The driver reuses row buffers; the stream owns copies.
		chunk = append(chunk, kv.KeyValue{
			Key:   append(kv.Key(nil), key...),
			Value: append([]byte(nil), value...),
		})
		if len(chunk) == scanChunkSize {
			if !s.send(ctx, kvChunk{entries: chunk}) {
				return
			}
			chunk = make([]kv.KeyValue, 0, scanChunkSize)
		}
	}
	if err := rows.Err(); err != nil {
		s.send(ctx, kvChunk{err: fmt.Errorf("scan range: %w", err)})
		return
	}

	if len(chunk) > 0 {
		if !s.send(ctx, kvChunk{entries: chunk}) {
			return
		}
	}
	s.send(ctx, kvChunk{err: ErrEndOfStream})
}

// send delivers a chunk unless the consumer has gone away.
func (s *KVStream) send(ctx context.Context, c kvChunk) bool {
	select {
	case s.ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

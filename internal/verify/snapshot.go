package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sfc-gh-svemuri/feedcheck/internal/engine"
	"github.com/sfc-gh-svemuri/feedcheck/internal/kv"
)

// ReadSnapshot performs a consistent full read of r, returning the
// complete entry set and the version it was read at. On a retryable
// engine error the whole read restarts from scratch, including read
// version acquisition; partial results are never mixed across versions.
func ReadSnapshot(ctx context.Context, db DB, r kv.Range) (kv.Snapshot, error) {
	for {
		snap, err := readSnapshotOnce(ctx, db, r)
		if err == nil {
			return snap, nil
		}
		if rerr := db.OnRetryable(ctx, err); rerr != nil {
			return kv.Snapshot{}, fmt.Errorf("read snapshot: %w", rerr)
		}
	}
}

func readSnapshotOnce(ctx context.Context, db DB, r kv.Range) (kv.Snapshot, error) {
	tx, err := db.BeginRead(ctx)
	if err != nil {
		return kv.Snapshot{}, err
	}
	defer tx.Close()

	stream := tx.Scan(ctx, r)
	var entries []kv.KeyValue
	for {
		chunk, err := stream.Recv(ctx)
		if errors.Is(err, engine.ErrEndOfStream) {
			return kv.Snapshot{Entries: entries, Version: tx.Version()}, nil
		}
		if err != nil {
			return kv.Snapshot{}, err
		}
		entries = append(entries, chunk...)
	}
}

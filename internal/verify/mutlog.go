package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sfc-gh-svemuri/feedcheck/internal/engine"
	"github.com/sfc-gh-svemuri/feedcheck/internal/kv"
)

// ReadMutationLog retrieves the ordered mutation batches logged for
// rangeID with begin <= version < end, restricted to r. The cursor
// advances past the last fully received batch after every chunk, so a
// resumed stream would restart strictly after it; any failure other than
// end-of-stream is fatal to this call and carries the cursor position.
// The returned log owns all of its data.
func ReadMutationLog(ctx context.Context, db DB, rangeID string, begin, end int64, r kv.Range) (kv.MutationLog, error) {
	stream, err := db.OpenFeedStream(ctx, rangeID, begin, end, r)
	if err != nil {
		return nil, fmt.Errorf("open mutation log %s: %w", rangeID, err)
	}

	var log kv.MutationLog
	cursor := begin
	for {
		batches, err := stream.Recv(ctx)
		if errors.Is(err, engine.ErrEndOfStream) {
			return log, nil
		}
		if err != nil {
			return nil, fmt.Errorf("mutation log %s at cursor %d: %w", rangeID, cursor, err)
		}
		log = append(log, batches...)
		if len(batches) > 0 {
			cursor = batches[len(batches)-1].Version + 1
		}
	}
}

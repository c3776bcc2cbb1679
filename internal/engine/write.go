package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sfc-gh-svemuri/feedcheck/internal/kv"
)

// Apply commits a batch of mutations as one transaction. All mutations
// share the returned commit version. Mutations intersecting a registered
// feed's range are appended to that feed's log, with clear ranges clipped
// to the feed range.
func (e *Engine) Apply(ctx context.Context, muts []kv.Mutation) (int64, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin write: %w", err)
	}
	defer tx.Rollback()

	version, err := nextVersion(ctx, tx)
	if err != nil {
		return 0, err
	}

	for _, m := range muts {
		if err := applyMutation(ctx, tx, m); err != nil {
			return 0, err
		}
	}

	if err := logToFeeds(ctx, tx, version, muts); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit write: %w", err)
	}
	return version, nil
}

func applyMutation(ctx context.Context, tx *sql.Tx, m kv.Mutation) error {
	switch m.Type {
	case kv.SetValue:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, []byte(m.Key), m.Value)
		if err != nil {
			return fmt.Errorf("set %x: %w", m.Key, err)
		}
	case kv.ClearRange:
		_, err := tx.ExecContext(ctx, `
			DELETE FROM kv WHERE key >= ? AND key < ?
		`, []byte(m.Key), []byte(m.End))
		if err != nil {
			return fmt.Errorf("clear [%x, %x): %w", m.Key, m.End, err)
		}
	default:
		return fmt.Errorf("unknown mutation type %d", m.Type)
	}
	return nil
}

// logToFeeds appends the batch to every registered feed it intersects.
func logToFeeds(ctx context.Context, tx *sql.Tx, version int64, muts []kv.Mutation) error {
	rows, err := tx.QueryContext(ctx, `SELECT range_id, begin_key, end_key FROM feeds`)
	if err != nil {
		return fmt.Errorf("query feeds: %w", err)
	}
	defer rows.Close()

	type feed struct {
		rangeID string
		r       kv.Range
	}
	var feeds []feed
	for rows.Next() {
		var f feed
		var begin, end []byte
		if err := rows.Scan(&f.rangeID, &begin, &end); err != nil {
			return fmt.Errorf("scan feed: %w", err)
		}
		f.r = kv.Range{Begin: append(kv.Key(nil), begin...), End: append(kv.Key(nil), end...)}
		feeds = append(feeds, f)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate feeds: %w", err)
	}

	for _, f := range feeds {
		ord := 0
		for _, m := range muts {
			clipped, ok := clipToRange(m, f.r)
			if !ok {
				continue
			}
			if err := insertFeedRow(ctx, tx, f.rangeID, version, ord, clipped); err != nil {
				return err
			}
			ord++
		}
	}
	return nil
}

// clipToRange restricts m to feed range r, reporting false when they do
// not intersect.
func clipToRange(m kv.Mutation, r kv.Range) (kv.Mutation, bool) {
	switch m.Type {
	case kv.SetValue:
		if !r.Contains(m.Key) {
			return kv.Mutation{}, false
		}
		return m, true
	case kv.ClearRange:
		overlap := (kv.Range{Begin: m.Key, End: m.End}).Intersect(r)
		if overlap.Empty() {
			return kv.Mutation{}, false
		}
		return kv.Clear(overlap.Begin, overlap.End), true
	}
	return kv.Mutation{}, false
}

func insertFeedRow(ctx context.Context, tx *sql.Tx, rangeID string, version int64, ord int, m kv.Mutation) error {
	var op int
	var value, endKey []byte
	switch m.Type {
	case kv.SetValue:
		op, value = 0, m.Value
	case kv.ClearRange:
		op, endKey = 1, []byte(m.End)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO feed_log (range_id, version, ord, op, key, value, end_key)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rangeID, version, ord, op, []byte(m.Key), value, endKey)
	if err != nil {
		return fmt.Errorf("log mutation for %s: %w", rangeID, err)
	}
	return nil
}

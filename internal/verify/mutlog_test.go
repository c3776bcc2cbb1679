package verify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sfc-gh-svemuri/feedcheck/internal/engine"
	"github.com/sfc-gh-svemuri/feedcheck/internal/kv"
)

// fakeFeedStream replays scripted batch chunks.
type fakeFeedStream struct {
	chunks []feedChunkScript
	pos    int
}

type feedChunkScript struct {
	batches []kv.MutationBatch
	err     error
}

func (s *fakeFeedStream) Recv(ctx context.Context) ([]kv.MutationBatch, error) {
	if s.pos >= len(s.chunks) {
		return nil, engine.ErrEndOfStream
	}
	c := s.chunks[s.pos]
	s.pos++
	return c.batches, c.err
}

// feedDB serves one scripted feed stream and records the open request.
type feedDB struct {
	fakeDB
	stream    *fakeFeedStream
	openErr   error
	gotBegin  int64
	gotEnd    int64
	gotRange  kv.Range
	gotOpened bool
}

func (d *feedDB) OpenFeedStream(ctx context.Context, rangeID string, begin, end int64, r kv.Range) (FeedStream, error) {
	d.gotOpened = true
	d.gotBegin, d.gotEnd, d.gotRange = begin, end, r
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.stream, nil
}

func TestReadMutationLogAccumulates(t *testing.T) {
	db := &feedDB{stream: &fakeFeedStream{chunks: []feedChunkScript{
		{batches: []kv.MutationBatch{batch(4, kv.Set([]byte("b"), []byte("2")))}},
		{batches: []kv.MutationBatch{batch(5, kv.Clear([]byte("a"), []byte("b")))}},
	}}}

	log, err := ReadMutationLog(context.Background(), db, "feed-1", 3, 6, kv.NormalRange())
	if err != nil {
		t.Fatalf("ReadMutationLog() failed: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("got %d batches, want 2", len(log))
	}
	if log[0].Version != 4 || log[1].Version != 5 {
		t.Errorf("batch versions = %d, %d, want 4, 5", log[0].Version, log[1].Version)
	}
	if db.gotBegin != 3 || db.gotEnd != 6 {
		t.Errorf("opened [%d, %d), want [3, 6)", db.gotBegin, db.gotEnd)
	}
}

func TestReadMutationLogEmptyInterval(t *testing.T) {
	db := &feedDB{stream: &fakeFeedStream{}}

	log, err := ReadMutationLog(context.Background(), db, "feed-1", 6, 6, kv.NormalRange())
	if err != nil {
		t.Fatalf("ReadMutationLog() failed: %v", err)
	}
	if len(log) != 0 {
		t.Errorf("empty interval yielded %d batches, want 0", len(log))
	}
}

func TestReadMutationLogStreamErrorIsFatal(t *testing.T) {
	broken := errors.New("subscription torn down")
	db := &feedDB{stream: &fakeFeedStream{chunks: []feedChunkScript{
		{batches: []kv.MutationBatch{batch(4, kv.Set([]byte("a"), []byte("1")))}},
		{err: broken},
	}}}

	_, err := ReadMutationLog(context.Background(), db, "feed-1", 3, 9, kv.NormalRange())
	if !errors.Is(err, broken) {
		t.Fatalf("ReadMutationLog() = %v, want wrapped %v", err, broken)
	}
	// The error message carries the resume cursor: one past the last
	// fully received batch.
	if want := "cursor 5"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not mention %q", err.Error(), want)
	}
}

func TestReadMutationLogOpenErrorIsFatal(t *testing.T) {
	broken := errors.New("transport refused")
	db := &feedDB{openErr: broken}

	if _, err := ReadMutationLog(context.Background(), db, "feed-1", 0, 9, kv.NormalRange()); !errors.Is(err, broken) {
		t.Errorf("ReadMutationLog() = %v, want wrapped %v", err, broken)
	}
}

package engine

import (
	"context"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
)

// ErrEndOfStream is the terminal result of a fully consumed scan or feed
// stream. It marks normal completion, distinct from any failure.
var ErrEndOfStream = errors.New("end of stream")

// retryBackoff is how long OnRetryable waits before the caller restarts a
// failed transaction from scratch.
const retryBackoff = 50 * time.Millisecond

// IsRetryable reports whether err is a transient transactional error that
// the caller should recover from by restarting the whole operation.
func IsRetryable(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
}

// OnRetryable waits out a short backoff when err is retryable, returning
// nil once the caller may restart. Non-retryable errors are returned
// unchanged so retry loops terminate.
func (e *Engine) OnRetryable(ctx context.Context, err error) error {
	if !IsRetryable(err) {
		return err
	}
	select {
	case <-time.After(retryBackoff):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package service

import (
	"errors"
	"fmt"
	"time"

	"huddle/pkg/conversations"
	"huddle/pkg/messagelog"
	"huddle/pkg/store"
)

// ErrForbidden is returned when a caller attempts an operation on a
// message or conversation they do not own.
var ErrForbidden = errors.New("service: forbidden")

// ErrNotFound is returned when the target conversation or message does
// not exist.
var ErrNotFound = errors.New("service: not found")

// RateLimitedError reports a denied action and when it may be retried.
type RateLimitedError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited (%s): retry in %s", e.Action, e.RetryAfter.Round(time.Millisecond))
}

// BlockedError reports a message rejected by the moderation gate.
// Nothing was persisted.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return "blocked by content policy: " + e.Reason
}

// TransientStoreError wraps a storage failure that survived the retry
// budget. Callers should surface a recoverable "sync paused" state and
// re-issue the operation rather than treat the data as lost.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error in %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

const storeRetries = 3

// retryStore runs fn up to storeRetries times with a short backoff.
// Domain outcomes (not found, forbidden, kind mismatch) pass through
// unwrapped; only genuine storage failures get the transient wrapper.
func retryStore(op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < storeRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrNotFound) ||
			errors.Is(err, messagelog.ErrForbidden) ||
			errors.Is(err, conversations.ErrKindMismatch) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 25 * time.Millisecond)
	}
	return &TransientStoreError{Op: op, Err: err}
}

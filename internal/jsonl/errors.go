package jsonl

import (
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrStop can be returned from a Stream callback to end the scan early.
	// Stream then returns nil.
	ErrStop = errors.New("stop iteration")

	// ErrLockContention is returned when the log lock could not be acquired
	// within the configured retries.
	ErrLockContention = errors.New("log lock contention")
)

// ValidationError describes a persisted line that failed to decode.
type ValidationError struct {
	Path string
	Line int
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s:%d: invalid record: %v", e.Path, e.Line, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// transientError marks failures worth re-running the critical section for.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Permanent stops WithLock from re-running the critical section for err,
// even when err wraps a transient write failure. Use it once a critical
// section has made changes elsewhere that a re-run would repeat.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

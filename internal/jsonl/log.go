package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codeloops/internal/lock"
)

const (
	fileMode = 0o644
	dirMode  = 0o755

	readBufferSize = 64 * 1024
)

// DecodeFunc decodes and validates one persisted line.
type DecodeFunc[T any] func(line []byte) (T, error)

// JSONDecoder returns a DecodeFunc that unmarshals a line into T and then
// runs validate on it. validate may be nil.
func JSONDecoder[T any](validate func(*T) error) DecodeFunc[T] {
	return func(line []byte) (T, error) {
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			return v, err
		}
		if validate != nil {
			if err := validate(&v); err != nil {
				return v, err
			}
		}
		return v, nil
	}
}

// Options configures a Log.
type Options struct {
	// Name labels metrics and log lines. Defaults to the file's base name.
	Name string

	// MaxRetries bounds retries after the first attempt (default: 3).
	MaxRetries int

	// RetryStep is the linear backoff unit (default: 100ms).
	RetryStep time.Duration

	Logger *zap.Logger
}

// Log is a durable append-only JSON-lines file of T.
type Log[T any] struct {
	path     string
	lockPath string
	name     string
	decode   DecodeFunc[T]

	maxRetries int
	retryStep  time.Duration

	logger  *zap.Logger
	metrics *Metrics
}

// New creates a Log backed by path. The file is not touched until Ensure or
// the first write.
func New[T any](path string, decode DecodeFunc[T], opts Options) (*Log[T], error) {
	if path == "" {
		return nil, errors.New("log path is required")
	}
	if decode == nil {
		return nil, errors.New("decode function is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving log path: %w", err)
	}
	if opts.Name == "" {
		opts.Name = filepath.Base(abs)
	}
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be >= 0, got %d", opts.MaxRetries)
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryStep <= 0 {
		opts.RetryStep = DefaultRetryStep
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Log[T]{
		path:       abs,
		lockPath:   abs + ".lock",
		name:       opts.Name,
		decode:     decode,
		maxRetries: opts.MaxRetries,
		retryStep:  opts.RetryStep,
		logger:     opts.Logger.With(zap.String("log", opts.Name)),
		metrics:    NewMetrics(),
	}, nil
}

// Path returns the absolute path of the log file.
func (l *Log[T]) Path() string {
	return l.path
}

// Ensure creates the parent directory and an empty file if missing.
func (l *Log[T]) Ensure() error {
	if err := os.MkdirAll(filepath.Dir(l.path), dirMode); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDONLY, fileMode)
	if err != nil {
		return fmt.Errorf("creating log file: %w", err)
	}
	return f.Close()
}

// Append writes items as one contiguous write under the lock.
func (l *Log[T]) Append(ctx context.Context, items ...T) error {
	if len(items) == 0 {
		return nil
	}
	return l.WithLock(ctx, func(tx *Tx[T]) error {
		return tx.Append(items...)
	})
}

// ReadAll returns every valid record in file order. A missing file reads as
// empty.
func (l *Log[T]) ReadAll(ctx context.Context) ([]T, error) {
	var out []T
	err := l.stream(ctx, func(v T) error {
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stream calls fn for each valid record in file order without holding the
// whole file in memory. Returning ErrStop ends the scan without error.
func (l *Log[T]) Stream(ctx context.Context, fn func(T) error) error {
	return l.stream(ctx, fn)
}

// Count returns the number of non-blank lines, valid or not.
func (l *Log[T]) Count(ctx context.Context) (int, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("opening log: %w", err)
	}
	defer f.Close()

	n := 0
	r := bufio.NewReaderSize(f, readBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		raw, readErr := r.ReadBytes('\n')
		if len(bytes.TrimSpace(raw)) > 0 {
			n++
		}
		if readErr == io.EOF {
			return n, nil
		}
		if readErr != nil {
			return 0, fmt.Errorf("reading log: %w", readErr)
		}
	}
}

// Rebuild atomically replaces the file content with items.
func (l *Log[T]) Rebuild(ctx context.Context, items []T) error {
	return l.WithLock(ctx, func(tx *Tx[T]) error {
		return tx.Rebuild(items)
	})
}

// Update reads all records, applies fn and rebuilds the file with the result,
// all under one lock. Returning an error from fn leaves the file unchanged.
func (l *Log[T]) Update(ctx context.Context, fn func([]T) ([]T, error)) error {
	return l.WithLock(ctx, func(tx *Tx[T]) error {
		items, err := tx.ReadAll()
		if err != nil {
			return err
		}
		next, err := fn(items)
		if err != nil {
			return err
		}
		return tx.Rebuild(next)
	})
}

// WithLock runs fn while holding the log's exclusive lock. Lock contention and
// transient write errors re-run fn after a linear backoff. The context bounds
// waiting only; it is ignored once the lock is held.
func (l *Log[T]) WithLock(ctx context.Context, fn func(tx *Tx[T]) error) error {
	attempts := 0
	op := func() error {
		attempts++
		fl, err := lock.TryLock(l.lockPath)
		if err != nil {
			if errors.Is(err, lock.ErrLocked) {
				l.metrics.LockRetriesTotal.WithLabelValues(l.name).Inc()
			}
			return err
		}
		defer func() {
			if uerr := fl.Unlock(); uerr != nil {
				l.logger.Warn("releasing log lock", zap.Error(uerr))
			}
		}()

		err = fn(&Tx[T]{log: l})
		var perm *backoff.PermanentError
		if err == nil || isTransient(err) || errors.As(err, &perm) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newLinearBackOff(l.retryStep), uint64(l.maxRetries)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		l.logger.Debug("retrying log operation",
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op, policy, notify)
	if err == nil {
		return nil
	}
	if errors.Is(err, lock.ErrLocked) {
		return fmt.Errorf("%w: %s after %d attempts", ErrLockContention, l.path, attempts)
	}
	if te, ok := err.(*transientError); ok {
		return te.err
	}
	return err
}

func (l *Log[T]) stream(ctx context.Context, fn func(T) error) error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening log: %w", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, readBufferSize)
	lineNo := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, readErr := r.ReadBytes('\n')
		if len(raw) > 0 {
			lineNo++
			if line := bytes.TrimSpace(raw); len(line) > 0 {
				v, err := l.decode(line)
				if err != nil {
					l.skip(lineNo, err)
				} else if err := fn(v); err != nil {
					if errors.Is(err, ErrStop) {
						return nil
					}
					return err
				}
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("reading log: %w", readErr)
		}
	}
}

func (l *Log[T]) skip(lineNo int, err error) {
	l.metrics.SkippedLinesTotal.WithLabelValues(l.name).Inc()
	l.logger.Warn("skipping invalid log line",
		zap.Int("line", lineNo),
		zap.Error(&ValidationError{Path: l.path, Line: lineNo, Err: err}),
	)
}

// encodeLines renders items as newline-terminated JSON without HTML escaping.
func encodeLines[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i := range items {
		if err := enc.Encode(items[i]); err != nil {
			return nil, fmt.Errorf("encoding record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

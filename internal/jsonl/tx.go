package jsonl

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// syncFile is replaced in tests.
var syncFile = (*os.File).Sync

// Tx is the view of a Log available inside WithLock. It must not be used
// after the callback returns.
type Tx[T any] struct {
	log *Log[T]
}

// Path returns the locked log file's path.
func (tx *Tx[T]) Path() string {
	return tx.log.path
}

// ReadAll returns every valid record in file order.
func (tx *Tx[T]) ReadAll() ([]T, error) {
	return tx.log.ReadAll(context.Background())
}

// Stream calls fn for each valid record in file order.
func (tx *Tx[T]) Stream(fn func(T) error) error {
	return tx.log.stream(context.Background(), fn)
}

// Append writes items in a single write. A file whose last line lacks a
// terminator (a torn earlier write) gets one first so the new records start
// on a fresh line.
func (tx *Tx[T]) Append(items ...T) error {
	if len(items) == 0 {
		return nil
	}
	err := tx.append(items)
	result := "success"
	if err != nil {
		result = "error"
	}
	tx.log.metrics.AppendsTotal.WithLabelValues(tx.log.name, result).Inc()
	return err
}

func (tx *Tx[T]) append(items []T) error {
	data, err := encodeLines(items)
	if err != nil {
		return err
	}

	l := tx.log
	if err := os.MkdirAll(filepath.Dir(l.path), dirMode); err != nil {
		return transient(fmt.Errorf("creating log directory: %w", err))
	}
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, fileMode)
	if err != nil {
		return transient(fmt.Errorf("opening log for append: %w", err))
	}
	defer f.Close()

	torn, err := missingTerminator(f)
	if err != nil {
		return transient(err)
	}
	if torn {
		data = append([]byte{'\n'}, data...)
	}
	if _, err := f.Write(data); err != nil {
		return transient(fmt.Errorf("appending to log: %w", err))
	}
	// the records are already in the file; a re-run would duplicate them
	if err := syncFile(f); err != nil {
		return Permanent(fmt.Errorf("syncing log: %w", err))
	}
	return nil
}

// Rebuild replaces the file with items via temp file, fsync and rename.
func (tx *Tx[T]) Rebuild(items []T) error {
	data, err := encodeLines(items)
	if err != nil {
		return err
	}
	l := tx.log
	if err := writeAtomic(l.path, data); err != nil {
		return transient(err)
	}
	l.metrics.RebuildsTotal.WithLabelValues(l.name).Inc()
	return nil
}

func missingTerminator(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat log: %w", err)
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil && err != io.EOF {
		return false, fmt.Errorf("reading log tail: %w", err)
	}
	return last[0] != '\n', nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, fileMode); err != nil {
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing log: %w", err)
	}
	committed = true
	return syncDir(dir)
}

// syncDir makes a rename durable. Directories that cannot be opened or
// synced (Windows) are ignored.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer d.Close()
	_ = d.Sync()
	return nil
}

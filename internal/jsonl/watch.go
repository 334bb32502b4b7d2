package jsonl

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// EventKind classifies a change to the log file.
type EventKind string

const (
	// EventAppended means records were written to the existing file.
	EventAppended EventKind = "appended"

	// EventReplaced means the file was created or swapped in by a rebuild.
	EventReplaced EventKind = "replaced"

	// EventRemoved means the file disappeared.
	EventRemoved EventKind = "removed"
)

// Event is a change notification for a watched log.
type Event struct {
	Kind EventKind
	Path string
	At   time.Time
}

// Watch reports changes to the log file until ctx is done. The parent
// directory is watched so rebuild renames are observed. The returned channel
// is closed when watching stops.
func (l *Log[T]) Watch(ctx context.Context) (<-chan Event, error) {
	if err := l.Ensure(); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching log directory: %w", err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != l.path {
					continue
				}
				kind, ok := classify(ev)
				if !ok {
					continue
				}
				select {
				case out <- Event{Kind: kind, Path: l.path, At: time.Now().UTC()}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("log watcher error", zap.Error(err))
			}
		}
	}()
	return out, nil
}

func classify(ev fsnotify.Event) (EventKind, bool) {
	switch {
	case ev.Has(fsnotify.Create):
		return EventReplaced, true
	case ev.Has(fsnotify.Write):
		return EventAppended, true
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return EventRemoved, true
	default:
		return "", false
	}
}

// Package memory stores flat, unstructured memory entries on the durable
// log. Entries have no edges; queries are linear scans that keep the most
// recent matches.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codeloops/internal/checkpoint"
	"github.com/fyrsmithlabs/codeloops/internal/jsonl"
	"github.com/fyrsmithlabs/codeloops/internal/window"
)

const (
	// LogFile is the live memory log inside the data directory.
	LogFile = "memory.ndjson"
	// DeletedLogFile receives forgotten entries.
	DeletedLogFile = "memory.deleted.ndjson"
	// BackupDir holds pre-rebuild snapshots, shared with the graph.
	BackupDir = "backup"

	backupPrefix = "memory"
)

var (
	// ErrEntryNotFound is returned by Forget for unknown IDs.
	ErrEntryNotFound = errors.New("memory entry not found")

	// ErrBackupFailed is returned when Forget could not snapshot the log.
	// Nothing is changed.
	ErrBackupFailed = errors.New("backup failed")

	// ErrInvalidEntry is wrapped by validation failures.
	ErrInvalidEntry = errors.New("invalid memory entry")
)

var entryValidate = validator.New()

// Entry is one memory record.
type Entry struct {
	ID        string    `json:"id" validate:"required"`
	Project   string    `json:"project" validate:"required"`
	Content   string    `json:"content" validate:"required"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt" validate:"required"`
	SessionID string    `json:"sessionId,omitempty"`
	Source    string    `json:"source,omitempty"`
	Role      string    `json:"role,omitempty"`
}

// DeletedEntry is an entry moved to the deleted log.
type DeletedEntry struct {
	Entry
	DeletedAt     time.Time `json:"deletedAt"`
	DeletedReason string    `json:"deletedReason,omitempty"`
}

// Filter narrows Query. Set fields combine with AND.
type Filter struct {
	Project   string
	SessionID string

	// Tags must all be present on the entry.
	Tags []string

	// Query is a case-insensitive substring of Content.
	Query string

	Role string

	// Limit keeps only the most recent matches. Zero or negative keeps all.
	Limit int
}

func (f Filter) matches(e Entry) bool {
	if f.Project != "" && e.Project != f.Project {
		return false
	}
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.Role != "" && e.Role != f.Role {
		return false
	}
	if len(f.Tags) > 0 {
		have := make(map[string]struct{}, len(e.Tags))
		for _, t := range e.Tags {
			have[t] = struct{}{}
		}
		for _, t := range f.Tags {
			if _, ok := have[t]; !ok {
				return false
			}
		}
	}
	if f.Query != "" && !strings.Contains(strings.ToLower(e.Content), strings.ToLower(f.Query)) {
		return false
	}
	return true
}

// Options configures a Store.
type Options struct {
	DataDir    string
	MaxRetries int
	RetryStep  time.Duration

	// BackupKeep bounds retained backups. Zero uses the checkpoint default.
	BackupKeep int

	Logger *zap.Logger
}

// Store is the flat memory entry store.
type Store struct {
	log     *jsonl.Log[Entry]
	deleted *jsonl.Log[DeletedEntry]
	backups checkpoint.Service
	logger  *zap.Logger
	now     func() time.Time
}

// NewStore opens (creating if needed) the memory files under opts.DataDir.
func NewStore(opts Options) (*Store, error) {
	if opts.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.Named("memory")

	live, err := jsonl.New(filepath.Join(opts.DataDir, LogFile), decodeEntry, jsonl.Options{
		Name:       "memory",
		MaxRetries: opts.MaxRetries,
		RetryStep:  opts.RetryStep,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	deleted, err := jsonl.New(filepath.Join(opts.DataDir, DeletedLogFile), decodeDeletedEntry, jsonl.Options{
		Name:       "memory_deleted",
		MaxRetries: opts.MaxRetries,
		RetryStep:  opts.RetryStep,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	if err := live.Ensure(); err != nil {
		return nil, err
	}
	if err := deleted.Ensure(); err != nil {
		return nil, err
	}

	bcfg := checkpoint.DefaultServiceConfig(filepath.Join(opts.DataDir, BackupDir))
	bcfg.Prefix = backupPrefix
	if opts.BackupKeep != 0 {
		bcfg.Keep = opts.BackupKeep
	}
	backups, err := checkpoint.NewService(bcfg, logger)
	if err != nil {
		return nil, err
	}

	return &Store{
		log:     live,
		deleted: deleted,
		backups: backups,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Backups returns the service holding memory log snapshots.
func (s *Store) Backups() checkpoint.Service {
	return s.backups
}

// Add assigns an ID (when empty) and CreatedAt, then appends the entry.
func (s *Store) Add(ctx context.Context, e Entry) (*Entry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = s.now()
	if e.Tags != nil {
		e.Tags = append([]string{}, e.Tags...)
	}
	if err := validateEntry(&e); err != nil {
		return nil, err
	}
	if err := s.log.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("appending memory entry: %w", err)
	}
	s.logger.Debug("memory entry added", zap.String("id", e.ID), zap.String("project", e.Project))
	return &e, nil
}

// Get returns the entry with id, or nil when none exists.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	var found *Entry
	err := s.log.Stream(ctx, func(e Entry) error {
		if e.ID == id {
			found = &e
			return jsonl.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Query returns matching entries in log order, keeping the most recent
// f.Limit of them.
func (s *Store) Query(ctx context.Context, f Filter) ([]Entry, error) {
	recent := window.New[Entry](f.Limit)
	err := s.log.Stream(ctx, func(e Entry) error {
		if f.matches(e) {
			recent.Push(e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recent.Items(), nil
}

// Forget moves the entry to the deleted log and rebuilds the live log
// without it, under one lock. The live log is backed up first; on
// ErrBackupFailed nothing changes.
func (s *Store) Forget(ctx context.Context, id, reason string) (*DeletedEntry, error) {
	var out *DeletedEntry
	err := s.log.WithLock(ctx, func(tx *jsonl.Tx[Entry]) error {
		entries, err := tx.ReadAll()
		if err != nil {
			return err
		}
		retained := make([]Entry, 0, len(entries))
		var target *Entry
		for i := range entries {
			if target == nil && entries[i].ID == id {
				target = &entries[i]
				continue
			}
			retained = append(retained, entries[i])
		}
		if target == nil {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}

		if _, err := s.backups.Save(ctx, tx.Path()); err != nil {
			return jsonl.Permanent(fmt.Errorf("%w: %w", ErrBackupFailed, err))
		}

		d := DeletedEntry{Entry: *target, DeletedAt: s.now(), DeletedReason: reason}
		if err := s.deleted.Append(context.WithoutCancel(ctx), d); err != nil {
			return jsonl.Permanent(fmt.Errorf("recording forgotten entry: %w", err))
		}
		if err := tx.Rebuild(retained); err != nil {
			return jsonl.Permanent(fmt.Errorf("rebuilding memory log: %w", err))
		}
		out = &d
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrBackupFailed) {
			s.logger.Error("forget aborted", zap.String("id", id), zap.Error(err))
		}
		return nil, err
	}
	s.logger.Info("memory entry forgotten", zap.String("id", id))
	return out, nil
}

// ListProjects returns the distinct projects in order of first appearance.
func (s *Store) ListProjects(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	out := []string{}
	err := s.log.Stream(ctx, func(e Entry) error {
		if _, ok := seen[e.Project]; !ok {
			seen[e.Project] = struct{}{}
			out = append(out, e.Project)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListDeleted returns forgotten entries of project; empty lists all.
func (s *Store) ListDeleted(ctx context.Context, project string) ([]DeletedEntry, error) {
	out := []DeletedEntry{}
	err := s.deleted.Stream(ctx, func(d DeletedEntry) error {
		if project == "" || d.Project == project {
			out = append(out, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func validateEntry(e *Entry) error {
	if err := entryValidate.Struct(e); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s is %s", ErrInvalidEntry, strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return nil
}

func decodeEntry(line []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return Entry{}, err
	}
	if err := validateEntry(&e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func decodeDeletedEntry(line []byte) (DeletedEntry, error) {
	var d DeletedEntry
	if err := json.Unmarshal(line, &d); err != nil {
		return DeletedEntry{}, err
	}
	if err := validateEntry(&d.Entry); err != nil {
		return DeletedEntry{}, err
	}
	if d.DeletedAt.IsZero() {
		return DeletedEntry{}, fmt.Errorf("%w: deletedAt is required", ErrInvalidEntry)
	}
	return d, nil
}

package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/codeloops/internal/checkpoint"

// Service provides backup management operations.
type Service interface {
	// Save copies src into a new timestamped backup and prunes old ones.
	// A missing src produces an empty backup.
	Save(ctx context.Context, src string) (*Checkpoint, error)

	// List returns backups newest first.
	List(ctx context.Context) ([]*Checkpoint, error)

	// Latest returns the newest backup or ErrNotFound.
	Latest(ctx context.Context) (*Checkpoint, error)

	// Get resolves a backup by ID or path.
	Get(ctx context.Context, id string) (*Checkpoint, error)

	// Prune removes backups beyond the retention limit and returns how many
	// were removed.
	Prune(ctx context.Context) (int, error)

	// Close closes the service.
	Close() error
}

// service implements the Service interface.
type service struct {
	config *Config
	logger *zap.Logger
	now    func() time.Time

	// Telemetry
	tracer       trace.Tracer
	meter        metric.Meter
	saveCounter  metric.Int64Counter
	pruneCounter metric.Int64Counter

	mu     sync.RWMutex
	closed bool
}

// NewService creates a new checkpoint service.
func NewService(cfg *Config, logger *zap.Logger) (Service, error) {
	if cfg == nil || cfg.Dir == "" {
		return nil, errors.New("backup directory is required")
	}
	if cfg.Prefix == "" {
		return nil, errors.New("backup prefix is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := *cfg
	if c.Keep == 0 {
		c.Keep = DefaultKeep
	}
	dir, err := filepath.Abs(c.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving backup directory: %w", err)
	}
	c.Dir = dir

	s := &service{
		config: &c,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	s.initMetrics()

	return s, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (s *service) initMetrics() {
	var err error

	s.saveCounter, err = s.meter.Int64Counter(
		"codeloops.backup.saves_total",
		metric.WithDescription("Total number of backups saved"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		s.logger.Warn("failed to create save counter", zap.Error(err))
	}

	s.pruneCounter, err = s.meter.Int64Counter(
		"codeloops.backup.pruned_total",
		metric.WithDescription("Total number of backups pruned"),
		metric.WithUnit("{backup}"),
	)
	if err != nil {
		s.logger.Warn("failed to create prune counter", zap.Error(err))
	}
}

func (s *service) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Save copies src into a new backup file.
func (s *service) Save(ctx context.Context, src string) (*Checkpoint, error) {
	ctx, span := s.tracer.Start(ctx, "checkpoint.save")
	defer span.End()

	span.SetAttributes(attribute.String("source", src))

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	created := s.now()
	name := s.config.Prefix + backupMarker + created.Format(timestampLayout) + backupExt
	dst := filepath.Join(s.config.Dir, name)

	size, lines, err := copyFile(src, dst)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to save backup: %w", err)
	}

	if s.saveCounter != nil {
		s.saveCounter.Add(ctx, 1)
	}

	cp := &Checkpoint{
		ID:        name,
		Path:      dst,
		Source:    src,
		Size:      size,
		Lines:     lines,
		CreatedAt: created,
	}

	s.logger.Info("backup saved",
		zap.String("path", dst),
		zap.Int("lines", lines),
	)

	if _, err := s.Prune(ctx); err != nil {
		s.logger.Warn("failed to prune backups", zap.Error(err))
	}

	return cp, nil
}

// List returns backups newest first.
func (s *service) List(ctx context.Context) ([]*Checkpoint, error) {
	_, span := s.tracer.Start(ctx, "checkpoint.list")
	defer span.End()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.config.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	out := make([]*Checkpoint, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		created, ok := s.parseName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, &Checkpoint{
			ID:        e.Name(),
			Path:      filepath.Join(s.config.Dir, e.Name()),
			Size:      info.Size(),
			CreatedAt: created,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	span.SetAttributes(attribute.Int("count", len(out)))
	return out, nil
}

// Latest returns the newest backup.
func (s *service) Latest(ctx context.Context) (*Checkpoint, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrNotFound
	}
	return all[0], nil
}

// Get resolves a backup by file name or path inside the backup directory.
func (s *service) Get(ctx context.Context, id string) (*Checkpoint, error) {
	name := filepath.Base(id)
	if name != id {
		abs, err := filepath.Abs(filepath.Dir(id))
		if err != nil || abs != s.config.Dir {
			return nil, fmt.Errorf("%w: %s is outside %s", ErrNotFound, id, s.config.Dir)
		}
	}
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, cp := range all {
		if cp.ID == name {
			return cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Prune removes the oldest backups beyond Keep.
func (s *service) Prune(ctx context.Context) (int, error) {
	if s.config.Keep < 0 {
		return 0, nil
	}
	all, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(all) <= s.config.Keep {
		return 0, nil
	}

	removed := 0
	var errs []error
	for _, cp := range all[s.config.Keep:] {
		if err := os.Remove(cp.Path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		if s.pruneCounter != nil {
			s.pruneCounter.Add(ctx, int64(removed))
		}
		s.logger.Debug("pruned backups", zap.Int("removed", removed))
	}
	return removed, errors.Join(errs...)
}

// Close closes the service.
func (s *service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *service) parseName(name string) (time.Time, bool) {
	prefix := s.config.Prefix + backupMarker
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, backupExt) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), backupExt)
	t, err := time.Parse(timestampLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// copyFile copies src to dst through a temp file and rename, returning the
// byte size and the number of non-blank lines.
func copyFile(src, dst string) (int64, int, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, 0, err
	}

	var r io.Reader = bytes.NewReader(nil)
	in, err := os.Open(src)
	switch {
	case err == nil:
		defer in.Close()
		r = in
	case !os.IsNotExist(err):
		return 0, 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return 0, 0, err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	counter := &lineCounter{}
	size, err := io.Copy(tmp, io.TeeReader(r, counter))
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, 0, err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return 0, 0, err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return 0, 0, err
	}
	committed = true
	return size, counter.count(), nil
}

// lineCounter counts non-blank lines written through it.
type lineCounter struct {
	lines   int
	pending bool
}

func (c *lineCounter) Write(p []byte) (int, error) {
	for _, b := range p {
		switch b {
		case '\n':
			if c.pending {
				c.lines++
			}
			c.pending = false
		case ' ', '\t', '\r':
		default:
			c.pending = true
		}
	}
	return len(p), nil
}

func (c *lineCounter) count() int {
	if c.pending {
		return c.lines + 1
	}
	return c.lines
}

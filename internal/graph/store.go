package graph

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codeloops/internal/checkpoint"
	"github.com/fyrsmithlabs/codeloops/internal/jsonl"
)

const instrumentationName = "github.com/fyrsmithlabs/codeloops/internal/graph"

const (
	// LogFile is the live graph log inside the data directory.
	LogFile = "knowledge_graph.ndjson"
	// DeletedLogFile receives soft-deleted nodes.
	DeletedLogFile = "knowledge_graph.deleted.ndjson"
	// BackupDir holds pre-rebuild snapshots.
	BackupDir = "backup"
)

// Options configures a Store.
type Options struct {
	// DataDir holds the graph files.
	DataDir string

	MaxRetries int
	RetryStep  time.Duration

	// BackupKeep bounds retained backups. Zero uses the checkpoint default.
	BackupKeep int

	Logger *zap.Logger
}

// Store is the project-partitioned thought graph.
type Store struct {
	log     *jsonl.Log[Node]
	deleted *jsonl.Log[DeletedNode]
	backups checkpoint.Service
	logger  *zap.Logger
	now     func() time.Time

	// Telemetry
	tracer         trace.Tracer
	meter          metric.Meter
	appendCounter  metric.Int64Counter
	cycleCounter   metric.Int64Counter
	deletedCounter metric.Int64Counter
}

// NewStore opens (creating if needed) the graph files under opts.DataDir.
func NewStore(opts Options) (*Store, error) {
	if opts.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.Named("graph")

	live, err := jsonl.New(filepath.Join(opts.DataDir, LogFile), DecodeNode, jsonl.Options{
		Name:       "knowledge_graph",
		MaxRetries: opts.MaxRetries,
		RetryStep:  opts.RetryStep,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	deleted, err := jsonl.New(filepath.Join(opts.DataDir, DeletedLogFile), DecodeDeletedNode, jsonl.Options{
		Name:       "knowledge_graph_deleted",
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
	if opts.BackupKeep != 0 {
		bcfg.Keep = opts.BackupKeep
	}
	backups, err := checkpoint.NewService(bcfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Store{
		log:     live,
		deleted: deleted,
		backups: backups,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		tracer:  otel.Tracer(instrumentationName),
		meter:   otel.Meter(instrumentationName),
	}
	s.initMetrics()
	return s, nil
}

func (s *Store) initMetrics() {
	var err error

	s.appendCounter, err = s.meter.Int64Counter(
		"codeloops.graph.nodes_appended_total",
		metric.WithDescription("Total number of nodes appended to the graph"),
		metric.WithUnit("{node}"),
	)
	if err != nil {
		s.logger.Warn("failed to create append counter", zap.Error(err))
	}

	s.cycleCounter, err = s.meter.Int64Counter(
		"codeloops.graph.cycles_rejected_total",
		metric.WithDescription("Total number of inserts rejected because they would create a cycle"),
		metric.WithUnit("{node}"),
	)
	if err != nil {
		s.logger.Warn("failed to create cycle counter", zap.Error(err))
	}

	s.deletedCounter, err = s.meter.Int64Counter(
		"codeloops.graph.nodes_deleted_total",
		metric.WithDescription("Total number of nodes soft-deleted"),
		metric.WithUnit("{node}"),
	)
	if err != nil {
		s.logger.Warn("failed to create delete counter", zap.Error(err))
	}
}

// Path returns the live log path.
func (s *Store) Path() string {
	return s.log.Path()
}

// Backups exposes the backup service for listing snapshots.
func (s *Store) Backups() checkpoint.Service {
	return s.backups
}

// Watch reports changes to the live log until ctx is done.
func (s *Store) Watch(ctx context.Context) (<-chan jsonl.Event, error) {
	return s.log.Watch(ctx)
}

// AppendEntity validates and persists node. An empty ID is assigned a UUID
// and CreatedAt is always stamped by the store. The insert is rejected,
// with nothing written, when the ID already exists, an edge names a node that
// is not live in the same project, or the edges would close a cycle.
func (s *Store) AppendEntity(ctx context.Context, node Node) (*Node, error) {
	ctx, span := s.tracer.Start(ctx, "graph.append")
	defer span.End()

	n := node.clone()
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = s.now()

	span.SetAttributes(
		attribute.String("node_id", n.ID),
		attribute.String("project", n.Project),
		attribute.String("role", string(n.Role)),
	)

	if err := ValidateNode(&n); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	err := s.log.WithLock(ctx, func(tx *jsonl.Tx[Node]) error {
		adj := adjacency{}
		live := make(map[string]struct{})
		exists := false
		err := tx.Stream(func(existing Node) error {
			if existing.ID == n.ID {
				exists = true
			}
			if existing.Project == n.Project {
				live[existing.ID] = struct{}{}
				adj.add(existing)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}
		for _, ref := range concat(n.Parents, n.Children) {
			if _, ok := live[ref]; !ok {
				return fmt.Errorf("%w: %s references %s", ErrDanglingReference, n.ID, ref)
			}
		}
		if err := adj.checkInsert(n); err != nil {
			return err
		}
		return tx.Append(n)
	})
	if err != nil {
		if errors.Is(err, ErrCycleDetected) && s.cycleCounter != nil {
			s.cycleCounter.Add(ctx, 1)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if s.appendCounter != nil {
		s.appendCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("role", string(n.Role))))
	}
	s.logger.Debug("node appended",
		zap.String("node_id", n.ID),
		zap.String("project", n.Project),
		zap.String("role", string(n.Role)),
	)

	out := n.clone()
	return &out, nil
}

// AddChild appends childID to the node's children, rewriting the log. Both
// nodes must be live in the same project. Adding an existing child is a
// no-op. The log is backed up before the rewrite; ErrBackupFailed leaves it
// untouched.
func (s *Store) AddChild(ctx context.Context, nodeID, childID string) error {
	ctx, span := s.tracer.Start(ctx, "graph.add_child")
	defer span.End()

	span.SetAttributes(
		attribute.String("node_id", nodeID),
		attribute.String("child_id", childID),
	)

	err := s.log.WithLock(ctx, func(tx *jsonl.Tx[Node]) error {
		nodes, err := tx.ReadAll()
		if err != nil {
			return err
		}
		idx := indexOf(nodes, nodeID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
		}
		parent := nodes[idx]
		cidx := indexOf(nodes, childID)
		if cidx < 0 || nodes[cidx].Project != parent.Project {
			return fmt.Errorf("%w: %s references %s", ErrDanglingReference, nodeID, childID)
		}
		if contains(parent.Children, childID) {
			return nil
		}

		adj := adjacency{}
		for _, n := range nodes {
			if n.Project == parent.Project {
				adj.add(n)
			}
		}
		if err := adj.checkEdge(nodeID, childID); err != nil {
			return err
		}

		// the rebuild drops lines the reader skipped, so keep a copy first
		if _, err := s.backups.Save(ctx, tx.Path()); err != nil {
			return fmt.Errorf("%w: %w", ErrBackupFailed, err)
		}

		parent.Children = append(append([]string{}, parent.Children...), childID)
		nodes[idx] = parent
		return tx.Rebuild(nodes)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// GetNode returns the node with id, or nil when none exists.
func (s *Store) GetNode(ctx context.Context, id string) (*Node, error) {
	var found *Node
	err := s.log.Stream(ctx, func(n Node) error {
		if n.ID == id {
			found = &n
			return jsonl.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// StreamDagNodes calls fn for every node of project in log order.
func (s *Store) StreamDagNodes(ctx context.Context, project string, fn func(Node) error) error {
	return s.log.Stream(ctx, func(n Node) error {
		if n.Project != project {
			return nil
		}
		return fn(n)
	})
}

// AllDagNodes returns every node of project in log order.
func (s *Store) AllDagNodes(ctx context.Context, project string) ([]Node, error) {
	out := []Node{}
	err := s.StreamDagNodes(ctx, project, func(n Node) error {
		out = append(out, n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListProjects returns the distinct projects in order of first appearance.
func (s *Store) ListProjects(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	out := []string{}
	err := s.log.Stream(ctx, func(n Node) error {
		if _, ok := seen[n.Project]; !ok {
			seen[n.Project] = struct{}{}
			out = append(out, n.Project)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func indexOf(nodes []Node, id string) int {
	for i := range nodes {
		if nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func concat(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

package summarize

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codeloops/internal/graph"
)

const instrumentationName = "github.com/fyrsmithlabs/codeloops/internal/summarize"

// DefaultThreshold is the number of un-summarized nodes that triggers a
// summary.
const DefaultThreshold = 20

// SummaryTag is set on every summary node.
const SummaryTag = "summary"

// Result is the summarizer's output. A non-empty Error reports failure.
type Result struct {
	Summary string
	Error   string
}

// Summarizer condenses a node sequence to prose.
type Summarizer interface {
	Summarize(ctx context.Context, nodes []graph.Node) Result
}

// SummarizerFunc adapts a function to Summarizer.
type SummarizerFunc func(ctx context.Context, nodes []graph.Node) Result

// Summarize calls f.
func (f SummarizerFunc) Summarize(ctx context.Context, nodes []graph.Node) Result {
	return f(ctx, nodes)
}

// Graph is the slice of the graph store the segmenter needs.
type Graph interface {
	Export(ctx context.Context, opts graph.ExportOptions) ([]graph.Node, error)
	AppendEntity(ctx context.Context, node graph.Node) (*graph.Node, error)
	AddChild(ctx context.Context, nodeID, childID string) error
}

// Options configures a Segmenter.
type Options struct {
	// Threshold defaults to DefaultThreshold.
	Threshold int
	Logger    *zap.Logger
}

// Segmenter decides when to summarize and writes summary nodes.
type Segmenter struct {
	graph      Graph
	summarizer Summarizer
	threshold  int
	logger     *zap.Logger

	tracer         trace.Tracer
	summaryCounter metric.Int64Counter
}

// NewSegmenter creates a Segmenter.
func NewSegmenter(g Graph, s Summarizer, opts Options) (*Segmenter, error) {
	if g == nil {
		return nil, errors.New("graph is required")
	}
	if s == nil {
		return nil, errors.New("summarizer is required")
	}
	if opts.Threshold < 0 {
		return nil, errors.New("threshold must be positive")
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	seg := &Segmenter{
		graph:      g,
		summarizer: s,
		threshold:  opts.Threshold,
		logger:     opts.Logger.Named("summarize"),
		tracer:     otel.Tracer(instrumentationName),
	}

	var err error
	seg.summaryCounter, err = otel.Meter(instrumentationName).Int64Counter(
		"codeloops.summaries_created_total",
		metric.WithDescription("Total number of summary nodes created"),
		metric.WithUnit("{summary}"),
	)
	if err != nil {
		seg.logger.Warn("failed to create summary counter", zap.Error(err))
	}
	return seg, nil
}

// Threshold returns the configured threshold.
func (s *Segmenter) Threshold() int {
	return s.threshold
}

// PendingSegment returns the un-summarized tail within the lookback window:
// the nodes after the most recent summary, or the whole window if it holds
// no summary.
func (s *Segmenter) PendingSegment(ctx context.Context, project string) ([]graph.Node, error) {
	recent, err := s.graph.Export(ctx, graph.ExportOptions{Project: project, Limit: s.threshold})
	if err != nil {
		return nil, err
	}
	anchor := -1
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].Role == graph.RoleSummary {
			anchor = i
			break
		}
	}
	return recent[anchor+1:], nil
}

// CheckAndTriggerSummarization summarizes the pending segment once it has
// reached the threshold. It returns the new summary node, or nil when none
// was due.
func (s *Segmenter) CheckAndTriggerSummarization(ctx context.Context, project, projectContext string) (*graph.Node, error) {
	ctx, span := s.tracer.Start(ctx, "summarize.check")
	defer span.End()

	span.SetAttributes(attribute.String("project", project))

	tail, err := s.PendingSegment(ctx, project)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("pending", len(tail)))
	if len(tail) < s.threshold {
		return nil, nil
	}
	return s.CreateSummary(ctx, tail, projectContext, project)
}

// CreateSummary asks the summarizer to condense nodes, persists a summary
// node below the last of them and links it as that node's child.
func (s *Segmenter) CreateSummary(ctx context.Context, nodes []graph.Node, projectContext, project string) (*graph.Node, error) {
	ctx, span := s.tracer.Start(ctx, "summarize.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("project", project),
		attribute.Int("segment_size", len(nodes)),
	)

	if len(nodes) == 0 {
		return nil, ErrEmptySegment
	}

	res := s.summarizer.Summarize(ctx, nodes)
	if res.Error != "" {
		err := &SummarizerError{Message: res.Error}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	text := strings.TrimSpace(res.Summary)
	if text == "" {
		span.RecordError(ErrEmptySummary)
		return nil, ErrEmptySummary
	}

	last := nodes[len(nodes)-1]
	segment := make([]string, len(nodes))
	for i, n := range nodes {
		segment[i] = n.ID
	}

	summary, err := s.graph.AppendEntity(ctx, graph.Node{
		Project:           project,
		ProjectContext:    projectContext,
		Thought:           text,
		Role:              graph.RoleSummary,
		Parents:           []string{last.ID},
		Tags:              []string{SummaryTag},
		SummarizedSegment: segment,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.graph.AddChild(ctx, last.ID, summary.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if s.summaryCounter != nil {
		s.summaryCounter.Add(ctx, 1)
	}
	s.logger.Info("summary created",
		zap.String("project", project),
		zap.String("summary_id", summary.ID),
		zap.Int("segment_size", len(segment)),
	)
	return summary, nil
}

package graph

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/codeloops/internal/window"
)

// Export returns the project's nodes that pass opts.Filter, keeping only the
// most recent opts.Limit matches in log order.
func (s *Store) Export(ctx context.Context, opts ExportOptions) ([]Node, error) {
	ctx, span := s.tracer.Start(ctx, "graph.export")
	defer span.End()

	span.SetAttributes(
		attribute.String("project", opts.Project),
		attribute.Int("limit", opts.Limit),
	)

	recent := window.New[Node](opts.Limit)
	err := s.StreamDagNodes(ctx, opts.Project, func(n Node) error {
		if opts.Filter == nil || opts.Filter(n) {
			recent.Push(n)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return recent.Items(), nil
}

// Resume returns the project's most recent nodes for picking work back up,
// trimming diff payloads per opts.IncludeDiffs.
func (s *Store) Resume(ctx context.Context, opts ResumeOptions) ([]Node, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultResumeLimit
	}
	policy := opts.IncludeDiffs
	if policy == "" {
		policy = DiffLatest
	}

	nodes, err := s.Export(ctx, ExportOptions{Project: opts.Project, Limit: limit})
	if err != nil {
		return nil, err
	}

	switch policy {
	case DiffNone:
		for i := range nodes {
			nodes[i].Diff = ""
		}
	case DiffLatest:
		for i := 0; i < len(nodes)-1; i++ {
			nodes[i].Diff = ""
		}
	}
	return nodes, nil
}

// LatestNode returns the most recent node of project, or nil when the
// project is empty.
func (s *Store) LatestNode(ctx context.Context, project string) (*Node, error) {
	nodes, err := s.Export(ctx, ExportOptions{Project: project, Limit: 1})
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return &nodes[0], nil
}

// FindDependentNodes maps each of ids to the project's nodes that list it as
// a parent. IDs without dependents are omitted.
func (s *Store) FindDependentNodes(ctx context.Context, ids []string, project string) (map[string][]Node, error) {
	targets := toSet(ids)
	out := make(map[string][]Node)
	err := s.StreamDagNodes(ctx, project, func(n Node) error {
		for _, p := range n.Parents {
			if _, ok := targets[p]; ok {
				out[p] = append(out[p], n)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindAffectedSummaryNodes returns the project's summary nodes whose
// segment covers any of ids.
func (s *Store) FindAffectedSummaryNodes(ctx context.Context, ids []string, project string) ([]Node, error) {
	targets := toSet(ids)
	out := []Node{}
	err := s.StreamDagNodes(ctx, project, func(n Node) error {
		if n.Role == RoleSummary && intersects(n.SummarizedSegment, targets) {
			out = append(out, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListDeleted returns the soft-deleted nodes of project in deletion order.
// An empty project lists every project.
func (s *Store) ListDeleted(ctx context.Context, project string) ([]DeletedNode, error) {
	out := []DeletedNode{}
	err := s.deleted.Stream(ctx, func(d DeletedNode) error {
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

// Stats counts the project's live nodes by role and verdict.
func (s *Store) Stats(ctx context.Context, project string) (*Stats, error) {
	ctx, span := s.tracer.Start(ctx, "graph.stats")
	defer span.End()

	st := &Stats{
		Project:   project,
		ByRole:    make(map[Role]int),
		ByVerdict: make(map[Verdict]int),
	}
	err := s.StreamDagNodes(ctx, project, func(n Node) error {
		st.Total++
		st.ByRole[n.Role]++
		if n.Role == RoleCritic {
			st.ByVerdict[n.Verdict]++
		}
		if n.Role == RoleSummary {
			st.Summaries++
		}
		if n.CreatedAt.After(st.LastActivity) {
			st.LastActivity = n.CreatedAt
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	deleted, err := s.ListDeleted(ctx, project)
	if err != nil {
		return nil, err
	}
	st.Deleted = len(deleted)
	return st, nil
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func intersects(ids []string, set map[string]struct{}) bool {
	for _, id := range ids {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

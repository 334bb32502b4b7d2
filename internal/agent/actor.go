package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codeloops/internal/graph"
	"github.com/fyrsmithlabs/codeloops/internal/orchestrator"
	"github.com/fyrsmithlabs/codeloops/internal/sanitize"
)

// ActorGraph is the graph access GraphActor needs.
type ActorGraph interface {
	AppendEntity(ctx context.Context, node graph.Node) (*graph.Node, error)
	LatestNode(ctx context.Context, project string) (*graph.Node, error)
}

// GraphActor persists actor thoughts as graph nodes.
type GraphActor struct {
	graph  ActorGraph
	logger *zap.Logger
}

var _ orchestrator.Actor = (*GraphActor)(nil)

// NewGraphActor creates a GraphActor.
func NewGraphActor(g ActorGraph, logger *zap.Logger) *GraphActor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphActor{graph: g, logger: logger.Named("actor")}
}

// Think persists in as an actor node. The project defaults to the name
// derived from the workspace path, and the parents default to the latest
// node of that project.
func (a *GraphActor) Think(ctx context.Context, in orchestrator.ThinkInput) (*graph.Node, error) {
	projectContext, err := sanitize.ValidateProjectContext(in.ProjectContext)
	if err != nil {
		return nil, err
	}
	project := in.Project
	if project == "" {
		project = sanitize.ProjectName(projectContext)
	}
	if err := sanitize.ValidateProject(project); err != nil {
		return nil, err
	}

	parents := in.Parents
	if parents == nil {
		latest, err := a.graph.LatestNode(ctx, project)
		if err != nil {
			return nil, fmt.Errorf("finding latest node: %w", err)
		}
		if latest != nil {
			parents = []string{latest.ID}
		}
	}

	node, err := a.graph.AppendEntity(ctx, graph.Node{
		Project:        project,
		ProjectContext: projectContext,
		Thought:        in.Thought,
		Role:           graph.RoleActor,
		Parents:        parents,
		Tags:           in.Tags,
		Artifacts:      in.Artifacts,
		Diff:           in.Diff,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("actor node persisted",
		zap.String("node_id", node.ID),
		zap.String("project", project),
	)
	return node, nil
}

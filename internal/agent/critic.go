package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codeloops/internal/graph"
	"github.com/fyrsmithlabs/codeloops/internal/orchestrator"
)

// CriticTag is set on every critic node.
const CriticTag = "critic"

// ErrNotActorNode is returned when a review targets a non-actor node.
var ErrNotActorNode = errors.New("review target is not an actor node")

// CriticGraph is the graph access the critics need.
type CriticGraph interface {
	GetNode(ctx context.Context, id string) (*graph.Node, error)
	AppendEntity(ctx context.Context, node graph.Node) (*graph.Node, error)
}

// Review is a critic's decision.
type Review struct {
	Verdict graph.Verdict `json:"verdict"`
	Reason  string        `json:"reason"`
}

// LLMCritic reviews actor nodes with a language model.
type LLMCritic struct {
	graph  CriticGraph
	model  llms.Model
	logger *zap.Logger
}

var _ orchestrator.Critic = (*LLMCritic)(nil)

// NewLLMCritic creates an LLMCritic.
func NewLLMCritic(g CriticGraph, model llms.Model, logger *zap.Logger) *LLMCritic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMCritic{graph: g, model: model, logger: logger.Named("critic")}
}

// Review asks the model for a verdict on the actor node and persists it.
func (c *LLMCritic) Review(ctx context.Context, in orchestrator.ReviewInput) (*graph.Node, error) {
	actor, err := loadActor(ctx, c.graph, in.ActorNodeID)
	if err != nil {
		return nil, err
	}

	raw, err := llms.GenerateFromSinglePrompt(ctx, c.model, criticPrompt(actor),
		llms.WithJSONMode(),
		llms.WithTemperature(0),
	)
	if err != nil {
		return nil, fmt.Errorf("generating review: %w", err)
	}
	review, err := ParseReview(raw)
	if err != nil {
		c.logger.Warn("unusable critic response", zap.String("response", truncate(raw, 200)), zap.Error(err))
		return nil, err
	}
	return persistReview(ctx, c.graph, actor, in, review)
}

// FixedCritic records a verdict chosen by the caller.
type FixedCritic struct {
	graph  CriticGraph
	review Review
}

var _ orchestrator.Critic = (*FixedCritic)(nil)

// NewFixedCritic creates a critic that always returns review.
func NewFixedCritic(g CriticGraph, review Review) (*FixedCritic, error) {
	review.Verdict = NormalizeVerdict(string(review.Verdict))
	if !review.Verdict.Valid() {
		return nil, fmt.Errorf("unknown verdict %q", review.Verdict)
	}
	return &FixedCritic{graph: g, review: review}, nil
}

// Review persists the fixed verdict for the actor node.
func (c *FixedCritic) Review(ctx context.Context, in orchestrator.ReviewInput) (*graph.Node, error) {
	actor, err := loadActor(ctx, c.graph, in.ActorNodeID)
	if err != nil {
		return nil, err
	}
	return persistReview(ctx, c.graph, actor, in, c.review)
}

// ParseReview decodes a model response of the form
// {"verdict": "...", "reason": "..."}, tolerating surrounding prose and
// code fences.
func ParseReview(raw string) (Review, error) {
	body := raw
	if start, end := strings.IndexByte(body, '{'), strings.LastIndexByte(body, '}'); start >= 0 && end > start {
		body = body[start : end+1]
	}
	var r struct {
		Verdict string `json:"verdict"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return Review{}, fmt.Errorf("decoding review: %w", err)
	}
	v := NormalizeVerdict(r.Verdict)
	if !v.Valid() {
		return Review{}, fmt.Errorf("unknown verdict %q", r.Verdict)
	}
	return Review{Verdict: v, Reason: strings.TrimSpace(r.Reason)}, nil
}

// NormalizeVerdict maps common spellings onto the known verdicts.
func NormalizeVerdict(s string) graph.Verdict {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	switch key {
	case "approved", "approve", "accept", "accepted", "lgtm":
		return graph.VerdictApproved
	case "needs_revision", "needs_revisions", "revise", "revision", "changes_requested":
		return graph.VerdictNeedsRevision
	case "reject", "rejected", "deny", "denied":
		return graph.VerdictReject
	}
	return graph.Verdict(key)
}

func loadActor(ctx context.Context, g CriticGraph, id string) (*graph.Node, error) {
	node, err := g.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, fmt.Errorf("%w: %s", graph.ErrNodeNotFound, id)
	}
	if node.Role != graph.RoleActor {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotActorNode, id, node.Role)
	}
	return node, nil
}

func persistReview(ctx context.Context, g CriticGraph, actor *graph.Node, in orchestrator.ReviewInput, r Review) (*graph.Node, error) {
	projectContext := in.ProjectContext
	if projectContext == "" {
		projectContext = actor.ProjectContext
	}
	thought := r.Reason
	if thought == "" {
		thought = "verdict: " + string(r.Verdict)
	}
	return g.AppendEntity(ctx, graph.Node{
		Project:        actor.Project,
		ProjectContext: projectContext,
		Thought:        thought,
		Role:           graph.RoleCritic,
		Parents:        []string{actor.ID},
		Tags:           []string{CriticTag},
		Verdict:        r.Verdict,
		VerdictReason:  r.Reason,
		Target:         actor.ID,
	})
}

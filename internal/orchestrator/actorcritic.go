package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codeloops/internal/graph"
)

const instrumentationName = "github.com/fyrsmithlabs/codeloops/internal/orchestrator"

// Options configures an ActorCritic.
type Options struct {
	// SummarizationEnabled runs the summary trigger after every review.
	SummarizationEnabled bool

	Logger *zap.Logger
}

// ActorCritic runs actor/critic steps one at a time.
type ActorCritic struct {
	actor      Actor
	critic     Critic
	summarizer SummaryTrigger
	summarize  bool
	logger     *zap.Logger

	tracer      trace.Tracer
	stepCounter metric.Int64Counter

	// step serializes whole steps; mu guards state and callback.
	step         sync.Mutex
	mu           sync.Mutex
	state        State
	onTransition TransitionCallback
}

// New creates an ActorCritic. summarizer may be nil when summarization is
// disabled.
func New(actor Actor, critic Critic, summarizer SummaryTrigger, opts Options) (*ActorCritic, error) {
	if actor == nil {
		return nil, errors.New("actor is required")
	}
	if critic == nil {
		return nil, errors.New("critic is required")
	}
	if opts.SummarizationEnabled && summarizer == nil {
		return nil, errors.New("summarizer is required when summarization is enabled")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ac := &ActorCritic{
		actor:      actor,
		critic:     critic,
		summarizer: summarizer,
		summarize:  opts.SummarizationEnabled,
		logger:     opts.Logger.Named("orchestrator"),
		tracer:     otel.Tracer(instrumentationName),
		state:      StateActorPending,
	}

	var err error
	ac.stepCounter, err = otel.Meter(instrumentationName).Int64Counter(
		"codeloops.orchestrator.steps_total",
		metric.WithDescription("Total number of actor/critic steps by verdict"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		ac.logger.Warn("failed to create step counter", zap.Error(err))
	}
	return ac, nil
}

// OnTransition sets the transition callback.
func (ac *ActorCritic) OnTransition(callback TransitionCallback) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.onTransition = callback
}

// State returns the current state.
func (ac *ActorCritic) State() State {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.state
}

// ActorThink persists the actor's thought, reviews it and returns the
// critic node.
func (ac *ActorCritic) ActorThink(ctx context.Context, in ThinkInput) (*graph.Node, error) {
	ctx, span := ac.tracer.Start(ctx, "orchestrator.actor_think")
	defer span.End()

	if err := validateThink(in); err != nil {
		span.RecordError(err)
		return nil, err
	}

	ac.step.Lock()
	defer ac.step.Unlock()

	actorNode, err := ac.actor.Think(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("actor think: %w", err)
	}
	span.SetAttributes(
		attribute.String("actor_node_id", actorNode.ID),
		attribute.String("project", actorNode.Project),
	)
	ac.transition(StateCriticPending, actorNode.ID, actorNode.Project)

	projectContext := actorNode.ProjectContext
	if projectContext == "" {
		projectContext = in.ProjectContext
	}
	criticNode, err := ac.review(ctx, ReviewInput{
		ActorNodeID:    actorNode.ID,
		ProjectContext: projectContext,
		Project:        actorNode.Project,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return criticNode, nil
}

// CriticReview reviews an existing actor node. When summarization is
// enabled the project's summary trigger runs afterwards; its outcome never
// changes the returned review.
func (ac *ActorCritic) CriticReview(ctx context.Context, in ReviewInput) (*graph.Node, error) {
	ctx, span := ac.tracer.Start(ctx, "orchestrator.critic_review")
	defer span.End()

	if in.ActorNodeID == "" {
		return nil, ErrActorNodeRequired
	}
	if strings.TrimSpace(in.ProjectContext) == "" {
		return nil, ErrProjectContextRequired
	}

	ac.step.Lock()
	defer ac.step.Unlock()

	ac.transition(StateCriticPending, in.ActorNodeID, in.Project)
	node, err := ac.review(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return node, nil
}

// review runs CriticPending → SummarizationCheck → ActorPending. The caller
// holds ac.step.
func (ac *ActorCritic) review(ctx context.Context, in ReviewInput) (*graph.Node, error) {
	node, err := ac.critic.Review(ctx, in)
	if err == nil && (node == nil || node.Role != graph.RoleCritic || node.Target != in.ActorNodeID) {
		err = fmt.Errorf("%w for %s", ErrInvalidReview, in.ActorNodeID)
	}
	if err != nil {
		ac.transition(StateActorPending, in.ActorNodeID, in.Project)
		return nil, fmt.Errorf("critic review of %s: %w", in.ActorNodeID, err)
	}
	ac.transition(StateSummarizationCheck, node.ID, node.Project)

	if ac.stepCounter != nil {
		ac.stepCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", string(node.Verdict))))
	}
	ac.logger.Info("actor node reviewed",
		zap.String("actor_node_id", in.ActorNodeID),
		zap.String("critic_node_id", node.ID),
		zap.String("verdict", string(node.Verdict)),
	)

	if ac.summarize {
		ac.checkSummary(ctx, node.Project, in.ProjectContext)
	}
	ac.transition(StateActorPending, node.ID, node.Project)
	return node, nil
}

func (ac *ActorCritic) checkSummary(ctx context.Context, project, projectContext string) {
	summary, err := ac.summarizer.CheckAndTriggerSummarization(ctx, project, projectContext)
	if err != nil {
		ac.logger.Warn("summarization failed",
			zap.String("project", project),
			zap.Error(err),
		)
		return
	}
	if summary != nil {
		ac.logger.Debug("summarization triggered",
			zap.String("project", project),
			zap.String("summary_id", summary.ID),
		)
	}
}

func (ac *ActorCritic) transition(to State, nodeID, project string) {
	ac.mu.Lock()
	from := ac.state
	ac.state = to
	cb := ac.onTransition
	ac.mu.Unlock()

	if from == to {
		return
	}
	if cb != nil {
		cb(Transition{From: from, To: to, NodeID: nodeID, Project: project, At: time.Now().UTC()})
	}
}

func validateThink(in ThinkInput) error {
	if strings.TrimSpace(in.Thought) == "" {
		return ErrThoughtRequired
	}
	if strings.TrimSpace(in.ProjectContext) == "" {
		return ErrProjectContextRequired
	}
	for _, t := range in.Tags {
		if strings.TrimSpace(t) != "" {
			return nil
		}
	}
	return ErrTagsRequired
}

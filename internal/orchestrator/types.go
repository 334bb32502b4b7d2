package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/codeloops/internal/graph"
)

// State is a position in the actor/critic cycle.
type State string

const (
	// StateActorPending waits for the next actor thought.
	StateActorPending State = "actor_pending"

	// StateCriticPending has a persisted actor node awaiting review.
	StateCriticPending State = "critic_pending"

	// StateSummarizationCheck runs after a review is persisted.
	StateSummarizationCheck State = "summarization_check"
)

// Transition reports a state change.
type Transition struct {
	From    State     `json:"from"`
	To      State     `json:"to"`
	NodeID  string    `json:"node_id,omitempty"`
	Project string    `json:"project,omitempty"`
	At      time.Time `json:"at"`
}

// TransitionCallback receives transitions in order.
type TransitionCallback func(Transition)

var (
	// ErrThoughtRequired is returned for an empty thought.
	ErrThoughtRequired = errors.New("thought is required")

	// ErrProjectContextRequired is returned when no workspace path is given.
	ErrProjectContextRequired = errors.New("project context is required")

	// ErrTagsRequired is returned when an actor thought carries no tags.
	ErrTagsRequired = errors.New("at least one tag is required")

	// ErrActorNodeRequired is returned when a review names no actor node.
	ErrActorNodeRequired = errors.New("actor node id is required")

	// ErrInvalidReview is returned when the critic's node does not review
	// the requested actor node.
	ErrInvalidReview = errors.New("critic returned an invalid review")
)

// ThinkInput is one actor thought.
type ThinkInput struct {
	Thought        string           `json:"thought"`
	ProjectContext string           `json:"projectContext"`
	Project        string           `json:"project,omitempty"`
	Tags           []string         `json:"tags"`
	Artifacts      []graph.Artifact `json:"artifacts,omitempty"`
	Diff           string           `json:"diff,omitempty"`

	// Parents overrides the actor's default parent selection.
	Parents []string `json:"parents,omitempty"`
}

// ReviewInput names the actor node to review.
type ReviewInput struct {
	ActorNodeID    string `json:"actorNodeId"`
	ProjectContext string `json:"projectContext"`
	Project        string `json:"project,omitempty"`
}

// Actor produces and persists actor nodes.
type Actor interface {
	Think(ctx context.Context, in ThinkInput) (*graph.Node, error)
}

// Critic produces and persists critic nodes targeting an actor node.
type Critic interface {
	Review(ctx context.Context, in ReviewInput) (*graph.Node, error)
}

// SummaryTrigger decides whether a project is due for a summary and writes
// it. It returns nil when nothing was due.
type SummaryTrigger interface {
	CheckAndTriggerSummarization(ctx context.Context, project, projectContext string) (*graph.Node, error)
}

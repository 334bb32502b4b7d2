package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/codeloops/internal/graph"
)

// MockActor is a mock implementation of Actor
type MockActor struct {
	mock.Mock
}

func (m *MockActor) Think(ctx context.Context, in ThinkInput) (*graph.Node, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*graph.Node), args.Error(1)
}

// MockCritic is a mock implementation of Critic
type MockCritic struct {
	mock.Mock
}

func (m *MockCritic) Review(ctx context.Context, in ReviewInput) (*graph.Node, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*graph.Node), args.Error(1)
}

// MockSummaryTrigger is a mock implementation of SummaryTrigger
type MockSummaryTrigger struct {
	mock.Mock
}

func (m *MockSummaryTrigger) CheckAndTriggerSummarization(ctx context.Context, project, projectContext string) (*graph.Node, error) {
	args := m.Called(ctx, project, projectContext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*graph.Node), args.Error(1)
}

var (
	thinkInput = ThinkInput{
		Thought:        "add retries",
		ProjectContext: "/work/demo",
		Tags:           []string{"feature"},
	}

	actorResult = &graph.Node{ID: "a1", Project: "demo", Role: graph.RoleActor}

	criticResult = &graph.Node{
		ID:      "c1",
		Project: "demo",
		Role:    graph.RoleCritic,
		Verdict: graph.VerdictApproved,
		Target:  "a1",
	}

	reviewInput = ReviewInput{ActorNodeID: "a1", ProjectContext: "/work/demo", Project: "demo"}
)

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, &MockCritic{}, nil, Options{})
	assert.Error(t, err)

	_, err = New(&MockActor{}, nil, nil, Options{})
	assert.Error(t, err)

	_, err = New(&MockActor{}, &MockCritic{}, nil, Options{SummarizationEnabled: true})
	assert.Error(t, err)

	ac, err := New(&MockActor{}, &MockCritic{}, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, StateActorPending, ac.State())
}

func TestActorThink_ReturnsCriticNode(t *testing.T) {
	actor := &MockActor{}
	critic := &MockCritic{}
	trigger := &MockSummaryTrigger{}

	actor.On("Think", mock.Anything, thinkInput).Return(actorResult, nil)
	critic.On("Review", mock.Anything, reviewInput).Return(criticResult, nil)
	trigger.On("CheckAndTriggerSummarization", mock.Anything, "demo", "/work/demo").Return(nil, nil)

	ac, err := New(actor, critic, trigger, Options{SummarizationEnabled: true})
	require.NoError(t, err)

	var transitions []Transition
	ac.OnTransition(func(tr Transition) { transitions = append(transitions, tr) })

	node, err := ac.ActorThink(context.Background(), thinkInput)
	require.NoError(t, err)
	assert.Equal(t, "c1", node.ID)
	assert.Equal(t, graph.RoleCritic, node.Role)
	assert.Equal(t, StateActorPending, ac.State())

	require.Len(t, transitions, 3)
	assert.Equal(t, StateActorPending, transitions[0].From)
	assert.Equal(t, StateCriticPending, transitions[0].To)
	assert.Equal(t, "a1", transitions[0].NodeID)
	assert.Equal(t, StateSummarizationCheck, transitions[1].To)
	assert.Equal(t, "c1", transitions[1].NodeID)
	assert.Equal(t, StateActorPending, transitions[2].To)

	actor.AssertExpectations(t)
	critic.AssertExpectations(t)
	trigger.AssertExpectations(t)
}

func TestActorThink_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   ThinkInput
		want error
	}{
		{name: "empty thought", in: ThinkInput{ProjectContext: "/w", Tags: []string{"x"}}, want: ErrThoughtRequired},
		{name: "empty context", in: ThinkInput{Thought: "t", Tags: []string{"x"}}, want: ErrProjectContextRequired},
		{name: "no tags", in: ThinkInput{Thought: "t", ProjectContext: "/w"}, want: ErrTagsRequired},
		{name: "blank tags", in: ThinkInput{Thought: "t", ProjectContext: "/w", Tags: []string{" "}}, want: ErrTagsRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor := &MockActor{}
			ac, err := New(actor, &MockCritic{}, nil, Options{})
			require.NoError(t, err)

			_, err = ac.ActorThink(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
			actor.AssertNotCalled(t, "Think", mock.Anything, mock.Anything)
		})
	}
}

func TestActorThink_ActorFailure(t *testing.T) {
	actor := &MockActor{}
	critic := &MockCritic{}
	actor.On("Think", mock.Anything, thinkInput).Return(nil, errors.New("disk full"))

	ac, err := New(actor, critic, nil, Options{})
	require.NoError(t, err)

	_, err = ac.ActorThink(context.Background(), thinkInput)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, StateActorPending, ac.State())
	critic.AssertNotCalled(t, "Review", mock.Anything, mock.Anything)
}

func TestActorThink_CriticFailureResetsState(t *testing.T) {
	actor := &MockActor{}
	critic := &MockCritic{}
	trigger := &MockSummaryTrigger{}
	actor.On("Think", mock.Anything, thinkInput).Return(actorResult, nil)
	critic.On("Review", mock.Anything, reviewInput).Return(nil, errors.New("model down"))

	ac, err := New(actor, critic, trigger, Options{SummarizationEnabled: true})
	require.NoError(t, err)

	var last Transition
	ac.OnTransition(func(tr Transition) { last = tr })

	_, err = ac.ActorThink(context.Background(), thinkInput)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "critic review of a1")
	assert.Equal(t, StateActorPending, ac.State())
	assert.Equal(t, StateCriticPending, last.From)
	trigger.AssertNotCalled(t, "CheckAndTriggerSummarization", mock.Anything, mock.Anything, mock.Anything)
}

func TestCriticReview_RejectsMismatchedTarget(t *testing.T) {
	critic := &MockCritic{}
	wrong := *criticResult
	wrong.Target = "other"
	critic.On("Review", mock.Anything, reviewInput).Return(&wrong, nil)

	ac, err := New(&MockActor{}, critic, nil, Options{})
	require.NoError(t, err)

	_, err = ac.CriticReview(context.Background(), reviewInput)
	assert.ErrorIs(t, err, ErrInvalidReview)
}

func TestCriticReview_Validation(t *testing.T) {
	ac, err := New(&MockActor{}, &MockCritic{}, nil, Options{})
	require.NoError(t, err)

	_, err = ac.CriticReview(context.Background(), ReviewInput{ProjectContext: "/w"})
	assert.ErrorIs(t, err, ErrActorNodeRequired)

	_, err = ac.CriticReview(context.Background(), ReviewInput{ActorNodeID: "a1"})
	assert.ErrorIs(t, err, ErrProjectContextRequired)
}

func TestCriticReview_SummarizationFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	critic := &MockCritic{}
	trigger := &MockSummaryTrigger{}
	critic.On("Review", mock.Anything, reviewInput).Return(criticResult, nil)
	trigger.On("CheckAndTriggerSummarization", mock.Anything, "demo", "/work/demo").Return(nil, errors.New("summarizer offline"))

	ac, err := New(&MockActor{}, critic, trigger, Options{SummarizationEnabled: true, Logger: zap.New(core)})
	require.NoError(t, err)

	node, err := ac.CriticReview(context.Background(), reviewInput)
	require.NoError(t, err)
	assert.Equal(t, criticResult, node)
	assert.Equal(t, StateActorPending, ac.State())
	assert.Equal(t, 1, logs.FilterMessage("summarization failed").Len())
}

func TestCriticReview_SummarizationDisabled(t *testing.T) {
	critic := &MockCritic{}
	trigger := &MockSummaryTrigger{}
	critic.On("Review", mock.Anything, reviewInput).Return(criticResult, nil)

	ac, err := New(&MockActor{}, critic, trigger, Options{})
	require.NoError(t, err)

	_, err = ac.CriticReview(context.Background(), reviewInput)
	require.NoError(t, err)
	trigger.AssertNotCalled(t, "CheckAndTriggerSummarization", mock.Anything, mock.Anything, mock.Anything)
}

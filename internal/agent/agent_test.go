package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/codeloops/internal/graph"
	"github.com/fyrsmithlabs/codeloops/internal/orchestrator"
	"github.com/fyrsmithlabs/codeloops/internal/summarize"
)

// fakeModel returns a canned response and records prompts.
type fakeModel struct {
	response string
	err      error
	prompts  []string
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, text.Text)
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.response}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func newGraph(t *testing.T) *graph.Store {
	t.Helper()
	g, err := graph.NewStore(graph.Options{DataDir: t.TempDir(), RetryStep: time.Millisecond})
	require.NoError(t, err)
	return g
}

func think(t *testing.T, a *GraphActor, thought string) *graph.Node {
	t.Helper()
	n, err := a.Think(context.Background(), orchestrator.ThinkInput{
		Thought:        thought,
		ProjectContext: "/work/Demo App",
		Tags:           []string{"feature"},
		Diff:           "+retry()",
	})
	require.NoError(t, err)
	return n
}

func TestGraphActor_DerivesProjectAndParents(t *testing.T) {
	g := newGraph(t)
	a := NewGraphActor(g, nil)

	first := think(t, a, "step one")
	assert.Equal(t, "demo_app", first.Project)
	assert.Equal(t, "/work/Demo App", first.ProjectContext)
	assert.Empty(t, first.Parents)
	assert.Equal(t, graph.RoleActor, first.Role)

	second := think(t, a, "step two")
	assert.Equal(t, []string{first.ID}, second.Parents)
}

func TestGraphActor_ExplicitProjectAndParents(t *testing.T) {
	g := newGraph(t)
	a := NewGraphActor(g, nil)
	ctx := context.Background()
	root := think(t, a, "root")

	n, err := a.Think(ctx, orchestrator.ThinkInput{
		Thought:        "standalone",
		ProjectContext: "/work/Demo App",
		Tags:           []string{"x"},
		Parents:        []string{},
	})
	require.NoError(t, err)
	assert.Empty(t, n.Parents)

	_, err = a.Think(ctx, orchestrator.ThinkInput{
		Thought:        "bad project",
		ProjectContext: "/work/demo",
		Project:        "Not Valid",
		Tags:           []string{"x"},
	})
	assert.Error(t, err)

	_, err = a.Think(ctx, orchestrator.ThinkInput{
		Thought:        "cross",
		ProjectContext: "/work/other",
		Tags:           []string{"x"},
		Parents:        []string{root.ID},
	})
	assert.ErrorIs(t, err, graph.ErrDanglingReference)
}

func TestLLMCritic_Review(t *testing.T) {
	g := newGraph(t)
	actor := think(t, NewGraphActor(g, nil), "add retries")
	model := &fakeModel{response: "```json\n{\"verdict\": \"Needs Revision\", \"reason\": \"no tests\"}\n```"}
	c := NewLLMCritic(g, model, nil)

	node, err := c.Review(context.Background(), orchestrator.ReviewInput{
		ActorNodeID:    actor.ID,
		ProjectContext: actor.ProjectContext,
	})
	require.NoError(t, err)
	assert.Equal(t, graph.RoleCritic, node.Role)
	assert.Equal(t, graph.VerdictNeedsRevision, node.Verdict)
	assert.Equal(t, "no tests", node.VerdictReason)
	assert.Equal(t, actor.ID, node.Target)
	assert.Equal(t, []string{actor.ID}, node.Parents)
	assert.Equal(t, actor.Project, node.Project)

	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "add retries")
	assert.Contains(t, model.prompts[0], "+retry()")
}

func TestLLMCritic_Errors(t *testing.T) {
	g := newGraph(t)
	actor := think(t, NewGraphActor(g, nil), "add retries")
	ctx := context.Background()

	c := NewLLMCritic(g, &fakeModel{err: errors.New("rate limited")}, nil)
	_, err := c.Review(ctx, orchestrator.ReviewInput{ActorNodeID: actor.ID})
	assert.ErrorContains(t, err, "rate limited")

	c = NewLLMCritic(g, &fakeModel{response: `{"verdict":"maybe"}`}, nil)
	_, err = c.Review(ctx, orchestrator.ReviewInput{ActorNodeID: actor.ID})
	assert.ErrorContains(t, err, "unknown verdict")

	c = NewLLMCritic(g, &fakeModel{response: `{"verdict":"approved"}`}, nil)
	_, err = c.Review(ctx, orchestrator.ReviewInput{ActorNodeID: "missing"})
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)

	review, err := c.Review(ctx, orchestrator.ReviewInput{ActorNodeID: actor.ID})
	require.NoError(t, err)
	assert.Equal(t, "verdict: approved", review.Thought)

	_, err = c.Review(ctx, orchestrator.ReviewInput{ActorNodeID: review.ID})
	assert.ErrorIs(t, err, ErrNotActorNode)
}

func TestFixedCritic(t *testing.T) {
	g := newGraph(t)
	actor := think(t, NewGraphActor(g, nil), "add retries")

	_, err := NewFixedCritic(g, Review{Verdict: "sometimes"})
	assert.Error(t, err)

	c, err := NewFixedCritic(g, Review{Verdict: "rejected", Reason: "unsafe"})
	require.NoError(t, err)
	node, err := c.Review(context.Background(), orchestrator.ReviewInput{ActorNodeID: actor.ID})
	require.NoError(t, err)
	assert.Equal(t, graph.VerdictReject, node.Verdict)
	assert.Equal(t, "unsafe", node.Thought)
}

func TestParseReview(t *testing.T) {
	tests := []struct {
		raw     string
		want    graph.Verdict
		wantErr bool
	}{
		{raw: `{"verdict":"approved","reason":"ok"}`, want: graph.VerdictApproved},
		{raw: `Here you go: {"verdict":"needs-revision","reason":"x"} thanks`, want: graph.VerdictNeedsRevision},
		{raw: `{"verdict":"REJECT"}`, want: graph.VerdictReject},
		{raw: `no json here`, wantErr: true},
		{raw: `{"verdict":"perhaps"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			r, err := ParseReview(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Verdict)
		})
	}
}

func TestLLMSummarizer(t *testing.T) {
	nodes := []graph.Node{
		{ID: "a", Role: graph.RoleActor, Thought: "wrote the parser"},
		{ID: "c", Role: graph.RoleCritic, Verdict: graph.VerdictApproved, Thought: "looks good"},
	}

	model := &fakeModel{response: "Parser written and approved."}
	res := NewLLMSummarizer(model, nil).Summarize(context.Background(), nodes)
	assert.Equal(t, summarize.Result{Summary: "Parser written and approved."}, res)
	require.Len(t, model.prompts, 1)
	assert.True(t, strings.Contains(model.prompts[0], "2. [critic approved] looks good"))

	failing := &fakeModel{err: errors.New("timeout")}
	res = NewLLMSummarizer(failing, nil).Summarize(context.Background(), nodes)
	assert.Empty(t, res.Summary)
	assert.Equal(t, "timeout", res.Error)
}

func TestNewModel(t *testing.T) {
	_, err := NewModel(ModelConfig{})
	assert.Error(t, err)

	_, err = NewModel(ModelConfig{Provider: "bard"})
	assert.ErrorContains(t, err, "unsupported")

	m, err := NewModel(ModelConfig{Provider: "openai", Model: "gpt-4o-mini", BaseURL: "http://127.0.0.1:1/v1"})
	require.NoError(t, err)
	assert.NotNil(t, m)

	assert.False(t, ModelConfig{Provider: "none"}.Enabled())
	assert.True(t, ModelConfig{Provider: "openai"}.Enabled())
}

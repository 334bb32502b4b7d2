package summarize

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/codeloops/internal/graph"
)

const project = "demo"

// MockSummarizer is a mock implementation of Summarizer
type MockSummarizer struct {
	mock.Mock
}

func (m *MockSummarizer) Summarize(ctx context.Context, nodes []graph.Node) Result {
	args := m.Called(ctx, nodes)
	return args.Get(0).(Result)
}

// MockGraph is a mock implementation of Graph
type MockGraph struct {
	mock.Mock
}

func (m *MockGraph) Export(ctx context.Context, opts graph.ExportOptions) ([]graph.Node, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]graph.Node), args.Error(1)
}

func (m *MockGraph) AppendEntity(ctx context.Context, node graph.Node) (*graph.Node, error) {
	args := m.Called(ctx, node)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*graph.Node), args.Error(1)
}

func (m *MockGraph) AddChild(ctx context.Context, nodeID, childID string) error {
	args := m.Called(ctx, nodeID, childID)
	return args.Error(0)
}

func newGraph(t *testing.T) *graph.Store {
	t.Helper()
	g, err := graph.NewStore(graph.Options{DataDir: t.TempDir(), RetryStep: time.Millisecond})
	require.NoError(t, err)
	return g
}

func countingSummarizer() Summarizer {
	return SummarizerFunc(func(_ context.Context, nodes []graph.Node) Result {
		return Result{Summary: fmt.Sprintf("summary of %d nodes", len(nodes))}
	})
}

func appendActor(t *testing.T, g *graph.Store, id, parent string) {
	t.Helper()
	n := graph.Node{
		ID:             id,
		Project:        project,
		ProjectContext: "/work/demo",
		Thought:        "thought " + id,
		Role:           graph.RoleActor,
	}
	if parent != "" {
		n.Parents = []string{parent}
	}
	_, err := g.AppendEntity(context.Background(), n)
	require.NoError(t, err)
}

func TestNewSegmenter_Validation(t *testing.T) {
	_, err := NewSegmenter(nil, countingSummarizer(), Options{})
	assert.Error(t, err)

	_, err = NewSegmenter(&MockGraph{}, nil, Options{})
	assert.Error(t, err)

	_, err = NewSegmenter(&MockGraph{}, countingSummarizer(), Options{Threshold: -1})
	assert.Error(t, err)

	seg, err := NewSegmenter(&MockGraph{}, countingSummarizer(), Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, seg.Threshold())
}

func TestSegmentation_DisjointSummaries(t *testing.T) {
	g := newGraph(t)
	seg, err := NewSegmenter(g, countingSummarizer(), Options{Threshold: DefaultThreshold})
	require.NoError(t, err)
	ctx := context.Background()

	var summaries []*graph.Node
	prev := ""
	for i := 1; i <= 2*DefaultThreshold; i++ {
		id := fmt.Sprintf("n%d", i)
		appendActor(t, g, id, prev)
		prev = id

		s, err := seg.CheckAndTriggerSummarization(ctx, project, "/work/demo")
		require.NoError(t, err)
		if s != nil {
			summaries = append(summaries, s)
		}
		if i == DefaultThreshold {
			require.Len(t, summaries, 1, "first summary after %d nodes", i)
		}
	}
	require.Len(t, summaries, 2)

	first, second := summaries[0], summaries[1]
	assert.Len(t, first.SummarizedSegment, DefaultThreshold)
	assert.Equal(t, "n1", first.SummarizedSegment[0])
	assert.Equal(t, "n20", first.SummarizedSegment[DefaultThreshold-1])
	assert.Len(t, second.SummarizedSegment, DefaultThreshold)
	assert.Equal(t, "n21", second.SummarizedSegment[0])
	assert.Equal(t, "n40", second.SummarizedSegment[DefaultThreshold-1])

	covered := map[string]bool{}
	for _, s := range summaries {
		for _, id := range s.SummarizedSegment {
			assert.False(t, covered[id], "%s covered twice", id)
			covered[id] = true
		}
	}

	// Bidirectional edge with the last covered node.
	assert.Equal(t, []string{"n20"}, first.Parents)
	n20, err := g.GetNode(ctx, "n20")
	require.NoError(t, err)
	assert.Contains(t, n20.Children, first.ID)
	assert.Equal(t, []string{SummaryTag}, first.Tags)
	assert.Equal(t, "summary of 20 nodes", first.Thought)
}

func TestCheckAndTrigger_BelowThreshold(t *testing.T) {
	g := newGraph(t)
	sum := &MockSummarizer{}
	seg, err := NewSegmenter(g, sum, Options{Threshold: 3})
	require.NoError(t, err)

	appendActor(t, g, "a", "")
	appendActor(t, g, "b", "a")

	s, err := seg.CheckAndTriggerSummarization(context.Background(), project, "/work/demo")
	require.NoError(t, err)
	assert.Nil(t, s)
	sum.AssertNotCalled(t, "Summarize", mock.Anything, mock.Anything)
}

func TestCreateSummary_EmptySegment(t *testing.T) {
	seg, err := NewSegmenter(&MockGraph{}, &MockSummarizer{}, Options{})
	require.NoError(t, err)

	_, err = seg.CreateSummary(context.Background(), nil, "/work/demo", project)
	assert.ErrorIs(t, err, ErrEmptySegment)
}

func TestCreateSummary_SummarizerFailures(t *testing.T) {
	nodes := []graph.Node{{ID: "a", Project: project, Role: graph.RoleActor}}

	tests := []struct {
		name   string
		result Result
		check  func(t *testing.T, err error)
	}{
		{
			name:   "reported error",
			result: Result{Error: "model unavailable"},
			check: func(t *testing.T, err error) {
				var serr *SummarizerError
				require.ErrorAs(t, err, &serr)
				assert.Equal(t, "model unavailable", serr.Message)
			},
		},
		{
			name:   "blank summary",
			result: Result{Summary: "  \n\t"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrEmptySummary)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &MockGraph{}
			sum := &MockSummarizer{}
			sum.On("Summarize", mock.Anything, nodes).Return(tt.result)

			seg, err := NewSegmenter(g, sum, Options{})
			require.NoError(t, err)

			s, err := seg.CreateSummary(context.Background(), nodes, "/work/demo", project)
			assert.Nil(t, s)
			tt.check(t, err)
			g.AssertNotCalled(t, "AppendEntity", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateSummary_AppendFailure(t *testing.T) {
	nodes := []graph.Node{{ID: "a"}, {ID: "b"}}
	g := &MockGraph{}
	g.On("AppendEntity", mock.Anything, mock.MatchedBy(func(n graph.Node) bool {
		return n.Role == graph.RoleSummary &&
			len(n.Parents) == 1 && n.Parents[0] == "b" &&
			len(n.SummarizedSegment) == 2
	})).Return(nil, errors.New("disk full"))

	sum := &MockSummarizer{}
	sum.On("Summarize", mock.Anything, nodes).Return(Result{Summary: "ok"})

	seg, err := NewSegmenter(g, sum, Options{})
	require.NoError(t, err)

	_, err = seg.CreateSummary(context.Background(), nodes, "/work/demo", project)
	assert.EqualError(t, err, "disk full")
	g.AssertNotCalled(t, "AddChild", mock.Anything, mock.Anything, mock.Anything)
	g.AssertExpectations(t)
}

func TestPendingSegment_AnchorsOnLatestSummary(t *testing.T) {
	g := &MockGraph{}
	window := []graph.Node{
		{ID: "a", Role: graph.RoleActor},
		{ID: "s", Role: graph.RoleSummary},
		{ID: "b", Role: graph.RoleActor},
		{ID: "c", Role: graph.RoleCritic},
	}
	g.On("Export", mock.Anything, graph.ExportOptions{Project: project, Limit: 4}).Return(window, nil)

	seg, err := NewSegmenter(g, &MockSummarizer{}, Options{Threshold: 4})
	require.NoError(t, err)

	tail, err := seg.PendingSegment(context.Background(), project)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "b", tail[0].ID)
	assert.Equal(t, "c", tail[1].ID)
}

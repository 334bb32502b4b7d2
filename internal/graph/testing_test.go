package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testProject = "demo"

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(Options{
		DataDir:   dir,
		RetryStep: time.Millisecond,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s, dir
}

func actorNode(id string, parents ...string) Node {
	return Node{
		ID:             id,
		Project:        testProject,
		ProjectContext: "/work/" + testProject,
		Thought:        "thought " + id,
		Role:           RoleActor,
		Parents:        parents,
		Tags:           []string{"step"},
	}
}

func criticNode(id, target string) Node {
	return Node{
		ID:             id,
		Project:        testProject,
		ProjectContext: "/work/" + testProject,
		Thought:        "review of " + target,
		Role:           RoleCritic,
		Parents:        []string{target},
		Verdict:        VerdictApproved,
		Target:         target,
	}
}

func summaryNode(id string, segment ...string) Node {
	return Node{
		ID:                id,
		Project:           testProject,
		ProjectContext:    "/work/" + testProject,
		Thought:           "summary " + id,
		Role:              RoleSummary,
		Parents:           []string{segment[len(segment)-1]},
		SummarizedSegment: segment,
	}
}

func mustAppend(t *testing.T, s *Store, nodes ...Node) {
	t.Helper()
	for _, n := range nodes {
		_, err := s.AppendEntity(context.Background(), n)
		require.NoError(t, err, "append %s", n.ID)
	}
}

func lineCount(t *testing.T, s *Store) int {
	t.Helper()
	n, err := s.log.Count(context.Background())
	require.NoError(t, err)
	return n
}

func nodeIDs(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

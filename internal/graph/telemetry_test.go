package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/codeloops/internal/telemetry"
)

func TestStore_Telemetry(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	tt.Install(t)

	s, _ := newTestStore(t)
	ctx := context.Background()
	mustAppend(t, s, actorNode("a1"), criticNode("c1", "a1"))

	_, err := s.AppendEntity(ctx, actorNode("a1"))
	require.ErrorIs(t, err, ErrDuplicateNode)

	tt.AssertSpanExists(t, "graph.append")
	tt.AssertSpanAttribute(t, "graph.append", "project", testProject)
	assert.Equal(t, int64(2), tt.CounterValue(t, "codeloops.graph.nodes_appended_total"))
	assert.Equal(t, int64(1), tt.CounterValue(t, "codeloops.graph.nodes_appended_total",
		attribute.String("role", string(RoleCritic))))
}

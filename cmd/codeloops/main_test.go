package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/codeloops/internal/checkpoint"
	"github.com/fyrsmithlabs/codeloops/internal/graph"
	"github.com/fyrsmithlabs/codeloops/internal/memory"
	"github.com/fyrsmithlabs/codeloops/internal/sanitize"
	"github.com/fyrsmithlabs/codeloops/internal/services"
)

type fakeModel struct {
	response string
}

func (m *fakeModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.response}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// harness runs commands against a private data directory.
type harness struct {
	t          *testing.T
	configPath string
	model      llms.Model
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "data_dir: " + filepath.Join(dir, "data") + "\nstorage:\n  retry_step: 1ms\nsummarization:\n  enabled: false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return &harness{t: t, configPath: path}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&cli{out: &out, model: h.model})
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", h.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, "codeloops %v", args)
	return out
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func (h *harness) think(thought string, extra ...string) graph.Node {
	h.t.Helper()
	args := append([]string{"think", "--context", "/work/demo", "--thought", thought, "--tag", "feature"}, extra...)
	return decode[graph.Node](h.t, h.mustRun(args...))
}

func TestVersion(t *testing.T) {
	out := newHarness(t).mustRun("version")
	assert.Contains(t, out, "Version:    "+version)
}

func TestThink_FixedVerdict(t *testing.T) {
	h := newHarness(t)

	critic := h.think("add retry to the uploader", "--verdict", "approved", "--reason", "small change")
	assert.Equal(t, graph.RoleCritic, critic.Role)
	assert.Equal(t, graph.VerdictApproved, critic.Verdict)
	assert.Equal(t, "small change", critic.VerdictReason)
	assert.Equal(t, "demo", critic.Project)
	assert.Equal(t, "/work/demo", critic.ProjectContext)

	actor := decode[graph.Node](t, h.mustRun("show", critic.Target))
	assert.Equal(t, graph.RoleActor, actor.Role)
	assert.Equal(t, "add retry to the uploader", actor.Thought)
	assert.Empty(t, actor.Parents)
	assert.Equal(t, []string{actor.ID}, critic.Parents)

	second := h.think("wire the retry into the client", "--verdict", "lgtm")
	next := decode[graph.Node](t, h.mustRun("show", second.Target))
	assert.Equal(t, []string{critic.ID}, next.Parents, "defaults to the latest node")

	third := h.think("unrelated spike", "--verdict", "reject", "--parent=")
	root := decode[graph.Node](t, h.mustRun("show", third.Target))
	assert.Empty(t, root.Parents)
}

func TestThink_DiffFile(t *testing.T) {
	h := newHarness(t)
	diff := filepath.Join(t.TempDir(), "change.diff")
	require.NoError(t, os.WriteFile(diff, []byte("+retry()\n"), 0o600))

	critic := h.think("add retry", "--verdict", "approved", "--diff-file", diff)
	actor := decode[graph.Node](t, h.mustRun("show", critic.Target))
	assert.Equal(t, "+retry()\n", actor.Diff)
}

func TestThink_Errors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("think", "--context", "/work/demo", "--thought", "x", "--tag", "feature")
	assert.ErrorIs(t, err, services.ErrNoCritic)

	_, err = h.run("think", "--context", "/work/demo", "--thought", "x", "--tag", "feature", "--verdict", "maybe")
	assert.Error(t, err)

	_, err = h.run("think", "--context", "/work/demo", "--thought", "x", "--tag", "feature",
		"--verdict", "approved", "--project", "Not Valid")
	assert.ErrorIs(t, err, sanitize.ErrInvalidProject)

	_, err = h.run("think", "--context", "/work/demo", "--tag", "feature", "--verdict", "approved")
	assert.Error(t, err, "thought is required")
}

func TestThink_ModelCritic(t *testing.T) {
	h := newHarness(t)
	h.model = &fakeModel{response: `{"verdict": "needs revision", "reason": "missing tests"}`}

	critic := h.think("add retry to the uploader")
	assert.Equal(t, graph.VerdictNeedsRevision, critic.Verdict)
	assert.Equal(t, "missing tests", critic.VerdictReason)
}

func TestReview(t *testing.T) {
	h := newHarness(t)
	first := h.think("add retry", "--verdict", "needs_revision")

	out := h.mustRun("review", first.Target, "--verdict", "approved", "--reason", "tests added")
	second := decode[graph.Node](t, out)
	assert.Equal(t, first.Target, second.Target)
	assert.Equal(t, graph.VerdictApproved, second.Verdict)
	assert.Equal(t, "demo", second.Project)
	assert.Equal(t, "/work/demo", second.ProjectContext)

	_, err := h.run("review", "missing", "--verdict", "approved")
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestQueries(t *testing.T) {
	h := newHarness(t)
	critic := h.think("add retry", "--verdict", "approved")

	assert.Equal(t, "demo\n", h.mustRun("projects"))
	assert.Equal(t, []string{"demo"}, decode[[]string](t, h.mustRun("projects", "--json")))

	nodes := decode[[]graph.Node](t, h.mustRun("export", "--project", "demo"))
	require.Len(t, nodes, 2)
	assert.Equal(t, critic.Target, nodes[0].ID)

	actors := decode[[]graph.Node](t, h.mustRun("export", "--project", "demo", "--role", "actor"))
	require.Len(t, actors, 1)
	assert.Equal(t, graph.RoleActor, actors[0].Role)

	none := decode[[]graph.Node](t, h.mustRun("export", "--project", "demo", "--tag", "missing"))
	assert.Empty(t, none)

	_, err := h.run("export", "--project", "demo", "--role", "boss")
	assert.Error(t, err)

	resumed := decode[[]graph.Node](t, h.mustRun("resume", "--project", "demo", "--limit", "1"))
	require.Len(t, resumed, 1)
	assert.Equal(t, critic.ID, resumed[0].ID)

	_, err = h.run("resume", "--project", "demo", "--diffs", "some")
	assert.Error(t, err)

	stats := decode[graph.Stats](t, h.mustRun("stats", "--project", "demo", "--json"))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByVerdict[graph.VerdictApproved])

	text := h.mustRun("stats", "--project", "demo")
	assert.Contains(t, text, "Nodes:")
	assert.Contains(t, text, "Approved:")

	_, err = h.run("show", "missing")
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestDeleteRestore(t *testing.T) {
	h := newHarness(t)
	critic := h.think("add retry", "--verdict", "approved")

	assert.Contains(t, h.mustRun("backups"), "No backups found.")

	result := decode[graph.DeleteResult](t, h.mustRun("delete", critic.Target, "--project", "demo", "--reason", "wrong"))
	require.Len(t, result.DeletedNodes, 1)
	assert.Equal(t, "wrong", result.DeletedNodes[0].DeletedReason)
	assert.Equal(t, "cli", result.DeletedNodes[0].DeletedBy)
	assert.NotEmpty(t, result.BackupPath)

	nodes := decode[[]graph.Node](t, h.mustRun("export", "--project", "demo"))
	require.Len(t, nodes, 1)
	assert.Equal(t, critic.ID, nodes[0].ID)
	assert.Empty(t, nodes[0].Parents, "edges to deleted nodes are stripped")

	backups := decode[[]checkpoint.Checkpoint](t, h.mustRun("backups", "--json"))
	require.Len(t, backups, 1)
	assert.Equal(t, result.BackupPath, backups[0].Path)
	assert.Contains(t, h.mustRun("backups"), backups[0].ID)

	restored := decode[graph.RestoreResult](t, h.mustRun("restore", backups[0].ID))
	assert.Equal(t, 2, restored.Nodes)
	assert.Len(t, decode[[]graph.Node](t, h.mustRun("export", "--project", "demo")), 2)

	_, err := h.run("restore", "nope.jsonl")
	assert.Error(t, err)
}

func TestMemory(t *testing.T) {
	h := newHarness(t)

	added := decode[memory.Entry](t, h.mustRun("memory", "add", "--project", "demo",
		"--content", "integration tests need docker", "--tag", "testing"))
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, "cli", added.Source)
	h.mustRun("memory", "add", "--project", "other", "--content", "docker compose lives in deploy/")

	found := decode[[]memory.Entry](t, h.mustRun("memory", "query", "--project", "demo", "--query", "DOCKER", "--json"))
	require.Len(t, found, 1)
	assert.Equal(t, added.ID, found[0].ID)

	all := decode[[]memory.Entry](t, h.mustRun("memory", "query", "--all-projects", "--query", "docker", "--json"))
	assert.Len(t, all, 2)

	assert.Contains(t, h.mustRun("memory", "query", "--project", "demo"), "integration tests need docker")

	forgotten := decode[memory.DeletedEntry](t, h.mustRun("memory", "forget", added.ID, "--reason", "moved to CI"))
	assert.Equal(t, "moved to CI", forgotten.DeletedReason)
	assert.Contains(t, h.mustRun("memory", "query", "--project", "demo"), "No memories found.")

	_, err := h.run("memory", "forget", added.ID)
	assert.ErrorIs(t, err, memory.ErrEntryNotFound)
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("a\n b\tc", 10))
	assert.Equal(t, "abcdefg...", oneLine("abcdefghijklmnop", 10))
}

func TestDataDirFlag(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	h.mustRun("--data-dir", dir, "memory", "add", "--project", "demo", "--content", "x")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

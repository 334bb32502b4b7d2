package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, keep int) (*service, string) {
	t.Helper()
	root := t.TempDir()
	svc, err := NewService(&Config{
		Dir:    filepath.Join(root, "backup"),
		Prefix: "knowledge_graph",
		Keep:   keep,
	}, zap.NewNop())
	require.NoError(t, err)

	s := svc.(*service)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s, root
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup directory is required")

	_, err = NewService(&Config{Dir: t.TempDir()}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup prefix is required")
}

func TestDefaultServiceConfig(t *testing.T) {
	cfg := DefaultServiceConfig("/data/backup")
	assert.Equal(t, "/data/backup", cfg.Dir)
	assert.Equal(t, "knowledge_graph", cfg.Prefix)
	assert.Equal(t, DefaultKeep, cfg.Keep)
}

func TestSave_CopiesContentAndCountsLines(t *testing.T) {
	s, root := newTestService(t, 0)
	src := filepath.Join(root, "knowledge_graph.ndjson")
	content := "{\"id\":\"a\"}\n\n{\"id\":\"b\"}\n{\"id\":\"c\"}"
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))

	cp, err := s.Save(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 3, cp.Lines)
	assert.Equal(t, int64(len(content)), cp.Size)
	assert.Equal(t, src, cp.Source)
	assert.Equal(t, "knowledge_graph.backup.20260102T030406.000000000Z.ndjson", cp.ID)

	got, err := os.ReadFile(cp.Path)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestSave_MissingSourceCreatesEmptyBackup(t *testing.T) {
	s, root := newTestService(t, 0)

	cp, err := s.Save(context.Background(), filepath.Join(root, "missing.ndjson"))
	require.NoError(t, err)
	assert.Equal(t, 0, cp.Lines)
	assert.FileExists(t, cp.Path)
}

func TestList_NewestFirstAndIgnoresForeignFiles(t *testing.T) {
	s, root := newTestService(t, 0)
	src := filepath.Join(root, "knowledge_graph.ndjson")
	require.NoError(t, os.WriteFile(src, []byte("{}\n"), 0o644))

	ctx := context.Background()
	first, err := s.Save(ctx, src)
	require.NoError(t, err)
	second, err := s.Save(ctx, src)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(s.config.Dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.config.Dir, "memory.backup.bogus.ndjson"), []byte("x"), 0o644))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestList_MissingDirectory(t *testing.T) {
	s, _ := newTestService(t, 0)

	all, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = s.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGet(t *testing.T) {
	s, root := newTestService(t, 0)
	ctx := context.Background()
	cp, err := s.Save(ctx, filepath.Join(root, "src.ndjson"))
	require.NoError(t, err)

	byID, err := s.Get(ctx, cp.ID)
	require.NoError(t, err)
	assert.Equal(t, cp.Path, byID.Path)

	byPath, err := s.Get(ctx, cp.Path)
	require.NoError(t, err)
	assert.Equal(t, cp.ID, byPath.ID)

	_, err = s.Get(ctx, "knowledge_graph.backup.nope.ndjson")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, filepath.Join(root, cp.ID))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSave_PrunesBeyondKeep(t *testing.T) {
	s, root := newTestService(t, 2)
	ctx := context.Background()
	src := filepath.Join(root, "src.ndjson")

	var saved []*Checkpoint
	for i := 0; i < 4; i++ {
		cp, err := s.Save(ctx, src)
		require.NoError(t, err)
		saved = append(saved, cp)
	}

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, saved[3].ID, all[0].ID)
	assert.Equal(t, saved[2].ID, all[1].ID)
	assert.NoFileExists(t, saved[0].Path)
}

func TestPrune_Disabled(t *testing.T) {
	s, root := newTestService(t, -1)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.Save(ctx, filepath.Join(root, "src.ndjson"))
		require.NoError(t, err)
	}

	removed, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestClose(t *testing.T) {
	s, root := newTestService(t, 0)
	require.NoError(t, s.Close())

	_, err := s.Save(context.Background(), filepath.Join(root, "src.ndjson"))
	assert.ErrorIs(t, err, ErrClosed)
}

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/store"
)

const scopeYAML = "name: alpha\nversion: 1.0.0\n"

func todosYAML(status string) string {
	return "- id: t-1\n" +
		"  title: fix auth\n" +
		"  status: " + status + "\n" +
		"  created_at: 2026-01-01T00:00:00Z\n" +
		"  updated_at: 2026-01-01T00:00:00Z\n"
}

func setupRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	scopeDir := filepath.Join(root, "alpha")
	require.NoError(t, os.MkdirAll(scopeDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scopeDir, "scope.yaml"), []byte(scopeYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(scopeDir, "todos.yaml"), []byte(todosYAML("Open")), 0o644))
	return root
}

func TestWatcher_ReparsesOnFileWrite(t *testing.T) {
	root := setupRepo(t)
	ld, err := loader.New(root)
	require.NoError(t, err)
	result, err := ld.Load()
	require.NoError(t, err)

	st := store.New()
	st.Replace(result)

	cfg := DefaultConfig(root)
	cfg.Debounce = 30 * time.Millisecond
	w := New(cfg, ld, st, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	todos, ok := st.GetTodos("alpha")
	require.True(t, ok)
	require.Len(t, todos, 1)
	assert.Equal(t, "Open", string(todos[0].Status))

	path := filepath.Join(root, "alpha", "todos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(todosYAML("Completed")), 0o644))

	assert.Eventually(t, func() bool {
		todos, ok := st.GetTodos("alpha")
		return ok && len(todos) == 1 && string(todos[0].Status) == "Completed"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWatcher_KeepsLastGoodRecordOnInvalidWrite(t *testing.T) {
	root := setupRepo(t)
	ld, err := loader.New(root)
	require.NoError(t, err)
	result, err := ld.Load()
	require.NoError(t, err)

	st := store.New()
	st.Replace(result)

	cfg := DefaultConfig(root)
	cfg.Debounce = 30 * time.Millisecond
	w := New(cfg, ld, st, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// missing required "status" field makes this scope invalid
	broken := "- id: t-1\n  title: fix auth\n  created_at: 2026-01-01T00:00:00Z\n  updated_at: 2026-01-01T00:00:00Z\n"
	path := filepath.Join(root, "alpha", "todos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(broken), 0o644))

	time.Sleep(500 * time.Millisecond)

	todos, ok := st.GetTodos("alpha")
	require.True(t, ok)
	require.Len(t, todos, 1)
	assert.Equal(t, "Open", string(todos[0].Status))
}

func TestWatcher_RemovesScopeOnDirectoryDeletion(t *testing.T) {
	root := setupRepo(t)
	ld, err := loader.New(root)
	require.NoError(t, err)
	result, err := ld.Load()
	require.NoError(t, err)

	st := store.New()
	st.Replace(result)

	cfg := DefaultConfig(root)
	cfg.Debounce = 30 * time.Millisecond
	w := New(cfg, ld, st, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.RemoveAll(filepath.Join(root, "alpha")))

	assert.Eventually(t, func() bool {
		_, ok := st.GetScope("alpha")
		return !ok
	}, 2*time.Second, 20*time.Millisecond)
}

package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func writeScope(t *testing.T, root, relPath, name string) string {
	t.Helper()
	dir := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writeFile(t, dir, scopeDefinitionFile, "name: "+name+"\nversion: 1.0.0\n")
	return dir
}

func TestLoader_Load_SingleScope(t *testing.T) {
	root := t.TempDir()
	dir := writeScope(t, root, "scopes/alpha", "alpha")
	writeFile(t, dir, "knowledge.yaml", `
- id: k-1
  title: First fact
  created_at: 2026-01-01T00:00:00Z
  updated_at: 2026-01-01T00:00:00Z
`)
	writeFile(t, dir, "todos.yaml", `
- id: t-1
  title: Do the thing
  status: Open
  created_at: 2026-01-01T00:00:00Z
  updated_at: 2026-01-01T00:00:00Z
`)

	l, err := New(root)
	require.NoError(t, err)

	result, err := l.Load()
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Empty(t, result.Degraded)

	scope, ok := result.Scopes["scopes/alpha"]
	require.True(t, ok)
	assert.Equal(t, "alpha", scope.Scope.Name)
	assert.False(t, scope.Scope.Degraded)
	assert.Len(t, scope.Knowledge, 1)
	assert.Equal(t, "k-1", scope.Knowledge[0].ID)
	assert.Len(t, scope.Todos, 1)
	assert.NotEmpty(t, scope.FileChecksums[scopeDefinitionFile])
	assert.NotEmpty(t, scope.FileChecksums["knowledge.yaml"])
}

func TestLoader_Load_MultipleScopes(t *testing.T) {
	root := t.TempDir()
	writeScope(t, root, "scopes/alpha", "alpha")
	writeScope(t, root, "scopes/beta", "beta")

	l, err := New(root)
	require.NoError(t, err)

	result, err := l.Load()
	require.NoError(t, err)
	assert.Len(t, result.Scopes, 2)
	assert.Contains(t, result.Scopes, "scopes/alpha")
	assert.Contains(t, result.Scopes, "scopes/beta")
}

func TestLoader_Load_PartialLoadDegradesScope(t *testing.T) {
	root := t.TempDir()
	dir := writeScope(t, root, "scopes/gamma", "gamma")
	writeFile(t, dir, "knowledge.yaml", "not: [valid: yaml: at all")

	l, err := New(root)
	require.NoError(t, err)

	result, err := l.Load()
	require.NoError(t, err)

	scope, ok := result.Scopes["scopes/gamma"]
	require.True(t, ok)
	assert.True(t, scope.Scope.Degraded)
	assert.Contains(t, result.Degraded, "scopes/gamma")
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, KindParseError, result.Errors[0].Kind)
}

func TestLoader_Load_InvalidScopeDefinitionAbortsOnlyThatScope(t *testing.T) {
	root := t.TempDir()
	writeScope(t, root, "scopes/good", "good")

	badDir := filepath.Join(root, "scopes/bad")
	require.NoError(t, os.MkdirAll(badDir, 0o755))
	writeFile(t, badDir, scopeDefinitionFile, "name: [unterminated")

	l, err := New(root)
	require.NoError(t, err)

	result, err := l.Load()
	require.NoError(t, err)

	assert.Contains(t, result.Scopes, "scopes/good")
	assert.NotContains(t, result.Scopes, "scopes/bad")

	found := false
	for _, e := range result.Errors {
		if e.Kind == KindInvalidScopeDefinition {
			found = true
		}
	}
	assert.True(t, found)
}

func TestLoader_Load_RespectsIgnoreList(t *testing.T) {
	root := t.TempDir()
	writeScope(t, root, "scopes/kept", "kept")
	writeScope(t, root, "vendor/dep", "dep")
	writeFile(t, root, ".rhemaignore", "vendor\n")

	l, err := New(root)
	require.NoError(t, err)

	result, err := l.Load()
	require.NoError(t, err)
	assert.Contains(t, result.Scopes, "scopes/kept")
	assert.NotContains(t, result.Scopes, "vendor/dep")
}

func TestLoader_Load_NoScopes(t *testing.T) {
	root := t.TempDir()

	l, err := New(root)
	require.NoError(t, err)

	result, err := l.Load()
	require.NoError(t, err)
	assert.Empty(t, result.Scopes)
	assert.Nil(t, result.Lock)
}

func TestNew_RejectsMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

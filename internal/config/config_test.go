package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetViper clears viper's global state between tests.
func resetViper() {
	viper.Reset()
}

func unsetEnvKeys(keys ...string) {
	for _, k := range keys {
		_ = os.Unsetenv(k)
	}
}

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)
	return path
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	resetViper()
	unsetEnvKeys("PORT", "HOST", "MAX_CONNECTIONS", "LOG_LEVEL")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 1000, cfg.MaxConnections)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, EvictionLRU, cfg.Cache.EvictionPolicy)
	assert.Equal(t, 5, cfg.Auth.Security.MaxFailedAttempts)
}

func TestLoadConfig_File(t *testing.T) {
	resetViper()
	unsetEnvKeys("PORT", "HOST", "LOG_LEVEL")

	yaml := `
host: "127.0.0.1"
port: 9090
repository_root: "/repo"
watcher:
  debounce_ms: 500
cache:
  eviction_policy: "LFU"
  max_entries: 2048
log:
  level: "debug"
`
	path := writeTempYAML(t, yaml)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, "/repo", cfg.RepositoryRoot)
	assert.Equal(t, 500, cfg.Watcher.DebounceMS)
	assert.Equal(t, EvictionLFU, cfg.Cache.EvictionPolicy)
	assert.Equal(t, 2048, cfg.Cache.MaxEntries)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	resetViper()
	yaml := `
port: 8080
host: "file-host"
`
	path := writeTempYAML(t, yaml)

	require.NoError(t, os.Setenv("PORT", "9091"))
	require.NoError(t, os.Setenv("HOST", "env-host"))
	t.Cleanup(func() {
		unsetEnvKeys("PORT", "HOST")
	})

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9091, cfg.Port, "env should override file")
	assert.Equal(t, "env-host", cfg.Host, "env should override file")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	resetViper()
	unsetEnvKeys("PORT")

	invalid := `
port: : invalid
`
	path := writeTempYAML(t, invalid)

	cfg, err := LoadConfig(path)
	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadConfig_ValidationError(t *testing.T) {
	resetViper()
	unsetEnvKeys("PORT")

	yaml := `
port: -1
`
	path := writeTempYAML(t, yaml)

	cfg, err := LoadConfig(path)
	require.Error(t, err, "validation should fail for invalid port")
	assert.Nil(t, cfg)
}

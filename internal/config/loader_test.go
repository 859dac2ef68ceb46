package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.GetConfigPath())
}

func TestLoaderLoad(t *testing.T) {
	t.Run("defaults when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()

		cfg, err := NewLoader(filepath.Join(tmpDir, "missing.json")).Load()

		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().Runner, cfg.Runner)
		assert.NotEmpty(t, cfg.DataDir)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "conclave.json")

		content := `{
			"api": {"base_url": "https://sessions.example.com"},
			"runner": {"roles": ["debt", "tech"], "max_rounds": 4},
			"decision": {"provider": "openai", "model": "gpt-4o", "api_key": "sk-file"},
			"data_dir": "` + filepath.ToSlash(tmpDir) + `"
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "https://sessions.example.com", cfg.API.BaseURL)
		assert.Equal(t, []string{"debt", "tech"}, cfg.Runner.Roles)
		assert.Equal(t, 4, cfg.Runner.MaxRounds)
		assert.Equal(t, 2000, cfg.Runner.RoundDelayMS)
		assert.Equal(t, "openai", cfg.Decision.Provider)
		assert.Equal(t, "sk-file", cfg.Decision.APIKey)
		assert.Equal(t, filepath.Join(tmpDir, "conclave.log"), cfg.Logging.File)
		assert.Equal(t, filepath.Join(tmpDir, "audit.log"), cfg.Logging.AuditFile)
	})

	t.Run("environment overrides", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "conclave.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"decision": {"api_key": "sk-file"}}`), 0644))

		t.Setenv("CONCLAVE_DECISION_API_KEY", "sk-ant-env")
		t.Setenv("CONCLAVE_POOL_MAX_WORKERS", "2")

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "sk-ant-env", cfg.Decision.APIKey)
		assert.Equal(t, 2, cfg.Pool.MaxWorkers)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.json")
		require.NoError(t, os.WriteFile(configPath, []byte("invalid json"), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "conclave.json")
	loader := NewLoader(configPath)

	cfg := validConfig()
	cfg.Runner.MaxRounds = 7
	require.NoError(t, loader.Save(cfg))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Runner.MaxRounds)
	assert.Equal(t, cfg.Decision.APIKey, loaded.Decision.APIKey)
}

func TestGetConfigPathDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path := NewLoader("").GetConfigPath()

	assert.Equal(t, filepath.Join(os.Getenv("HOME"), ".conclave", "conclave.json"), path)
}

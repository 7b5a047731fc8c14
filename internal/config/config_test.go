package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "CORS_ORIGINS", "STORAGE_DRIVER", "DB_URL", "DATABASE_PATH", "DB_LOG_LEVEL",
		"RUN_MIGRATIONS", "HISTORY_LIMIT", "MODEL_TIMEOUT_SECONDS", "DEFAULT_MODEL",
		"GOOGLE_CLOUD_PROJECT_ID", "GOOGLE_CLOUD_VERTEXAI_LOCATION", "GCP_SERVICE_ACCOUNT_CREDENTIALS", "GCS_BUCKET",
	}
	for _, env := range modelEnvs {
		keys = append(keys, env.apiKey, env.baseURL, env.modelID)
	}
	for _, k := range keys {
		if k != "" {
			t.Setenv(k, "")
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, DriverBolt, cfg.Storage.Driver)
	assert.Equal(t, 60*time.Second, cfg.Generation.Timeout())
	assert.InDelta(t, 0.7, cfg.Generation.Temperature, 1e-9)
	assert.False(t, cfg.GCP.Enabled())

	name, model, ok := cfg.Model("")
	require.True(t, ok)
	assert.Equal(t, "doubao-pro", name)
	assert.Equal(t, ProviderOpenAICompatible, model.Provider)
	assert.Error(t, model.Validate())

	_, _, ok = cfg.Model("gpt-9")
	assert.False(t, ok)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "8080"
storage:
  driver: sqlite
  path: /tmp/studio.sqlite
generation:
  default_model: gemini
  history_limit: 6
  timeout_seconds: 30
models:
  gemini:
    provider: gemini
    model_id: gemini-2.5-flash
    vision: true
  local:
    provider: openai_compatible
    model_id: qwen
    api_key: local-key
    base_url: http://localhost:8000/v1
`), 0o600))

	t.Setenv("PORT", "9090")
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("HISTORY_LIMIT", "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, 4, cfg.Generation.HistoryLimit)
	assert.Equal(t, 30*time.Second, cfg.Generation.Timeout())

	name, gemini, ok := cfg.Model("")
	require.True(t, ok)
	assert.Equal(t, "gemini", name)
	assert.Equal(t, "gem-key", gemini.APIKey)
	assert.NoError(t, gemini.Validate())

	_, local, ok := cfg.Model("local")
	require.True(t, ok)
	assert.NoError(t, local.Validate())
}

func TestLoadEnvFillsCatalogue(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOUBAO_API_KEY", "ark-key")
	t.Setenv("DOUBAO_MODEL_ID", "doubao-1-5-pro")
	t.Setenv("DOUBAO_FLASH_MODEL_ID", "doubao-flash")

	cfg, err := Load("")
	require.NoError(t, err)

	_, pro, _ := cfg.Model("doubao-pro")
	assert.Equal(t, "ark-key", pro.APIKey)
	assert.Equal(t, "doubao-1-5-pro", pro.ModelID)
	assert.NotEmpty(t, pro.BaseURL)
	assert.NoError(t, pro.Validate())

	_, flash, _ := cfg.Model("doubao-flash")
	assert.Equal(t, "doubao-flash", flash.ModelID)

	_, dream, _ := cfg.Model("doubao-dream")
	assert.ErrorContains(t, dream.Validate(), "model id")
}

func TestLoadRejectsBadSettings(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown driver":       {"STORAGE_DRIVER": "mongo"},
		"postgres without dsn": {"STORAGE_DRIVER": "postgres"},
		"bad port":             {"PORT": "99999"},
		"bad history limit":    {"HISTORY_LIMIT": "many"},
		"bad migrate flag":     {"RUN_MIGRATIONS": "perhaps"},
		"zero timeout":         {"MODEL_TIMEOUT_SECONDS": "0"},
		"unknown default":      {"DEFAULT_MODEL": "gpt-9"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestVertexModelNeedsOnlyModelID(t *testing.T) {
	m := ModelConfig{Provider: ProviderVertexAnthropic}
	assert.Error(t, m.Validate())
	m.ModelID = "claude-sonnet-4"
	assert.NoError(t, m.Validate())
}

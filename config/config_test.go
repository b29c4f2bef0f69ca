package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.Provider.Type)
	assert.Equal(t, "inmemory", cfg.Memory.Index.Type)
}

func TestLoad_LayersOverDefaults(t *testing.T) {
	path := writeConfig(t, `
addr: ":9090"
provider:
  type: remote
  remote:
    base_url: https://data.example.com
    api_key_env: DATA_API_KEY
    reseed_on_mismatch: true
completion:
  provider: anthropic
  model: claude-sonnet-4-20250514
  api_key_env: ANTHROPIC_API_KEY
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "remote", cfg.Provider.Type)
	assert.Equal(t, "https://data.example.com", cfg.Provider.Remote.BaseURL)
	assert.True(t, cfg.Provider.Remote.ReseedOnMismatch)
	assert.Equal(t, "anthropic", cfg.Completion.Provider)
	// Untouched sections keep their defaults.
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown provider type", "provider:\n  type: dynamo\n"},
		{"remote without base url", "provider:\n  type: remote\n  remote:\n    api_key_env: K\n"},
		{"unknown completion provider", "completion:\n  provider: bard\n"},
		{"rest index without url", "memory:\n  index:\n    type: rest\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "addr: [unclosed"))
	assert.Error(t, err)
}

func TestAPIKey(t *testing.T) {
	t.Setenv("SOLACE_TEST_KEY", "secret")
	assert.Equal(t, "secret", APIKey("SOLACE_TEST_KEY"))
	assert.Empty(t, APIKey(""))
	assert.Empty(t, APIKey("SOLACE_TEST_UNSET_KEY"))
}

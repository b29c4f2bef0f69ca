// Package config loads the YAML application configuration. Secrets are
// never stored in the file itself; fields ending in KeyEnv name the
// environment variable holding the actual credential.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// SQLiteConfig contains settings for the direct-store provider backend.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RemoteConfig contains settings for the remote-API provider backend.
type RemoteConfig struct {
	BaseURL          string `yaml:"base_url"`
	APIKeyEnv        string `yaml:"api_key_env"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
	ReseedOnMismatch bool   `yaml:"reseed_on_mismatch"`
}

// ProviderConfig selects and configures the data access backend.
type ProviderConfig struct {
	Type   string        `yaml:"type"` // sqlite or remote
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
	Remote *RemoteConfig `yaml:"remote,omitempty"`
}

// CompletionConfig selects and configures the completion model.
type CompletionConfig struct {
	Provider    string  `yaml:"provider"` // openai, anthropic or ollama
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	BaseURL     string  `yaml:"base_url"` // ollama only
	Temperature float64 `yaml:"temperature"`
}

// EmbedderConfig configures the embeddings client.
type EmbedderConfig struct {
	Model          string `yaml:"model"`
	DocumentPrefix string `yaml:"document_prefix"`
	QueryPrefix    string `yaml:"query_prefix"`
}

// IndexConfig selects and configures the vector index.
type IndexConfig struct {
	Type       string `yaml:"type"` // inmemory or rest
	URL        string `yaml:"url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Collection string `yaml:"collection"`
	Dimension  int    `yaml:"dimension"`
}

// MemoryConfig configures the semantic memory service.
type MemoryConfig struct {
	Embedder EmbedderConfig `yaml:"embedder"`
	Index    IndexConfig    `yaml:"index"`
}

// Config is the root application configuration structure.
type Config struct {
	Addr       string           `yaml:"addr"`
	Logging    LoggingConfig    `yaml:"logging"`
	Provider   ProviderConfig   `yaml:"provider"`
	Completion CompletionConfig `yaml:"completion"`
	Memory     MemoryConfig     `yaml:"memory"`
}

// Default returns a configuration suitable for local development: embedded
// sqlite, in-memory vector index, OpenAI completion.
func Default() *Config {
	return &Config{
		Addr:       ":8080",
		Logging:    LoggingConfig{Level: "info", Format: "json"},
		Provider:   ProviderConfig{Type: "sqlite", SQLite: &SQLiteConfig{Path: "solace.db"}},
		Completion: CompletionConfig{Provider: "openai", Temperature: 0.7},
		Memory: MemoryConfig{
			Index: IndexConfig{Type: "inmemory", Collection: "solace", Dimension: 1536},
		},
	}
}

// Load reads the YAML file at path, layered over Default. A missing file is
// not an error; the defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.Provider.Type {
	case "sqlite":
		if c.Provider.SQLite == nil || c.Provider.SQLite.Path == "" {
			return errors.New("provider.sqlite.path is required for the sqlite backend")
		}
	case "remote":
		if c.Provider.Remote == nil || c.Provider.Remote.BaseURL == "" {
			return errors.New("provider.remote.base_url is required for the remote backend")
		}
	default:
		return fmt.Errorf("unknown provider type %q", c.Provider.Type)
	}
	switch c.Completion.Provider {
	case "openai", "anthropic", "ollama":
	default:
		return fmt.Errorf("unknown completion provider %q", c.Completion.Provider)
	}
	switch c.Memory.Index.Type {
	case "inmemory":
	case "rest":
		if c.Memory.Index.URL == "" {
			return errors.New("memory.index.url is required for the rest index")
		}
	default:
		return fmt.Errorf("unknown memory index type %q", c.Memory.Index.Type)
	}
	return nil
}

// APIKey resolves an environment-indirected credential; empty env name
// yields an empty key (SDK defaults then apply).
func APIKey(envName string) string {
	if envName == "" {
		return ""
	}
	return os.Getenv(envName)
}

// Package config manages the ~/.config/mnemo/config.toml configuration
// for Mnemo.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds user-wide settings.
type Config struct {
	DefaultModel    string              `toml:"default_model"`
	DefaultEmbedder string              `toml:"default_embedder"`
	DefaultUser     string              `toml:"default_user"`
	Keys            KeysConfig          `toml:"keys"`
	Ollama          OllamaConfig        `toml:"ollama"`
	Memory          MemoryConfig        `toml:"memory"`
	Summarization   SummarizationConfig `toml:"summarization"`
	Database        DatabaseConfig      `toml:"database"`
}

type KeysConfig struct {
	Anthropic string `toml:"anthropic"`
	OpenAI    string `toml:"openai"`
}

type OllamaConfig struct {
	Host            string `toml:"host"`
	EmbedModel      string `toml:"embed_model"`
	CompletionModel string `toml:"completion_model"`
}

// MemoryConfig tunes the memory engine.
type MemoryConfig struct {
	DefaultTTLSeconds   int     `toml:"default_ttl_seconds"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	TopK                int     `toml:"top_k"`
	EmbeddingDimension  int     `toml:"embedding_dimension"`
	MaxExtracts         int     `toml:"max_extracts"`
}

// SummarizationConfig tunes session summarisation.
type SummarizationConfig struct {
	DefaultCompression string `toml:"default_compression"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		DefaultModel:    "claude",
		DefaultEmbedder: "ollama",
		DefaultUser:     "local",
		Ollama: OllamaConfig{
			Host:            "http://localhost:11434",
			EmbedModel:      "nomic-embed-text",
			CompletionModel: "llama3.2",
		},
		Memory: MemoryConfig{
			DefaultTTLSeconds:   3600,
			SimilarityThreshold: 0.7,
			TopK:                10,
			EmbeddingDimension:  768,
			MaxExtracts:         8,
		},
		Summarization: SummarizationConfig{
			DefaultCompression: "medium",
		},
	}
}

// Path returns the path to the config file.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "mnemo", "config.toml"), nil
}

// DefaultDBPath returns where the database lives when the config doesn't
// say otherwise.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "mnemo", "mnemo.db"), nil
}

// Load loads the config, applying defaults for any missing values.
func Load() (Config, error) {
	cfg := Default()

	path, err := Path()
	if err != nil {
		return cfg, nil // Return defaults if we can't determine home dir.
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return applyEnv(cfg), nil // File doesn't exist yet — use defaults.
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("config: load: %w", err)
	}
	return applyEnv(cfg), nil
}

// applyEnv lets env vars override config file API keys and paths.
func applyEnv(cfg Config) Config {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Keys.Anthropic = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Keys.OpenAI = v
	}
	if v := os.Getenv("MNEMO_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("MNEMO_USER"); v != "" {
		cfg.DefaultUser = v
	}
	return cfg
}

// Save writes the config to disk.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// DBPath returns the effective database path for cfg.
func DBPath(cfg Config) (string, error) {
	if cfg.Database.Path != "" {
		return cfg.Database.Path, nil
	}
	return DefaultDBPath()
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DefaultModel != "claude" {
		t.Errorf("default model: got %q, want %q", cfg.DefaultModel, "claude")
	}
	if cfg.DefaultEmbedder != "ollama" {
		t.Errorf("default embedder: got %q, want %q", cfg.DefaultEmbedder, "ollama")
	}
	if cfg.DefaultUser != "local" {
		t.Errorf("default user: got %q, want %q", cfg.DefaultUser, "local")
	}
	if cfg.Memory.DefaultTTLSeconds != 3600 {
		t.Errorf("default ttl: got %d, want 3600", cfg.Memory.DefaultTTLSeconds)
	}
	if cfg.Memory.SimilarityThreshold != 0.7 {
		t.Errorf("similarity threshold: got %f, want 0.7", cfg.Memory.SimilarityThreshold)
	}
	if cfg.Memory.TopK != 10 {
		t.Errorf("top k: got %d, want 10", cfg.Memory.TopK)
	}
	if cfg.Memory.EmbeddingDimension != 768 {
		t.Errorf("embedding dimension: got %d, want 768", cfg.Memory.EmbeddingDimension)
	}
	if cfg.Summarization.DefaultCompression != "medium" {
		t.Errorf("default compression: got %q", cfg.Summarization.DefaultCompression)
	}
	if cfg.Ollama.Host != "http://localhost:11434" {
		t.Errorf("ollama host: got %q", cfg.Ollama.Host)
	}
	if cfg.Ollama.EmbedModel != "nomic-embed-text" {
		t.Errorf("ollama embed model: got %q", cfg.Ollama.EmbedModel)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	os.Setenv("ANTHROPIC_API_KEY", "test-key-123")
	os.Setenv("MNEMO_DB", "/tmp/override.db")
	os.Setenv("MNEMO_USER", "carol")
	defer func() {
		os.Unsetenv("ANTHROPIC_API_KEY")
		os.Unsetenv("MNEMO_DB")
		os.Unsetenv("MNEMO_USER")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Keys.Anthropic != "test-key-123" {
		t.Errorf("expected env override, got %q", cfg.Keys.Anthropic)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("expected db path override, got %q", cfg.Database.Path)
	}
	if cfg.DefaultUser != "carol" {
		t.Errorf("expected user override, got %q", cfg.DefaultUser)
	}
}

func TestPath(t *testing.T) {
	path, err := Path()
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.toml" {
		t.Errorf("expected config.toml, got %q", filepath.Base(path))
	}
}

func TestDBPath(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = "/data/custom.db"
	got, err := DBPath(cfg)
	if err != nil {
		t.Fatalf("DBPath: %v", err)
	}
	if got != "/data/custom.db" {
		t.Errorf("got %q, want explicit path", got)
	}

	cfg.Database.Path = ""
	got, err = DBPath(cfg)
	if err != nil {
		t.Fatalf("DBPath default: %v", err)
	}
	if filepath.Base(got) != "mnemo.db" {
		t.Errorf("default db path = %q", got)
	}
}

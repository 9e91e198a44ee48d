package cli

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mnemo-ai/mnemo/internal/adapter"
	"github.com/mnemo-ai/mnemo/internal/config"
	"github.com/mnemo-ai/mnemo/internal/db"
	"github.com/mnemo-ai/mnemo/internal/memory"
	"github.com/mnemo-ai/mnemo/internal/session"
)

// engine bundles everything a command needs: config, database, and the
// memory/session components wired together.
type engine struct {
	cfg      config.Config
	database *db.DB
	store    *memory.Store
	pipeline *memory.Pipeline
	searcher *memory.Searcher
	sessions *session.Manager
	embedder adapter.Embedder
	llm      adapter.LLMAdapter
}

func (e *engine) Close() {
	_ = e.database.Close()
}

// openEngine loads config and wires the engine. The LLM and embedder are
// best-effort: commands that don't need them still work when neither is
// reachable. logger may be nil.
func openEngine(logger *zap.Logger) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	dbPath, err := config.DBPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	database, err := db.Open(dbPath, cfg.Memory.EmbeddingDimension)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	llm := buildLLM(cfg)
	embedder := buildEmbedder(cfg)

	store := memory.NewStore(database, memory.NewVectorStore(database), logger)
	var extractor memory.Extractor
	if llm != nil {
		extractor = memory.NewLLMExtractor(llm, cfg.Memory.MaxExtracts)
	}
	pipeline := memory.NewPipeline(store, extractor, embedder, memory.PipelineConfig{
		DefaultTTLSeconds: cfg.Memory.DefaultTTLSeconds,
	})
	searcher := memory.NewSearcher(store, embedder, memory.SearchDefaults{
		TopK:      cfg.Memory.TopK,
		Threshold: cfg.Memory.SimilarityThreshold,
	})

	tokenizer, _ := session.NewTokenizer()
	sessions := session.NewManager(store, llm, embedder, tokenizer, logger)

	return &engine{
		cfg:      cfg,
		database: database,
		store:    store,
		pipeline: pipeline,
		searcher: searcher,
		sessions: sessions,
		embedder: embedder,
		llm:      llm,
	}, nil
}

// buildLLM creates the completion adapter from config (nil on failure).
func buildLLM(cfg config.Config) adapter.LLMAdapter {
	name := cfg.DefaultModel
	if name == "" {
		name = adapter.ProviderClaude
	}
	var apiKey string
	switch name {
	case adapter.ProviderClaude:
		apiKey = cfg.Keys.Anthropic
	case adapter.ProviderOpenAI:
		apiKey = cfg.Keys.OpenAI
	}
	llm, err := adapter.New(name, cfg.Ollama.EmbedModel, apiKey, cfg.Ollama.Host)
	if err != nil {
		return nil
	}
	return llm
}

// buildEmbedder creates the embedder from config, wrapped with retries
// (nil when the configured provider can't embed).
func buildEmbedder(cfg config.Config) adapter.Embedder {
	name := cfg.DefaultEmbedder
	if name == "" {
		name = adapter.ProviderOllama
	}
	var apiKey string
	if name == adapter.ProviderOpenAI {
		apiKey = cfg.Keys.OpenAI
	}
	llm, err := adapter.New(name, cfg.Ollama.EmbedModel, apiKey, cfg.Ollama.Host)
	if err != nil {
		return nil
	}
	emb, ok := llm.(adapter.Embedder)
	if !ok || emb.ModelVersion() == "" {
		return nil
	}
	return adapter.NewRetryingEmbedder(emb, 3, 250*time.Millisecond)
}

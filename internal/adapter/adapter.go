// Package adapter provides a unified interface for LLM providers and embedders.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Provider name constants.
const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Gateway error sentinels. Transport failures against an external AI service
// are classified into these two; everything above the adapter layer matches
// with errors.Is and decides retry/partial-success behaviour from the kind.
var (
	ErrGatewayTimeout     = errors.New("adapter: gateway timeout")
	ErrGatewayUnavailable = errors.New("adapter: gateway unavailable")
)

// ClassifyGatewayErr wraps a transport error with the matching sentinel.
// Already-classified errors pass through unchanged.
func ClassifyGatewayErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrGatewayTimeout) || errors.Is(err, ErrGatewayUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
}

// IsTimeout reports whether err is a transport-level timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrGatewayTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// StreamChunk is a single token or error delivered during streaming.
type StreamChunk struct {
	Text  string
	Error error
}

// CompletionRequest holds the parameters for a completion call.
type CompletionRequest struct {
	SystemPrompt string
	UserMessage  string
	Model        string
	MaxTokens    int
	Temperature  float64
	Stream       bool
}

// ModelInfo describes the capabilities of a model.
type ModelInfo struct {
	Name               string
	Provider           string
	MaxContextWindow   int
	SupportsStreaming  bool
	EmbeddingDimension int // 0 if not an embedding model
}

// LLMAdapter is the common interface all provider adapters implement.
type LLMAdapter interface {
	// Complete sends a prompt and streams the response.
	Complete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// Embed generates embeddings for a batch of texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Info returns metadata about the adapter/model.
	Info() ModelInfo
}

// New constructs the LLMAdapter for the named provider.
//
//   - provider: "claude", "openai", "ollama"
//   - embedModel: embedding model name (used by Ollama; ignored by others)
//   - apiKey: provider API key (empty = read from env in the concrete adapter)
//   - ollamaHost: base URL for the Ollama server (used only when provider == "ollama")
func New(provider, embedModel, apiKey, ollamaHost string) (LLMAdapter, error) {
	switch provider {
	case ProviderClaude:
		return NewClaude(apiKey), nil
	case ProviderOpenAI:
		return NewOpenAI(apiKey), nil
	case ProviderOllama:
		host := ollamaHost
		if host == "" {
			host = "http://localhost:11434"
		}
		model := embedModel
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllama(host, model), nil
	default:
		return nil, fmt.Errorf("adapter: unknown provider %q; valid providers: claude, openai, ollama", provider)
	}
}

// Collect drains a completion stream into a single string.
func Collect(stream <-chan StreamChunk) (string, error) {
	var out string
	for chunk := range stream {
		if chunk.Error != nil {
			return "", chunk.Error
		}
		out += chunk.Text
	}
	return out, nil
}

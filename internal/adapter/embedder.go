package adapter

import (
	"context"
	"fmt"
	"time"
)

// Embedder is a narrower interface for components that only need embedding,
// not full chat completion. ModelVersion tags every stored vector so queries
// never mix vectors from different embedding models.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelVersion() string
}

// RetryingEmbedder wraps an Embedder with bounded exponential backoff.
// Embedding is idempotent, so transport failures are safe to retry.
type RetryingEmbedder struct {
	inner     Embedder
	attempts  int
	baseDelay time.Duration
}

// NewRetryingEmbedder wraps inner with up to attempts tries (minimum 1).
func NewRetryingEmbedder(inner Embedder, attempts int, baseDelay time.Duration) *RetryingEmbedder {
	if attempts < 1 {
		attempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	return &RetryingEmbedder{inner: inner, attempts: attempts, baseDelay: baseDelay}
}

func (r *RetryingEmbedder) ModelVersion() string {
	return r.inner.ModelVersion()
}

func (r *RetryingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	delay := r.baseDelay
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ClassifyGatewayErr(ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
		vecs, err := r.inner.Embed(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = ClassifyGatewayErr(err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("embed after %d attempts: %w", r.attempts, lastErr)
}

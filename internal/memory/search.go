package memory

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mnemo-ai/mnemo/internal/adapter"
)

// SearchDefaults are the injected fallbacks for search parameters.
type SearchDefaults struct {
	TopK      int
	Threshold float64
}

// SearchOptions narrows one search call. Zero values fall back to defaults.
type SearchOptions struct {
	Kinds     []Kind
	TopK      int
	Threshold float64
}

// Hit is one search result.
type Hit struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"type"`
	Content   string            `json:"content"`
	Score     float64           `json:"score"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"-"`
}

// Result is a ranked, merged result set. FailedKinds lists sub-queries that
// errored while others succeeded; the call as a whole still succeeds.
type Result struct {
	Hits        []Hit  `json:"results"`
	FailedKinds []Kind `json:"failed_types,omitempty"`
}

// Searcher runs semantic search across memory kinds.
type Searcher struct {
	store    *Store
	embedder adapter.Embedder
	defaults SearchDefaults
}

// NewSearcher creates a Searcher.
func NewSearcher(store *Store, embedder adapter.Embedder, defaults SearchDefaults) *Searcher {
	if defaults.TopK <= 0 {
		defaults.TopK = 10
	}
	if defaults.Threshold <= 0 {
		defaults.Threshold = 0.7
	}
	return &Searcher{store: store, embedder: embedder, defaults: defaults}
}

// Search embeds the query once, fans out one vector sub-query per requested
// kind concurrently, merges everything that cleared the threshold, and
// returns the global top-K ordered by score (ties: more recent first).
//
// Sub-query failures degrade the result instead of failing the call; an
// error is returned only when the query embedding itself cannot be produced
// or every sub-query failed.
func (s *Searcher) Search(ctx context.Context, userID, query string, opts SearchOptions) (Result, error) {
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = AllKinds()
	}
	for _, k := range kinds {
		if !ValidKind(k) {
			return Result{}, fmt.Errorf("%w: unknown kind %q", ErrValidation, k)
		}
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = s.defaults.TopK
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = s.defaults.Threshold
	}

	if s.embedder == nil {
		return Result{}, fmt.Errorf("search: %w: no embedder configured", adapter.ErrGatewayUnavailable)
	}
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return Result{}, fmt.Errorf("search: embed query: %w", err)
	}
	if len(vecs) == 0 {
		return Result{}, fmt.Errorf("search: embed query: %w: empty response", adapter.ErrGatewayUnavailable)
	}
	queryVec := vecs[0]
	modelVersion := s.embedder.ModelVersion()

	// Concurrent read-only fan-out; one indexed slot per kind, no shared
	// mutable state between sub-queries.
	perKind := make([][]Scored, len(kinds))
	errs := make([]error, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			matches, err := s.store.QueryByVector(gctx, userID, kind, queryVec, modelVersion, topK, threshold)
			if err != nil {
				errs[i] = err
				return nil // degrade, don't cancel siblings
			}
			perKind[i] = matches
			return nil
		})
	}
	_ = g.Wait()

	var merged []Scored
	var failed []Kind
	for i, kind := range kinds {
		if errs[i] != nil {
			failed = append(failed, kind)
			continue
		}
		merged = append(merged, perKind[i]...)
	}
	if len(failed) == len(kinds) {
		return Result{}, fmt.Errorf("search: all %d sub-queries failed: %w", len(kinds), errs[0])
	}

	SortScored(merged)
	if len(merged) > topK {
		merged = merged[:topK]
	}

	hits := make([]Hit, len(merged))
	for i, m := range merged {
		hits[i] = Hit{
			ID:        m.ID,
			Kind:      m.Kind,
			Content:   m.Content,
			Score:     m.Score,
			Metadata:  m.Metadata,
			CreatedAt: m.CreatedAt,
		}
	}
	return Result{Hits: hits, FailedKinds: failed}, nil
}

// SearchByField is the exact-match path: one kind, one allowlisted field,
// no embeddings involved.
func (s *Searcher) SearchByField(ctx context.Context, userID string, kind Kind, field, value string, limit int) ([]Memory, error) {
	return s.store.QueryByField(ctx, userID, kind, field, value, limit)
}

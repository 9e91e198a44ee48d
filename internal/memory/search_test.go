package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/mnemo-ai/mnemo/internal/adapter"
)

func TestSearch_MergesAcrossKinds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	embedder := &fakeEmbedder{model: "embed-v1", vectors: map[string][]float32{
		"query": unit(0),
	}}

	fact := factual("alice", "close fact")
	fact.EmbeddingModel = "embed-v1"
	factID := mustInsert(t, s, fact, unit(0))

	sem := Memory{
		UserID: "alice", Kind: KindSemantic, Content: "related concept",
		EmbeddingModel: "embed-v1",
		Attrs:          SemanticAttrs{ConceptType: "term", Category: "infra", Definition: "d"},
	}
	mustInsert(t, s, sem, []float32{0.9, 0.1, 0, 0, 0, 0, 0, 0})

	distant := factual("alice", "distant fact")
	distant.EmbeddingModel = "embed-v1"
	mustInsert(t, s, distant, unit(5))

	other := factual("bob", "bob's fact")
	other.EmbeddingModel = "embed-v1"
	mustInsert(t, s, other, unit(0))

	searcher := NewSearcher(s, embedder, SearchDefaults{TopK: 10, Threshold: 0.5})
	result, err := searcher.Search(ctx, "alice", "query", SearchOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Hits) == 0 {
		t.Skip("sqlite-vec unavailable in this environment")
	}
	if len(result.Hits) != 2 {
		t.Fatalf("got %d hits: %+v", len(result.Hits), result.Hits)
	}
	if result.Hits[0].ID != factID {
		t.Errorf("best hit = %s, want the exact factual match", result.Hits[0].ID)
	}
	if result.Hits[1].Kind != KindSemantic {
		t.Errorf("second hit kind = %s", result.Hits[1].Kind)
	}
	for _, h := range result.Hits {
		if h.Content == "bob's fact" {
			t.Error("cross-user hit leaked")
		}
		if h.Score < 0.5 {
			t.Errorf("sub-threshold hit %q (%f) surfaced", h.Content, h.Score)
		}
	}
}

func TestSearch_TopKTruncatesAfterThreshold(t *testing.T) {
	s := newTestStore(t)
	embedder := &fakeEmbedder{model: "embed-v1", vectors: map[string][]float32{"query": unit(0)}}

	for i := 0; i < 5; i++ {
		m := factual("alice", "fact")
		m.EmbeddingModel = "embed-v1"
		mustInsert(t, s, m, unit(0))
	}

	searcher := NewSearcher(s, embedder, SearchDefaults{})
	result, err := searcher.Search(context.Background(), "alice", "query", SearchOptions{TopK: 3, Threshold: 0.9})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Hits) == 0 {
		t.Skip("sqlite-vec unavailable in this environment")
	}
	if len(result.Hits) != 3 {
		t.Errorf("got %d hits, want topK=3", len(result.Hits))
	}
}

func TestSearch_SubQueryFailureDegrades(t *testing.T) {
	s := newTestStore(t)
	if !s.Vectors().Enabled() {
		t.Skip("sqlite-vec unavailable in this environment")
	}
	embedder := &fakeEmbedder{model: "embed-v1", vectors: map[string][]float32{"query": unit(0)}}

	sem := Memory{
		UserID: "alice", Kind: KindSemantic, Content: "surviving concept",
		EmbeddingModel: "embed-v1",
		Attrs:          SemanticAttrs{ConceptType: "term", Category: "infra", Definition: "d"},
	}
	mustInsert(t, s, sem, unit(0))

	// Lose one kind's vector table out from under the searcher.
	if _, err := s.Conn().Exec(`DROP TABLE vec_factual`); err != nil {
		t.Fatalf("drop vec table: %v", err)
	}

	searcher := NewSearcher(s, embedder, SearchDefaults{TopK: 10, Threshold: 0.5})
	result, err := searcher.Search(context.Background(), "alice", "query",
		SearchOptions{Kinds: []Kind{KindFactual, KindSemantic}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Hits) != 1 || result.Hits[0].Kind != KindSemantic {
		t.Errorf("hits = %+v, want the surviving semantic hit", result.Hits)
	}
	if len(result.FailedKinds) != 1 || result.FailedKinds[0] != KindFactual {
		t.Errorf("FailedKinds = %v, want [factual]", result.FailedKinds)
	}
}

func TestSearch_AllSubQueriesFailingFailsTheCall(t *testing.T) {
	s := newTestStore(t)
	if !s.Vectors().Enabled() {
		t.Skip("sqlite-vec unavailable in this environment")
	}
	embedder := &fakeEmbedder{model: "embed-v1", vectors: map[string][]float32{"query": unit(0)}}
	searcher := NewSearcher(s, embedder, SearchDefaults{})

	// A dead backend must surface as an error, not an empty success.
	if err := s.Conn().Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}
	result, err := searcher.Search(context.Background(), "alice", "query", SearchOptions{})
	if err == nil {
		t.Fatalf("Search = %+v, <nil>; want an error when every sub-query fails", result)
	}
}

func TestSearch_InvalidKind(t *testing.T) {
	s := newTestStore(t)
	searcher := NewSearcher(s, &fakeEmbedder{model: "m"}, SearchDefaults{})

	_, err := searcher.Search(context.Background(), "alice", "query", SearchOptions{Kinds: []Kind{"bogus"}})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Search = %v, want ErrValidation", err)
	}
}

func TestSearch_EmbedFailureFailsTheCall(t *testing.T) {
	s := newTestStore(t)
	searcher := NewSearcher(s, &fakeEmbedder{err: adapter.ErrGatewayUnavailable}, SearchDefaults{})

	_, err := searcher.Search(context.Background(), "alice", "query", SearchOptions{})
	if !errors.Is(err, adapter.ErrGatewayUnavailable) {
		t.Errorf("Search = %v, want ErrGatewayUnavailable", err)
	}

	searcher = NewSearcher(s, nil, SearchDefaults{})
	if _, err := searcher.Search(context.Background(), "alice", "query", SearchOptions{}); err == nil {
		t.Error("nil embedder should fail the call")
	}
}

func TestStatistics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustInsert(t, s, factual("alice", "f1"), nil)
	mustInsert(t, s, factual("alice", "f2"), nil)
	mustInsert(t, s, Memory{
		UserID: "alice", Kind: KindProcedural, Content: "how-to",
		Attrs: ProceduralAttrs{Steps: []string{"one"}, Domain: "ops"},
	}, nil)
	mustInsert(t, s, Memory{
		UserID: "alice", Kind: KindWorking, Content: "expired",
		ExpiresAt: parseEpisodeDate("2020-01-01"),
		Attrs:     WorkingAttrs{TTLSeconds: 1},
	}, nil)
	mustInsert(t, s, factual("bob", "bob's"), nil)

	stats, err := s.Statistics(ctx, "alice")
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.ByKind[KindFactual] != 2 || stats.ByKind[KindProcedural] != 1 {
		t.Errorf("ByKind = %v", stats.ByKind)
	}
	if stats.ByKind[KindWorking] != 0 {
		t.Errorf("expired working memory counted: %v", stats.ByKind)
	}

	sum := 0
	for _, n := range stats.ByKind {
		sum += n
	}
	if stats.Total != sum {
		t.Errorf("Total = %d, sum of ByKind = %d", stats.Total, sum)
	}
	if stats.KnowledgeDiversity != 2 {
		t.Errorf("KnowledgeDiversity = %d, want 2", stats.KnowledgeDiversity)
	}
}

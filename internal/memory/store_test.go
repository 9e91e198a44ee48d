package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mnemo-ai/mnemo/internal/db"
)

// testDimension keeps test vectors small and readable.
const testDimension = 8

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"), testDimension)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database, NewVectorStore(database), nil)
}

// unit returns a dimension-8 one-hot vector.
func unit(i int) []float32 {
	v := make([]float32, testDimension)
	v[i] = 1
	return v
}

func mustInsert(t *testing.T, s *Store, m Memory, embedding []float32) string {
	t.Helper()
	id, err := s.Insert(context.Background(), m, embedding)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return id
}

func factual(user, content string) Memory {
	return Memory{
		UserID:  user,
		Kind:    KindFactual,
		Content: content,
		Attrs:   FactualAttrs{Subject: "s", Predicate: "p", Object: "o", Confidence: 0.9},
	}
}

func TestInsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := Memory{
		UserID:     "alice",
		Kind:       KindFactual,
		Content:    "alice works at acme",
		Importance: 0.8,
		Metadata:   map[string]string{"source": "chat"},
		Attrs:      FactualAttrs{Subject: "alice", Predicate: "works_at", Object: "acme", FactType: "attribute", Confidence: 0.95},
	}
	id := mustInsert(t, s, m, nil)

	got, err := s.Get(ctx, "alice", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != m.Content || got.Importance != 0.8 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Metadata["source"] != "chat" {
		t.Errorf("metadata lost: %v", got.Metadata)
	}
	attrs, ok := got.Attrs.(FactualAttrs)
	if !ok {
		t.Fatalf("attrs type = %T", got.Attrs)
	}
	if attrs.Subject != "alice" || attrs.Object != "acme" || attrs.Confidence != 0.95 {
		t.Errorf("attrs mismatch: %+v", attrs)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
}

func TestInsert_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cases := []Memory{
		{Kind: KindFactual, Content: "x", Attrs: FactualAttrs{Subject: "s", Predicate: "p", Object: "o"}},       // no user
		{UserID: "alice", Kind: KindFactual, Attrs: FactualAttrs{Subject: "s", Predicate: "p", Object: "o"}},    // no content
		{UserID: "alice", Kind: KindFactual, Content: "x"},                                                      // no attrs
		{UserID: "alice", Kind: KindFactual, Content: "x", Importance: 1.5, Attrs: FactualAttrs{}},              // importance range
		{UserID: "alice", Kind: KindFactual, Content: "x", Attrs: WorkingAttrs{TTLSeconds: 10}},                 // kind mismatch
		{UserID: "alice", Kind: KindFactual, Content: "x", Attrs: FactualAttrs{Subject: "s", Predicate: "p"}},   // attrs invalid
		{UserID: "alice", Kind: KindSession, Content: "x", Attrs: MessageAttrs{SessionID: "s1", Role: "user"}},  // sessions rejected
	}
	for i, m := range cases {
		if _, err := s.Insert(ctx, m, nil); !errors.Is(err, ErrValidation) {
			t.Errorf("case %d: err = %v, want ErrValidation", i, err)
		}
	}
}

func TestGet_OwnershipAndNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := mustInsert(t, s, factual("alice", "private"), nil)

	if _, err := s.Get(ctx, "bob", id); !errors.Is(err, ErrOwnership) {
		t.Errorf("cross-user Get = %v, want ErrOwnership", err)
	}
	if _, err := s.Get(ctx, "alice", "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id Get = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := mustInsert(t, s, factual("alice", "to delete"), unit(0))

	if err := s.Delete(ctx, "bob", id); !errors.Is(err, ErrOwnership) {
		t.Errorf("cross-user Delete = %v, want ErrOwnership", err)
	}
	if err := s.Delete(ctx, "alice", id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "alice", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "alice", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestQueryByField(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustInsert(t, s, Memory{
		UserID: "alice", Kind: KindFactual, Content: "alice uses vim",
		Attrs: FactualAttrs{Subject: "alice", Predicate: "uses", Object: "vim", Confidence: 0.9},
	}, nil)
	mustInsert(t, s, Memory{
		UserID: "alice", Kind: KindFactual, Content: "bob uses emacs",
		Attrs: FactualAttrs{Subject: "bob", Predicate: "uses", Object: "emacs", Confidence: 0.9},
	}, nil)
	mustInsert(t, s, Memory{
		UserID: "carol", Kind: KindFactual, Content: "carol's alice fact",
		Attrs: FactualAttrs{Subject: "alice", Predicate: "likes", Object: "go", Confidence: 0.9},
	}, nil)

	got, err := s.QueryByField(ctx, "alice", KindFactual, "subject", "alice", 10)
	if err != nil {
		t.Fatalf("QueryByField: %v", err)
	}
	if len(got) != 1 || got[0].Content != "alice uses vim" {
		t.Errorf("got %d results: %+v", len(got), got)
	}

	// Only allowlisted fields are queryable.
	if _, err := s.QueryByField(ctx, "alice", KindFactual, "content; DROP TABLE", "x", 10); !errors.Is(err, ErrValidation) {
		t.Errorf("bad field = %v, want ErrValidation", err)
	}
	if _, err := s.QueryByField(ctx, "alice", Kind("bogus"), "subject", "x", 10); !errors.Is(err, ErrValidation) {
		t.Errorf("bad kind = %v, want ErrValidation", err)
	}
}

func TestWorkingMemoryExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	expired := mustInsert(t, s, Memory{
		UserID: "alice", Kind: KindWorking, Content: "stale state",
		ExpiresAt: time.Now().UTC().Add(-time.Second),
		Attrs:     WorkingAttrs{TTLSeconds: 1, Priority: 9},
	}, nil)
	live := mustInsert(t, s, Memory{
		UserID: "alice", Kind: KindWorking, Content: "low priority",
		Attrs: WorkingAttrs{TTLSeconds: 3600, Priority: 1},
	}, nil)
	mustInsert(t, s, Memory{
		UserID: "alice", Kind: KindWorking, Content: "high priority",
		Attrs: WorkingAttrs{TTLSeconds: 3600, Priority: 5},
	}, nil)

	// Expired records are invisible without any sweep having run.
	if _, err := s.Get(ctx, "alice", expired); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get expired = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, "alice", live); err != nil {
		t.Errorf("Get live: %v", err)
	}

	active, err := s.ActiveWorking(ctx, "alice")
	if err != nil {
		t.Fatalf("ActiveWorking: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("ActiveWorking = %d records, want 2", len(active))
	}
	if active[0].Content != "high priority" {
		t.Errorf("expected priority ordering, got %q first", active[0].Content)
	}

	// Sweep reclaims only the expired record.
	n, err := s.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d, want 1", n)
	}
	if c, _ := s.CountExpired(ctx); c != 0 {
		t.Errorf("CountExpired after sweep = %d", c)
	}
}

func TestQueryByVector(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	near := mustInsert(t, s, factual("alice", "near"), unit(0))
	mustInsert(t, s, factual("alice", "far"), unit(1))
	mustInsert(t, s, factual("bob", "bob's near"), unit(0))

	got, err := s.QueryByVector(ctx, "alice", KindFactual, unit(0), "", 10, 0.9)
	if err != nil {
		t.Fatalf("QueryByVector: %v", err)
	}
	if len(got) == 0 {
		t.Skip("sqlite-vec unavailable in this environment")
	}
	if len(got) != 1 || got[0].ID != near {
		t.Fatalf("got %+v, want only the exact match", got)
	}
	if got[0].Score < 0.99 {
		t.Errorf("exact match score = %f", got[0].Score)
	}

	// Lower threshold admits the distant match, still never bob's.
	got, err = s.QueryByVector(ctx, "alice", KindFactual, unit(0), "", 10, 0.1)
	if err != nil {
		t.Fatalf("QueryByVector: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	for _, r := range got {
		if r.UserID != "alice" {
			t.Errorf("leaked record for user %q", r.UserID)
		}
	}
	if got[0].Score < got[1].Score {
		t.Error("results not score-descending")
	}
}

func TestQueryByVector_ModelVersionFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := factual("alice", "old model vector")
	m.EmbeddingModel = "embed-v1"
	mustInsert(t, s, m, unit(0))

	got, err := s.QueryByVector(ctx, "alice", KindFactual, unit(0), "embed-v2", 10, 0.1)
	if err != nil {
		t.Fatalf("QueryByVector: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("stale-model vector surfaced: %+v", got)
	}
}

func TestSortScored(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	results := []Scored{
		{Memory: Memory{ID: "low"}, Score: 0.5},
		{Memory: Memory{ID: "tie-old", CreatedAt: older}, Score: 0.8},
		{Memory: Memory{ID: "high"}, Score: 0.9},
		{Memory: Memory{ID: "tie-new", CreatedAt: newer}, Score: 0.8},
	}
	SortScored(results)

	want := []string{"high", "tie-new", "tie-old", "low"}
	for i, id := range want {
		if results[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, results[i].ID, id)
		}
	}
}

func TestParseTime(t *testing.T) {
	if got := ParseTime("2026-08-29 10:30:00.125"); got.IsZero() {
		t.Error("millisecond layout not parsed")
	}
	if got := ParseTime("2026-08-29 10:30:00"); got.IsZero() {
		t.Error("second layout not parsed")
	}
	if got := ParseTime("garbage"); !got.IsZero() {
		t.Errorf("garbage parsed to %v", got)
	}
}

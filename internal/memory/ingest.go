package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mnemo-ai/mnemo/internal/adapter"
)

// PipelineConfig holds the injected defaults for ingestion.
type PipelineConfig struct {
	// DefaultTTLSeconds is applied to working memories stored without an
	// explicit TTL.
	DefaultTTLSeconds int
}

// Pipeline converts extraction gateway output into validated, embedded,
// persisted memories. Partial success is the normal case: malformed
// candidates are dropped and counted, never surfaced as a top-level error.
type Pipeline struct {
	store     *Store
	extractor Extractor
	embedder  adapter.Embedder
	cfg       PipelineConfig
}

// NewPipeline creates a Pipeline.
func NewPipeline(store *Store, extractor Extractor, embedder adapter.Embedder, cfg PipelineConfig) *Pipeline {
	if cfg.DefaultTTLSeconds <= 0 {
		cfg.DefaultTTLSeconds = 3600
	}
	return &Pipeline{store: store, extractor: extractor, embedder: embedder, cfg: cfg}
}

// StoreOptions carries the optional parameters of a store call.
type StoreOptions struct {
	TTLSeconds  int               // working memories; 0 = configured default
	Priority    int               // working memories
	EpisodeDate time.Time         // fallback date for episodic candidates
	SessionID   string            // tags the memory for session cascade delete
	Metadata    map[string]string // attached verbatim
}

// IngestResult reports what a store call did. StoredCount < ExtractedCount
// with a nil error is expected whenever some candidates failed validation.
type IngestResult struct {
	StoredIDs      []string `json:"memory_ids"`
	StoredCount    int      `json:"stored_count"`
	ExtractedCount int      `json:"extracted_count"`
	DroppedCount   int      `json:"dropped_count,omitempty"`
	Diagnostic     string   `json:"diagnostic,omitempty"`
}

// StoreDialog runs the full pipeline for one dialog: extract candidates for
// the kind, validate each, embed the survivors, insert them. Working
// memories skip extraction and store the dialog text directly.
//
// Gateway outages are reported through Diagnostic with StoredCount=0 and a
// nil error so callers can distinguish "nothing found" from "service down"
// without an exception path.
func (p *Pipeline) StoreDialog(ctx context.Context, userID string, kind Kind, dialog string, importance float64, opts StoreOptions) (IngestResult, error) {
	if kind == KindWorking {
		return p.storeWorking(ctx, userID, dialog, importance, opts)
	}
	if kind == KindSession {
		return IngestResult{}, fmt.Errorf("%w: session messages are appended via their session", ErrValidation)
	}

	candidates, err := p.extractor.Extract(ctx, dialog, kind)
	if err != nil {
		if errors.Is(err, adapter.ErrGatewayTimeout) {
			return IngestResult{Diagnostic: "extraction gateway timed out"}, nil
		}
		if errors.Is(err, adapter.ErrGatewayUnavailable) {
			return IngestResult{Diagnostic: "extraction gateway unavailable"}, nil
		}
		return IngestResult{}, err
	}

	result := IngestResult{ExtractedCount: len(candidates)}
	if len(candidates) == 0 {
		result.Diagnostic = "nothing extractable"
		return result, nil
	}

	type pending struct {
		content    string
		importance float64
		attrs      Attrs
	}
	var valid []pending
	for _, c := range candidates {
		if kind == KindEpisodic && c.str("episode_date") == "" && !opts.EpisodeDate.IsZero() {
			c["episode_date"] = opts.EpisodeDate.Format("2006-01-02")
		}

		attrs, err := attrsFromCandidate(kind, c)
		if err != nil {
			result.DroppedCount++
			continue
		}

		content := c.str("content")
		if content == "" {
			if f, ok := attrs.(FactualAttrs); ok {
				content = fmt.Sprintf("%s %s %s", f.Subject, f.Predicate, f.Object)
			} else {
				result.DroppedCount++
				continue
			}
		}

		imp := importance
		if v := c.num("importance"); v > 0 && v <= 1 {
			imp = v
		}
		valid = append(valid, pending{content: content, importance: imp, attrs: attrs})
	}

	if len(valid) == 0 {
		result.Diagnostic = fmt.Sprintf("all %d extracted candidates failed validation", len(candidates))
		return result, nil
	}

	texts := make([]string, len(valid))
	for i, v := range valid {
		texts[i] = v.content
	}
	vectors, modelVersion, embedDiag := p.embed(ctx, texts)
	result.Diagnostic = embedDiag

	for i, v := range valid {
		m := Memory{
			UserID:         userID,
			Kind:           kind,
			Content:        v.content,
			Importance:     v.importance,
			EmbeddingModel: modelVersion,
			Metadata:       opts.Metadata,
			SessionID:      opts.SessionID,
			Attrs:          v.attrs,
		}
		var vec []float32
		if i < len(vectors) {
			vec = vectors[i]
		}
		id, err := p.store.Insert(ctx, m, vec)
		if err != nil {
			result.DroppedCount++
			continue
		}
		result.StoredIDs = append(result.StoredIDs, id)
		result.StoredCount++
	}
	return result, nil
}

// StoreRecord persists one caller-supplied structured record, bypassing
// extraction. fields uses the same shape as an extraction candidate.
func (p *Pipeline) StoreRecord(ctx context.Context, userID string, kind Kind, content string, importance float64, fields Candidate, opts StoreOptions) (IngestResult, error) {
	if kind == KindWorking {
		return p.storeWorking(ctx, userID, content, importance, opts)
	}

	attrs, err := attrsFromCandidate(kind, fields)
	if err != nil {
		return IngestResult{}, err
	}
	if content == "" {
		content = fields.str("content")
	}

	vectors, modelVersion, diag := p.embed(ctx, []string{content})
	m := Memory{
		UserID:         userID,
		Kind:           kind,
		Content:        content,
		Importance:     importance,
		EmbeddingModel: modelVersion,
		Metadata:       opts.Metadata,
		SessionID:      opts.SessionID,
		Attrs:          attrs,
	}
	var vec []float32
	if len(vectors) > 0 {
		vec = vectors[0]
	}
	id, err := p.store.Insert(ctx, m, vec)
	if err != nil {
		return IngestResult{}, err
	}
	return IngestResult{StoredIDs: []string{id}, StoredCount: 1, ExtractedCount: 1, Diagnostic: diag}, nil
}

func (p *Pipeline) storeWorking(ctx context.Context, userID, content string, importance float64, opts StoreOptions) (IngestResult, error) {
	ttl := opts.TTLSeconds
	if ttl <= 0 {
		ttl = p.cfg.DefaultTTLSeconds
	}

	vectors, modelVersion, diag := p.embed(ctx, []string{content})
	m := Memory{
		UserID:         userID,
		Kind:           KindWorking,
		Content:        content,
		Importance:     importance,
		EmbeddingModel: modelVersion,
		Metadata:       opts.Metadata,
		SessionID:      opts.SessionID,
		Attrs:          WorkingAttrs{TTLSeconds: ttl, Priority: opts.Priority},
	}
	var vec []float32
	if len(vectors) > 0 {
		vec = vectors[0]
	}
	id, err := p.store.Insert(ctx, m, vec)
	if err != nil {
		return IngestResult{}, err
	}
	return IngestResult{StoredIDs: []string{id}, StoredCount: 1, ExtractedCount: 1, Diagnostic: diag}, nil
}

// embed returns vectors for texts, or no vectors plus a diagnostic when the
// embedding gateway stays down after retries. Records are still stored
// without vectors in that case — they remain reachable via field search and
// become searchable after a reembed.
func (p *Pipeline) embed(ctx context.Context, texts []string) ([][]float32, string, string) {
	if p.embedder == nil {
		return nil, "", "no embedder configured; stored without vectors"
	}
	vecs, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		if adapter.IsTimeout(err) {
			return nil, "", "embedding gateway timed out; stored without vectors"
		}
		return nil, "", "embedding gateway unavailable; stored without vectors"
	}
	return vecs, p.embedder.ModelVersion(), ""
}

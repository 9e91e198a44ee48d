package memory

import (
	"fmt"
	"strings"
	"time"
)

// Attrs validation. Each kind checks its own required fields and numeric
// ranges; extraction candidates that fail here are dropped, not fatal.

func (a FactualAttrs) Validate() error {
	if strings.TrimSpace(a.Subject) == "" {
		return fmt.Errorf("%w: factual: missing subject", ErrValidation)
	}
	if strings.TrimSpace(a.Predicate) == "" {
		return fmt.Errorf("%w: factual: missing predicate", ErrValidation)
	}
	if strings.TrimSpace(a.Object) == "" {
		return fmt.Errorf("%w: factual: missing object_value", ErrValidation)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("%w: factual: confidence %v out of [0,1]", ErrValidation, a.Confidence)
	}
	return nil
}

func (a EpisodicAttrs) Validate() error {
	if a.EpisodeDate.IsZero() {
		return fmt.Errorf("%w: episodic: missing episode_date", ErrValidation)
	}
	if strings.TrimSpace(a.EventType) == "" {
		return fmt.Errorf("%w: episodic: missing event_type", ErrValidation)
	}
	return nil
}

func (a SemanticAttrs) Validate() error {
	if strings.TrimSpace(a.ConceptType) == "" {
		return fmt.Errorf("%w: semantic: missing concept_type", ErrValidation)
	}
	if strings.TrimSpace(a.Category) == "" {
		return fmt.Errorf("%w: semantic: missing category", ErrValidation)
	}
	if strings.TrimSpace(a.Definition) == "" {
		return fmt.Errorf("%w: semantic: missing definition", ErrValidation)
	}
	return nil
}

func (a ProceduralAttrs) Validate() error {
	if len(a.Steps) == 0 {
		return fmt.Errorf("%w: procedural: missing steps", ErrValidation)
	}
	for i, s := range a.Steps {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: procedural: empty step %d", ErrValidation, i)
		}
	}
	if strings.TrimSpace(a.Domain) == "" {
		return fmt.Errorf("%w: procedural: missing domain", ErrValidation)
	}
	return nil
}

func (a WorkingAttrs) Validate() error {
	if a.TTLSeconds <= 0 {
		return fmt.Errorf("%w: working: ttl_seconds must be positive", ErrValidation)
	}
	if a.Priority < 0 {
		return fmt.Errorf("%w: working: negative priority", ErrValidation)
	}
	return nil
}

func (a MessageAttrs) Validate() error {
	if a.SessionID == "" {
		return fmt.Errorf("%w: session message: missing session_id", ErrValidation)
	}
	if a.Role == "" {
		return fmt.Errorf("%w: session message: missing role", ErrValidation)
	}
	if a.TokensUsed < 0 {
		return fmt.Errorf("%w: session message: negative tokens_used", ErrValidation)
	}
	if a.CostUSD < 0 {
		return fmt.Errorf("%w: session message: negative cost_usd", ErrValidation)
	}
	return nil
}

// ValidateMemory checks a memory's common fields and kind-specific payload
// before it may be inserted.
func ValidateMemory(m Memory) error {
	if m.UserID == "" {
		return fmt.Errorf("%w: missing user_id", ErrValidation)
	}
	if !ValidKind(m.Kind) {
		return fmt.Errorf("%w: unknown kind %q", ErrValidation, m.Kind)
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("%w: missing content", ErrValidation)
	}
	if m.Importance < 0 || m.Importance > 1 {
		return fmt.Errorf("%w: importance_score %v out of [0,1]", ErrValidation, m.Importance)
	}
	if m.Attrs == nil {
		return fmt.Errorf("%w: missing %s attributes", ErrValidation, m.Kind)
	}
	if m.Attrs.Kind() != m.Kind {
		return fmt.Errorf("%w: attrs are %q, memory is %q", ErrValidation, m.Attrs.Kind(), m.Kind)
	}
	return m.Attrs.Validate()
}

// Candidate is one untyped record proposed by the extraction gateway.
// Field values are whatever the model produced; attrsFromCandidate is the
// only path from a Candidate to a typed memory.
type Candidate map[string]any

// attrsFromCandidate converts an extraction candidate into validated typed
// attrs for the given kind. Missing confidence defaults to 0.7 — extraction
// models frequently omit it, and dropping an otherwise good fact for that is
// worse than a conservative default.
func attrsFromCandidate(kind Kind, c Candidate) (Attrs, error) {
	var attrs Attrs
	switch kind {
	case KindFactual:
		a := FactualAttrs{
			Subject:    c.str("subject"),
			Predicate:  c.str("predicate"),
			Object:     c.str("object_value"),
			FactType:   c.str("fact_type"),
			Confidence: c.num("confidence"),
		}
		if _, present := c["confidence"]; !present {
			a.Confidence = 0.7
		}
		attrs = a
	case KindEpisodic:
		attrs = EpisodicAttrs{
			EpisodeDate:  parseEpisodeDate(c.str("episode_date")),
			EventType:    c.str("event_type"),
			Location:     c.str("location"),
			Participants: c.strSlice("participants"),
		}
	case KindSemantic:
		attrs = SemanticAttrs{
			ConceptType: c.str("concept_type"),
			Category:    c.str("category"),
			Definition:  c.str("definition"),
			Properties:  c.strMap("properties"),
		}
	case KindProcedural:
		attrs = ProceduralAttrs{
			Steps:         c.strSlice("steps"),
			Domain:        c.str("domain"),
			Preconditions: c.strSlice("preconditions"),
		}
	default:
		return nil, fmt.Errorf("%w: kind %q is not extractable", ErrValidation, kind)
	}

	if err := attrs.Validate(); err != nil {
		return nil, err
	}
	return attrs, nil
}

// ---- Lenient accessors over model-produced JSON ----

func (c Candidate) str(key string) string {
	if v, ok := c[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func (c Candidate) num(key string) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func (c Candidate) strSlice(key string) []string {
	raw, ok := c[key].([]any)
	if !ok {
		// Some models return a single string where a list is expected.
		if s := c.str(key); s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func (c Candidate) strMap(key string) map[string]string {
	raw, ok := c[key].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}

// parseEpisodeDate accepts the date formats extraction models actually emit.
func parseEpisodeDate(s string) time.Time {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

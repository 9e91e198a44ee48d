// Package memory defines the typed memory model and the engine built on it:
// the user-scoped store, the extraction/ingestion pipeline, and semantic search.
package memory

import "time"

// Kind classifies a stored memory.
type Kind string

const (
	KindFactual    Kind = "factual"
	KindEpisodic   Kind = "episodic"
	KindSemantic   Kind = "semantic"
	KindProcedural Kind = "procedural"
	KindWorking    Kind = "working"
	KindSession    Kind = "session"
)

// AllKinds lists every memory kind, in the order search fans out over them.
func AllKinds() []Kind {
	return []Kind{KindFactual, KindEpisodic, KindSemantic, KindProcedural, KindWorking, KindSession}
}

// ExtractedKinds lists the kinds produced by the extraction gateway.
// Working memories and session messages are created directly by callers.
func ExtractedKinds() []Kind {
	return []Kind{KindFactual, KindEpisodic, KindSemantic, KindProcedural}
}

// ValidKind returns true if k is a recognised memory kind.
func ValidKind(k Kind) bool {
	switch k {
	case KindFactual, KindEpisodic, KindSemantic, KindProcedural, KindWorking, KindSession:
		return true
	}
	return false
}

// Attrs is the kind-specific payload of a memory. Each kind carries only its
// own required fields instead of one wide record of mostly-null columns.
type Attrs interface {
	Kind() Kind
	Validate() error
}

// FactualAttrs is a (subject, predicate, object) triple with a confidence.
type FactualAttrs struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object_value"`
	FactType   string  `json:"fact_type,omitempty"`
	Confidence float64 `json:"confidence"`
}

// EpisodicAttrs describes an event the user experienced.
type EpisodicAttrs struct {
	EpisodeDate  time.Time `json:"episode_date"`
	EventType    string    `json:"event_type"`
	Location     string    `json:"location,omitempty"`
	Participants []string  `json:"participants,omitempty"`
}

// SemanticAttrs describes a concept or definition.
type SemanticAttrs struct {
	ConceptType string            `json:"concept_type"`
	Category    string            `json:"category"`
	Definition  string            `json:"definition"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// ProceduralAttrs is an ordered how-to.
type ProceduralAttrs struct {
	Steps         []string `json:"steps"`
	Domain        string   `json:"domain"`
	Preconditions []string `json:"preconditions,omitempty"`
}

// WorkingAttrs is short-lived state with an explicit TTL.
type WorkingAttrs struct {
	TTLSeconds int `json:"ttl_seconds"`
	Priority   int `json:"priority"`
}

// MessageAttrs is a single conversation message inside a session.
type MessageAttrs struct {
	SessionID        string  `json:"session_id"`
	Role             string  `json:"role"`
	MessageType      string  `json:"message_type"`
	TokensUsed       int     `json:"tokens_used"`
	CostUSD          float64 `json:"cost_usd"`
	SummaryCandidate bool    `json:"is_summary_candidate"`
}

func (FactualAttrs) Kind() Kind    { return KindFactual }
func (EpisodicAttrs) Kind() Kind   { return KindEpisodic }
func (SemanticAttrs) Kind() Kind   { return KindSemantic }
func (ProceduralAttrs) Kind() Kind { return KindProcedural }
func (WorkingAttrs) Kind() Kind    { return KindWorking }
func (MessageAttrs) Kind() Kind    { return KindSession }

// Memory is a single stored unit of user knowledge or state.
type Memory struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	Kind           Kind              `json:"type"`
	Content        string            `json:"content"`
	Importance     float64           `json:"importance_score"`
	EmbeddingModel string            `json:"embedding_model_version,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	SessionID      string            `json:"session_id,omitempty"`
	ExpiresAt      time.Time         `json:"expires_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Attrs          Attrs             `json:"-"`
}

// Expired reports whether m is a working memory past its expiry at the given
// instant. Visibility requires now < expires_at; every read path applies this.
func (m Memory) Expired(now time.Time) bool {
	return m.Kind == KindWorking && !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt)
}

package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mnemo-ai/mnemo/internal/db"
)

// TimestampLayout is the format used for timestamps written from Go.
// Millisecond precision keeps lexicographic comparison in SQL correct for
// sub-second TTLs.
const TimestampLayout = "2006-01-02 15:04:05.000"

// vectorOverfetch is how many KNN candidates are pulled per requested result.
// The vec0 tables are shared across users and model versions, so the KNN set
// is filtered after the fact; over-fetching keeps the threshold applied to a
// full candidate pool rather than a pre-truncated one.
const vectorOverfetch = 8

// Store provides typed, user-scoped access to the memory tables.
// Every operation is scoped by user id; reaching another user's record
// fails with ErrOwnership and is audit-logged.
type Store struct {
	db      *db.DB
	vectors *VectorStore
	logger  *zap.Logger
}

// NewStore creates a Store backed by the given DB. logger may be nil.
func NewStore(database *db.DB, vectors *VectorStore, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: database, vectors: vectors, logger: logger}
}

// Conn exposes the underlying *sql.DB for low-level queries.
func (s *Store) Conn() *sql.DB {
	return s.db.Conn()
}

// Vectors exposes the vector store sharing this store's connection.
func (s *Store) Vectors() *VectorStore {
	return s.vectors
}

// Insert validates and persists a new memory, storing its embedding (if any)
// in the kind's vec0 table. Returns the memory's id.
// Session messages are owned by the session aggregator and are rejected here.
func (s *Store) Insert(ctx context.Context, m Memory, embedding []float32) (string, error) {
	if m.Kind == KindSession {
		return "", fmt.Errorf("%w: session messages are appended via their session", ErrValidation)
	}
	if err := ValidateMemory(m); err != nil {
		return "", err
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	attrsJSON, err := json.Marshal(m.Attrs)
	if err != nil {
		return "", fmt.Errorf("store: marshal attrs: %w", err)
	}
	metaJSON := "{}"
	if len(m.Metadata) > 0 {
		b, _ := json.Marshal(m.Metadata)
		metaJSON = string(b)
	}

	var expiresAt any
	if m.Kind == KindWorking {
		w := m.Attrs.(WorkingAttrs)
		exp := m.ExpiresAt
		if exp.IsZero() {
			exp = time.Now().UTC().Add(time.Duration(w.TTLSeconds) * time.Second)
		}
		expiresAt = exp.UTC().Format(TimestampLayout)
	}

	var sessionID any
	if m.SessionID != "" {
		sessionID = m.SessionID
	}

	_, err = s.db.Conn().ExecContext(ctx, `
		INSERT INTO memories (id, user_id, kind, content, importance, embedding_model, metadata, attrs, session_id, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, string(m.Kind), m.Content, m.Importance,
		m.EmbeddingModel, metaJSON, string(attrsJSON), sessionID, expiresAt,
	)
	if err != nil {
		return "", fmt.Errorf("store: insert memory: %w", err)
	}

	if len(embedding) > 0 {
		if err := s.vectors.Upsert(ctx, m.Kind, m.ID, embedding); err != nil {
			return "", err
		}
	}
	return m.ID, nil
}

// Get returns a memory by id, enforcing ownership and working-memory expiry.
// Session message ids resolve to a read-only memory view of the message.
func (s *Store) Get(ctx context.Context, userID, id string) (Memory, error) {
	m, err := s.getAny(ctx, id)
	if err != nil {
		return Memory{}, err
	}
	if m.UserID != userID {
		s.auditDenied(userID, m.UserID, "get", id)
		return Memory{}, fmt.Errorf("%w: memory %q", ErrOwnership, id)
	}
	if m.Expired(time.Now().UTC()) {
		return Memory{}, fmt.Errorf("%w: memory %q", ErrNotFound, id)
	}
	return m, nil
}

// Delete removes a memory and its embedding. Returns ErrNotFound for unknown
// ids and ErrOwnership when the record belongs to another user.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	m, err := s.getAny(ctx, id)
	if err != nil {
		return err
	}
	if m.UserID != userID {
		s.auditDenied(userID, m.UserID, "delete", id)
		return fmt.Errorf("%w: memory %q", ErrOwnership, id)
	}
	if m.Kind == KindSession {
		return fmt.Errorf("%w: session messages are deleted with their session", ErrValidation)
	}

	if _, err := s.db.Conn().ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete memory: %w", err)
	}
	_ = s.vectors.Delete(ctx, m.Kind, id)
	return nil
}

// queryableFields maps each kind to the attrs fields exact-match search may
// target. A closed allowlist keeps caller-supplied field names out of SQL.
var queryableFields = map[Kind]map[string]bool{
	KindFactual:    {"subject": true, "predicate": true, "object_value": true, "fact_type": true},
	KindEpisodic:   {"event_type": true, "location": true},
	KindSemantic:   {"concept_type": true, "category": true},
	KindProcedural: {"domain": true},
	KindWorking:    {"priority": true},
	KindSession:    {"role": true, "message_type": true},
}

// QueryByField returns up to limit memories of one kind where the named
// attrs field exactly matches value. Bypasses embeddings entirely.
func (s *Store) QueryByField(ctx context.Context, userID string, kind Kind, field, value string, limit int) ([]Memory, error) {
	if !ValidKind(kind) {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrValidation, kind)
	}
	if !queryableFields[kind][field] {
		return nil, fmt.Errorf("%w: kind %q has no queryable field %q", ErrValidation, kind, field)
	}
	if limit <= 0 {
		limit = 20
	}

	if kind == KindSession {
		return s.queryMessagesByField(ctx, userID, field, value, limit)
	}

	now := time.Now().UTC().Format(TimestampLayout)
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT id, user_id, kind, content, importance, embedding_model, metadata, attrs, session_id, expires_at, created_at, updated_at
		FROM memories
		WHERE user_id = ? AND kind = ?
		  AND json_extract(attrs, '$.' || ?) = ?
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at DESC
		LIMIT ?`,
		userID, string(kind), field, value, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query by field: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// Scored pairs a memory with its similarity score.
type Scored struct {
	Memory
	Score float64
}

// QueryByVector runs a KNN search over one kind's vec0 table, then filters
// the candidates to the caller's rows, the given embedding model version,
// and unexpired records. The similarity threshold is applied before the
// topK truncation so truncation order never displaces a relevant hit.
func (s *Store) QueryByVector(ctx context.Context, userID string, kind Kind, query []float32, modelVersion string, topK int, threshold float64) ([]Scored, error) {
	if topK <= 0 {
		return nil, nil
	}

	k := topK * vectorOverfetch
	if k < 64 {
		k = 64
	}
	matches, err := s.vectors.Nearest(ctx, kind, query, k)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]Scored, 0, topK)
	for _, match := range matches {
		score := Similarity(match.Distance)
		if score < threshold {
			// Matches arrive distance-ascending, so everything after
			// the first sub-threshold hit is also sub-threshold.
			break
		}

		var m Memory
		var err error
		if kind == KindSession {
			m, err = s.getMessageAsMemory(ctx, match.ID)
		} else {
			m, err = s.getAny(ctx, match.ID)
		}
		if err != nil {
			continue // embedding without a row: skip
		}
		if m.UserID != userID || m.Kind != kind {
			continue
		}
		if modelVersion != "" && m.EmbeddingModel != modelVersion {
			continue // stale-model vector; invisible until re-embedded
		}
		if m.Expired(now) {
			continue
		}
		out = append(out, Scored{Memory: m, Score: score})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// ActiveWorking returns the user's unexpired working memories, highest
// priority first.
func (s *Store) ActiveWorking(ctx context.Context, userID string) ([]Memory, error) {
	now := time.Now().UTC().Format(TimestampLayout)
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT id, user_id, kind, content, importance, embedding_model, metadata, attrs, session_id, expires_at, created_at, updated_at
		FROM memories
		WHERE user_id = ? AND kind = ? AND expires_at > ?
		ORDER BY json_extract(attrs, '$.priority') DESC, created_at DESC`,
		userID, string(KindWorking), now,
	)
	if err != nil {
		return nil, fmt.Errorf("store: active working: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// CountExpired reports how many expired working memories a sweep would
// delete.
func (s *Store) CountExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC().Format(TimestampLayout)
	var n int
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE kind = ? AND expires_at <= ?`,
		string(KindWorking), now,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count expired: %w", err)
	}
	return n, nil
}

// SweepExpired deletes expired working memories and their embeddings.
// Storage reclamation only — read paths never rely on it.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC().Format(TimestampLayout)
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT id FROM memories WHERE kind = ? AND expires_at <= ?`,
		string(KindWorking), now,
	)
	if err != nil {
		return 0, fmt.Errorf("store: sweep expired: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		if _, err := s.db.Conn().ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("store: sweep delete: %w", err)
		}
		_ = s.vectors.Delete(ctx, KindWorking, id)
	}
	return len(ids), nil
}

// DeleteBySession removes every memory tagged with the given session id,
// along with their embeddings. Used by the session cascade delete.
func (s *Store) DeleteBySession(ctx context.Context, userID, sessionID string) (int, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT id, kind FROM memories WHERE user_id = ? AND session_id = ?`,
		userID, sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("store: delete by session: %w", err)
	}
	type ref struct {
		id   string
		kind Kind
	}
	var refs []ref
	for rows.Next() {
		var r ref
		var kind string
		if err := rows.Scan(&r.id, &kind); err != nil {
			rows.Close()
			return 0, err
		}
		r.kind = Kind(kind)
		refs = append(refs, r)
	}
	rows.Close()

	for _, r := range refs {
		if _, err := s.db.Conn().ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, r.id); err != nil {
			return 0, fmt.Errorf("store: delete tagged memory: %w", err)
		}
		_ = s.vectors.Delete(ctx, r.kind, r.id)
	}
	return len(refs), nil
}

// UpdateEmbedding replaces a record's embedding and model tag in place.
// Used by the reembed migration after an embedding model change.
func (s *Store) UpdateEmbedding(ctx context.Context, kind Kind, id string, embedding []float32, modelVersion string) error {
	query := `UPDATE memories SET embedding_model = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if kind == KindSession {
		query = `UPDATE session_messages SET embedding_model = ? WHERE id = ?`
	}
	res, err := s.db.Conn().ExecContext(ctx, query, modelVersion, id)
	if err != nil {
		return fmt.Errorf("store: update embedding model: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: record %q", ErrNotFound, id)
	}
	return s.vectors.Upsert(ctx, kind, id, embedding)
}

// ListEmbeddable returns every record that carries an embedding text, across
// all users, for bulk re-embedding.
func (s *Store) ListEmbeddable(ctx context.Context) ([]Memory, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT id, user_id, kind, content, importance, embedding_model, metadata, attrs, session_id, expires_at, created_at, updated_at
		FROM memories ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list embeddable: %w", err)
	}
	out, err := scanMemoriesClose(rows)
	if err != nil {
		return nil, err
	}

	msgRows, err := s.db.Conn().QueryContext(ctx,
		`SELECT id FROM session_messages ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list embeddable messages: %w", err)
	}
	var ids []string
	for msgRows.Next() {
		var id string
		if err := msgRows.Scan(&id); err != nil {
			msgRows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	msgRows.Close()

	for _, id := range ids {
		m, err := s.getMessageAsMemory(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// ---- Internal lookups ----

// getAny loads a memory row (or session message view) by id with no
// ownership or expiry filtering. Callers enforce both.
func (s *Store) getAny(ctx context.Context, id string) (Memory, error) {
	row := s.db.Conn().QueryRowContext(ctx, `
		SELECT id, user_id, kind, content, importance, embedding_model, metadata, attrs, session_id, expires_at, created_at, updated_at
		FROM memories WHERE id = ?`, id,
	)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		if msg, msgErr := s.getMessageAsMemory(ctx, id); msgErr == nil {
			return msg, nil
		}
		return Memory{}, fmt.Errorf("%w: memory %q", ErrNotFound, id)
	}
	if err != nil {
		return Memory{}, fmt.Errorf("store: get memory: %w", err)
	}
	return m, nil
}

// getMessageAsMemory presents a session message as a read-only session-kind
// memory so vector search can hydrate hits uniformly across kinds.
func (s *Store) getMessageAsMemory(ctx context.Context, id string) (Memory, error) {
	row := s.db.Conn().QueryRowContext(ctx, `
		SELECT id, session_id, user_id, role, message_type, content, tokens_used, cost_usd, is_summary_candidate, importance, embedding_model, created_at
		FROM session_messages WHERE id = ?`, id,
	)
	var m Memory
	var attrs MessageAttrs
	var summaryCandidate int
	var createdAt string
	err := row.Scan(&m.ID, &attrs.SessionID, &m.UserID, &attrs.Role, &attrs.MessageType,
		&m.Content, &attrs.TokensUsed, &attrs.CostUSD, &summaryCandidate, &m.Importance,
		&m.EmbeddingModel, &createdAt)
	if err == sql.ErrNoRows {
		return Memory{}, fmt.Errorf("%w: message %q", ErrNotFound, id)
	}
	if err != nil {
		return Memory{}, fmt.Errorf("store: get message: %w", err)
	}
	attrs.SummaryCandidate = summaryCandidate != 0
	m.Kind = KindSession
	m.SessionID = attrs.SessionID
	m.CreatedAt = ParseTime(createdAt)
	m.UpdatedAt = m.CreatedAt
	m.Attrs = attrs
	return m, nil
}

func (s *Store) queryMessagesByField(ctx context.Context, userID, field, value string, limit int) ([]Memory, error) {
	// role and message_type are real columns on session_messages.
	rows, err := s.db.Conn().QueryContext(ctx,
		fmt.Sprintf(`SELECT id FROM session_messages WHERE user_id = ? AND %s = ? ORDER BY created_at DESC LIMIT ?`, field),
		userID, value, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query messages by field: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	out := make([]Memory, 0, len(ids))
	for _, id := range ids {
		m, err := s.getMessageAsMemory(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) auditDenied(caller, owner, op, id string) {
	s.logger.Warn("cross-user access denied",
		zap.String("op", op),
		zap.String("caller", caller),
		zap.String("owner", owner),
		zap.String("memory_id", id),
	)
}

// ---- Row scanning ----

func scanMemory(row *sql.Row) (Memory, error) {
	var m Memory
	var kind, metadata, attrs string
	var sessionID, expiresAt sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&m.ID, &m.UserID, &kind, &m.Content, &m.Importance,
		&m.EmbeddingModel, &metadata, &attrs, &sessionID, &expiresAt, &createdAt, &updatedAt)
	if err != nil {
		return Memory{}, err
	}
	return hydrateMemory(m, kind, metadata, attrs, sessionID, expiresAt, createdAt, updatedAt)
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var out []Memory
	for rows.Next() {
		var m Memory
		var kind, metadata, attrs string
		var sessionID, expiresAt sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&m.ID, &m.UserID, &kind, &m.Content, &m.Importance,
			&m.EmbeddingModel, &metadata, &attrs, &sessionID, &expiresAt, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		hydrated, err := hydrateMemory(m, kind, metadata, attrs, sessionID, expiresAt, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, hydrated)
	}
	return out, rows.Err()
}

func scanMemoriesClose(rows *sql.Rows) ([]Memory, error) {
	defer rows.Close()
	return scanMemories(rows)
}

func hydrateMemory(m Memory, kind, metadata, attrs string, sessionID, expiresAt sql.NullString, createdAt, updatedAt string) (Memory, error) {
	m.Kind = Kind(kind)
	if sessionID.Valid {
		m.SessionID = sessionID.String
	}
	if expiresAt.Valid {
		m.ExpiresAt = ParseTime(expiresAt.String)
	}
	m.CreatedAt = ParseTime(createdAt)
	m.UpdatedAt = ParseTime(updatedAt)
	if metadata != "" && metadata != "{}" {
		_ = json.Unmarshal([]byte(metadata), &m.Metadata)
	}

	typed, err := unmarshalAttrs(m.Kind, []byte(attrs))
	if err != nil {
		return Memory{}, fmt.Errorf("store: decode %s attrs: %w", m.Kind, err)
	}
	m.Attrs = typed
	return m, nil
}

func unmarshalAttrs(kind Kind, data []byte) (Attrs, error) {
	switch kind {
	case KindFactual:
		var a FactualAttrs
		return a, json.Unmarshal(data, &a)
	case KindEpisodic:
		var a EpisodicAttrs
		return a, json.Unmarshal(data, &a)
	case KindSemantic:
		var a SemanticAttrs
		return a, json.Unmarshal(data, &a)
	case KindProcedural:
		var a ProceduralAttrs
		return a, json.Unmarshal(data, &a)
	case KindWorking:
		var a WorkingAttrs
		return a, json.Unmarshal(data, &a)
	case KindSession:
		var a MessageAttrs
		return a, json.Unmarshal(data, &a)
	}
	return nil, fmt.Errorf("unknown kind %q", kind)
}

// ParseTime tries the SQLite timestamp layouts this codebase writes or that
// go-sqlite3 may return depending on the connection string and platform.
func ParseTime(s string) time.Time {
	layouts := []string{
		TimestampLayout,
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SortScored orders scored results by score descending, breaking ties with
// the more recent created_at.
func SortScored(results []Scored) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
}

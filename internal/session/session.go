// Package session manages conversation sessions: message ordering,
// aggregate counters, lifecycle status, and on-demand summarisation.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mnemo-ai/mnemo/internal/adapter"
	"github.com/mnemo-ai/mnemo/internal/memory"
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

// ErrSessionClosed is returned when appending to a completed or archived
// session. Closed sessions stay readable and searchable; they only stop
// accepting new messages.
var ErrSessionClosed = errors.New("session is closed")

// transitions lists the legal status changes. Anything else is rejected.
var transitions = map[Status][]Status{
	StatusActive:    {StatusCompleted, StatusArchived},
	StatusCompleted: {StatusArchived},
}

// Session is one conversation with its running aggregates. MessageCount,
// TotalTokens and TotalCost are updated in the same transaction as each
// append, so they are never stale relative to the messages table.
type Session struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Status       Status            `json:"status"`
	MessageCount int               `json:"message_count"`
	TotalTokens  int               `json:"total_tokens"`
	TotalCost    float64           `json:"total_cost_usd"`
	Summary      string            `json:"summary,omitempty"`
	Topics       []string          `json:"topics,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
}

// Message is one conversation turn. Seq is assigned on append and is
// strictly increasing and gapless within a session.
type Message struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	Seq              int       `json:"seq"`
	Role             string    `json:"role"`
	MessageType      string    `json:"message_type"`
	Content          string    `json:"content"`
	TokensUsed       int       `json:"tokens_used"`
	CostUSD          float64   `json:"cost_usd,omitempty"`
	SummaryCandidate bool      `json:"is_summary_candidate,omitempty"`
	Importance       float64   `json:"importance_score"`
	CreatedAt        time.Time `json:"created_at"`
}

// Context is what an agent rehydrates a conversation from: the session's
// aggregates plus its most recent messages in chronological order.
type Context struct {
	Session  Session   `json:"session"`
	Messages []Message `json:"messages"`
}

// AppendRequest carries one message to append. TokensUsed <= 0 means the
// caller didn't count; the manager fills it in with a tiktoken estimate.
type AppendRequest struct {
	Role             string
	MessageType      string
	Content          string
	TokensUsed       int
	CostUSD          float64
	SummaryCandidate bool
	Importance       float64
}

var validRoles = map[string]bool{"user": true, "assistant": true, "system": true, "tool": true}

// Manager coordinates all session writes. Appends to the same session are
// serialised through a per-session mutex; different sessions proceed
// concurrently.
type Manager struct {
	store     *memory.Store
	llm       adapter.LLMAdapter
	embedder  adapter.Embedder
	tokenizer *Tokenizer
	logger    *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a Manager. llm, embedder, tokenizer and logger may all
// be nil; the corresponding features degrade (no summaries, no message
// embeddings, no token estimates).
func NewManager(store *memory.Store, llm adapter.LLMAdapter, embedder adapter.Embedder, tokenizer *Tokenizer, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:     store,
		llm:       llm,
		embedder:  embedder,
		tokenizer: tokenizer,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}

// Create opens a new active session and returns it.
func (m *Manager) Create(ctx context.Context, userID string, metadata map[string]string) (Session, error) {
	if userID == "" {
		return Session{}, fmt.Errorf("%w: user id is required", memory.ErrValidation)
	}

	s := Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		Status:   StatusActive,
		Metadata: metadata,
	}
	metaJSON := "{}"
	if len(metadata) > 0 {
		b, _ := json.Marshal(metadata)
		metaJSON = string(b)
	}

	now := time.Now().UTC()
	nowStr := now.Format(memory.TimestampLayout)
	_, err := m.store.Conn().ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, status, metadata, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, string(s.Status), metaJSON, nowStr, nowStr,
	)
	if err != nil {
		return Session{}, fmt.Errorf("session: create: %w", err)
	}
	s.CreatedAt = now
	s.LastActivity = now
	return s, nil
}

// Get returns a session by id, enforcing ownership.
func (m *Manager) Get(ctx context.Context, userID, sessionID string) (Session, error) {
	s, err := m.getAny(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if s.UserID != userID {
		m.auditDenied(userID, s.UserID, "get_session", sessionID)
		return Session{}, fmt.Errorf("%w: session %q", memory.ErrOwnership, sessionID)
	}
	return s, nil
}

// Append adds one message to an active session. The message insert and the
// session counter updates commit in a single transaction, so seq numbers
// are gapless and aggregates match the messages table at every point.
func (m *Manager) Append(ctx context.Context, userID, sessionID string, req AppendRequest) (Message, error) {
	if !validRoles[req.Role] {
		return Message{}, fmt.Errorf("%w: unknown role %q", memory.ErrValidation, req.Role)
	}
	if strings.TrimSpace(req.Content) == "" {
		return Message{}, fmt.Errorf("%w: message content is required", memory.ErrValidation)
	}
	if req.MessageType == "" {
		req.MessageType = "text"
	}
	if req.Importance <= 0 {
		req.Importance = 0.5
	}

	l := m.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	tx, err := m.store.Conn().BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("session: begin append: %w", err)
	}
	defer tx.Rollback()

	var owner, status string
	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, status, message_count FROM sessions WHERE id = ?`, sessionID,
	).Scan(&owner, &status, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, fmt.Errorf("%w: session %q", memory.ErrNotFound, sessionID)
	}
	if err != nil {
		return Message{}, fmt.Errorf("session: load for append: %w", err)
	}
	if owner != userID {
		m.auditDenied(userID, owner, "append_message", sessionID)
		return Message{}, fmt.Errorf("%w: session %q", memory.ErrOwnership, sessionID)
	}
	if Status(status) != StatusActive {
		return Message{}, fmt.Errorf("%w: session %q is %s", ErrSessionClosed, sessionID, status)
	}

	tokens := req.TokensUsed
	if tokens <= 0 && m.tokenizer != nil {
		tokens = m.tokenizer.Count(req.Content)
	}

	msg := Message{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		Seq:              count + 1,
		Role:             req.Role,
		MessageType:      req.MessageType,
		Content:          req.Content,
		TokensUsed:       tokens,
		CostUSD:          req.CostUSD,
		SummaryCandidate: req.SummaryCandidate,
		Importance:       req.Importance,
		CreatedAt:        time.Now().UTC(),
	}
	createdAt := msg.CreatedAt.Format(memory.TimestampLayout)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_messages (id, session_id, user_id, seq, role, message_type, content, tokens_used, cost_usd, is_summary_candidate, importance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, userID, msg.Seq, msg.Role, msg.MessageType, msg.Content,
		msg.TokensUsed, msg.CostUSD, boolToInt(msg.SummaryCandidate), msg.Importance, createdAt,
	)
	if err != nil {
		return Message{}, fmt.Errorf("session: insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions
		SET message_count = message_count + 1,
		    total_tokens  = total_tokens + ?,
		    total_cost    = total_cost + ?,
		    last_activity = ?
		WHERE id = ?`,
		msg.TokensUsed, msg.CostUSD, createdAt, sessionID,
	)
	if err != nil {
		return Message{}, fmt.Errorf("session: update counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("session: commit append: %w", err)
	}

	m.embedMessage(ctx, msg)
	return msg, nil
}

// embedMessage writes the message's vector into the session vec table.
// Best effort: a down embedding gateway must not fail the append, the
// message just stays out of semantic search until a reembed.
func (m *Manager) embedMessage(ctx context.Context, msg Message) {
	if m.embedder == nil {
		return
	}
	vecs, err := m.embedder.Embed(ctx, []string{msg.Content})
	if err != nil || len(vecs) == 0 {
		m.logger.Debug("message embedding skipped",
			zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	if err := m.store.Vectors().Upsert(ctx, memory.KindSession, msg.ID, vecs[0]); err != nil {
		m.logger.Debug("message vector upsert failed",
			zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	_, _ = m.store.Conn().ExecContext(ctx,
		`UPDATE session_messages SET embedding_model = ? WHERE id = ?`,
		m.embedder.ModelVersion(), msg.ID,
	)
}

// GetContext returns the session plus its last lastN messages in
// chronological order. lastN <= 0 returns every message.
func (m *Manager) GetContext(ctx context.Context, userID, sessionID string, lastN int) (Context, error) {
	s, err := m.Get(ctx, userID, sessionID)
	if err != nil {
		return Context{}, err
	}

	query := `
		SELECT id, session_id, seq, role, message_type, content, tokens_used, cost_usd, is_summary_candidate, importance, created_at
		FROM session_messages WHERE session_id = ? ORDER BY seq DESC`
	args := []any{sessionID}
	if lastN > 0 {
		query += ` LIMIT ?`
		args = append(args, lastN)
	}

	rows, err := m.store.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return Context{}, fmt.Errorf("session: load messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return Context{}, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return Context{}, err
	}

	// Fetched newest-first to get the tail; flip back to chronological.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return Context{Session: s, Messages: msgs}, nil
}

// UpdateStatus moves a session along its lifecycle. Only forward
// transitions are legal: active sessions can complete or archive, completed
// ones can archive, archived is terminal.
func (m *Manager) UpdateStatus(ctx context.Context, userID, sessionID string, next Status) error {
	switch next {
	case StatusActive, StatusCompleted, StatusArchived:
	default:
		return fmt.Errorf("%w: unknown status %q", memory.ErrValidation, next)
	}

	l := m.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	s, err := m.Get(ctx, userID, sessionID)
	if err != nil {
		return err
	}

	legal := false
	for _, t := range transitions[s.Status] {
		if t == next {
			legal = true
			break
		}
	}
	if !legal {
		return fmt.Errorf("%w: cannot move session from %s to %s", memory.ErrValidation, s.Status, next)
	}

	_, err = m.store.Conn().ExecContext(ctx,
		`UPDATE sessions SET status = ?, last_activity = ? WHERE id = ?`,
		string(next), time.Now().UTC().Format(memory.TimestampLayout), sessionID,
	)
	if err != nil {
		return fmt.Errorf("session: update status: %w", err)
	}
	return nil
}

// Delete removes a session, its messages, their vectors, and every memory
// extracted under this session. Messages cascade through the foreign key;
// vectors live in virtual tables without FK support, so they are cleared
// explicitly first.
func (m *Manager) Delete(ctx context.Context, userID, sessionID string) error {
	l := m.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	if _, err := m.Get(ctx, userID, sessionID); err != nil {
		return err
	}

	rows, err := m.store.Conn().QueryContext(ctx,
		`SELECT id FROM session_messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("session: list message ids: %w", err)
	}
	var msgIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		msgIDs = append(msgIDs, id)
	}
	rows.Close()
	for _, id := range msgIDs {
		_ = m.store.Vectors().Delete(ctx, memory.KindSession, id)
	}

	if _, err := m.store.Conn().ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}

	if _, err := m.store.DeleteBySession(ctx, userID, sessionID); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.locks, sessionID)
	m.mu.Unlock()
	return nil
}

// List returns the user's sessions, most recently active first. status ""
// means all statuses.
func (m *Manager) List(ctx context.Context, userID string, status Status, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, status, message_count, total_tokens, total_cost, summary, topics, metadata, created_at, last_activity
		FROM sessions WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY last_activity DESC LIMIT ?`
	args = append(args, limit)

	rows, err := m.store.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (m *Manager) getAny(ctx context.Context, sessionID string) (Session, error) {
	row := m.store.Conn().QueryRowContext(ctx, `
		SELECT id, user_id, status, message_count, total_tokens, total_cost, summary, topics, metadata, created_at, last_activity
		FROM sessions WHERE id = ?`, sessionID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: session %q", memory.ErrNotFound, sessionID)
	}
	return s, err
}

func (m *Manager) auditDenied(caller, owner, op, id string) {
	m.logger.Warn("ownership denied",
		zap.String("op", op),
		zap.String("id", id),
		zap.String("caller_user", caller),
		zap.String("owner_user", owner),
	)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	var status, topics, metadata, createdAt, lastActivity string
	err := row.Scan(&s.ID, &s.UserID, &status, &s.MessageCount, &s.TotalTokens, &s.TotalCost,
		&s.Summary, &topics, &metadata, &createdAt, &lastActivity)
	if err != nil {
		return Session{}, err
	}
	s.Status = Status(status)
	if topics != "" && topics != "[]" {
		_ = json.Unmarshal([]byte(topics), &s.Topics)
	}
	if metadata != "" && metadata != "{}" {
		_ = json.Unmarshal([]byte(metadata), &s.Metadata)
	}
	s.CreatedAt = memory.ParseTime(createdAt)
	s.LastActivity = memory.ParseTime(lastActivity)
	return s, nil
}

func scanMessage(row rowScanner) (Message, error) {
	var msg Message
	var candidate int
	var createdAt string
	err := row.Scan(&msg.ID, &msg.SessionID, &msg.Seq, &msg.Role, &msg.MessageType, &msg.Content,
		&msg.TokensUsed, &msg.CostUSD, &candidate, &msg.Importance, &createdAt)
	if err != nil {
		return Message{}, err
	}
	msg.SummaryCandidate = candidate != 0
	msg.CreatedAt = memory.ParseTime(createdAt)
	return msg, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

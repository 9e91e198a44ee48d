package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mnemo-ai/mnemo/internal/adapter"
	"github.com/mnemo-ai/mnemo/internal/memory"
)

// Compression levels for Summarize. Higher compression means a shorter
// summary budget.
const (
	CompressionLow    = "low"
	CompressionMedium = "medium"
	CompressionHigh   = "high"
)

var summaryBudgets = map[string]int{
	CompressionLow:    1024,
	CompressionMedium: 512,
	CompressionHigh:   256,
}

// transcriptTokenBudget caps how much of the conversation is sent to the
// LLM. The tail of the conversation is kept when the budget is exceeded.
const transcriptTokenBudget = 3000

// Summarize produces (and caches) a summary and topic list for a session.
// The cached summary is returned unless force is set or no summary exists
// yet. Summarising a session with no messages is a validation error.
func (m *Manager) Summarize(ctx context.Context, userID, sessionID, compression string, force bool) (Session, error) {
	if compression == "" {
		compression = CompressionMedium
	}
	budget, ok := summaryBudgets[compression]
	if !ok {
		return Session{}, fmt.Errorf("%w: unknown compression level %q", memory.ErrValidation, compression)
	}

	s, err := m.Get(ctx, userID, sessionID)
	if err != nil {
		return Session{}, err
	}
	if s.Summary != "" && !force {
		return s, nil
	}
	if s.MessageCount == 0 {
		return Session{}, fmt.Errorf("%w: session %q has no messages to summarise", memory.ErrValidation, sessionID)
	}
	if m.llm == nil {
		return Session{}, fmt.Errorf("summarize: %w: no completion adapter configured", adapter.ErrGatewayUnavailable)
	}

	sctx, err := m.GetContext(ctx, userID, sessionID, 0)
	if err != nil {
		return Session{}, err
	}
	transcript := buildTranscript(sctx.Messages)
	if m.tokenizer != nil {
		transcript = tailTruncate(m.tokenizer, transcript, transcriptTokenBudget)
	}

	prompt := fmt.Sprintf(`Summarise the conversation below.

Return ONLY a compact JSON object:
{"summary": "...", "topics": ["...", "..."]}

"summary" is a self-contained recap of what was discussed and decided, at
most %d tokens. "topics" is 1-5 short topic labels. No prose, no markdown
fences — only the JSON object.

--- CONVERSATION ---
%s
--- END ---`, budget, transcript)

	stream, err := m.llm.Complete(ctx, adapter.CompletionRequest{
		UserMessage: prompt,
		MaxTokens:   budget + 256,
		Temperature: 0.2,
		Stream:      false,
	})
	if err != nil {
		return Session{}, adapter.ClassifyGatewayErr(err)
	}
	raw, err := adapter.Collect(stream)
	if err != nil {
		return Session{}, adapter.ClassifyGatewayErr(err)
	}

	summary, topics := parseSummary(raw)
	if summary == "" {
		return Session{}, fmt.Errorf("summarize: %w: empty summary response", adapter.ErrGatewayUnavailable)
	}

	topicsJSON := "[]"
	if len(topics) > 0 {
		b, _ := json.Marshal(topics)
		topicsJSON = string(b)
	}
	_, err = m.store.Conn().ExecContext(ctx,
		`UPDATE sessions SET summary = ?, topics = ?, last_activity = ? WHERE id = ?`,
		summary, topicsJSON, time.Now().UTC().Format(memory.TimestampLayout), sessionID,
	)
	if err != nil {
		return Session{}, fmt.Errorf("session: store summary: %w", err)
	}

	s.Summary = summary
	s.Topics = topics
	return s, nil
}

func buildTranscript(msgs []Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// tailTruncate keeps the last maxTokens tokens of s. Recent turns carry the
// conclusions, so the head is what gets dropped.
func tailTruncate(t *Tokenizer, s string, maxTokens int) string {
	tokens := t.enc.Encode(s, nil, nil)
	if len(tokens) <= maxTokens {
		return s
	}
	return "[...] " + t.enc.Decode(tokens[len(tokens)-maxTokens:])
}

// parseSummary extracts summary and topics from the LLM output. Lenient:
// searches for the outermost braces, and falls back to treating the whole
// response as the summary when it isn't JSON at all.
func parseSummary(raw string) (string, []string) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start != -1 && end > start {
		var parsed struct {
			Summary string   `json:"summary"`
			Topics  []string `json:"topics"`
		}
		if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err == nil && parsed.Summary != "" {
			return strings.TrimSpace(parsed.Summary), parsed.Topics
		}
	}
	return strings.TrimSpace(raw), nil
}

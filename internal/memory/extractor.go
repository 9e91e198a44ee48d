package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mnemo-ai/mnemo/internal/adapter"
)

// Extractor turns raw dialog text into zero or more untyped candidate
// records for one memory kind. An empty result is legitimate (nothing
// extractable). Extraction is not idempotent; implementations retry at most
// once, and only on transport-level timeouts.
type Extractor interface {
	Extract(ctx context.Context, dialog string, kind Kind) ([]Candidate, error)
}

// LLMExtractor implements Extractor with a per-kind prompt against an LLM.
type LLMExtractor struct {
	llm         adapter.LLMAdapter
	maxExtracts int
}

// NewLLMExtractor creates an LLMExtractor. maxExtracts caps candidates per call.
func NewLLMExtractor(llm adapter.LLMAdapter, maxExtracts int) *LLMExtractor {
	if maxExtracts <= 0 {
		maxExtracts = 8
	}
	return &LLMExtractor{llm: llm, maxExtracts: maxExtracts}
}

func (e *LLMExtractor) Extract(ctx context.Context, dialog string, kind Kind) ([]Candidate, error) {
	prompt, err := extractionPrompt(dialog, kind, e.maxExtracts)
	if err != nil {
		return nil, err
	}

	raw, err := e.complete(ctx, prompt)
	if err != nil && adapter.IsTimeout(err) && ctx.Err() == nil {
		// One bounded retry for transport timeouts only; the call costs
		// money and is not idempotent, so semantic failures get none.
		raw, err = e.complete(ctx, prompt)
	}
	if err != nil {
		return nil, err
	}

	return parseCandidates(raw, e.maxExtracts)
}

func (e *LLMExtractor) complete(ctx context.Context, prompt string) (string, error) {
	stream, err := e.llm.Complete(ctx, adapter.CompletionRequest{
		UserMessage: prompt,
		MaxTokens:   1024,
		Temperature: 0.1,
		Stream:      false,
	})
	if err != nil {
		return "", adapter.ClassifyGatewayErr(err)
	}
	out, err := adapter.Collect(stream)
	if err != nil {
		return "", adapter.ClassifyGatewayErr(err)
	}
	return out, nil
}

// candidateShapes describes, per kind, the JSON element the extraction
// prompt asks for. Field names match what attrsFromCandidate reads back.
var candidateShapes = map[Kind]string{
	KindFactual: `{"content": "...", "subject": "...", "predicate": "...", "object_value": "...", "fact_type": "identity|attribute|relationship|preference", "confidence": 0.0-1.0}
Extract discrete facts: who or what something is, what it was created by, what the user prefers. One triple per element.`,
	KindEpisodic: `{"content": "...", "episode_date": "YYYY-MM-DD", "event_type": "...", "location": "...", "participants": ["..."]}
Extract events that happened: meetings, trips, incidents. Omit location/participants if unknown.`,
	KindSemantic: `{"content": "...", "concept_type": "...", "category": "...", "definition": "...", "properties": {"key": "value"}}
Extract concepts and their definitions: terminology, domain knowledge, how things are categorised.`,
	KindProcedural: `{"content": "...", "steps": ["..."], "domain": "...", "preconditions": ["..."]}
Extract how-to knowledge: ordered steps for accomplishing something. Omit preconditions if none.`,
}

func extractionPrompt(dialog string, kind Kind, max int) (string, error) {
	shape, ok := candidateShapes[kind]
	if !ok {
		return "", fmt.Errorf("%w: kind %q is not extractable", ErrValidation, kind)
	}

	return fmt.Sprintf(`From the dialog below, extract %s memories.

Return ONLY a compact JSON array. Each element:
%s

"content" is a short self-contained sentence restating the memory.
If nothing qualifies, return []. No prose, no markdown fences — only the JSON array.
Maximum %d items.

--- DIALOG ---
%s
--- END ---`, kind, shape, max, trimDialog(dialog, 6000)), nil
}

// parseCandidates extracts candidate records from the LLM's JSON output.
// Lenient: searches for the first '[' and last ']' to handle models that
// wrap the array in extra prose or markdown fences.
func parseCandidates(raw string, max int) ([]Candidate, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end <= start {
		return nil, nil // nothing extractable — not an error
	}

	slice := raw[start : end+1]

	// Some small models emit `["content": ...` (missing `{` on the first
	// element). Normalise by inserting `{` after `[` when the array begins
	// directly with a quoted key rather than a `{`.
	if len(slice) > 1 && slice[1] == '"' {
		slice = "[{" + slice[1:]
	}

	var candidates []Candidate
	if err := json.Unmarshal([]byte(slice), &candidates); err != nil {
		return nil, nil // still malformed — degrade gracefully
	}

	if len(candidates) > max {
		candidates = candidates[:max]
	}
	return candidates, nil
}

// trimDialog caps the dialog text at approximately maxChars characters,
// trimming at a sentence boundary if possible.
func trimDialog(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	trimmed := s[:maxChars]
	if idx := strings.LastIndexAny(trimmed, ".!?\n"); idx > maxChars/2 {
		trimmed = trimmed[:idx+1]
	}
	return trimmed + " [...]"
}

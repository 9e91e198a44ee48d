package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/mnemo-ai/mnemo/internal/adapter"
	"github.com/mnemo-ai/mnemo/internal/memory"
	"github.com/mnemo-ai/mnemo/internal/session"
)

// toolError maps engine errors onto tool-level error results. Ownership
// denials deliberately say no more than "access denied"; the audit trail
// carries the details.
func (s *Server) toolError(op string, err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, memory.ErrOwnership):
		s.logger.Warn("tool access denied", zap.String("tool", op), zap.Error(err))
		return mcp.NewToolResultError("access denied"), nil
	case errors.Is(err, memory.ErrNotFound):
		return mcp.NewToolResultError(err.Error()), nil
	case errors.Is(err, memory.ErrValidation):
		return mcp.NewToolResultError(err.Error()), nil
	case errors.Is(err, session.ErrSessionClosed):
		return mcp.NewToolResultError(err.Error()), nil
	case errors.Is(err, adapter.ErrGatewayTimeout), errors.Is(err, adapter.ErrGatewayUnavailable):
		s.logger.Warn("tool gateway failure", zap.String("tool", op), zap.Error(err))
		return mcp.NewToolResultError(err.Error()), nil
	default:
		s.logger.Error("tool failed", zap.String("tool", op), zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err)), nil
	}
}

// jsonResult marshals v as the tool's text payload.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) handleStoreMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return missingParam("content")
	}
	typeStr, err := req.RequireString("type")
	if err != nil {
		return missingParam("type")
	}
	kind := memory.Kind(typeStr)
	if !memory.ValidKind(kind) || kind == memory.KindSession {
		return mcp.NewToolResultError(fmt.Sprintf("invalid type %q (valid: factual, episodic, semantic, procedural, working)", typeStr)), nil
	}

	importance := req.GetFloat("importance", 0.5)
	opts := memory.StoreOptions{
		TTLSeconds: req.GetInt("ttl_seconds", 0),
		Priority:   req.GetInt("priority", 0),
		SessionID:  req.GetString("session_id", ""),
	}
	if d := req.GetString("episode_date", ""); d != "" {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid episode_date %q (want YYYY-MM-DD)", d)), nil
		}
		opts.EpisodeDate = t
	}

	// Pre-structured fields bypass extraction entirely.
	if fields, ok := req.GetArguments()["fields"].(map[string]any); ok && len(fields) > 0 {
		result, err := s.pipeline.StoreRecord(ctx, s.user(req), kind, content, importance, memory.Candidate(fields), opts)
		if err != nil {
			return s.toolError("store_memory", err)
		}
		return jsonResult(result)
	}

	result, err := s.pipeline.StoreDialog(ctx, s.user(req), kind, content, importance, opts)
	if err != nil {
		return s.toolError("store_memory", err)
	}
	return jsonResult(result)
}

func (s *Server) handleSearchMemories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return missingParam("query")
	}

	opts := memory.SearchOptions{
		TopK:      req.GetInt("top_k", 0),
		Threshold: req.GetFloat("threshold", 0),
	}
	for _, t := range req.GetStringSlice("types", nil) {
		opts.Kinds = append(opts.Kinds, memory.Kind(t))
	}

	result, err := s.searcher.Search(ctx, s.user(req), query, opts)
	if err != nil {
		return s.toolError("search_memories", err)
	}
	return jsonResult(result)
}

func (s *Server) handleSearchByField(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typeStr, err := req.RequireString("type")
	if err != nil {
		return missingParam("type")
	}
	field, err := req.RequireString("field")
	if err != nil {
		return missingParam("field")
	}
	value, err := req.RequireString("value")
	if err != nil {
		return missingParam("value")
	}

	memories, err := s.searcher.SearchByField(ctx, s.user(req), memory.Kind(typeStr), field, value, req.GetInt("limit", 0))
	if err != nil {
		return s.toolError("search_by_field", err)
	}
	return jsonResult(map[string]any{"results": memories, "count": len(memories)})
}

func (s *Server) handleActiveWorking(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	memories, err := s.store.ActiveWorking(ctx, s.user(req))
	if err != nil {
		return s.toolError("get_active_working_memories", err)
	}
	return jsonResult(map[string]any{"results": memories, "count": len(memories)})
}

func (s *Server) handleStatistics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.store.Statistics(ctx, s.user(req))
	if err != nil {
		return s.toolError("get_statistics", err)
	}
	return jsonResult(stats)
}

func (s *Server) handleDeleteMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("memory_id")
	if err != nil {
		return missingParam("memory_id")
	}
	if err := s.store.Delete(ctx, s.user(req), id); err != nil {
		return s.toolError("delete_memory", err)
	}
	return jsonResult(map[string]any{"deleted": id})
}

func (s *Server) handleCreateSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.sessions.Create(ctx, s.user(req), nil)
	if err != nil {
		return s.toolError("create_session", err)
	}
	return jsonResult(sess)
}

func (s *Server) handleAppendMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return missingParam("session_id")
	}
	role, err := req.RequireString("role")
	if err != nil {
		return missingParam("role")
	}
	content, err := req.RequireString("content")
	if err != nil {
		return missingParam("content")
	}

	msg, err := s.sessions.Append(ctx, s.user(req), sessionID, session.AppendRequest{
		Role:             role,
		Content:          content,
		Importance:       req.GetFloat("importance", 0),
		TokensUsed:       req.GetInt("tokens_used", 0),
		CostUSD:          req.GetFloat("cost_usd", 0),
		SummaryCandidate: req.GetBool("is_summary_candidate", false),
	})
	if err != nil {
		return s.toolError("append_message", err)
	}
	return jsonResult(msg)
}

func (s *Server) handleGetSessionContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return missingParam("session_id")
	}
	sctx, err := s.sessions.GetContext(ctx, s.user(req), sessionID, req.GetInt("last_n", 20))
	if err != nil {
		return s.toolError("get_session_context", err)
	}
	return jsonResult(sctx)
}

func (s *Server) handleUpdateSessionStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return missingParam("session_id")
	}
	status, err := req.RequireString("status")
	if err != nil {
		return missingParam("status")
	}
	if err := s.sessions.UpdateStatus(ctx, s.user(req), sessionID, session.Status(status)); err != nil {
		return s.toolError("update_session_status", err)
	}
	return jsonResult(map[string]any{"session_id": sessionID, "status": status})
}

func (s *Server) handleDeleteSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return missingParam("session_id")
	}
	if err := s.sessions.Delete(ctx, s.user(req), sessionID); err != nil {
		return s.toolError("delete_session", err)
	}
	return jsonResult(map[string]any{"deleted": sessionID})
}

func (s *Server) handleSummarizeSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return missingParam("session_id")
	}
	sess, err := s.sessions.Summarize(ctx, s.user(req), sessionID,
		req.GetString("compression", ""), req.GetBool("force", false))
	if err != nil {
		return s.toolError("summarize_session", err)
	}
	return jsonResult(map[string]any{
		"session_id": sess.ID,
		"summary":    sess.Summary,
		"topics":     sess.Topics,
	})
}

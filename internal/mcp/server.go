// Package mcp exposes the memory engine as MCP tools over stdio, so any
// MCP-capable agent can store and recall memories.
package mcp

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/mnemo-ai/mnemo/internal/memory"
	"github.com/mnemo-ai/mnemo/internal/session"
)

// Version is stamped at build time.
var Version = "dev"

// Server wires the memory engine into an MCP stdio server.
type Server struct {
	store       *memory.Store
	pipeline    *memory.Pipeline
	searcher    *memory.Searcher
	sessions    *session.Manager
	defaultUser string
	logger      *zap.Logger

	mcpServer *server.MCPServer
}

// NewServer creates the MCP server and registers every tool.
// defaultUser scopes tool calls that don't pass an explicit user_id.
func NewServer(store *memory.Store, pipeline *memory.Pipeline, searcher *memory.Searcher, sessions *session.Manager, defaultUser string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:       store,
		pipeline:    pipeline,
		searcher:    searcher,
		sessions:    sessions,
		defaultUser: defaultUser,
		logger:      logger,
	}

	s.mcpServer = server.NewMCPServer(
		"mnemo",
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

// Serve runs the stdio transport until the client disconnects.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	kindEnum := "factual|episodic|semantic|procedural|working"

	s.mcpServer.AddTool(mcp.NewTool("store_memory",
		mcp.WithDescription("Store a memory extracted from dialog text. For factual/episodic/semantic/procedural kinds the text is run through extraction; working memories store the text directly with a TTL."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Dialog or statement to remember")),
		mcp.WithString("type", mcp.Required(), mcp.Description("Memory type: "+kindEnum)),
		mcp.WithObject("fields", mcp.Description("Pre-structured typed fields (e.g. subject/predicate/object_value for factual). When set, extraction is skipped and the record is stored as given.")),
		mcp.WithNumber("importance", mcp.Description("Importance score 0-1 (default 0.5)")),
		mcp.WithNumber("ttl_seconds", mcp.Description("Working memories: seconds until expiry (default from config)")),
		mcp.WithNumber("priority", mcp.Description("Working memories: retrieval priority")),
		mcp.WithString("episode_date", mcp.Description("Episodic memories: fallback date YYYY-MM-DD when the text has none")),
		mcp.WithString("session_id", mcp.Description("Tag the memory to a session for cascade delete")),
		mcp.WithString("user_id", mcp.Description("Owner (defaults to the configured user)")),
	), s.handleStoreMemory)

	s.mcpServer.AddTool(mcp.NewTool("search_memories",
		mcp.WithDescription("Semantic search across memory types. Returns results ranked by similarity; sub-searches that fail are reported in failed_types without failing the call."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language query")),
		mcp.WithArray("types", mcp.Description("Memory types to search (default: all, including session messages)")),
		mcp.WithNumber("top_k", mcp.Description("Maximum results (default 10)")),
		mcp.WithNumber("threshold", mcp.Description("Minimum similarity 0-1 (default 0.7)")),
		mcp.WithString("user_id", mcp.Description("Owner (defaults to the configured user)")),
	), s.handleSearchMemories)

	s.mcpServer.AddTool(mcp.NewTool("search_by_field",
		mcp.WithDescription("Exact-match lookup on one typed field, e.g. factual memories with subject=\"alice\". No embeddings involved."),
		mcp.WithString("type", mcp.Required(), mcp.Description("Memory type")),
		mcp.WithString("field", mcp.Required(), mcp.Description("Field to match (e.g. subject, event_type, category, domain, role)")),
		mcp.WithString("value", mcp.Required(), mcp.Description("Exact value to match")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
		mcp.WithString("user_id", mcp.Description("Owner (defaults to the configured user)")),
	), s.handleSearchByField)

	s.mcpServer.AddTool(mcp.NewTool("get_active_working_memories",
		mcp.WithDescription("List unexpired working memories, highest priority first."),
		mcp.WithString("user_id", mcp.Description("Owner (defaults to the configured user)")),
	), s.handleActiveWorking)

	s.mcpServer.AddTool(mcp.NewTool("get_statistics",
		mcp.WithDescription("Per-type memory counts and knowledge diversity for the user."),
		mcp.WithString("user_id", mcp.Description("Owner (defaults to the configured user)")),
	), s.handleStatistics)

	s.mcpServer.AddTool(mcp.NewTool("delete_memory",
		mcp.WithDescription("Delete one memory by id, including its embedding."),
		mcp.WithString("memory_id", mcp.Required(), mcp.Description("Memory id")),
		mcp.WithString("user_id", mcp.Description("Owner (defaults to the configured user)")),
	), s.handleDeleteMemory)

	s.mcpServer.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Open a new conversation session."),
		mcp.WithString("user_id", mcp.Description("Owner (defaults to the configured user)")),
	), s.handleCreateSession)

	s.mcpServer.AddTool(mcp.NewTool("append_message",
		mcp.WithDescription("Append one message to an active session. Assigns the next sequence number and updates the session's token/cost aggregates atomically."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("role", mcp.Required(), mcp.Description("Message role: user|assistant|system|tool")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Message text")),
		mcp.WithNumber("importance", mcp.Description("Importance score 0-1 (default 0.5)")),
		mcp.WithNumber("tokens_used", mcp.Description("Token count; 0 = estimate with tiktoken")),
		mcp.WithNumber("cost_usd", mcp.Description("Cost of the turn in USD")),
		mcp.WithBoolean("is_summary_candidate", mcp.Description("Mark as important for summarisation")),
		mcp.WithString("user_id", mcp.Description("Owner (defaults to the configured user)")),
	), s.handleAppendMessage)

	s.mcpServer.AddTool(mcp.NewTool("get_session_context",
		mcp.WithDescription("Session aggregates plus the last N messages in chronological order — everything needed to rehydrate a conversation."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithNumber("last_n", mcp.Description("How many trailing messages (default 20, 0 = all)")),
		mcp.WithString("user_id", mcp.Description("Owner (defaults to the configured user)")),
	), s.handleGetSessionContext)

	s.mcpServer.AddTool(mcp.NewTool("update_session_status",
		mcp.WithDescription("Move a session along its lifecycle: active→completed|archived, completed→archived. Closed sessions reject appends but stay searchable."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("status", mcp.Required(), mcp.Description("Target status: completed|archived")),
		mcp.WithString("user_id", mcp.Description("Owner (defaults to the configured user)")),
	), s.handleUpdateSessionStatus)

	s.mcpServer.AddTool(mcp.NewTool("delete_session",
		mcp.WithDescription("Delete a session, its messages, their embeddings, and every memory extracted under it."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("user_id", mcp.Description("Owner (defaults to the configured user)")),
	), s.handleDeleteSession)

	s.mcpServer.AddTool(mcp.NewTool("summarize_session",
		mcp.WithDescription("Summarise a session's conversation with the configured LLM. Cached until force=true."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("compression", mcp.Description("low|medium|high (default medium)")),
		mcp.WithBoolean("force", mcp.Description("Regenerate even if a summary is cached")),
		mcp.WithString("user_id", mcp.Description("Owner (defaults to the configured user)")),
	), s.handleSummarizeSession)
}

// user resolves the effective user id for a tool call.
func (s *Server) user(req mcp.CallToolRequest) string {
	if u := req.GetString("user_id", ""); u != "" {
		return u
	}
	return s.defaultUser
}

func missingParam(name string) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf("missing required parameter: %s", name)), nil
}

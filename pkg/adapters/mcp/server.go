package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/llmfsm"
	"github.com/aretw0/llmfsm/internal/logging"
	"github.com/aretw0/llmfsm/internal/presentation/graph"
	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/session"
)

const (
	GraphURI        = "llmfsm://graph"
	GraphMermaidURI = "llmfsm://graph/mermaid"
)

// Inspector exposes the graph of the served agent. *llmfsm.Agent implements it.
type Inspector interface {
	Inspect() []domain.StateDefinition
	Initial() string
	Terminal() string
}

// SessionArgs names a session.
type SessionArgs struct {
	SessionID string `json:"session_id"`
}

// TurnArgs are the arguments of run_turn.
type TurnArgs struct {
	SessionID string `json:"session_id"`
	Input     string `json:"input"`
}

// TurnResult is returned by run_turn.
type TurnResult struct {
	State     string            `json:"state" jsonschema_description:"The state the session is in after the turn"`
	Response  string            `json:"response" jsonschema_description:"The reply to show the user"`
	Completed bool              `json:"completed" jsonschema_description:"Whether the conversation reached its terminal state"`
	Record    domain.TurnRecord `json:"record" jsonschema_description:"The audit record of the turn"`
}

// SessionResult describes a stored session.
type SessionResult struct {
	SessionID    string         `json:"session_id"`
	State        string         `json:"state"`
	Completed    bool           `json:"completed"`
	Context      map[string]any `json:"context"`
	PendingInput string         `json:"pending_input,omitempty"`
	Turns        int            `json:"turns"`
}

// Server exposes a session.Manager as an MCP server.
type Server struct {
	sessions  *session.Manager
	graph     Inspector
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates an MCP server for the sessions of one agent.
func NewServer(sessions *session.Manager, g Inspector, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		graph:     g,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("llmfsm-mcp", strings.TrimSpace(llmfsm.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("run_turn",
		mcp.WithDescription("Send one user message to a conversation and get the agent's reply. Unknown sessions are started."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("The conversation id")),
		mcp.WithString("input", mcp.Required(), mcp.Description("The user message")),
		mcp.WithOutputSchema[TurnResult](),
	), mcp.NewStructuredToolHandler(s.handleRunTurn))

	s.mcpServer.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Start a conversation, or return it if it already exists."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("The conversation id")),
		mcp.WithOutputSchema[SessionResult](),
	), mcp.NewStructuredToolHandler(s.handleStartSession))

	s.mcpServer.AddTool(mcp.NewTool("get_state",
		mcp.WithDescription("Get the current state and context of a conversation."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("The conversation id")),
		mcp.WithOutputSchema[SessionResult](),
	), mcp.NewStructuredToolHandler(s.handleGetState))

	s.mcpServer.AddTool(mcp.NewTool("get_audit",
		mcp.WithDescription("Get the committed turns of a conversation, oldest first."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("The conversation id")),
	), s.handleGetAudit)

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the agent's state graph as JSON."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := json.Marshal(s.view())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode graph: %v", err)), nil
		}
		return mcp.NewToolResultText(string(raw)), nil
	})
}

func (s *Server) handleRunTurn(ctx context.Context, _ mcp.CallToolRequest, args TurnArgs) (TurnResult, error) {
	if args.SessionID == "" {
		return TurnResult{}, errors.New("session_id is required")
	}
	rec, err := s.sessions.RunTurn(ctx, args.SessionID, args.Input)
	if err != nil {
		s.logger.Warn("MCP RunTurn failed", "session_id", args.SessionID, "err", err)
		return TurnResult{}, err
	}
	return TurnResult{
		State:     rec.NextState,
		Response:  rec.Response,
		Completed: rec.NextState == s.graph.Terminal(),
		Record:    rec,
	}, nil
}

func (s *Server) handleStartSession(ctx context.Context, _ mcp.CallToolRequest, args SessionArgs) (SessionResult, error) {
	if args.SessionID == "" {
		return SessionResult{}, errors.New("session_id is required")
	}
	snap, err := s.sessions.LoadOrStart(ctx, args.SessionID)
	if err != nil {
		return SessionResult{}, err
	}
	return sessionResult(args.SessionID, snap), nil
}

func (s *Server) handleGetState(ctx context.Context, _ mcp.CallToolRequest, args SessionArgs) (SessionResult, error) {
	snap, err := s.sessions.Get(ctx, args.SessionID)
	if err != nil {
		return SessionResult{}, err
	}
	return sessionResult(args.SessionID, snap), nil
}

func (s *Server) handleGetAudit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	recs, err := s.sessions.Audit(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("audit failed: %v", err)), nil
	}
	if recs == nil {
		recs = []domain.TurnRecord{}
	}
	raw, err := json.Marshal(recs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode audit: %v", err)), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func sessionResult(id string, snap domain.Snapshot) SessionResult {
	return SessionResult{
		SessionID:    id,
		State:        snap.Current,
		Completed:    snap.Completed,
		Context:      snap.Context,
		PendingInput: snap.PendingInput,
		Turns:        len(snap.History),
	}
}

func (s *Server) view() graph.View {
	return graph.Describe(s.graph.Inspect(), s.graph.Initial(), s.graph.Terminal())
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Agent Graph",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		raw, err := json.Marshal(s.view())
		if err != nil {
			return nil, fmt.Errorf("failed to encode graph: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      GraphURI,
				MIMEType: "application/json",
				Text:     string(raw),
			},
		}, nil
	})

	s.mcpServer.AddResource(mcp.NewResource(GraphMermaidURI, "Agent Graph (Mermaid)",
		mcp.WithMIMEType("text/plain"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      GraphMermaidURI,
				MIMEType: "text/plain",
				Text:     graph.Mermaid(s.graph.Inspect(), s.graph.Initial(), s.graph.Terminal(), nil),
			},
		}, nil
	})
}

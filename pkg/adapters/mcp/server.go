// Package mcp exposes the engine as a Model Context Protocol server, so other
// agents can hand incidents to it.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/nvrdftd/evolve-ai-infra"
	graphview "github.com/nvrdftd/evolve-ai-infra/internal/presentation/graph"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/nvrdftd/evolve-ai-infra/pkg/graph"
	"github.com/nvrdftd/evolve-ai-infra/pkg/ports"
)

const graphURI = "evolve://graph"

// InvokeResponse is the structured result of invoke_agent.
type InvokeResponse struct {
	RunID     string `json:"runId" jsonschema_description:"Identifier of the run"`
	Status    string `json:"status" jsonschema_description:"completed, failed or cancelled"`
	Answer    string `json:"answer,omitempty" jsonschema_description:"Content of the last assistant message"`
	CallCount int    `json:"callCount" jsonschema_description:"Number of model invocations"`
	Error     string `json:"error,omitempty" jsonschema_description:"Failure reason when the run did not complete"`
}

// Engine defines what the MCP server needs from the evolve engine.
type Engine interface {
	Invoke(ctx context.Context, message string) (*evolve.Run, error)
	Graph() *graph.Graph
}

// Server wraps the engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	runs      ports.RunStore
	timeout   time.Duration
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the server.
type Option func(*Server)

// WithRunStore adds the get_run tool.
func WithRunStore(store ports.RunStore) Option {
	return func(s *Server) {
		s.runs = store
	}
}

// WithTimeout bounds each invoke_agent call (default 5m).
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		timeout: 5 * time.Minute,
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer = server.NewMCPServer("evolve-mcp", strings.TrimSpace(evolve.Version),
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops it when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(fmt.Sprintf("http://localhost:%d", port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
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
	invokeTool := mcp.NewTool("invoke_agent",
		mcp.WithDescription("Run the agent workflow on a message (for example an incident description) and return its final answer."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The message to send to the agent")),
		mcp.WithOutputSchema[InvokeResponse](),
	)
	s.mcpServer.AddTool(invokeTool, mcp.NewStructuredToolHandler(s.handleInvoke))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the workflow graph as a Mermaid flowchart."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(graphview.GenerateMermaid(s.engine.Graph(), nil)), nil
	})

	if s.runs != nil {
		s.mcpServer.AddTool(mcp.NewTool("get_run",
			mcp.WithDescription("Fetch the recorded state of a finished run."),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("Run identifier returned by invoke_agent")),
		), s.handleGetRun)
	}
}

func (s *Server) handleInvoke(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (InvokeResponse, error) {
	message, _ := args["message"].(string)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	run, err := s.engine.Invoke(ctx, message)
	if err != nil {
		s.logger.Warn("MCP invoke: input rejected", "error", err, "size", len(message))
		return InvokeResponse{}, fmt.Errorf("input rejected: %w", err)
	}
	out := run.Wait()

	resp := InvokeResponse{
		RunID:     out.RunID,
		Status:    string(out.Status),
		CallCount: out.State.CallCount,
	}
	if last, ok := out.State.LastAssistant(); ok {
		resp.Answer = last.Content
	}
	if out.Err != nil {
		s.logger.Error("MCP invoke: run failed", "run_id", out.RunID, "error", out.Err)
		resp.Error = evolve.PublicError(out.Err)
	}
	return resp, nil
}

func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("run_id", "")
	rec, err := s.runs.Load(ctx, id)
	if errors.Is(err, domain.ErrRunNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("run %q not found", id)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(graphURI, "Workflow Graph",
		mcp.WithMIMEType("text/plain"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      graphURI,
				MIMEType: "text/plain",
				Text:     graphview.GenerateMermaid(s.engine.Graph(), nil),
			},
		}, nil
	})
}

// Package mcp connects the tool registry to the Model Context Protocol.
//
// Source loads a remote MCP server's tools into the registry; Server exposes a toolbox
// to MCP clients over stdio or SSE.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/ports"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const toolsResourceURI = "itinera://tools"

// Server exposes a toolbox as an MCP server.
type Server struct {
	tools     ports.Toolbox
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates an MCP server advertising every tool of tools.
func NewServer(name, version string, tools ports.Toolbox, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		tools:     tools,
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false), server.WithResourceCapabilities(false, false)),
		logger:    logger.With("component", "mcp-server"),
	}
	if err := s.registerTools(); err != nil {
		return nil, err
	}
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying server, e.g. for an in-process client.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is canceled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
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

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() error {
	for _, def := range s.tools.Definitions() {
		raw, err := json.Marshal(def.Parameters)
		if err != nil {
			return fmt.Errorf("mcp: schema of %s: %w", def.Name, err)
		}
		tool := mcp.NewToolWithRawSchema(def.Name, def.Description, raw)
		s.mcpServer.AddTool(tool, s.handle(def.Name))
	}
	return nil
}

func (s *Server) handle(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call := domain.ToolCall{
			ID:        "mcp_" + uuid.NewString(),
			Name:      name,
			Arguments: request.GetArguments(),
		}
		msg := s.tools.Call(ctx, call)
		if msg.IsError() {
			s.logger.Warn("tool failed", "tool", name, "reason", msg.Error.Reason, "detail", msg.Error.Detail)
			return mcp.NewToolResultError(msg.Content), nil
		}
		return mcp.NewToolResultText(msg.Content), nil
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(toolsResourceURI, "Tool Definitions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		body, err := json.Marshal(s.tools.Definitions())
		if err != nil {
			return nil, fmt.Errorf("failed to encode tool definitions: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      toolsResourceURI,
				MIMEType: "application/json",
				Text:     string(body),
			},
		}, nil
	})
}

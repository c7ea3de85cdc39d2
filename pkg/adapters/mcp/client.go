package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/registry"
	"github.com/aretw0/itinera/pkg/schema"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Dialer opens a started, uninitialized MCP client.
type Dialer func(ctx context.Context) (*client.Client, error)

// StdioServer describes an MCP server launched as a subprocess.
type StdioServer struct {
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args" json:"args"`
	Env     map[string]string `yaml:"env" json:"env"`
}

// StdioDialer launches srv and speaks MCP over its stdin and stdout.
func StdioDialer(srv StdioServer) Dialer {
	return func(context.Context) (*client.Client, error) {
		if srv.Command == "" {
			return nil, errors.New("mcp: server command is empty")
		}
		env := make([]string, 0, len(srv.Env))
		for k, v := range srv.Env {
			env = append(env, k+"="+v)
		}
		sort.Strings(env)
		return client.NewStdioMCPClient(srv.Command, env, srv.Args...)
	}
}

// Source loads the tools of one MCP server into the registry.
// Invoking a loaded tool forwards the call to the server.
type Source struct {
	name   string
	dial   Dialer
	logger *slog.Logger

	mu     sync.Mutex
	client *client.Client
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithLogger sets the source logger.
func WithLogger(logger *slog.Logger) SourceOption {
	return func(s *Source) {
		s.logger = logger
	}
}

// NewSource creates a tool source named name.
func NewSource(name string, dial Dialer, opts ...SourceOption) *Source {
	s := &Source{name: name, dial: dial, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "mcp-client", "server", name)
	return s
}

// Name implements registry.Source.
func (s *Source) Name() string { return s.name }

// Load connects, performs the MCP handshake and lists the server's tools.
func (s *Source) Load(ctx context.Context) ([]registry.Tool, error) {
	c, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", s.name, err)
	}

	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: "itinera", Version: "1"}
	info, err := c.Initialize(ctx, init)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize %s: %w", s.name, err)
	}

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to list tools of %s: %w", s.name, err)
	}

	s.mu.Lock()
	s.client = c
	s.mu.Unlock()

	var (
		tools []registry.Tool
		errs  []error
	)
	for _, t := range listed.Tools {
		params, err := inputSchema(t)
		if err != nil {
			errs = append(errs, fmt.Errorf("tool %s: %w", t.Name, err))
			continue
		}
		tools = append(tools, registry.Tool{
			Name:        t.Name,
			Description: t.Description,
			Params:      params,
			Handler:     s.forward(t.Name),
		})
	}
	s.logger.Info("mcp server connected", "server_name", info.ServerInfo.Name, "tools", len(tools))
	return tools, errors.Join(errs...)
}

// Close stops the server connection.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *Source) forward(name string) registry.Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		s.mu.Lock()
		c := s.client
		s.mu.Unlock()
		if c == nil {
			return nil, domain.NewToolError(domain.ReasonUpstreamFailure, "%s is disconnected", s.name)
		}

		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args
		res, err := c.CallTool(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, domain.NewToolError(domain.ReasonUpstreamFailure, "%s: %v", s.name, err)
		}
		if res.IsError {
			return nil, domain.NewToolError(domain.ReasonUpstreamFailure, "%s", resultText(res))
		}
		if res.StructuredContent != nil {
			return res.StructuredContent, nil
		}
		return resultText(res), nil
	}
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		switch tc := c.(type) {
		case mcp.TextContent:
			parts = append(parts, tc.Text)
		case *mcp.TextContent:
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func inputSchema(t mcp.Tool) (schema.Schema, error) {
	raw := []byte(t.RawInputSchema)
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(t.InputSchema); err != nil {
			return nil, err
		}
	}
	var def map[string]any
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, err
	}
	if typ, _ := def["type"].(string); typ == "" {
		delete(def, "type")
	}
	return schema.FromJSONSchema(def)
}

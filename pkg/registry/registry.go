package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/schema"
)

// Handler defines the signature for a tool implementation.
// It receives validated arguments and returns a structured result or an error.
// Returning a *domain.ToolError selects the failure reason reported to the model.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is a named, schema-described capability the model may call.
type Tool struct {
	Name        string
	Description string
	Params      schema.Schema
	Handler     Handler
	// Timeout overrides the registry default when positive.
	Timeout time.Duration
}

// Definition describes the tool to the model.
func (t Tool) Definition() domain.ToolDefinition {
	params := t.Params
	if params == nil {
		params = schema.Schema{}
	}
	return domain.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params.JSONSchema(),
	}
}

// Registry is an immutable name to Tool table, safe for concurrent use.
type Registry struct {
	tools   map[string]Tool
	timeout time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeout bounds every invocation of tools that do not set their own Timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.timeout = d
	}
}

// New builds a registry. Names must be unique and non-empty, and every tool needs a handler.
func New(tools []Tool, opts ...Option) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, opt := range opts {
		opt(r)
	}
	for _, tool := range tools {
		if tool.Name == "" {
			return nil, errors.New("registry: tool name is empty")
		}
		if tool.Handler == nil {
			return nil, fmt.Errorf("registry: tool %q has no handler", tool.Name)
		}
		if _, dup := r.tools[tool.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate tool %q", tool.Name)
		}
		r.tools[tool.Name] = tool
	}
	return r, nil
}

// Names lists the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions lists every tool definition, sorted by name.
func (r *Registry) Definitions() []domain.ToolDefinition {
	names := r.Names()
	defs := make([]domain.ToolDefinition, len(names))
	for i, name := range names {
		defs[i] = r.tools[name].Definition()
	}
	return defs
}

// Resolve looks a tool up by name.
func (r *Registry) Resolve(name string) (Tool, error) {
	tool, ok := r.tools[name]
	if !ok {
		return Tool{}, fmt.Errorf("%w: %s", domain.ErrToolNotFound, name)
	}
	return tool, nil
}

// Invoke validates args against the tool schema and runs its handler under the tool timeout.
// Failures are always returned as a *domain.ToolError, never as a panic.
func (r *Registry) Invoke(ctx context.Context, tool Tool, args map[string]any) (any, *domain.ToolError) {
	if args == nil {
		args = map[string]any{}
	}
	if err := schema.Validate(tool.Params, args); err != nil {
		return nil, &domain.ToolError{Reason: domain.ReasonInvalidArguments, Detail: err.Error()}
	}

	timeout := tool.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: domain.NewToolError(domain.ReasonExecutionFailed, "panic: %v", p)}
			}
		}()
		result, err := tool.Handler(ctx, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, toToolError(out.err)
		}
		return out.result, nil
	case <-ctx.Done():
		return nil, toToolError(ctx.Err())
	}
}

// Call resolves and invokes call, answering with a tool message.
// An unknown tool name is reported as an unknown-tool failure.
func (r *Registry) Call(ctx context.Context, call domain.ToolCall) domain.Message {
	tool, err := r.Resolve(call.Name)
	if err != nil {
		return domain.ToolErrorMessage(call, &domain.ToolError{Reason: domain.ReasonUnknownTool, Detail: err.Error()})
	}
	result, toolErr := r.Invoke(ctx, tool, call.Clone().Arguments)
	if toolErr != nil {
		return domain.ToolErrorMessage(call, toolErr)
	}
	return domain.ToolResultMessage(call, result)
}

func toToolError(err error) *domain.ToolError {
	var toolErr *domain.ToolError
	switch {
	case errors.As(err, &toolErr):
		return toolErr
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.ToolError{Reason: domain.ReasonUpstreamFailure, Detail: "timed out"}
	case errors.Is(err, context.Canceled):
		return &domain.ToolError{Reason: domain.ReasonUpstreamFailure, Detail: "canceled"}
	default:
		return &domain.ToolError{Reason: domain.ReasonExecutionFailed, Detail: err.Error()}
	}
}

package ports

import (
	"context"

	"github.com/aretw0/itinera/pkg/domain"
)

// Model is the language-model collaborator.
// Generate returns exactly one assistant message, which may request tool calls.
type Model interface {
	Generate(ctx context.Context, req domain.ModelRequest) (domain.Message, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, req domain.ModelRequest) (domain.Message, error)

// Generate calls f.
func (f ModelFunc) Generate(ctx context.Context, req domain.ModelRequest) (domain.Message, error) {
	return f(ctx, req)
}

// Toolbox runs tool calls on behalf of the turn loop.
// Call always returns a tool message answering call; failures are encoded in it.
type Toolbox interface {
	Definitions() []domain.ToolDefinition
	Call(ctx context.Context, call domain.ToolCall) domain.Message
}

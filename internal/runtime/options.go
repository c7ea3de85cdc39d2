package runtime

import (
	"log/slog"
	"time"

	"github.com/aretw0/itinera/pkg/domain"
	"github.com/google/uuid"
)

const (
	// DefaultMaxTurns bounds model invocations per turn.
	DefaultMaxTurns = 8
	// DefaultMaxParallelTools bounds concurrent tool calls within one tool turn.
	DefaultMaxParallelTools = 4
	// DefaultModelTimeout bounds a single model invocation.
	DefaultModelTimeout = 2 * time.Minute
	// TurnLimitMessage is the content of the assistant message synthesized when
	// the turn limit is reached.
	TurnLimitMessage = "turn limit exceeded"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMaxTurns sets how many model invocations one turn may make.
func WithMaxTurns(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTurns = n
		}
	}
}

// WithMaxParallelTools bounds tool concurrency; 1 runs tools sequentially.
func WithMaxParallelTools(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// WithModelTimeout bounds every model invocation. Zero disables the bound.
func WithModelTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.modelTimeout = d
	}
}

// WithHooks registers lifecycle callbacks. Repeated calls accumulate.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithCallIDGenerator replaces the generator used for missing or duplicate call ids.
func WithCallIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newCallID = fn
	}
}

func defaultCallID() string {
	return "call_" + uuid.NewString()
}

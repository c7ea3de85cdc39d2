package itinera

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/itinera/internal/runtime"
	"github.com/aretw0/itinera/pkg/adapters/memory"
	"github.com/aretw0/itinera/pkg/bridge"
	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/ports"
	"github.com/aretw0/itinera/pkg/session"
	"github.com/google/uuid"
)

// Engine is the high-level entry point for the itinera library.
// It wraps the internal turn runtime, serializes turns per thread and runs them on a bridge.Backend.
type Engine struct {
	runtime  *runtime.Engine
	sessions *session.Manager
	backend  *bridge.Backend

	ownsBackend bool
	store       ports.CheckpointStore
	tools       ports.Toolbox
	locker      ports.DistributedLocker
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	runtimeOpts []runtime.Option
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore sets the checkpoint store. Defaults to an in-memory store.
func WithStore(store ports.CheckpointStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithTools sets the toolbox advertised to the model, usually a *registry.Registry.
func WithTools(tools ports.Toolbox) Option {
	return func(e *Engine) {
		e.tools = tools
	}
}

// WithLifecycleHooks registers observability hooks. Repeated calls accumulate.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLocker adds cross-process locking on top of the in-process per-thread lock.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithBackend runs streamed turns on a shared backend. The engine does not close it.
func WithBackend(b *bridge.Backend) Option {
	return func(e *Engine) {
		e.backend = b
	}
}

// WithMaxTurns bounds model invocations per user turn.
func WithMaxTurns(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxTurns(n))
	}
}

// WithMaxParallelTools bounds concurrent tool calls within one tool turn.
func WithMaxParallelTools(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxParallelTools(n))
	}
}

// WithModelTimeout bounds every model invocation.
func WithModelTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithModelTimeout(d))
	}
}

// New initializes an Engine around model.
func New(model ports.Model, opts ...Option) (*Engine, error) {
	if model == nil {
		return nil, errors.New("itinera: model is required")
	}

	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = slog.New(slog.DiscardHandler)
	}
	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	if eng.backend == nil {
		eng.backend = bridge.New(bridge.WithLogger(eng.logger))
		eng.ownsBackend = true
	}

	sessionOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
	}
	eng.sessions = session.NewManager(sessionOpts...)

	runtimeOpts := []runtime.Option{
		runtime.WithLogger(eng.logger),
		runtime.WithHooks(eng.hooks),
	}
	runtimeOpts = append(runtimeOpts, eng.runtimeOpts...)
	eng.runtime = runtime.NewEngine(eng.store, model, eng.tools, runtimeOpts...)

	return eng, nil
}

// NewThreadID returns a fresh opaque thread id.
func NewThreadID() string {
	return uuid.NewString()
}

// RunTurn runs one user turn on threadID, waiting for any turn already running on it.
// emit receives each assistant and tool message once it is persisted.
func (e *Engine) RunTurn(ctx context.Context, threadID, userText string, emit func(domain.Message)) error {
	return e.sessions.WithLock(ctx, threadID, func(ctx context.Context) error {
		return e.runtime.RunTurn(ctx, threadID, userText, emit)
	})
}

// TryRunTurn is RunTurn that fails with session.ErrThreadBusy instead of waiting.
func (e *Engine) TryRunTurn(ctx context.Context, threadID, userText string, emit func(domain.Message)) error {
	return e.sessions.TryWithLock(ctx, threadID, func(ctx context.Context) error {
		return e.runtime.RunTurn(ctx, threadID, userText, emit)
	})
}

// Ask runs a turn on the backend and waits for it, returning every produced message.
func (e *Engine) Ask(ctx context.Context, threadID, userText string) ([]domain.Message, error) {
	type answer struct {
		msgs []domain.Message
		err  error
	}
	res, err := bridge.Do(ctx, e.backend, func(bctx context.Context) (answer, error) {
		var out answer
		out.err = e.RunTurn(bctx, threadID, userText, func(m domain.Message) {
			out.msgs = append(out.msgs, m)
		})
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return res.msgs, res.err
}

// Stream runs a turn on the backend and returns its messages as they are produced.
func (e *Engine) Stream(threadID, userText string) *bridge.Stream {
	return e.backend.Stream(func(ctx context.Context, emit func(domain.Message)) error {
		return e.RunTurn(ctx, threadID, userText, emit)
	})
}

// TryStream is Stream that ends with an error event wrapping session.ErrThreadBusy
// when the thread already has a turn in flight.
func (e *Engine) TryStream(threadID, userText string) *bridge.Stream {
	return e.backend.Stream(func(ctx context.Context, emit func(domain.Message)) error {
		return e.TryRunTurn(ctx, threadID, userText, emit)
	})
}

// History returns the persisted messages of a thread.
func (e *Engine) History(ctx context.Context, threadID string) ([]domain.Message, error) {
	return e.runtime.History(ctx, threadID)
}

// Threads lists every known thread id.
func (e *Engine) Threads(ctx context.Context) ([]string, error) {
	return e.runtime.Threads(ctx)
}

// Tools lists the tool definitions advertised to the model.
func (e *Engine) Tools() []domain.ToolDefinition {
	return e.runtime.Tools()
}

// Backend returns the backend that runs streamed turns.
func (e *Engine) Backend() *bridge.Backend {
	return e.backend
}

// Close waits for in-flight turns and stops the backend if the engine created it.
func (e *Engine) Close(ctx context.Context) error {
	if !e.ownsBackend {
		return nil
	}
	return e.backend.Close(ctx)
}

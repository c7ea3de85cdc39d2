package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/itinera/internal/config"
	"github.com/aretw0/itinera/internal/logging"
	"github.com/aretw0/itinera/pkg/domain"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	start  sync.Once
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sc.start.Do(func() {
		signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sc.sigCh:
				sc.mu.Lock()
				sc.sigVal = sig
				sc.mu.Unlock()
				sc.Cancel()
			case <-sc.Context.Done():
			}
			sc.stop.Do(func() {
				signal.Stop(sc.sigCh)
			})
		}()
	})

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// createLogger configures the application logger from LOG_LEVEL and LOG_FORMAT.
// It always writes to Stderr so Stdout stays free for the conversation and MCP stdio.
func createLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	switch cfg.LogFormat {
	case "json":
		return logging.New(level), nil
	case "pretty":
		return logging.NewPretty(os.Stderr, level), nil
	default:
		return logging.NewAuto(level), nil
	}
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnModelCall: func(ctx context.Context, e *domain.ModelEvent) {
			logger.Debug("Model Call", "thread_id", e.ThreadID)
		},
		OnModelReturn: func(ctx context.Context, e *domain.ModelEvent) {
			logger.Debug("Model Return", "thread_id", e.ThreadID, "tool_calls", e.ToolCalls, "duration", e.Duration, "err", e.Err)
		},
		OnToolCall: func(ctx context.Context, e *domain.ToolEvent) {
			logger.Debug("Tool Call", "tool_name", e.ToolName, "call_id", e.CallID, "input", e.Input)
		},
		OnToolReturn: func(ctx context.Context, e *domain.ToolEvent) {
			if e.Err != nil {
				logger.Debug("Tool Return (Error)", "tool_name", e.ToolName, "reason", e.Err.Reason, "detail", e.Err.Detail)
			} else {
				logger.Debug("Tool Return (Success)", "tool_name", e.ToolName, "output", e.Output)
			}
		},
		OnCheckpoint: func(ctx context.Context, e *domain.CheckpointEvent) {
			logger.Debug("Checkpoint", "thread_id", e.ThreadID, "seq", e.Seq, "err", e.Err)
		},
	}
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, io.EOF)
}

// handleExecutionError maps interruptions to a clean exit.
func handleExecutionError(err error) error {
	if err == nil || isInterrupted(err) {
		return nil
	}
	return err
}

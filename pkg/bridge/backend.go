package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrBackendClosed is returned for work submitted after Close.
	ErrBackendClosed = errors.New("backend closed")
	// ErrPanic wraps a panic raised by submitted work.
	ErrPanic = errors.New("work panicked")
)

// Backend is the execution context for all suspending work.
// Construct one with New and share it; it is safe for concurrent use.
type Backend struct {
	ctx    context.Context
	cancel context.CancelFunc

	intake *Queue[func(context.Context)]
	group  errgroup.Group
	done   chan struct{}

	closeOnce sync.Once
	logger    *slog.Logger
}

// Option configures a Backend.
type Option func(*backendConfig)

type backendConfig struct {
	concurrency int
	logger      *slog.Logger
}

// WithConcurrency bounds how many units of work run at once. Zero means unbounded.
// Work beyond the bound waits in the intake queue; submitting never blocks.
func WithConcurrency(n int) Option {
	return func(c *backendConfig) {
		c.concurrency = n
	}
}

// WithLogger sets the backend logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *backendConfig) {
		c.logger = logger
	}
}

// New starts a backend.
func New(opts ...Option) *Backend {
	cfg := backendConfig{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Backend{
		ctx:    ctx,
		cancel: cancel,
		intake: NewQueue[func(context.Context)](),
		done:   make(chan struct{}),
		logger: cfg.logger.With("component", "bridge"),
	}
	if cfg.concurrency > 0 {
		b.group.SetLimit(cfg.concurrency)
	}

	go b.dispatch()
	return b
}

func (b *Backend) dispatch() {
	defer close(b.done)
	for {
		work, err := b.intake.Pop(context.Background())
		if err != nil {
			return
		}
		b.group.Go(func() error {
			work(b.ctx)
			return nil
		})
	}
}

func (b *Backend) enqueue(work func(context.Context)) bool {
	return b.intake.Push(work)
}

// Pending returns the number of accepted units not yet started.
func (b *Backend) Pending() int {
	return b.intake.Len()
}

// Close stops accepting work and waits for accepted work to finish.
// If ctx ends first, running work is canceled and ctx.Err() is returned.
func (b *Backend) Close(ctx context.Context) error {
	b.closeOnce.Do(b.intake.Close)

	finished := make(chan struct{})
	go func() {
		<-b.done
		_ = b.group.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.logger.Warn("backend shutdown timed out, canceling running work")
		b.cancel()
		<-finished
		return ctx.Err()
	}
}

// Future is the handle of a submit-and-wait unit.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Submit schedules fn on the backend and returns immediately.
func Submit[T any](b *Backend, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	accepted := b.enqueue(func(ctx context.Context) {
		defer close(f.done)
		defer func() {
			if p := recover(); p != nil {
				b.logger.Error("submitted work panicked", "panic", p)
				f.err = fmt.Errorf("%w: %v", ErrPanic, p)
			}
		}()
		f.val, f.err = fn(ctx)
	})
	if !accepted {
		f.err = ErrBackendClosed
		close(f.done)
	}
	return f
}

// Do submits fn and waits for its result, giving up when ctx ends.
func Do[T any](ctx context.Context, b *Backend, fn func(ctx context.Context) (T, error)) (T, error) {
	return Submit(b, fn).WaitContext(ctx)
}

// Wait blocks until the work finishes and returns its result or failure.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.val, f.err
}

// WaitContext is Wait bounded by ctx. The work itself keeps running if ctx ends.
func (f *Future[T]) WaitContext(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed when the work has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

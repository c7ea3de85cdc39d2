package domain

import (
	"context"
	"time"
)

// EventKind tags an item of a streamed turn.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventDone    EventKind = "done"
	EventError   EventKind = "error"
)

// Event is one item delivered to a stream consumer. A stream carries zero or more
// message events followed by exactly one done or error event.
type Event struct {
	Kind    EventKind `json:"kind"`
	Message *Message  `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
	Err     error     `json:"-"`
}

// MessageEvent wraps m for delivery.
func MessageEvent(m Message) Event {
	return Event{Kind: EventMessage, Message: &m}
}

// DoneEvent marks successful completion of a stream.
func DoneEvent() Event {
	return Event{Kind: EventDone}
}

// ErrorEvent marks a stream that ended with err.
func ErrorEvent(err error) Event {
	return Event{Kind: EventError, Error: err.Error(), Err: err}
}

// Terminal reports whether no event follows this one.
func (e Event) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

// ModelEvent describes one model invocation.
type ModelEvent struct {
	Timestamp time.Time
	ThreadID  string
	Duration  time.Duration
	ToolCalls int
	Err       error
}

// ToolEvent describes one tool invocation.
type ToolEvent struct {
	Timestamp time.Time
	ThreadID  string
	CallID    string
	ToolName  string
	Input     map[string]any
	Output    any
	Duration  time.Duration
	Err       *ToolError
}

// CheckpointEvent describes one store append.
type CheckpointEvent struct {
	Timestamp time.Time
	ThreadID  string
	Seq       int64
	Count     int
	Err       error
}

// TurnEvent describes the outcome of a whole turn.
type TurnEvent struct {
	Timestamp  time.Time
	ThreadID   string
	ModelCalls int
	Outcome    string
	Err        error
}

// Turn outcomes reported through TurnEvent.
const (
	OutcomeDone       = "done"
	OutcomeTurnLimit  = "turn_limit"
	OutcomeModelError = "model_error"
	OutcomePersistErr = "persistence_error"
	OutcomeCanceled   = "canceled"
)

// LifecycleHooks defines callbacks for engine observability.
// Any field may be nil.
type LifecycleHooks struct {
	OnModelCall   func(context.Context, *ModelEvent)
	OnModelReturn func(context.Context, *ModelEvent)
	OnToolCall    func(context.Context, *ToolEvent)
	OnToolReturn  func(context.Context, *ToolEvent)
	OnCheckpoint  func(context.Context, *CheckpointEvent)
	OnTurnEnd     func(context.Context, *TurnEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnModelCall:   chain(h.OnModelCall, other.OnModelCall),
		OnModelReturn: chain(h.OnModelReturn, other.OnModelReturn),
		OnToolCall:    chain(h.OnToolCall, other.OnToolCall),
		OnToolReturn:  chain(h.OnToolReturn, other.OnToolReturn),
		OnCheckpoint:  chain(h.OnCheckpoint, other.OnCheckpoint),
		OnTurnEnd:     chain(h.OnTurnEnd, other.OnTurnEnd),
	}
}

func chain[E any](a, b func(context.Context, *E)) func(context.Context, *E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e *E) {
		a(ctx, e)
		b(ctx, e)
	}
}

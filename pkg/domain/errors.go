package domain

import (
	"errors"
	"fmt"
)

// ErrEmptyThreadID is returned when an operation receives a blank thread identifier.
var ErrEmptyThreadID = errors.New("thread id is empty")

// ErrInvalidMessage is returned when a message's fields do not match its role.
var ErrInvalidMessage = errors.New("invalid message")

// ErrToolNotFound is returned when a tool name is not registered.
var ErrToolNotFound = errors.New("tool not found")

// FailureReason classifies a ToolError.
type FailureReason string

const (
	ReasonInvalidArguments FailureReason = "invalid-arguments"
	ReasonUpstreamFailure  FailureReason = "upstream-failure"
	ReasonUnknownTool      FailureReason = "unknown-tool"
	ReasonExecutionFailed  FailureReason = "execution-failed"
)

// ToolError is a recoverable tool failure. It never aborts a turn; it is handed back
// to the model as a tool result.
type ToolError struct {
	Reason FailureReason `json:"reason"`
	Detail string        `json:"detail,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// NewToolError builds a ToolError with a formatted detail.
func NewToolError(reason FailureReason, format string, args ...any) *ToolError {
	return &ToolError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ModelError reports that the model collaborator failed or timed out.
// It is fatal to the current turn.
type ModelError struct {
	Err error
}

func (e *ModelError) Error() string { return "model: " + e.Err.Error() }

func (e *ModelError) Unwrap() error { return e.Err }

// PersistenceError reports a checkpoint read or append failure.
// It is fatal to the current turn.
type PersistenceError struct {
	Op       string
	ThreadID string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s thread %q: %v", e.Op, e.ThreadID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NewPersistenceError wraps err unless it already is a PersistenceError.
func NewPersistenceError(op, threadID string, err error) error {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, ThreadID: threadID, Err: err}
}

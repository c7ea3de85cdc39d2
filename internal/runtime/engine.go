package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/ports"
	"golang.org/x/sync/errgroup"
)

// Emitter receives every message produced by a turn, in production order,
// after it has been persisted.
type Emitter func(domain.Message)

// Engine runs the turn loop: MODEL_TURN, then TOOL_TURN while the model
// requests tools, until DONE.
//
// The engine keeps no per-thread state between calls; the store is the only
// source of truth. Callers must not run two turns on the same thread at once.
type Engine struct {
	store ports.CheckpointStore
	model ports.Model
	tools ports.Toolbox

	maxTurns     int
	maxParallel  int
	modelTimeout time.Duration
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
	newCallID    func() string
}

// NewEngine creates a new engine with dependencies. tools may be nil.
func NewEngine(store ports.CheckpointStore, model ports.Model, tools ports.Toolbox, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		model:        model,
		tools:        tools,
		maxTurns:     DefaultMaxTurns,
		maxParallel:  DefaultMaxParallelTools,
		modelTimeout: DefaultModelTimeout,
		logger:       slog.New(slog.DiscardHandler),
		newCallID:    defaultCallID,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tools == nil {
		e.tools = noTools{}
	}
	e.logger = e.logger.With("component", "engine")
	return e
}

// RunTurn appends userText to the thread and drives the loop until the model
// answers without tool calls. Every message after the user's is emitted once
// persisted. A *domain.ModelError or *domain.PersistenceError ends the turn;
// messages already emitted stay durable.
func (e *Engine) RunTurn(ctx context.Context, threadID, userText string, emit Emitter) error {
	if threadID == "" {
		return domain.ErrEmptyThreadID
	}
	if emit == nil {
		emit = func(domain.Message) {}
	}
	t := &turn{engine: e, threadID: threadID, emit: emit, logger: e.logger.With("thread_id", threadID)}

	err := t.run(ctx, userText)
	t.finish(ctx, err)
	return err
}

// History returns the full ordered message sequence of a thread.
func (e *Engine) History(ctx context.Context, threadID string) ([]domain.Message, error) {
	if threadID == "" {
		return nil, domain.ErrEmptyThreadID
	}
	state, err := e.store.Latest(ctx, threadID)
	if err != nil {
		return nil, domain.NewPersistenceError("latest", threadID, err)
	}
	return state.Messages, nil
}

// Threads lists every known thread id.
func (e *Engine) Threads(ctx context.Context) ([]string, error) {
	ids, err := e.store.ListThreads(ctx)
	if err != nil {
		return nil, domain.NewPersistenceError("list", "", err)
	}
	return ids, nil
}

// Tools lists the definitions advertised to the model.
func (e *Engine) Tools() []domain.ToolDefinition {
	return e.tools.Definitions()
}

// turn holds the working state of one RunTurn call.
type turn struct {
	engine   *Engine
	threadID string
	emit     Emitter
	logger   *slog.Logger

	history    []domain.Message
	modelCalls int
	outcome    string
}

func (t *turn) run(ctx context.Context, userText string) error {
	e := t.engine

	state, err := e.store.Latest(ctx, t.threadID)
	if err != nil {
		t.outcome = domain.OutcomePersistErr
		return domain.NewPersistenceError("latest", t.threadID, err)
	}
	t.history = state.Messages

	// Close out calls left unanswered by an interrupted turn so every call id
	// has a result before the model runs again.
	for _, call := range pendingCalls(t.history) {
		t.logger.Warn("answering interrupted tool call", "call_id", call.ID, "tool", call.Name)
		msg := domain.ToolErrorMessage(call, domain.NewToolError(domain.ReasonExecutionFailed, "interrupted before completion"))
		if err := t.commit(ctx, msg); err != nil {
			return err
		}
	}

	if err := t.commit(ctx, domain.UserMessage(userText)); err != nil {
		return err
	}

	phase := PhaseModelTurn
	var last domain.Message
	for phase != PhaseDone {
		if err := ctx.Err(); err != nil {
			t.outcome = domain.OutcomeCanceled
			return err
		}

		switch phase {
		case PhaseModelTurn:
			if t.modelCalls >= e.maxTurns {
				t.logger.Warn("turn limit reached", "max_turns", e.maxTurns)
				msg := domain.AssistantMessage(TurnLimitMessage)
				if err := t.commit(ctx, msg); err != nil {
					return err
				}
				t.emit(msg)
				t.outcome = domain.OutcomeTurnLimit
				return nil
			}

			reply, err := t.callModel(ctx)
			if err != nil {
				t.outcome = domain.OutcomeModelError
				return err
			}
			if err := t.commit(ctx, reply); err != nil {
				return err
			}
			t.emit(reply)
			last = reply
			phase = Route(reply)

		case PhaseToolTurn:
			for _, result := range t.runTools(ctx, last.ToolCalls) {
				if err := t.commit(ctx, result); err != nil {
					return err
				}
				t.emit(result)
			}
			phase = PhaseModelTurn
		}
	}

	t.outcome = domain.OutcomeDone
	return nil
}

// commit persists msg and only then adds it to the working history.
func (t *turn) commit(ctx context.Context, msg domain.Message) error {
	e := t.engine
	cp, err := e.store.Append(ctx, t.threadID, msg)
	if hook := e.hooks.OnCheckpoint; hook != nil {
		hook(ctx, &domain.CheckpointEvent{Timestamp: time.Now(), ThreadID: t.threadID, Seq: cp.Seq, Count: 1, Err: err})
	}
	if err != nil {
		t.outcome = domain.OutcomePersistErr
		t.logger.Error("checkpoint append failed", "role", msg.Role, "error", err)
		return domain.NewPersistenceError("append", t.threadID, err)
	}
	t.history = append(t.history, msg)
	t.logger.Debug("checkpoint written", "seq", cp.Seq, "role", msg.Role)
	return nil
}

func (t *turn) callModel(ctx context.Context) (domain.Message, error) {
	e := t.engine
	t.modelCalls++

	callCtx := ctx
	if e.modelTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.modelTimeout)
		defer cancel()
	}

	event := &domain.ModelEvent{Timestamp: time.Now(), ThreadID: t.threadID}
	if hook := e.hooks.OnModelCall; hook != nil {
		hook(ctx, event)
	}

	req := domain.ModelRequest{
		ThreadID: t.threadID,
		Messages: append([]domain.Message(nil), t.history...),
		Tools:    e.tools.Definitions(),
	}
	start := time.Now()
	reply, err := e.model.Generate(callCtx, req)
	if err == nil {
		reply, err = t.normalize(reply)
	}
	if err != nil && !isModelError(err) {
		err = &domain.ModelError{Err: err}
	}

	event.Duration = time.Since(start)
	event.ToolCalls = len(reply.ToolCalls)
	event.Err = err
	if hook := e.hooks.OnModelReturn; hook != nil {
		hook(ctx, event)
	}

	if err != nil {
		t.logger.Error("model call failed", "model_calls", t.modelCalls, "error", err)
		return domain.Message{}, err
	}
	t.logger.Debug("model replied", "tool_calls", len(reply.ToolCalls), "duration", event.Duration)
	return reply, nil
}

// normalize enforces the assistant role and unique, non-empty call ids.
func (t *turn) normalize(reply domain.Message) (domain.Message, error) {
	switch reply.Role {
	case "":
		reply.Role = domain.RoleAssistant
	case domain.RoleAssistant:
	default:
		return domain.Message{}, fmt.Errorf("model returned a %q message", reply.Role)
	}

	seen := make(map[string]bool, len(reply.ToolCalls))
	for i := range reply.ToolCalls {
		call := &reply.ToolCalls[i]
		if call.ID == "" || seen[call.ID] {
			fresh := t.engine.newCallID()
			t.logger.Warn("reassigned tool call id", "tool", call.Name, "old_id", call.ID, "new_id", fresh)
			call.ID = fresh
		}
		seen[call.ID] = true
	}
	return reply, nil
}

// runTools invokes every call and returns the results in call order.
func (t *turn) runTools(ctx context.Context, calls []domain.ToolCall) []domain.Message {
	e := t.engine
	results := make([]domain.Message, len(calls))

	var g errgroup.Group
	g.SetLimit(e.maxParallel)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = t.runTool(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (t *turn) runTool(ctx context.Context, call domain.ToolCall) domain.Message {
	e := t.engine
	event := &domain.ToolEvent{
		Timestamp: time.Now(),
		ThreadID:  t.threadID,
		CallID:    call.ID,
		ToolName:  call.Name,
		Input:     call.Arguments,
	}
	if hook := e.hooks.OnToolCall; hook != nil {
		hook(ctx, event)
	}

	start := time.Now()
	msg := e.tools.Call(ctx, call)
	// A toolbox must answer the call it was given; repair anything else.
	if msg.Role != domain.RoleTool || msg.CallID != call.ID {
		msg = domain.ToolErrorMessage(call, domain.NewToolError(domain.ReasonExecutionFailed, "toolbox returned a mismatched result"))
	}

	event.Duration = time.Since(start)
	event.Output = msg.Result
	event.Err = msg.Error
	if hook := e.hooks.OnToolReturn; hook != nil {
		hook(ctx, event)
	}

	if msg.IsError() {
		t.logger.Warn("tool failed", "tool", call.Name, "call_id", call.ID, "reason", msg.Error.Reason, "detail", msg.Error.Detail)
	} else {
		t.logger.Debug("tool succeeded", "tool", call.Name, "call_id", call.ID, "duration", event.Duration)
	}
	return msg
}

func (t *turn) finish(ctx context.Context, err error) {
	e := t.engine
	if t.outcome == "" {
		t.outcome = domain.OutcomeDone
		if err != nil {
			t.outcome = domain.OutcomeCanceled
		}
	}
	if hook := e.hooks.OnTurnEnd; hook != nil {
		hook(ctx, &domain.TurnEvent{
			Timestamp:  time.Now(),
			ThreadID:   t.threadID,
			ModelCalls: t.modelCalls,
			Outcome:    t.outcome,
			Err:        err,
		})
	}
	if err != nil {
		t.logger.Error("turn failed", "outcome", t.outcome, "model_calls", t.modelCalls, "error", err)
		return
	}
	t.logger.Info("turn completed", "outcome", t.outcome, "model_calls", t.modelCalls, "messages", len(t.history))
}

func isModelError(err error) bool {
	var me *domain.ModelError
	return errors.As(err, &me)
}

// noTools answers every call as unknown.
type noTools struct{}

func (noTools) Definitions() []domain.ToolDefinition { return nil }

func (noTools) Call(_ context.Context, call domain.ToolCall) domain.Message {
	return domain.ToolErrorMessage(call, &domain.ToolError{Reason: domain.ReasonUnknownTool, Detail: call.Name})
}

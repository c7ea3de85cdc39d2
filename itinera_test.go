package itinera_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/itinera"
	"github.com/aretw0/itinera/pkg/adapters/memory"
	"github.com/aretw0/itinera/pkg/bridge"
	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/ports"
	"github.com/aretw0/itinera/pkg/registry"
	"github.com/aretw0/itinera/pkg/schema"
	"github.com/aretw0/itinera/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoModel asks for "upper" once per turn, then repeats the tool output.
func echoModel() ports.Model {
	return ports.ModelFunc(func(_ context.Context, req domain.ModelRequest) (domain.Message, error) {
		last := req.Messages[len(req.Messages)-1]
		if last.Role == domain.RoleTool {
			return domain.AssistantMessage("you said " + last.Content), nil
		}
		return domain.AssistantMessage("", domain.ToolCall{
			ID:        "c1",
			Name:      "upper",
			Arguments: map[string]any{"text": last.Content},
		}), nil
	})
}

func upperTools(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]registry.Tool{{
		Name:        "upper",
		Description: "Upper-cases text",
		Params:      schema.Schema{"text": schema.String()},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return strings.ToUpper(args["text"].(string)), nil
		},
	}})
	require.NoError(t, err)
	return reg
}

func newEngine(t *testing.T, model ports.Model, opts ...itinera.Option) *itinera.Engine {
	t.Helper()
	eng, err := itinera.New(model, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close(context.Background()) })
	return eng
}

func TestNew_RequiresModel(t *testing.T) {
	_, err := itinera.New(nil)
	assert.Error(t, err)
}

func TestEngine_AskPersistsAndReturnsTurn(t *testing.T) {
	store := memory.NewStore()
	eng := newEngine(t, echoModel(), itinera.WithStore(store), itinera.WithTools(upperTools(t)))
	ctx := context.Background()
	thread := itinera.NewThreadID()

	msgs, err := eng.Ask(ctx, thread, "hello")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "c1", msgs[0].ToolCalls[0].ID)
	assert.Equal(t, "HELLO", msgs[1].Content)
	assert.Equal(t, "you said HELLO", msgs[2].Content)

	history, err := eng.History(ctx, thread)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, domain.UserMessage("hello"), history[0])
	assert.Equal(t, msgs, history[1:])

	threads, err := eng.Threads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{thread}, threads)
	assert.Len(t, eng.Tools(), 1)
}

func TestEngine_StreamDeliversInOrder(t *testing.T) {
	eng := newEngine(t, echoModel(), itinera.WithTools(upperTools(t)))

	var roles []domain.Role
	stream := eng.Stream(itinera.NewThreadID(), "hi")
	for {
		ev, err := stream.Next(context.Background())
		require.NoError(t, err)
		if ev.Terminal() {
			assert.Equal(t, domain.EventDone, ev.Kind)
			break
		}
		roles = append(roles, ev.Message.Role)
	}
	assert.Equal(t, []domain.Role{domain.RoleAssistant, domain.RoleTool, domain.RoleAssistant}, roles)
}

func TestEngine_SerializesTurnsPerThread(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var blocked atomic.Bool

	model := ports.ModelFunc(func(_ context.Context, req domain.ModelRequest) (domain.Message, error) {
		if req.ThreadID == "t-1" && blocked.CompareAndSwap(false, true) {
			close(entered)
			<-release
		}
		return domain.AssistantMessage("ok"), nil
	})
	eng := newEngine(t, model)
	ctx := context.Background()

	first := eng.Stream("t-1", "first")
	<-entered

	err := eng.TryRunTurn(ctx, "t-1", "second", nil)
	assert.ErrorIs(t, err, session.ErrThreadBusy)

	_, err = eng.TryStream("t-1", "third").Collect(ctx)
	assert.ErrorIs(t, err, session.ErrThreadBusy)

	// A different thread is not blocked.
	require.NoError(t, eng.TryRunTurn(ctx, "t-2", "other", nil))

	close(release)
	_, err = first.Collect(ctx)
	require.NoError(t, err)

	// Waiting variant succeeds once the thread is free.
	require.NoError(t, eng.RunTurn(ctx, "t-1", "again", nil))
	history, err := eng.History(ctx, "t-1")
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestEngine_HooksAndTurnLimit(t *testing.T) {
	loop := ports.ModelFunc(func(context.Context, domain.ModelRequest) (domain.Message, error) {
		return domain.AssistantMessage("", domain.ToolCall{ID: "x", Name: "upper", Arguments: map[string]any{"text": "a"}}), nil
	})

	var mu sync.Mutex
	var outcomes []string
	hooks := domain.LifecycleHooks{OnTurnEnd: func(_ context.Context, ev *domain.TurnEvent) {
		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, ev.Outcome)
	}}

	eng := newEngine(t, loop,
		itinera.WithTools(upperTools(t)),
		itinera.WithMaxTurns(2),
		itinera.WithLifecycleHooks(hooks),
		itinera.WithModelTimeout(time.Second),
	)
	msgs, err := eng.Ask(context.Background(), "looping", "go")
	require.NoError(t, err)

	last := msgs[len(msgs)-1]
	assert.Equal(t, "turn limit exceeded", last.Content)
	assert.Equal(t, []string{domain.OutcomeTurnLimit}, outcomes)
}

func TestEngine_ModelErrorSurfaces(t *testing.T) {
	model := ports.ModelFunc(func(context.Context, domain.ModelRequest) (domain.Message, error) {
		return domain.Message{}, assert.AnError
	})
	eng := newEngine(t, model)

	_, err := eng.Ask(context.Background(), "broken", "hi")
	var me *domain.ModelError
	require.ErrorAs(t, err, &me)
	assert.ErrorIs(t, err, assert.AnError)
}

// brokenStore refuses every append after the first.
type brokenStore struct {
	ports.CheckpointStore
	appends atomic.Int32
}

func (s *brokenStore) Append(ctx context.Context, threadID string, msgs ...domain.Message) (domain.Checkpoint, error) {
	if s.appends.Add(1) > 1 {
		return domain.Checkpoint{}, errors.New("disk full")
	}
	return s.CheckpointStore.Append(ctx, threadID, msgs...)
}

func TestEngine_StreamEndsWithErrorWhenStoreFails(t *testing.T) {
	store := &brokenStore{CheckpointStore: memory.NewStore()}
	model := ports.ModelFunc(func(context.Context, domain.ModelRequest) (domain.Message, error) {
		return domain.AssistantMessage("Hi"), nil
	})
	eng := newEngine(t, model, itinera.WithStore(store))

	stream := eng.Stream("t1", "Hello")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ev, err := stream.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.EventError, ev.Kind, "no message event may precede the failure")
	var pe *domain.PersistenceError
	assert.ErrorAs(t, ev.Err, &pe)

	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, bridge.ErrStreamClosed)

	history, err := eng.History(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{domain.UserMessage("Hello")}, history)
}

package ports

import (
	"context"
	"testing"

	"github.com/aretw0/itinera/pkg/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCheckpointStoreContract runs a suite of tests to verify that a CheckpointStore
// implementation adheres to the interface contract.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	ctx := context.Background()
	prefix := "contract-" + uuid.NewString()

	t.Run("Append and Latest round-trip", func(t *testing.T) {
		threadID := prefix + "-roundtrip"
		call := domain.ToolCall{ID: "c1", Name: "add", Arguments: map[string]any{"a": 2.0, "b": 3.0}}
		want := []domain.Message{
			domain.UserMessage("Hello"),
			domain.AssistantMessage("", call),
			domain.ToolResultMessage(call, 5.0),
			domain.ToolErrorMessage(domain.ToolCall{ID: "c2", Name: "divide"},
				domain.NewToolError(domain.ReasonInvalidArguments, "division by zero")),
			domain.AssistantMessage("2+3=5"),
		}

		var lastSeq int64
		for i, msg := range want {
			cp, err := store.Append(ctx, threadID, msg)
			require.NoError(t, err, "Append %d should not return error", i)
			assert.Equal(t, threadID, cp.ThreadID)
			assert.Greater(t, cp.Seq, lastSeq, "sequence numbers must increase")
			require.Len(t, cp.Messages, 1)
			lastSeq = cp.Seq

			state, err := store.Latest(ctx, threadID)
			require.NoError(t, err)
			assert.Len(t, state.Messages, i+1, "append must be visible immediately")
		}

		state, err := store.Latest(ctx, threadID)
		require.NoError(t, err)
		assert.Equal(t, threadID, state.ThreadID)
		assert.Equal(t, lastSeq, state.Seq)
		assert.Equal(t, want, state.Messages)
	})

	t.Run("Batch append keeps order", func(t *testing.T) {
		threadID := prefix + "-batch"
		msgs := []domain.Message{
			domain.UserMessage("one"),
			domain.AssistantMessage("two"),
			domain.UserMessage("three"),
		}
		cp, err := store.Append(ctx, threadID, msgs...)
		require.NoError(t, err)
		assert.Equal(t, msgs, cp.Messages)

		state, err := store.Latest(ctx, threadID)
		require.NoError(t, err)
		assert.Equal(t, msgs, state.Messages)
		assert.Equal(t, cp.Seq, state.Seq)
	})

	t.Run("Latest Unknown Thread", func(t *testing.T) {
		state, err := store.Latest(ctx, prefix+"-missing")
		require.NoError(t, err)
		assert.Equal(t, prefix+"-missing", state.ThreadID)
		assert.Empty(t, state.Messages)
		assert.Zero(t, state.Seq)
	})

	t.Run("Latest returns a copy", func(t *testing.T) {
		threadID := prefix + "-copy"
		_, err := store.Append(ctx, threadID, domain.UserMessage("original"))
		require.NoError(t, err)

		state, err := store.Latest(ctx, threadID)
		require.NoError(t, err)
		state.Messages[0].Content = "mutated"

		again, err := store.Latest(ctx, threadID)
		require.NoError(t, err)
		assert.Equal(t, "original", again.Messages[0].Content)
	})

	t.Run("ListThreads is idempotent", func(t *testing.T) {
		t1 := prefix + "-list-1"
		t2 := prefix + "-list-2"
		_, err := store.Append(ctx, t1, domain.UserMessage("a"))
		require.NoError(t, err)
		_, err = store.Append(ctx, t1, domain.UserMessage("b"))
		require.NoError(t, err)
		_, err = store.Append(ctx, t2, domain.UserMessage("c"))
		require.NoError(t, err)

		threads, err := store.ListThreads(ctx)
		require.NoError(t, err)
		count := 0
		for _, id := range threads {
			if id == t1 {
				count++
			}
		}
		assert.Equal(t, 1, count, "thread must be listed exactly once")
		assert.Contains(t, threads, t2)
	})

	t.Run("Empty append is a no-op", func(t *testing.T) {
		threadID := prefix + "-noop"
		cp, err := store.Append(ctx, threadID)
		require.NoError(t, err)
		assert.Empty(t, cp.Messages)

		threads, err := store.ListThreads(ctx)
		require.NoError(t, err)
		assert.NotContains(t, threads, threadID)
	})

	t.Run("Empty thread id", func(t *testing.T) {
		_, err := store.Append(ctx, "", domain.UserMessage("x"))
		assert.ErrorIs(t, err, domain.ErrEmptyThreadID)

		_, err = store.Latest(ctx, "")
		assert.ErrorIs(t, err, domain.ErrEmptyThreadID)
	})
}

package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"strings"
	"testing"

	"github.com/aretw0/itinera/pkg/adapters/memory"
	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/persistence/middleware"
	"github.com/aretw0/itinera/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func encrypted(t *testing.T, next ports.CheckpointStore, cfg middleware.EncryptionConfig) ports.CheckpointStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw(next)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunCheckpointStoreContract(t, encrypted(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	call := domain.ToolCall{ID: "c1", Name: "login", Arguments: map[string]any{"password": "my-secret-sauce"}}
	msgs := []domain.Message{
		domain.UserMessage("my secret is my-secret-sauce"),
		domain.AssistantMessage("", call),
		domain.ToolResultMessage(call, "ok"),
	}
	cp, err := secure.Append(ctx, "t-1", msgs...)
	require.NoError(t, err)
	assert.Equal(t, msgs, cp.Messages, "the checkpoint reports the plain messages")

	raw, err := underlying.Latest(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, raw.Messages, 3)
	for i, stored := range raw.Messages {
		assert.NotContains(t, stored.Content, "my-secret-sauce")
		assert.Empty(t, stored.ToolCalls)
		assert.Equal(t, msgs[i].Role, stored.Role, "role stays routable")
	}
	assert.Equal(t, "c1", raw.Messages[2].CallID)

	state, err := secure.Latest(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, msgs, state.Messages)
	assert.Equal(t, cp.Seq, state.Seq)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	_, err := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey}).
		Append(ctx, "t-1", domain.UserMessage("written with the old key"))
	require.NoError(t, err)

	rotated := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})
	_, err = rotated.Append(ctx, "t-1", domain.UserMessage("written with the new key"))
	require.NoError(t, err)

	state, err := rotated.Latest(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, "written with the old key", state.Messages[0].Content)

	_, err = encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: newKey}).Latest(ctx, "t-1")
	assert.ErrorContains(t, err, "decryption failed")
}

func TestEncryptionMiddleware_Failures(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	assert.Error(t, err)

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte(strings.Repeat("x", 16))},
	})
	assert.Error(t, err)

	underlying := memory.NewStore()
	_, err = underlying.Append(context.Background(), "plain", domain.UserMessage("not sealed"))
	require.NoError(t, err)
	_, err = encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)}).Latest(context.Background(), "plain")
	assert.ErrorIs(t, err, middleware.ErrNotEncrypted)
}

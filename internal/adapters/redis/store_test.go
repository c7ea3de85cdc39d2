package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/itinera/internal/adapters/redis"
	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunCheckpointStoreContract(t, redis.NewFromClient(client))
}

func TestRedisStore_Layout(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithPrefix("test:"))
	ctx := context.Background()

	cp, err := store.Append(ctx, "t1", domain.UserMessage("Hello"), domain.AssistantMessage("Hi"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), cp.Seq)

	items, err := mr.List("test:thread:t1")
	require.NoError(t, err)
	assert.Len(t, items, 2, "one entry per message")

	members, err := mr.ZMembers("test:threads")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, members)
}

func TestRedisStore_TTLExpiresThreads(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithTTL(time.Minute))
	ctx := context.Background()

	_, err := store.Append(ctx, "short-lived", domain.UserMessage("x"))
	require.NoError(t, err)
	assert.True(t, mr.Exists("itinera:thread:short-lived"))

	mr.FastForward(2 * time.Minute)

	state, err := store.Latest(ctx, "short-lived")
	require.NoError(t, err)
	assert.Empty(t, state.Messages)
}

func TestRedisStore_UnavailableServer(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)
	mr.Close()

	_, err := store.Append(context.Background(), "t1", domain.UserMessage("x"))
	var pe *domain.PersistenceError
	assert.ErrorAs(t, err, &pe)
}

package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/aretw0/itinera/pkg/adapters/memory"
	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunCheckpointStoreContract(t, store)
}

func TestMemoryStore_ConcurrentAppendsKeepDenseSequence(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Append(ctx, "busy", domain.UserMessage("x"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := store.Latest(ctx, "busy")
	require.NoError(t, err)
	assert.Len(t, state.Messages, 50)
	assert.Equal(t, int64(50), state.Seq)
}

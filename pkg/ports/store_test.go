package ports_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/ports"
)

// MockStore keeps serialized records per thread, mimicking a durable backend.
type MockStore struct {
	mu   sync.Mutex
	data map[string][][]byte
}

func NewMockStore() *MockStore {
	return &MockStore{data: make(map[string][][]byte)}
}

func (m *MockStore) Append(ctx context.Context, threadID string, msgs ...domain.Message) (domain.Checkpoint, error) {
	if threadID == "" {
		return domain.Checkpoint{}, domain.ErrEmptyThreadID
	}
	if len(msgs) == 0 {
		return domain.Checkpoint{ThreadID: threadID}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	records := domain.NewRecords(threadID, int64(len(m.data[threadID])), time.Now().UTC(), msgs...)
	for _, r := range records {
		raw, err := json.Marshal(r)
		if err != nil {
			return domain.Checkpoint{}, domain.NewPersistenceError("append", threadID, err)
		}
		m.data[threadID] = append(m.data[threadID], raw)
	}
	return domain.CheckpointOf(threadID, records), nil
}

func (m *MockStore) Latest(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	if threadID == "" {
		return nil, domain.ErrEmptyThreadID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]domain.Record, 0, len(m.data[threadID]))
	for _, raw := range m.data[threadID] {
		var r domain.Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, domain.NewPersistenceError("latest", threadID, err)
		}
		records = append(records, r)
	}
	return domain.Fold(threadID, records), nil
}

func (m *MockStore) ListThreads(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	return ids, nil
}

func TestMockStoreContract(t *testing.T) {
	ports.RunCheckpointStoreContract(t, NewMockStore())
}

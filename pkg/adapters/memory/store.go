package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/itinera/pkg/domain"
)

// Store implements ports.CheckpointStore in memory.
// Safe for concurrent use. Contents are lost when the process exits.
type Store struct {
	data map[string][]domain.Record
	mu   sync.RWMutex
	now  func() time.Time
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]domain.Record),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Append records msgs after the thread's last record.
func (s *Store) Append(ctx context.Context, threadID string, msgs ...domain.Message) (domain.Checkpoint, error) {
	if threadID == "" {
		return domain.Checkpoint{}, domain.ErrEmptyThreadID
	}
	if len(msgs) == 0 {
		return domain.Checkpoint{ThreadID: threadID}, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.Checkpoint{}, domain.NewPersistenceError("append", threadID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.data[threadID]
	var lastSeq int64
	if n := len(existing); n > 0 {
		lastSeq = existing[n-1].Seq
	}
	// NewRecords clones each message, so callers can't mutate stored history.
	records := domain.NewRecords(threadID, lastSeq, s.now(), msgs...)
	s.data[threadID] = append(existing, records...)

	return domain.CheckpointOf(threadID, records), nil
}

// Latest folds the thread's records into a fresh copy.
func (s *Store) Latest(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	if threadID == "" {
		return nil, domain.ErrEmptyThreadID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return domain.Fold(threadID, s.data[threadID]).Clone(), nil
}

// ListThreads returns every thread that has at least one record.
func (s *Store) ListThreads(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threads := make([]string, 0, len(s.data))
	for id := range s.data {
		threads = append(threads, id)
	}
	return threads, nil
}

package ports

import (
	"context"

	"github.com/aretw0/itinera/pkg/domain"
)

// CheckpointStore is the durable, append-only record of every thread.
// Records are never mutated or deleted by the engine.
type CheckpointStore interface {
	// Append durably writes msgs, in order, after the thread's last record.
	// Once it returns, Latest observes the new messages.
	// Failures are reported as *domain.PersistenceError.
	Append(ctx context.Context, threadID string, msgs ...domain.Message) (domain.Checkpoint, error)

	// Latest folds every record of the thread in write order.
	// An unknown thread yields an empty state and no error.
	Latest(ctx context.Context, threadID string) (*domain.ConversationState, error)

	// ListThreads enumerates every distinct thread id ever appended, in no particular order.
	ListThreads(ctx context.Context) ([]string, error)
}

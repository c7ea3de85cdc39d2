package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/itinera/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.CheckpointStore using Redis.
//
// Every thread is a list of JSON entries (one per message, in write order); the
// sequence number of an entry is its 1-based list position. A sorted set indexes
// thread ids by last activity.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Store)

// WithTTL expires idle threads. Zero (the default) keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// entry is the stored value; Seq and ThreadID are implied by the key and position.
type entry struct {
	CreatedAt time.Time      `json:"created_at"`
	Message   domain.Message `json:"message"`
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "itinera:",
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(threadID string) string {
	return s.prefix + "thread:" + threadID
}

func (s *Store) indexKey() string {
	return s.prefix + "threads"
}

// Append pushes msgs in one MULTI/EXEC transaction together with the index update.
func (s *Store) Append(ctx context.Context, threadID string, msgs ...domain.Message) (domain.Checkpoint, error) {
	if threadID == "" {
		return domain.Checkpoint{}, domain.ErrEmptyThreadID
	}
	if len(msgs) == 0 {
		return domain.Checkpoint{ThreadID: threadID}, nil
	}

	at := s.now()
	values := make([]any, len(msgs))
	for i, m := range msgs {
		data, err := json.Marshal(entry{CreatedAt: at, Message: m})
		if err != nil {
			return domain.Checkpoint{}, domain.NewPersistenceError("append", threadID, fmt.Errorf("failed to marshal message: %w", err))
		}
		values[i] = data
	}

	pipe := s.client.TxPipeline()
	push := pipe.RPush(ctx, s.key(threadID), values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(threadID), s.ttl)
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: s.score(at), Member: threadID})
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Checkpoint{}, domain.NewPersistenceError("append", threadID, fmt.Errorf("failed to append to redis: %w", err))
	}

	length := push.Val()
	records := domain.NewRecords(threadID, length-int64(len(msgs)), at, msgs...)
	return domain.CheckpointOf(threadID, records), nil
}

// Latest reads the whole list and folds it.
func (s *Store) Latest(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	if threadID == "" {
		return nil, domain.ErrEmptyThreadID
	}

	vals, err := s.client.LRange(ctx, s.key(threadID), 0, -1).Result()
	if err != nil && !errors.Is(err, backend.Nil) {
		return nil, domain.NewPersistenceError("latest", threadID, fmt.Errorf("failed to read from redis: %w", err))
	}

	records := make([]domain.Record, len(vals))
	for i, val := range vals {
		var e entry
		if err := json.Unmarshal([]byte(val), &e); err != nil {
			return nil, domain.NewPersistenceError("latest", threadID, fmt.Errorf("corrupt entry %d: %w", i+1, err))
		}
		records[i] = domain.Record{ThreadID: threadID, Seq: int64(i + 1), CreatedAt: e.CreatedAt, Message: e.Message}
	}
	return domain.Fold(threadID, records), nil
}

// ListThreads returns thread ids, most recently active first.
// Expired threads are pruned from the index lazily.
func (s *Store) ListThreads(ctx context.Context) ([]string, error) {
	if s.ttl > 0 {
		now := float64(s.now().Unix())
		err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
		if err != nil {
			return nil, domain.NewPersistenceError("list", "", fmt.Errorf("failed to prune expired threads: %w", err))
		}
	}

	threads, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, domain.NewPersistenceError("list", "", fmt.Errorf("failed to list threads: %w", err))
	}
	return threads, nil
}

// score orders the index by activity; with a TTL it is the expiry instant.
func (s *Store) score(at time.Time) float64 {
	return float64(at.Add(s.ttl).Unix())
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

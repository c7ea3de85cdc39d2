package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/itinera/pkg/domain"
	_ "modernc.org/sqlite"
)

// Store implements ports.CheckpointStore on SQLite.
// Each message is one row keyed by (thread_id, seq).
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New opens (or creates) the database at path. Parent directories are created if needed.
func New(path string, opts ...Option) (*Store, error) {
	s := &Store{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sqlite_store")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=FULL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting synchronous mode: %w", err)
	}

	s.db = db
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id  TEXT    NOT NULL,
			seq        INTEGER NOT NULL,
			created_at TEXT    NOT NULL,
			role       TEXT    NOT NULL,
			payload    TEXT    NOT NULL,
			PRIMARY KEY (thread_id, seq)
		);
	`)
	return err
}

// Append inserts msgs in one transaction after the thread's highest seq.
func (s *Store) Append(ctx context.Context, threadID string, msgs ...domain.Message) (domain.Checkpoint, error) {
	if threadID == "" {
		return domain.Checkpoint{}, domain.ErrEmptyThreadID
	}
	if len(msgs) == 0 {
		return domain.Checkpoint{ThreadID: threadID}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Checkpoint{}, domain.NewPersistenceError("append", threadID, fmt.Errorf("beginning transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	var last int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM checkpoints WHERE thread_id = ?`, threadID,
	).Scan(&last)
	if err != nil {
		return domain.Checkpoint{}, domain.NewPersistenceError("append", threadID, fmt.Errorf("reading last seq: %w", err))
	}

	records := domain.NewRecords(threadID, last, time.Now().UTC(), msgs...)
	for _, r := range records {
		payload, err := json.Marshal(r.Message)
		if err != nil {
			return domain.Checkpoint{}, domain.NewPersistenceError("append", threadID, fmt.Errorf("marshaling message: %w", err))
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO checkpoints (thread_id, seq, created_at, role, payload) VALUES (?, ?, ?, ?, ?)`,
			r.ThreadID, r.Seq, r.CreatedAt.Format(time.RFC3339Nano), string(r.Message.Role), string(payload),
		)
		if err != nil {
			return domain.Checkpoint{}, domain.NewPersistenceError("append", threadID, fmt.Errorf("inserting record %d: %w", r.Seq, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Checkpoint{}, domain.NewPersistenceError("append", threadID, fmt.Errorf("committing: %w", err))
	}
	return domain.CheckpointOf(threadID, records), nil
}

// Latest folds every row of the thread ordered by seq.
func (s *Store) Latest(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	if threadID == "" {
		return nil, domain.ErrEmptyThreadID
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, created_at, payload FROM checkpoints WHERE thread_id = ? ORDER BY seq`, threadID)
	if err != nil {
		return nil, domain.NewPersistenceError("latest", threadID, fmt.Errorf("querying records: %w", err))
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var (
			r         = domain.Record{ThreadID: threadID}
			createdAt string
			payload   string
		)
		if err := rows.Scan(&r.Seq, &createdAt, &payload); err != nil {
			return nil, domain.NewPersistenceError("latest", threadID, fmt.Errorf("scanning record: %w", err))
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, domain.NewPersistenceError("latest", threadID, fmt.Errorf("record %d timestamp: %w", r.Seq, err))
		}
		if err := json.Unmarshal([]byte(payload), &r.Message); err != nil {
			return nil, domain.NewPersistenceError("latest", threadID, fmt.Errorf("record %d payload: %w", r.Seq, err))
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewPersistenceError("latest", threadID, err)
	}
	return domain.Fold(threadID, records), nil
}

// ListThreads returns every distinct thread id.
func (s *Store) ListThreads(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT thread_id FROM checkpoints`)
	if err != nil {
		return nil, domain.NewPersistenceError("list", "", fmt.Errorf("querying threads: %w", err))
	}
	defer rows.Close()

	threads := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.NewPersistenceError("list", "", err)
		}
		threads = append(threads, id)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewPersistenceError("list", "", err)
	}
	return threads, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/itinera/pkg/domain"
)

const ext = ".jsonl"

// Store implements ports.CheckpointStore on the local filesystem.
// Each thread is one JSON Lines file holding a domain.Record per line, in write order.
type Store struct {
	BasePath string

	mu      sync.Mutex
	lastSeq map[string]int64
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".itinera/threads".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".itinera", "threads")
	}
	return &Store{BasePath: basePath, lastSeq: make(map[string]int64)}
}

// Append writes msgs as new lines and fsyncs before returning.
func (s *Store) Append(ctx context.Context, threadID string, msgs ...domain.Message) (domain.Checkpoint, error) {
	if threadID == "" {
		return domain.Checkpoint{}, domain.ErrEmptyThreadID
	}
	if len(msgs) == 0 {
		return domain.Checkpoint{ThreadID: threadID}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		return domain.Checkpoint{}, domain.NewPersistenceError("append", threadID, fmt.Errorf("failed to ensure thread directory: %w", err))
	}

	path := s.path(threadID)
	last, ok := s.lastSeq[threadID]
	if !ok {
		seq, err := recoverTail(path)
		if err != nil {
			return domain.Checkpoint{}, domain.NewPersistenceError("append", threadID, err)
		}
		last = seq
	}

	records := domain.NewRecords(threadID, last, time.Now().UTC(), msgs...)
	var buf bytes.Buffer
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return domain.Checkpoint{}, domain.NewPersistenceError("append", threadID, fmt.Errorf("failed to marshal record: %w", err))
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return domain.Checkpoint{}, domain.NewPersistenceError("append", threadID, fmt.Errorf("failed to open thread file: %w", err))
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		// The file may now end in a torn line; force a tail check on the next append.
		delete(s.lastSeq, threadID)
		return domain.Checkpoint{}, domain.NewPersistenceError("append", threadID, fmt.Errorf("failed to write records: %w", err))
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		delete(s.lastSeq, threadID)
		return domain.Checkpoint{}, domain.NewPersistenceError("append", threadID, fmt.Errorf("failed to fsync thread file: %w", err))
	}
	if err := f.Close(); err != nil {
		delete(s.lastSeq, threadID)
		return domain.Checkpoint{}, domain.NewPersistenceError("append", threadID, fmt.Errorf("failed to close thread file: %w", err))
	}

	s.lastSeq[threadID] = records[len(records)-1].Seq
	return domain.CheckpointOf(threadID, records), nil
}

// Latest reads and folds the thread file.
// A trailing line without a newline was never acknowledged and is ignored.
func (s *Store) Latest(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	if threadID == "" {
		return nil, domain.ErrEmptyThreadID
	}

	records, _, err := readRecords(s.path(threadID))
	if err != nil {
		return nil, domain.NewPersistenceError("latest", threadID, err)
	}
	return domain.Fold(threadID, records), nil
}

// ListThreads returns the ids of every thread file.
func (s *Store) ListThreads(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, domain.NewPersistenceError("list", "", fmt.Errorf("failed to list threads: %w", err))
	}

	threads := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		id, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, ext))
		if err != nil {
			continue
		}
		threads = append(threads, string(id))
	}
	return threads, nil
}

// path maps an opaque thread id to a filesystem-safe name.
func (s *Store) path(threadID string) string {
	return filepath.Join(s.BasePath, base64.RawURLEncoding.EncodeToString([]byte(threadID))+ext)
}

// readRecords decodes every complete line. validLen is the byte length of those lines.
func readRecords(path string) ([]domain.Record, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to open thread file: %w", err)
	}
	defer f.Close()

	var (
		records  []domain.Record
		validLen int64
		reader   = bufio.NewReader(f)
	)
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// Torn tail (or clean EOF when line is empty).
			return records, validLen, nil
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read thread file: %w", err)
		}

		var r domain.Record
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, 0, fmt.Errorf("corrupt record at offset %d: %w", validLen, err)
		}
		records = append(records, r)
		validLen += int64(len(line))
	}
}

// recoverTail returns the last sequence number and drops any torn trailing line.
func recoverTail(path string) (int64, error) {
	records, validLen, err := readRecords(path)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to stat thread file: %w", err)
	}
	if info.Size() > validLen {
		if err := os.Truncate(path, validLen); err != nil {
			return 0, fmt.Errorf("failed to drop torn record: %w", err)
		}
	}
	if len(records) == 0 {
		return 0, nil
	}
	return records[len(records)-1].Seq, nil
}

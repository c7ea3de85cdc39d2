package http

import (
	"log/slog"
	"sync"

	"github.com/aretw0/itinera/pkg/domain"
)

// StreamManager fans live turn events out to watchers of a thread.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan domain.Event]struct{} // ThreadID -> set of channels
	closed      bool
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan domain.Event]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a watcher. The returned func unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(threadID string) (<-chan domain.Event, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan domain.Event, 16)
	if sm.closed {
		close(ch)
		return ch, func() {}
	}
	if _, ok := sm.subscribers[threadID]; !ok {
		sm.subscribers[threadID] = make(map[chan domain.Event]struct{})
	}
	sm.subscribers[threadID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[threadID]; ok {
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, threadID)
			}
		}
	}
}

// Broadcast delivers ev to every watcher of threadID. Slow watchers miss events
// rather than stall the turn.
func (sm *StreamManager) Broadcast(threadID string, ev domain.Event) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[threadID] {
		select {
		case ch <- ev:
		default:
			sm.logger.Warn("SSE: watcher buffer full, dropping event", "thread_id", threadID, "kind", ev.Kind)
		}
	}
}

// Watchers returns how many watchers threadID has.
func (sm *StreamManager) Watchers(threadID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[threadID])
}

// Close ends every watcher stream and refuses new ones. Registered as a server
// shutdown hook so open /events requests do not hold up graceful shutdown.
func (sm *StreamManager) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.closed = true
	for threadID, subs := range sm.subscribers {
		for ch := range subs {
			close(ch)
		}
		delete(sm.subscribers, threadID)
	}
}

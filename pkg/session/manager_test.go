package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/itinera/pkg/ports"
	"github.com/aretw0/itinera/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SerializesSameThread(t *testing.T) {
	manager := session.NewManager()
	ctx := context.Background()

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.WithLock(ctx, "race-test", func(context.Context) error {
				n := inside.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(5 * time.Millisecond) // Simulate IO
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load(), "turns on one thread must not overlap")
	assert.Zero(t, manager.Active())
}

func TestManager_DifferentThreadsRunConcurrently(t *testing.T) {
	manager := session.NewManager()
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = manager.WithLock(ctx, "a", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	done := make(chan error, 1)
	go func() {
		done <- manager.WithLock(ctx, "b", func(context.Context) error { return nil })
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("thread b blocked behind thread a")
	}
	close(release)
}

func TestManager_TryWithLock(t *testing.T) {
	manager := session.NewManager()
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = manager.WithLock(ctx, "t1", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := manager.TryWithLock(ctx, "t1", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, session.ErrThreadBusy)

	close(release)
	require.Eventually(t, func() bool {
		return manager.TryWithLock(ctx, "t1", func(context.Context) error { return nil }) == nil
	}, time.Second, 10*time.Millisecond)
}

func TestManager_WaitHonorsContext(t *testing.T) {
	manager := session.NewManager()

	held := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	go func() {
		_ = manager.WithLock(context.Background(), "t1", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := manager.WithLock(ctx, "t1", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type recordingLocker struct {
	mu       sync.Mutex
	locked   []string
	unlocked []string
	fail     bool
}

func (l *recordingLocker) Lock(_ context.Context, key string, _ time.Duration) (ports.UnlockFunc, error) {
	if l.fail {
		return nil, errors.New("redis down")
	}
	l.mu.Lock()
	l.locked = append(l.locked, key)
	l.mu.Unlock()
	return func(context.Context) error {
		l.mu.Lock()
		l.unlocked = append(l.unlocked, key)
		l.mu.Unlock()
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &recordingLocker{}
	manager := session.NewManager(session.WithLocker(locker))

	called := false
	err := manager.WithLock(context.Background(), "t1", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, []string{"t1"}, locker.locked)
	assert.Equal(t, []string{"t1"}, locker.unlocked)

	locker.fail = true
	err = manager.WithLock(context.Background(), "t1", func(context.Context) error {
		t.Fatal("must not run without the distributed lock")
		return nil
	})
	assert.ErrorContains(t, err, "distributed lock")
}

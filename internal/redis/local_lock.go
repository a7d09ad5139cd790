package redisclient

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// localProviderLocker is the single-instance fallback used when no Redis is
// configured, and in tests.
type localProviderLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*localSlot
	wait  time.Duration
}

type localSlot struct {
	sem  chan struct{}
	refs int
}

// NewLocalProviderLocker returns an in-process Locker. A wait of zero or less
// blocks until the lock is free or ctx is done.
func NewLocalProviderLocker(wait time.Duration) Locker {
	return &localProviderLocker{
		slots: make(map[uuid.UUID]*localSlot),
		wait:  wait,
	}
}

func (l *localProviderLocker) WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error {
	slot := l.ref(providerID)
	defer l.unref(providerID, slot)

	var timeout <-chan time.Time
	if l.wait > 0 {
		timer := time.NewTimer(l.wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case slot.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return ErrLockNotAcquired
	}
	defer func() { <-slot.sem }()

	return fn(ctx)
}

func (l *localProviderLocker) ref(providerID uuid.UUID) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[providerID]
	if !ok {
		slot = &localSlot{sem: make(chan struct{}, 1)}
		l.slots[providerID] = slot
	}
	slot.refs++
	return slot
}

func (l *localProviderLocker) unref(providerID uuid.UUID, slot *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, providerID)
	}
}

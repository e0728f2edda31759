package booking

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrLockNotAcquired means another caller currently holds the critical
// section for the same slot. Callers fail fast instead of queueing.
var ErrLockNotAcquired = errors.New("slot lock not acquired")

// SlotLocker guards the reserve/release critical section per slot.
// Locks on distinct slots never contend with each other.
type SlotLocker interface {
	WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error
}

type memorySlotLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*slotLock
}

type slotLock struct {
	mu   sync.Mutex
	refs int
}

// NewMemorySlotLocker returns an in-process locker backed by a per-slot
// mutex table. Entries are reference counted and removed when idle, so the
// table does not grow with the total number of slots ever locked.
func NewMemorySlotLocker() SlotLocker {
	return &memorySlotLocker{locks: make(map[uuid.UUID]*slotLock)}
}

func (l *memorySlotLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	entry := l.acquireEntry(slotID)
	if !entry.mu.TryLock() {
		l.releaseEntry(slotID)
		return ErrLockNotAcquired
	}
	defer func() {
		entry.mu.Unlock()
		l.releaseEntry(slotID)
	}()

	return fn(ctx)
}

func (l *memorySlotLocker) acquireEntry(slotID uuid.UUID) *slotLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[slotID]
	if !ok {
		entry = &slotLock{}
		l.locks[slotID] = entry
	}
	entry.refs++
	return entry
}

func (l *memorySlotLocker) releaseEntry(slotID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[slotID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, slotID)
	}
}

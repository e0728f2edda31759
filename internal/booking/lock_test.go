package booking

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerSerializesSameSlot(t *testing.T) {
	locker := NewMemorySlotLocker()
	slotID := uuid.New()
	ctx := context.Background()

	inside := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan error, 1)

	go func() {
		firstDone <- locker.WithSlotLock(ctx, slotID, func(context.Context) error {
			close(inside)
			<-release
			return nil
		})
	}()

	<-inside

	// A second caller on the same slot fails fast instead of queueing.
	err := locker.WithSlotLock(ctx, slotID, func(context.Context) error {
		t.Error("critical section entered while the lock was held")
		return nil
	})
	require.ErrorIs(t, err, ErrLockNotAcquired)

	// A caller on a different slot is unaffected.
	ran := false
	err = locker.WithSlotLock(ctx, uuid.New(), func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	close(release)
	require.NoError(t, <-firstDone)

	// Once released, the slot lock is free again.
	err = locker.WithSlotLock(ctx, slotID, func(context.Context) error { return nil })
	require.NoError(t, err)
}

func TestMemoryLockerCleansUpIdleEntries(t *testing.T) {
	locker := NewMemorySlotLocker().(*memorySlotLocker)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		err := locker.WithSlotLock(ctx, uuid.New(), func(context.Context) error { return nil })
		require.NoError(t, err)
	}

	locker.mu.Lock()
	defer locker.mu.Unlock()
	assert.Empty(t, locker.locks, "idle lock entries must be removed from the table")
}

func TestMemoryLockerPropagatesError(t *testing.T) {
	locker := NewMemorySlotLocker()

	err := locker.WithSlotLock(context.Background(), uuid.New(), func(context.Context) error {
		return ErrSlotUnavailable
	})
	require.ErrorIs(t, err, ErrSlotUnavailable)
}

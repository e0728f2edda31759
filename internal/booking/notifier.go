package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Availability is a point-in-time view of a slot as shown to a deciding
// client. A missing slot is reported as unavailable with a message rather
// than an error: from the client's perspective "gone" and "taken" are the
// same thing.
type Availability struct {
	Available bool
	Message   string
}

// Notifier serves point-in-time and repeated availability queries against
// the slot store.
type Notifier struct {
	store Store
	log   *zap.Logger
}

func NewNotifier(store Store, log *zap.Logger) *Notifier {
	return &Notifier{store: store, log: log}
}

func (n *Notifier) Check(ctx context.Context, slotID uuid.UUID) (Availability, error) {
	slot, err := n.store.GetSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return Availability{Available: false, Message: "this time slot no longer exists"}, nil
		}
		return Availability{}, fmt.Errorf("load slot: %w", err)
	}
	if !slot.Available {
		return Availability{Available: false, Message: "this time slot has been booked"}, nil
	}
	return Availability{Available: true}, nil
}

// WatchFunc receives the latest availability on every tick of a watch.
type WatchFunc func(available bool, message string)

// defaultWatchInterval matches the poll interval clients use; a watch
// created with a non-positive interval falls back to it.
const defaultWatchInterval = 5 * time.Second

// Watch polls the slot on the given interval and invokes fn with the
// latest availability on every tick. The first unavailable observation is
// terminal: the watch stops itself and issues no further ticks. The
// caller owns the watch lifetime otherwise and must call Stop on disposal.
func (n *Notifier) Watch(slotID uuid.UUID, interval time.Duration, fn WatchFunc) *Watch {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	w := &Watch{
		stopc: make(chan struct{}),
		done:  make(chan struct{}),
	}
	go w.run(n, slotID, interval, fn)
	return w
}

// Watch is a client-held subscription handle. All callbacks run on the
// watch's own goroutine, so ticks are never concurrent with each other.
type Watch struct {
	mu      sync.Mutex
	stopped bool
	inTick  bool
	stopc   chan struct{}
	done    chan struct{}
}

func (w *Watch) run(n *Notifier, slotID uuid.UUID, interval time.Duration, fn WatchFunc) {
	defer close(w.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopc:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		avail, err := n.Check(ctx, slotID)
		cancel()
		if err != nil {
			// Transient store failure: skip this tick, the next one will
			// observe again.
			n.log.Warn("availability check failed",
				zap.String("slot_id", slotID.String()), zap.Error(err))
			continue
		}

		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return
		}
		w.inTick = true
		w.mu.Unlock()

		fn(avail.Available, avail.Message)

		w.mu.Lock()
		w.inTick = false
		stopped := w.stopped
		w.mu.Unlock()

		if stopped {
			return
		}
		if !avail.Available {
			// Terminal observation: the slot cannot become available
			// again except via an explicit release, which a fresh watch
			// would observe.
			w.markStopped()
			return
		}
	}
}

// Stop terminates the watch. It is idempotent and safe to call before the
// first tick, after the watch stopped itself, and from inside the
// callback. No new callback starts after Stop returns. Like
// time.Timer.Stop it does not wait for a callback it races with: a
// caller inside the callback cannot be told apart from any other
// goroutine, so a Stop that finds a tick in flight returns immediately.
func (w *Watch) Stop() {
	selfStop := w.markStopped()
	if !selfStop {
		<-w.done
	}
}

func (w *Watch) markStopped() (inTick bool) {
	w.mu.Lock()
	already := w.stopped
	w.stopped = true
	inTick = w.inTick
	w.mu.Unlock()

	if !already {
		close(w.stopc)
	}
	return inTick
}

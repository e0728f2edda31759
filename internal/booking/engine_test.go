package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*MemStore, Doctor, TimeSlot) {
	t.Helper()

	store := NewMemStore()

	spec := Specialization{ID: uuid.New(), Name: "Kardiologie"}
	store.AddSpecialization(spec)

	doctor := Doctor{ID: uuid.New(), Name: "Dr. Anna Schmidt", SpecializationID: spec.ID}
	store.AddDoctor(doctor)

	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	slot := TimeSlot{
		ID:        uuid.New(),
		DoctorID:  doctor.ID,
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		Available: true,
	}
	store.AddSlot(slot)

	return store, doctor, slot
}

func newTestEngine(store Store) *Engine {
	return NewEngine(store, NewMemorySlotLocker(), zap.NewNop())
}

func TestReserveValidation(t *testing.T) {
	store, _, slot := newTestStore(t)
	engine := newTestEngine(store)
	ctx := context.Background()

	cases := []struct {
		name  string
		pname string
		email string
	}{
		{"empty name", "", "max@example.com"},
		{"whitespace name", "   ", "max@example.com"},
		{"empty email", "Max Mustermann", ""},
		{"email without at sign", "Max Mustermann", "not-an-email"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Reserve(ctx, slot.ID, tc.pname, tc.email)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
		})
	}

	// Validation failures must not touch the slot.
	got, err := store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.True(t, got.Available)
}

func TestReserveUnknownSlot(t *testing.T) {
	store, _, _ := newTestStore(t)
	engine := newTestEngine(store)

	_, err := engine.Reserve(context.Background(), uuid.New(), "Max Mustermann", "max@example.com")
	require.ErrorIs(t, err, ErrSlotNotFound)
}

func TestReserveSuccess(t *testing.T) {
	store, _, slot := newTestStore(t)
	engine := newTestEngine(store)
	ctx := context.Background()

	appt, err := engine.Reserve(ctx, slot.ID, "Max Mustermann", "max@example.com")
	require.NoError(t, err)
	assert.Equal(t, slot.ID, appt.SlotID)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, "Max Mustermann", appt.PatientName)

	got, err := store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, got.Available)
}

func TestReserveTakenSlot(t *testing.T) {
	store, _, slot := newTestStore(t)
	engine := newTestEngine(store)
	ctx := context.Background()

	_, err := engine.Reserve(ctx, slot.ID, "Max Mustermann", "max@example.com")
	require.NoError(t, err)

	_, err = engine.Reserve(ctx, slot.ID, "Erika Musterfrau", "erika@example.com")
	require.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestConcurrentReserveSingleWinner(t *testing.T) {
	const n = 32

	store, _, slot := newTestStore(t)
	engine := newTestEngine(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Reserve(ctx, slot.ID, "Max Mustermann", "max@example.com")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	}
	assert.Equal(t, 1, successes, "exactly one of %d concurrent reserves must win", n)

	got, err := store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, got.Available)

	appts, err := store.FindAppointmentsByEmail(ctx, "max@example.com")
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

func TestConcurrentReserveDistinctSlots(t *testing.T) {
	const n = 16

	store, doctor, _ := newTestStore(t)
	engine := newTestEngine(store)
	ctx := context.Background()

	slotIDs := make([]uuid.UUID, n)
	base := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	for i := range slotIDs {
		id := uuid.New()
		start := base.Add(time.Duration(i) * 30 * time.Minute)
		store.AddSlot(TimeSlot{
			ID: id, DoctorID: doctor.ID,
			StartTime: start, EndTime: start.Add(30 * time.Minute),
			Available: true,
		})
		slotIDs[i] = id
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, id := range slotIDs {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = engine.Reserve(ctx, id, "Max Mustermann", "max@example.com")
		}(i, id)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "reserve on distinct slot %d must not contend", i)
	}
}

func TestReleaseRoundTrip(t *testing.T) {
	store, _, slot := newTestStore(t)
	engine := newTestEngine(store)
	ctx := context.Background()

	appt, err := engine.Reserve(ctx, slot.ID, "Max Mustermann", "max@example.com")
	require.NoError(t, err)

	released, err := engine.Release(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, released.Status)

	got, err := store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.True(t, got.Available, "released slot must be available again")

	// The freed slot behaves like a virgin slot.
	appt2, err := engine.Reserve(ctx, slot.ID, "Erika Musterfrau", "erika@example.com")
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt2.Status)

	got, err = store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, got.Available)
}

func TestReleaseTerminalStates(t *testing.T) {
	store, _, slot := newTestStore(t)
	engine := newTestEngine(store)
	ctx := context.Background()

	appt, err := engine.Reserve(ctx, slot.ID, "Max Mustermann", "max@example.com")
	require.NoError(t, err)

	_, err = engine.Release(ctx, appt.ID)
	require.NoError(t, err)

	// cancelled is terminal
	_, err = engine.Release(ctx, appt.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	// completed is terminal too
	appt2, err := engine.Reserve(ctx, slot.ID, "Erika Musterfrau", "erika@example.com")
	require.NoError(t, err)
	_, err = engine.Complete(ctx, appt2.ID)
	require.NoError(t, err)
	_, err = engine.Release(ctx, appt2.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	// A failed release causes no state change: the slot stays taken.
	got, err := store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, got.Available)
}

func TestReleaseUnknownAppointment(t *testing.T) {
	store, _, _ := newTestStore(t)
	engine := newTestEngine(store)

	_, err := engine.Release(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestContendedSlotCancelRetryScenario(t *testing.T) {
	store, _, slot := newTestStore(t)
	engine := newTestEngine(store)
	ctx := context.Background()

	// Patient A books the 09:00-09:30 slot.
	apptA, err := engine.Reserve(ctx, slot.ID, "Patient A", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, apptA.Status)

	// Patient B loses.
	_, err = engine.Reserve(ctx, slot.ID, "Patient B", "b@example.com")
	require.ErrorIs(t, err, ErrSlotUnavailable)

	// A cancels, freeing the slot.
	_, err = engine.Release(ctx, apptA.ID)
	require.NoError(t, err)

	// B retries and wins.
	apptB, err := engine.Reserve(ctx, slot.ID, "Patient B", "b@example.com")
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, apptB.Status)
}

func TestAtMostOneActiveAppointmentPerSlot(t *testing.T) {
	const workers = 24
	const rounds = 10

	store, _, slot := newTestStore(t)
	engine := newTestEngine(store)
	ctx := context.Background()

	// Hammer the same slot with racing reserve/release pairs, then verify
	// the invariant over everything that was ever created.
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				appt, err := engine.Reserve(ctx, slot.ID, "Max Mustermann", "max@example.com")
				if err != nil {
					continue
				}
				for {
					_, err := engine.Release(ctx, appt.ID)
					if err == nil {
						break
					}
					if errors.Is(err, ErrStoreUnavailable) {
						// Lock contention under hammering, retry.
						continue
					}
					t.Errorf("release of own appointment failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	appts, err := store.FindAppointmentsByEmail(ctx, "max@example.com")
	require.NoError(t, err)

	active := 0
	for _, a := range appts {
		if a.Status == StatusScheduled {
			active++
		}
	}
	assert.LessOrEqual(t, active, 1, "at most one non-cancelled appointment may be bound to a slot")

	got, err := store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	if active == 0 {
		assert.True(t, got.Available)
	} else {
		assert.False(t, got.Available)
	}
}

func TestCompleteElapsed(t *testing.T) {
	store, doctor, pastSlot := newTestStore(t)
	engine := newTestEngine(store)
	ctx := context.Background()

	futureStart := time.Now().Add(24 * time.Hour)
	futureSlot := TimeSlot{
		ID: uuid.New(), DoctorID: doctor.ID,
		StartTime: futureStart, EndTime: futureStart.Add(30 * time.Minute),
		Available: true,
	}
	store.AddSlot(futureSlot)

	past, err := engine.Reserve(ctx, pastSlot.ID, "Max Mustermann", "max@example.com")
	require.NoError(t, err)
	future, err := engine.Reserve(ctx, futureSlot.ID, "Max Mustermann", "max@example.com")
	require.NoError(t, err)

	n, err := engine.CompleteElapsed(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetAppointment(ctx, past.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	got, err = store.GetAppointment(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, got.Status)

	events, err := store.ListEventsByAppointment(ctx, past.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventAppointmentCompleted, events[1].Type)
}

func TestTransitionsRecordAuditEvents(t *testing.T) {
	store, _, slot := newTestStore(t)
	engine := newTestEngine(store)
	ctx := context.Background()

	appt, err := engine.Reserve(ctx, slot.ID, "Max Mustermann", "max@example.com")
	require.NoError(t, err)

	_, err = engine.Release(ctx, appt.ID)
	require.NoError(t, err)

	events, err := store.ListEventsByAppointment(ctx, appt.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventAppointmentReserved, events[0].Type)
	assert.Equal(t, EventAppointmentCancelled, events[1].Type)
	for _, ev := range events {
		assert.Equal(t, appt.ID, ev.AppointmentID)
		assert.False(t, ev.CreatedAt.IsZero())
		assert.NotEmpty(t, ev.Payload)
	}

	appt2, err := engine.Reserve(ctx, slot.ID, "Erika Musterfrau", "erika@example.com")
	require.NoError(t, err)
	_, err = engine.Complete(ctx, appt2.ID)
	require.NoError(t, err)

	events, err = store.ListEventsByAppointment(ctx, appt2.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventAppointmentCompleted, events[1].Type)
}

func TestFindByEmail(t *testing.T) {
	store, _, slot := newTestStore(t)
	engine := newTestEngine(store)
	ctx := context.Background()

	_, err := engine.FindByEmail(ctx, "   ")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)

	appts, err := engine.FindByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, appts, "no match yields an empty sequence, not an error")

	booked, err := engine.Reserve(ctx, slot.ID, "Max Mustermann", "max@example.com")
	require.NoError(t, err)

	appts, err = engine.FindByEmail(ctx, "max@example.com")
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, booked.ID, appts[0].ID)
}

func TestAvailableSlots(t *testing.T) {
	store, doctor, slot := newTestStore(t)
	engine := newTestEngine(store)
	ctx := context.Background()

	_, err := engine.AvailableSlots(ctx, uuid.New(), slot.StartTime.Add(-time.Hour), slot.EndTime.Add(time.Hour))
	require.ErrorIs(t, err, ErrDoctorNotFound)

	slots, err := engine.AvailableSlots(ctx, doctor.ID, slot.StartTime.Add(-time.Hour), slot.EndTime.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, slots, 1)

	_, err = engine.Reserve(ctx, slot.ID, "Max Mustermann", "max@example.com")
	require.NoError(t, err)

	slots, err = engine.AvailableSlots(ctx, doctor.ID, slot.StartTime.Add(-time.Hour), slot.EndTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, slots, "booked slots are not listed as available")
}

package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventAppointmentReserved  = "APPOINTMENT_RESERVED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

// releaseLockAttempts bounds the retries when a release hits lock
// contention on its slot. Contention here is transient (a reserve holds
// the lock only for the critical section), so a couple of retries is
// enough before surfacing ErrStoreUnavailable.
const releaseLockAttempts = 3

// Engine owns all state transitions on slot availability and appointment
// status. It serializes reserve/release per slot id; operations on
// distinct slots run in parallel.
type Engine struct {
	store  Store
	locker SlotLocker
	log    *zap.Logger
}

func NewEngine(store Store, locker SlotLocker, log *zap.Logger) *Engine {
	return &Engine{store: store, locker: locker, log: log}
}

// Reserve books the slot for the given patient. The availability check,
// the flip to unavailable and the appointment insert form one atomic unit
// per slot: of any number of concurrent callers exactly one succeeds, the
// rest get ErrSlotUnavailable.
func (e *Engine) Reserve(ctx context.Context, slotID uuid.UUID, patientName, patientEmail string) (*Appointment, error) {
	name := strings.TrimSpace(patientName)
	if name == "" {
		return nil, validationError("patient_name", "patient_name is required")
	}
	email := strings.TrimSpace(patientEmail)
	if email == "" {
		return nil, validationError("patient_email", "patient_email is required")
	}
	if !strings.Contains(email, "@") {
		return nil, validationError("patient_email", "patient_email must be a valid email address")
	}

	var created *Appointment

	err := e.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		ok, err := e.store.CompareAndSetAvailability(lockCtx, slotID, true, false)
		if err != nil {
			if errors.Is(err, ErrSlotNotFound) {
				return err
			}
			return fmt.Errorf("flip slot availability: %w", err)
		}
		if !ok {
			return ErrSlotUnavailable
		}

		appt, err := e.store.InsertAppointment(lockCtx, Appointment{
			ID:           uuid.New(),
			SlotID:       slotID,
			PatientName:  name,
			PatientEmail: email,
			Status:       StatusScheduled,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			// Undo the flip so a failed reserve leaves the slot exactly
			// as if the call had never been attempted.
			if _, casErr := e.store.CompareAndSetAvailability(lockCtx, slotID, false, true); casErr != nil {
				e.log.Error("failed to restore slot availability after insert failure",
					zap.String("slot_id", slotID.String()), zap.Error(casErr))
			}
			return fmt.Errorf("insert appointment: %w", err)
		}

		created = appt
		e.logEvent(lockCtx, appt.ID, EventAppointmentReserved, map[string]any{
			"slot_id":       slotID.String(),
			"patient_email": email,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, ErrLockNotAcquired) {
			// Lost the race for the critical section. From the caller's
			// perspective this is the same normal outcome as finding the
			// slot taken.
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}

	e.log.Debug("slot reserved",
		zap.String("slot_id", slotID.String()),
		zap.String("appointment_id", created.ID.String()))

	return created, nil
}

// Release cancels a scheduled appointment and frees its slot. The status
// change and the availability flip are atomic with respect to concurrent
// Reserve calls on the same slot; afterwards the slot behaves like it was
// never booked.
func (e *Engine) Release(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := e.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.Status != StatusScheduled {
		return nil, ErrInvalidTransition
	}

	var released *Appointment

	for attempt := 0; ; attempt++ {
		err = e.locker.WithSlotLock(ctx, appt.SlotID, func(lockCtx context.Context) error {
			updated, err := e.store.UpdateAppointmentStatus(lockCtx, appt.ID, StatusScheduled, StatusCancelled)
			if err != nil {
				if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrAppointmentNotFound) {
					return err
				}
				return fmt.Errorf("cancel appointment: %w", err)
			}

			ok, err := e.store.CompareAndSetAvailability(lockCtx, appt.SlotID, false, true)
			if err != nil {
				return fmt.Errorf("free slot: %w", err)
			}
			if !ok {
				// The slot was already available. Reserve/release alternate
				// strictly, so this indicates an out-of-band write.
				e.log.Warn("released appointment but slot was already available",
					zap.String("slot_id", appt.SlotID.String()),
					zap.String("appointment_id", appt.ID.String()))
			}

			released = updated
			e.logEvent(lockCtx, updated.ID, EventAppointmentCancelled, map[string]any{
				"slot_id": appt.SlotID.String(),
			})
			return nil
		})

		if !errors.Is(err, ErrLockNotAcquired) || attempt+1 >= releaseLockAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}

	if err != nil {
		if errors.Is(err, ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: slot lock contended", ErrStoreUnavailable)
		}
		return nil, err
	}

	e.log.Debug("appointment released",
		zap.String("slot_id", appt.SlotID.String()),
		zap.String("appointment_id", appt.ID.String()))

	return released, nil
}

// Complete marks a scheduled appointment as completed. This is an
// administrative transition; the engine exposes it but never drives it on
// its own. The slot stays unavailable since its interval has passed.
func (e *Engine) Complete(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	updated, err := e.store.UpdateAppointmentStatus(ctx, appointmentID, StatusScheduled, StatusCompleted)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}
	e.logEvent(ctx, updated.ID, EventAppointmentCompleted, map[string]any{
		"reason": "manual",
	})
	return updated, nil
}

// CompleteElapsed is intended to be called by the completion worker
// periodically. It marks every scheduled appointment whose slot has ended
// before now as completed.
func (e *Engine) CompleteElapsed(ctx context.Context, now time.Time) (int, error) {
	candidates, err := e.store.FindScheduledEndedBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find elapsed appointments: %w", err)
	}

	completed := 0
	for _, appt := range candidates {
		if _, err := e.store.UpdateAppointmentStatus(ctx, appt.ID, StatusScheduled, StatusCompleted); err != nil {
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrAppointmentNotFound) {
				// Raced with a cancellation, nothing to do.
				continue
			}
			e.log.Error("failed to complete appointment",
				zap.String("appointment_id", appt.ID.String()), zap.Error(err))
			continue
		}
		e.logEvent(ctx, appt.ID, EventAppointmentCompleted, map[string]any{
			"reason": "worker",
		})
		completed++
	}

	return completed, nil
}

// logEvent appends an audit entry for a transition that already happened.
// Audit failures never fail the transition itself.
func (e *Engine) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.log.Error("failed to marshal event payload",
			zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	ev := AppointmentEvent{
		Type:          eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     time.Now().UTC(),
	}
	if err := e.store.InsertEvent(ctx, ev); err != nil {
		e.log.Error("failed to insert appointment event",
			zap.String("event_type", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err))
	}
}

// FindByEmail returns the appointments booked under the given patient
// email, an empty slice when there are none. The email is the sole patient
// identifier; ownership is not verified beyond the match.
func (e *Engine) FindByEmail(ctx context.Context, email string) ([]Appointment, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, validationError("email", "email is required")
	}
	appts, err := e.store.FindAppointmentsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find appointments by email: %w", err)
	}
	if appts == nil {
		appts = []Appointment{}
	}
	return appts, nil
}

// AvailableSlots lists the open slots of a doctor inside [from, to).
func (e *Engine) AvailableSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]TimeSlot, error) {
	if _, err := e.store.GetDoctor(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	slots, err := e.store.ListSlotsByDoctor(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	available := make([]TimeSlot, 0, len(slots))
	for _, s := range slots {
		if s.Available {
			available = append(available, s)
		}
	}
	return available, nil
}

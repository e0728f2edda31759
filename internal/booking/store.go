package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrDoctorNotFound      = errors.New("doctor not found")

	// ErrSlotUnavailable is a normal booking outcome, not a system fault:
	// the slot is already taken or the caller lost a race for it.
	ErrSlotUnavailable = errors.New("slot is not available")

	ErrInvalidTransition = errors.New("invalid appointment status transition")

	// ErrStoreUnavailable marks transient persistence failures. It is the
	// only error kind the engine retries on its own.
	ErrStoreUnavailable = errors.New("store unavailable")
)

type ValidationError struct {
	Field string
	msg   string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(field, msg string) error {
	return &ValidationError{Field: field, msg: msg}
}

// Store contains all persistence interactions needed by the engine,
// notifier and generator. TimeSlot.Available is mutated only through
// CompareAndSetAvailability; Appointment.Status only through
// UpdateAppointmentStatus with an expected current status.
type Store interface {
	GetSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error)

	// CompareAndSetAvailability atomically flips the availability flag of
	// the slot from expected to next. It returns false with a nil error
	// when the slot exists but its flag did not match expected.
	CompareAndSetAvailability(ctx context.Context, slotID uuid.UUID, expected, next bool) (bool, error)

	ListSlotsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]TimeSlot, error)
	InsertSlots(ctx context.Context, slots []TimeSlot) error

	InsertAppointment(ctx context.Context, appt Appointment) (*Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// UpdateAppointmentStatus transitions the appointment status from
	// `from` to `to`. ErrInvalidTransition is returned when the current
	// status does not match `from`.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	FindAppointmentsByEmail(ctx context.Context, email string) ([]Appointment, error)

	// Completion worker
	FindScheduledEndedBefore(ctx context.Context, cutoff time.Time) ([]Appointment, error)

	// Audit trail
	InsertEvent(ctx context.Context, ev AppointmentEvent) error
	ListEventsByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]AppointmentEvent, error)

	// Reference data
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)
	SearchDoctors(ctx context.Context, query string) ([]Doctor, error)
	ListSpecializations(ctx context.Context) ([]Specialization, error)
}

package booking

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Terminal reports whether no further status transition is permitted.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Specialization struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID               uuid.UUID
	Name             string
	SpecializationID uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TimeSlot is a fixed-duration interval offered by one doctor for exactly
// one appointment. Availability is flipped only by the reservation engine:
// false on a successful reserve, back to true on release.
type TimeSlot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Available bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Overlaps reports whether the slot's interval intersects [start, end).
func (s TimeSlot) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && start.Before(s.EndTime)
}

// AppointmentEvent is one entry of the append-only audit trail. Every
// status transition the engine performs appends one; nothing ever updates
// or deletes them.
type AppointmentEvent struct {
	ID            int64
	Type          string
	AppointmentID uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Appointment binds a patient to exactly one time slot. The patient is
// identified by email only; there is no account system.
type Appointment struct {
	ID           uuid.UUID
	SlotID       uuid.UUID
	PatientName  string
	PatientEmail string
	Status       AppointmentStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

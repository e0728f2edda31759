package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/telemedizin/booking/internal/booking"
)

type ReserveRequest struct {
	SlotID       string `json:"slot_id"`
	PatientName  string `json:"patient_name"`
	PatientEmail string `json:"patient_email"`
}

type GenerateSlotsRequest struct {
	From            string `json:"from"` // YYYY-MM-DD
	To              string `json:"to"`   // YYYY-MM-DD
	WorkdayStart    string `json:"workday_start,omitempty"`
	WorkdayEnd      string `json:"workday_end,omitempty"`
	DurationMinutes int    `json:"slot_duration,omitempty"`
}

type AppointmentResponse struct {
	ID           uuid.UUID `json:"id"`
	SlotID       uuid.UUID `json:"slot_id"`
	PatientName  string    `json:"patient_name"`
	PatientEmail string    `json:"patient_email"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

func toAppointmentResponse(a booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		SlotID:       a.SlotID,
		PatientName:  a.PatientName,
		PatientEmail: a.PatientEmail,
		Status:       string(a.Status),
		CreatedAt:    a.CreatedAt,
	}
}

type SlotResponse struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	IsAvailable bool      `json:"is_available"`
}

func toSlotResponses(slots []booking.TimeSlot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{
			ID:          s.ID,
			DoctorID:    s.DoctorID,
			StartTime:   s.StartTime,
			EndTime:     s.EndTime,
			IsAvailable: s.Available,
		})
	}
	return out
}

type AvailabilityResponse struct {
	IsAvailable bool   `json:"is_available"`
	Message     string `json:"message,omitempty"`
}

type DoctorResponse struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	SpecializationID uuid.UUID `json:"specialization_id"`
}

type SpecializationResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

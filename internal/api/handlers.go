package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/telemedizin/booking/internal/booking"
	"github.com/telemedizin/booking/internal/config"
)

func reserveHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		appt, err := engine.Reserve(r.Context(), slotID, req.PatientName, req.PatientEmail)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func cancelHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := chi.URLParam(r, "id")
		id, err := uuid.Parse(idStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := engine.Release(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func appointmentsByEmailHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Query().Get("email")

		appts, err := engine.FindByEmail(r.Context(), email)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for _, a := range appts {
			resp = append(resp, toAppointmentResponse(a))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func checkAvailabilityHandler(notifier *booking.Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := chi.URLParam(r, "id")
		id, err := uuid.Parse(idStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		avail, err := notifier.Check(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			IsAvailable: avail.Available,
			Message:     avail.Message,
		})
	}
}

func doctorSlotsHandler(engine *booking.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := chi.URLParam(r, "id")
		doctorID, err := uuid.Parse(idStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		from, to, err := parseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date_range", err.Error())
			return
		}

		slots, err := engine.AvailableSlots(r.Context(), doctorID, from, to)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func generateSlotsHandler(generator *booking.Generator, cfg config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := chi.URLParam(r, "id")
		doctorID, err := uuid.Parse(idStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		var req GenerateSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		from, err := time.Parse("2006-01-02", req.From)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "from must be YYYY-MM-DD")
			return
		}
		to, err := time.Parse("2006-01-02", req.To)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "to must be YYYY-MM-DD")
			return
		}

		// Config supplies the defaults; the request may narrow them.
		startStr := req.WorkdayStart
		if startStr == "" {
			startStr = cfg.WorkdayStart
		}
		endStr := req.WorkdayEnd
		if endStr == "" {
			endStr = cfg.WorkdayEnd
		}
		workdayStart, err := booking.ParseClock(startStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_workday", "workday_start must be HH:MM")
			return
		}
		workdayEnd, err := booking.ParseClock(endStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_workday", "workday_end must be HH:MM")
			return
		}

		duration := cfg.SlotDuration
		if req.DurationMinutes != 0 {
			if req.DurationMinutes < 0 {
				writeError(w, http.StatusBadRequest, "validation_error", "slot_duration must be a positive number of minutes")
				return
			}
			duration = time.Duration(req.DurationMinutes) * time.Minute
		}

		slots, err := generator.Generate(r.Context(), doctorID, from, to, workdayStart, workdayEnd, duration)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponses(slots))
	}
}

func listDoctorsHandler(store booking.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctors, err := store.ListDoctors(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]DoctorResponse, 0, len(doctors))
		for _, d := range doctors {
			resp = append(resp, DoctorResponse{ID: d.ID, Name: d.Name, SpecializationID: d.SpecializationID})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// searchDoctorsHandler filters doctors by a case-insensitive name match.
// An empty query matches everyone, same as the plain listing.
func searchDoctorsHandler(store booking.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("query"))

		doctors, err := store.SearchDoctors(r.Context(), query)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]DoctorResponse, 0, len(doctors))
		for _, d := range doctors {
			resp = append(resp, DoctorResponse{ID: d.ID, Name: d.Name, SpecializationID: d.SpecializationID})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listSpecializationsHandler(store booking.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		specs, err := store.ListSpecializations(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]SpecializationResponse, 0, len(specs))
		for _, s := range specs {
			resp = append(resp, SpecializationResponse{ID: s.ID, Name: s.Name})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// parseRange parses optional from/to date query params, defaulting to the
// next 7 days.
func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	now := time.Now()
	from := now
	to := now.AddDate(0, 0, 7)

	var err error
	if fromStr != "" {
		from, err = time.Parse("2006-01-02", fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be YYYY-MM-DD")
		}
	}
	if toStr != "" {
		to, err = time.Parse("2006-01-02", toStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be YYYY-MM-DD")
		}
		to = to.AddDate(0, 0, 1) // inclusive end date
	}
	return from, to, nil
}

func handleBookingError(w http.ResponseWriter, err error) {
	var vErr *booking.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, "validation_error", vErr.Error())
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, booking.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "slot is no longer available, please pick another")
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "temporary failure, please retry")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/telemedizin/booking/internal/booking"
	"github.com/telemedizin/booking/internal/config"
)

type testEnv struct {
	store   *booking.MemStore
	handler http.Handler
	doctor  booking.Doctor
	slot    booking.TimeSlot
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := booking.NewMemStore()
	logger := zap.NewNop()

	spec := booking.Specialization{ID: uuid.New(), Name: "Dermatologie"}
	store.AddSpecialization(spec)

	doctor := booking.Doctor{ID: uuid.New(), Name: "Dr. Julia Fischer", SpecializationID: spec.ID}
	store.AddDoctor(doctor)

	start := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
	slot := booking.TimeSlot{
		ID:        uuid.New(),
		DoctorID:  doctor.ID,
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		Available: true,
	}
	store.AddSlot(slot)

	cfg := config.Config{
		Env:          "test",
		SlotDuration: 30 * time.Minute,
		WorkdayStart: "08:00",
		WorkdayEnd:   "18:00",
		PollInterval: 5 * time.Second,
	}

	locker := booking.NewMemorySlotLocker()
	handler := NewRouter(RouterConfig{
		Engine:    booking.NewEngine(store, locker, logger),
		Notifier:  booking.NewNotifier(store, logger),
		Generator: booking.NewGenerator(store, logger),
		Store:     store,
		Cfg:       cfg,
		Log:       logger,
		Version:   "test",
	})

	return &testEnv{store: store, handler: handler, doctor: doctor, slot: slot}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestReserveEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/appointments", ReserveRequest{
		SlotID:       env.slot.ID.String(),
		PatientName:  "Max Mustermann",
		PatientEmail: "max@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decode[AppointmentResponse](t, rec)
	assert.Equal(t, env.slot.ID, resp.SlotID)
	assert.Equal(t, "scheduled", resp.Status)

	// Second booking on the same slot conflicts.
	rec = env.do(t, http.MethodPost, "/appointments", ReserveRequest{
		SlotID:       env.slot.ID.String(),
		PatientName:  "Erika Musterfrau",
		PatientEmail: "erika@example.com",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_unavailable", decode[ErrorResponse](t, rec).Error)
}

func TestReserveEndpointBadInput(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/appointments", ReserveRequest{
		SlotID:       "not-a-uuid",
		PatientName:  "Max Mustermann",
		PatientEmail: "max@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/appointments", ReserveRequest{
		SlotID:       env.slot.ID.String(),
		PatientName:  "",
		PatientEmail: "max@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPost, "/appointments", ReserveRequest{
		SlotID:       uuid.NewString(),
		PatientName:  "Max Mustermann",
		PatientEmail: "max@example.com",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/appointments", ReserveRequest{
		SlotID:       env.slot.ID.String(),
		PatientName:  "Max Mustermann",
		PatientEmail: "max@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	appt := decode[AppointmentResponse](t, rec)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/cancel", appt.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decode[AppointmentResponse](t, rec).Status)

	// Cancelling again violates the state machine.
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/cancel", appt.ID), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", decode[ErrorResponse](t, rec).Error)

	// Unknown id.
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/cancel", uuid.NewString()), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvailabilityEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, fmt.Sprintf("/slots/%s/availability", env.slot.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	avail := decode[AvailabilityResponse](t, rec)
	assert.True(t, avail.IsAvailable)

	// A missing slot is a 200 with is_available=false, not a 404: the
	// polling client treats gone and taken identically.
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/slots/%s/availability", uuid.NewString()), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	avail = decode[AvailabilityResponse](t, rec)
	assert.False(t, avail.IsAvailable)
	assert.NotEmpty(t, avail.Message)
}

func TestAppointmentsByEmailEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/appointments?email=nobody@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]AppointmentResponse](t, rec))

	rec = env.do(t, http.MethodPost, "/appointments", ReserveRequest{
		SlotID:       env.slot.ID.String(),
		PatientName:  "Max Mustermann",
		PatientEmail: "max@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/appointments?email=max@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	appts := decode[[]AppointmentResponse](t, rec)
	require.Len(t, appts, 1)
	assert.Equal(t, "max@example.com", appts[0].PatientEmail)

	rec = env.do(t, http.MethodGet, "/appointments", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateSlotsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	day := time.Now().AddDate(0, 0, 14).Format("2006-01-02")
	rec := env.do(t, http.MethodPost, fmt.Sprintf("/doctors/%s/slots/generate", env.doctor.ID), GenerateSlotsRequest{
		From: day,
		To:   day,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	slots := decode[[]SlotResponse](t, rec)
	assert.Len(t, slots, 20, "a full default workday yields 20 slots")

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/doctors/%s/slots/generate", uuid.NewString()), GenerateSlotsRequest{
		From: day,
		To:   day,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateSlotsEndpointNegativeDuration(t *testing.T) {
	env := newTestEnv(t)

	day := time.Now().AddDate(0, 0, 14).Format("2006-01-02")
	rec := env.do(t, http.MethodPost, fmt.Sprintf("/doctors/%s/slots/generate", env.doctor.ID), GenerateSlotsRequest{
		From:            day,
		To:              day,
		DurationMinutes: -30,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, rec).Error)
}

func TestDoctorSlotsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	from := env.slot.StartTime.AddDate(0, 0, -1).Format("2006-01-02")
	to := env.slot.StartTime.AddDate(0, 0, 1).Format("2006-01-02")

	rec := env.do(t, http.MethodGet,
		fmt.Sprintf("/doctors/%s/slots?from=%s&to=%s", env.doctor.ID, from, to), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decode[[]SlotResponse](t, rec)
	require.Len(t, slots, 1)
	assert.True(t, slots[0].IsAvailable)

	// Booked slots drop out of the listing.
	rec = env.do(t, http.MethodPost, "/appointments", ReserveRequest{
		SlotID:       env.slot.ID.String(),
		PatientName:  "Max Mustermann",
		PatientEmail: "max@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet,
		fmt.Sprintf("/doctors/%s/slots?from=%s&to=%s", env.doctor.ID, from, to), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]SlotResponse](t, rec))
}

func TestReferenceDataEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/doctors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doctors := decode[[]DoctorResponse](t, rec)
	require.Len(t, doctors, 1)
	assert.Equal(t, env.doctor.Name, doctors[0].Name)

	rec = env.do(t, http.MethodGet, "/specializations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]SpecializationResponse](t, rec), 1)
}

func TestSearchDoctorsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.store.AddDoctor(booking.Doctor{
		ID: uuid.New(), Name: "Dr. Bernd Maier", SpecializationID: env.doctor.SpecializationID,
	})

	rec := env.do(t, http.MethodGet, "/doctors/search?query=fischer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doctors := decode[[]DoctorResponse](t, rec)
	require.Len(t, doctors, 1)
	assert.Equal(t, env.doctor.Name, doctors[0].Name)

	rec = env.do(t, http.MethodGet, "/doctors/search?query=niemand", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]DoctorResponse](t, rec))

	// An empty query matches everyone.
	rec = env.do(t, http.MethodGet, "/doctors/search", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]DoctorResponse](t, rec), 2)
}

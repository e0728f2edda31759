package booking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store used by tests and single-process dev
// runs. Every slot and appointment carries its own mutex, so writes on
// distinct entities never contend; there is no process-wide lock.
type MemStore struct {
	slots        sync.Map // uuid.UUID -> *memSlot
	appointments sync.Map // uuid.UUID -> *memAppointment
	doctors      sync.Map // uuid.UUID -> Doctor
	specs        sync.Map // uuid.UUID -> Specialization

	eventMu sync.Mutex
	events  []AppointmentEvent
}

type memSlot struct {
	mu   sync.Mutex
	slot TimeSlot
}

type memAppointment struct {
	mu   sync.Mutex
	appt Appointment
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

// Seeding helpers, not part of the Store contract.

func (m *MemStore) AddSpecialization(s Specialization) {
	m.specs.Store(s.ID, s)
}

func (m *MemStore) AddDoctor(d Doctor) {
	m.doctors.Store(d.ID, d)
}

func (m *MemStore) AddSlot(s TimeSlot) {
	m.slots.Store(s.ID, &memSlot{slot: s})
}

func (m *MemStore) GetSlot(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	v, ok := m.slots.Load(id)
	if !ok {
		return nil, ErrSlotNotFound
	}
	entry := v.(*memSlot)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	slot := entry.slot
	return &slot, nil
}

func (m *MemStore) CompareAndSetAvailability(_ context.Context, slotID uuid.UUID, expected, next bool) (bool, error) {
	v, ok := m.slots.Load(slotID)
	if !ok {
		return false, ErrSlotNotFound
	}
	entry := v.(*memSlot)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.slot.Available != expected {
		return false, nil
	}
	entry.slot.Available = next
	entry.slot.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemStore) ListSlotsByDoctor(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]TimeSlot, error) {
	var out []TimeSlot
	m.slots.Range(func(_, v any) bool {
		entry := v.(*memSlot)
		entry.mu.Lock()
		slot := entry.slot
		entry.mu.Unlock()
		if slot.DoctorID == doctorID && slot.Overlaps(from, to) {
			out = append(out, slot)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *MemStore) InsertSlots(_ context.Context, slots []TimeSlot) error {
	for _, s := range slots {
		if _, loaded := m.slots.LoadOrStore(s.ID, &memSlot{slot: s}); loaded {
			return fmt.Errorf("slot %s already exists", s.ID)
		}
	}
	return nil
}

func (m *MemStore) InsertAppointment(_ context.Context, appt Appointment) (*Appointment, error) {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	appt.UpdatedAt = appt.CreatedAt
	if _, loaded := m.appointments.LoadOrStore(appt.ID, &memAppointment{appt: appt}); loaded {
		return nil, fmt.Errorf("appointment %s already exists", appt.ID)
	}
	return &appt, nil
}

func (m *MemStore) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	v, ok := m.appointments.Load(id)
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	entry := v.(*memAppointment)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	appt := entry.appt
	return &appt, nil
}

func (m *MemStore) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	v, ok := m.appointments.Load(id)
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	entry := v.(*memAppointment)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.appt.Status != from {
		return nil, ErrInvalidTransition
	}
	entry.appt.Status = to
	entry.appt.UpdatedAt = time.Now().UTC()
	appt := entry.appt
	return &appt, nil
}

func (m *MemStore) FindAppointmentsByEmail(_ context.Context, email string) ([]Appointment, error) {
	out := []Appointment{}
	m.appointments.Range(func(_, v any) bool {
		entry := v.(*memAppointment)
		entry.mu.Lock()
		appt := entry.appt
		entry.mu.Unlock()
		if appt.PatientEmail == email {
			out = append(out, appt)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) FindScheduledEndedBefore(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	var out []Appointment
	m.appointments.Range(func(_, v any) bool {
		entry := v.(*memAppointment)
		entry.mu.Lock()
		appt := entry.appt
		entry.mu.Unlock()
		if appt.Status != StatusScheduled {
			return true
		}
		slot, err := m.GetSlot(ctx, appt.SlotID)
		if err != nil {
			return true
		}
		if slot.EndTime.Before(cutoff) {
			out = append(out, appt)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) InsertEvent(_ context.Context, ev AppointmentEvent) error {
	m.eventMu.Lock()
	defer m.eventMu.Unlock()

	ev.ID = int64(len(m.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *MemStore) ListEventsByAppointment(_ context.Context, appointmentID uuid.UUID) ([]AppointmentEvent, error) {
	m.eventMu.Lock()
	defer m.eventMu.Unlock()

	out := []AppointmentEvent{}
	for _, ev := range m.events {
		if ev.AppointmentID == appointmentID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *MemStore) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	v, ok := m.doctors.Load(id)
	if !ok {
		return nil, ErrDoctorNotFound
	}
	d := v.(Doctor)
	return &d, nil
}

func (m *MemStore) ListDoctors(_ context.Context) ([]Doctor, error) {
	var out []Doctor
	m.doctors.Range(func(_, v any) bool {
		out = append(out, v.(Doctor))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemStore) SearchDoctors(_ context.Context, query string) ([]Doctor, error) {
	query = strings.ToLower(query)
	out := []Doctor{}
	m.doctors.Range(func(_, v any) bool {
		d := v.(Doctor)
		if strings.Contains(strings.ToLower(d.Name), query) {
			out = append(out, d)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemStore) ListSpecializations(_ context.Context) ([]Specialization, error) {
	var out []Specialization
	m.specs.Range(func(_, v any) bool {
		out = append(out, v.(Specialization))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

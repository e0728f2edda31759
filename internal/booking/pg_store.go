package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the Postgres implementation of Store. The availability CAS
// is a conditional UPDATE, so the database is the arbiter even across
// processes.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Helpers

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.StartTime,
		&s.EndTime,
		&s.Available,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.SlotID,
		&a.PatientName,
		&a.PatientEmail,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.SpecializationID,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

// Interface methods

func (r *PgStore) GetSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, start_time, end_time, is_available, created_at, updated_at
		FROM time_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgStore) CompareAndSetAvailability(ctx context.Context, slotID uuid.UUID, expected, next bool) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE time_slots
		SET is_available = $3,
		    updated_at = now()
		WHERE id = $1
		  AND is_available = $2
	`, slotID, expected, next)
	if err != nil {
		return false, fmt.Errorf("cas slot availability: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// No row matched: either the flag did not match or the slot is gone.
	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM time_slots WHERE id = $1)
	`, slotID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check slot existence: %w", err)
	}
	if !exists {
		return false, ErrSlotNotFound
	}
	return false, nil
}

func (r *PgStore) ListSlotsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, start_time, end_time, is_available, created_at, updated_at
		FROM time_slots
		WHERE doctor_id = $1
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimeSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	return result, rows.Err()
}

func (r *PgStore) InsertSlots(ctx context.Context, slots []TimeSlot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, s := range slots {
		_, err := tx.Exec(ctx, `
			INSERT INTO time_slots (id, doctor_id, start_time, end_time, is_available, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, s.ID, s.DoctorID, s.StartTime, s.EndTime, s.Available)
		if err != nil {
			return fmt.Errorf("insert slot: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgStore) InsertAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, slot_id, patient_name, patient_email, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id, slot_id, patient_name, patient_email, status, created_at, updated_at
	`, appt.ID, appt.SlotID, appt.PatientName, appt.PatientEmail, appt.Status)

	return scanAppointment(row)
}

func (r *PgStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, slot_id, patient_name, patient_email, status, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgStore) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, slot_id, patient_name, patient_email, status, created_at, updated_at
	`, id, to, from)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Distinguish a missing row from a status mismatch.
			if _, getErr := r.GetAppointment(ctx, id); getErr == nil {
				return nil, ErrInvalidTransition
			}
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgStore) FindAppointmentsByEmail(ctx context.Context, email string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, slot_id, patient_name, patient_email, status, created_at, updated_at
		FROM appointments
		WHERE patient_email = $1
		ORDER BY created_at
	`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	return result, rows.Err()
}

func (r *PgStore) FindScheduledEndedBefore(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.slot_id, a.patient_name, a.patient_email, a.status, a.created_at, a.updated_at
		FROM appointments a
		JOIN time_slots s ON s.id = a.slot_id
		WHERE a.status = 'scheduled'
		  AND s.end_time < $1
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	return result, rows.Err()
}

func (r *PgStore) InsertEvent(ctx context.Context, ev AppointmentEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.Type, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert appointment event: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r *PgStore) ListEventsByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]AppointmentEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, appointment_id, payload, created_at
		FROM appointment_events
		WHERE appointment_id = $1
		ORDER BY id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []AppointmentEvent{}
	for rows.Next() {
		var ev AppointmentEvent
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.AppointmentID, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}

	return result, rows.Err()
}

func (r *PgStore) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialization_id, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgStore) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialization_id, created_at, updated_at
		FROM doctors
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	return result, rows.Err()
}

func (r *PgStore) SearchDoctors(ctx context.Context, query string) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialization_id, created_at, updated_at
		FROM doctors
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY name
	`, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Doctor{}
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	return result, rows.Err()
}

func (r *PgStore) ListSpecializations(ctx context.Context) ([]Specialization, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, created_at, updated_at
		FROM specializations
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Specialization
	for rows.Next() {
		var s Specialization
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}

	return result, rows.Err()
}

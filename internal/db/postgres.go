package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	// Verify connectivity on startup
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// Migrate applies the schema. The statements are idempotent so the
// entrypoints can run this on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS specializations (
			id uuid PRIMARY KEY,
			name text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS doctors (
			id uuid PRIMARY KEY,
			name text NOT NULL,
			specialization_id uuid NOT NULL REFERENCES specializations (id),
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS time_slots (
			id uuid PRIMARY KEY,
			doctor_id uuid NOT NULL REFERENCES doctors (id),
			start_time timestamptz NOT NULL,
			end_time timestamptz NOT NULL,
			is_available boolean NOT NULL DEFAULT true,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now(),
			CHECK (end_time > start_time)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_time_slots_doctor_start
			ON time_slots (doctor_id, start_time)`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id uuid PRIMARY KEY,
			slot_id uuid NOT NULL REFERENCES time_slots (id),
			patient_name text NOT NULL,
			patient_email text NOT NULL,
			status text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_active_slot
			ON appointments (slot_id)
			WHERE status = 'scheduled'`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_patient_email
			ON appointments (patient_email)`,
		`CREATE TABLE IF NOT EXISTS appointment_events (
			id bigserial PRIMARY KEY,
			event_type text NOT NULL,
			appointment_id uuid NOT NULL REFERENCES appointments (id),
			payload jsonb,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_appointment_events_appointment
			ON appointment_events (appointment_id)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	return nil
}

package main

import (
	"context"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/telemedizin/booking/internal/booking"
	"github.com/telemedizin/booking/internal/config"
	"github.com/telemedizin/booking/internal/db"
	"github.com/telemedizin/booking/internal/logging"
)

var specializations = []string{
	"Allgemeinmedizin",
	"Kardiologie",
	"Dermatologie",
	"Neurologie",
	"Orthopädie",
	"Psychiatrie",
	"Gynäkologie",
	"Urologie",
	"Pädiatrie",
	"Augenheilkunde",
}

const doctorsPerSpecialization = 2

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync()

	logger.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("schema migration", zap.Error(err))
	}

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedCatalog(context.Background(), pool, logger)
	if err != nil {
		logger.Fatal("seed catalog", zap.Error(err))
	}

	if err := seedSlots(context.Background(), pool, cfg, logger, doctorIDs); err != nil {
		logger.Fatal("seed slots", zap.Error(err))
	}

	logger.Info("seed complete")
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) ([]uuid.UUID, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var doctorIDs []uuid.UUID

	for _, specName := range specializations {
		specID := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO specializations (id, name, created_at, updated_at)
			VALUES ($1, $2, now(), now())
		`, specID, specName)
		if err != nil {
			return nil, err
		}

		for i := 0; i < doctorsPerSpecialization; i++ {
			doctorID := uuid.New()
			name := "Dr. " + gofakeit.FirstName() + " " + gofakeit.LastName()

			_, err := tx.Exec(ctx, `
				INSERT INTO doctors (id, name, specialization_id, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, doctorID, name, specID)
			if err != nil {
				return nil, err
			}
			doctorIDs = append(doctorIDs, doctorID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Info("catalog seeded",
		zap.Int("specializations", len(specializations)),
		zap.Int("doctors", len(doctorIDs)))
	return doctorIDs, nil
}

// seedSlots generates the bookable slots for the next 7 days through the
// regular generator, so the seeded data obeys the same non-overlap rules
// as administratively generated slots.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, cfg config.Config, logger *zap.Logger, doctorIDs []uuid.UUID) error {
	workdayStart, err := booking.ParseClock(cfg.WorkdayStart)
	if err != nil {
		return err
	}
	workdayEnd, err := booking.ParseClock(cfg.WorkdayEnd)
	if err != nil {
		return err
	}

	store := booking.NewPgStore(pool)
	generator := booking.NewGenerator(store, logger)

	from := time.Now().Truncate(24 * time.Hour)
	to := from.AddDate(0, 0, 6)

	total := 0
	for _, doctorID := range doctorIDs {
		slots, err := generator.Generate(ctx, doctorID, from, to, workdayStart, workdayEnd, cfg.SlotDuration)
		if err != nil {
			return err
		}
		total += len(slots)
	}

	logger.Info("slots seeded", zap.Int("slots", total))
	return nil
}

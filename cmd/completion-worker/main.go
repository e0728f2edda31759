package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/telemedizin/booking/internal/booking"
	"github.com/telemedizin/booking/internal/config"
	"github.com/telemedizin/booking/internal/db"
	"github.com/telemedizin/booking/internal/logging"
)

// The completion worker is the administrative driver of the
// scheduled -> completed transition: appointments whose slot has ended
// are swept to completed periodically. The engine exposes the transition
// but never drives it on its own.
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

	logger.Info("completion-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	store := booking.NewPgStore(pgPool)
	// The sweep only performs status CAS transitions, no slot flips, so it
	// needs no cross-process lock.
	engine := booking.NewEngine(store, booking.NewMemorySlotLocker(), logger)

	// Run once at startup
	runOnce(rootCtx, engine, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping completion worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, engine, logger)
		}
	}
}

func runOnce(ctx context.Context, engine *booking.Engine, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := engine.CompleteElapsed(runCtx, time.Now())
	if err != nil {
		logger.Error("completion run error", zap.Error(err))
		return
	}
	logger.Info("completion run complete",
		zap.Int("completed", n),
		zap.Duration("took", time.Since(start)))
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/telemedizin/booking/internal/booking"
	"github.com/telemedizin/booking/internal/config"
)

type RouterConfig struct {
	Engine    *booking.Engine
	Notifier  *booking.Notifier
	Generator *booking.Generator
	Store     booking.Store
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Cfg       config.Config
	Log       *zap.Logger
	Version   string
}

func NewRouter(rc RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(rc.Log))

	// Health endpoints
	health := NewHealthHandler(rc.PgPool, rc.Redis, rc.Cfg.Env, rc.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Reference data
	r.Get("/specializations", listSpecializationsHandler(rc.Store))
	r.Get("/doctors", listDoctorsHandler(rc.Store))
	r.Get("/doctors/search", searchDoctorsHandler(rc.Store))

	// Slots
	r.Get("/doctors/{id}/slots", doctorSlotsHandler(rc.Engine))
	r.Post("/doctors/{id}/slots/generate", generateSlotsHandler(rc.Generator, rc.Cfg))
	r.Get("/slots/{id}/availability", checkAvailabilityHandler(rc.Notifier))

	// Appointments
	r.Post("/appointments", reserveHandler(rc.Engine))
	r.Get("/appointments", appointmentsByEmailHandler(rc.Engine))
	r.Post("/appointments/{id}/cancel", cancelHandler(rc.Engine))

	return r
}

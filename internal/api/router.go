package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kojjob/wellness-connect-sub000/internal/booking"
	"github.com/kojjob/wellness-connect-sub000/internal/policy"
	"github.com/kojjob/wellness-connect-sub000/internal/webhook"
)

type RouterConfig struct {
	Bookings       *booking.Service
	Cancellations  *policy.Engine
	WebhookHandler *webhook.Handler
	PgPool         *pgxpool.Pool
	Redis          *redis.Client
	Log            *zap.Logger
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Booking
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(30, time.Minute))
		r.Post("/bookings", createBookingHandler(cfg.Bookings))
	})

	// Appointments
	r.Get("/appointments", listAppointmentsHandler(cfg.Bookings))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Cancellations))

	// Provider availabilities
	r.Post("/availabilities", createAvailabilityHandler(cfg.Bookings))
	r.Get("/availabilities", listAvailabilitiesHandler(cfg.Bookings))
	r.Delete("/availabilities/{id}", deleteAvailabilityHandler(cfg.Bookings))

	// Payment processor webhook
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(120, time.Minute))
		r.Method(http.MethodPost, "/webhooks/payment", cfg.WebhookHandler)
	})

	return r
}

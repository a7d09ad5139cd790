package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

type RouterConfig struct {
	Service     *appointment.Service
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	Logger      *logrus.Logger
	Env         string
	Version     string
	CORSOrigins []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &handlers{
		svc:      cfg.Service,
		validate: newRequestValidator(),
		log:      log,
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", headerActorID, headerActorRole},
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Schedules are public.
	r.Get("/providers/{providerID}/slots", h.getSlots)
	r.Get("/providers/{providerID}/availability", h.getAvailability)

	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware)

		r.Put("/providers/{providerID}/availability", h.setAvailability)
		r.Get("/providers/{providerID}/waitlist", h.listWaitlist)

		r.Post("/appointments", h.bookAppointment)
		r.Get("/appointments", h.listAppointments)
		r.Get("/appointments/{id}", h.getAppointment)
		r.Put("/appointments/{id}/reschedule", h.rescheduleAppointment)
		r.Post("/appointments/{id}/cancel", h.cancelAppointment)
		r.Patch("/appointments/{id}/status", h.updateStatus)
		r.Post("/appointments/{id}/reminder", h.sendReminder)
		r.Post("/appointments/{id}/notes", h.addConsultationNote)
		r.Get("/appointments/{id}/notes", h.getConsultationNote)

		r.Post("/waitlist", h.joinWaitlist)
		r.Post("/waitlist/{id}/notify", h.notifyWaitlistEntry)
	})

	return r
}

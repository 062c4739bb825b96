package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/slot-booking-core/internal/logging"
	"github.com/hackgods/slot-booking-core/internal/metrics"
	"github.com/hackgods/slot-booking-core/internal/scheduling"
)

// SchedulingService is the part of *scheduling.Service the HTTP layer calls.
type SchedulingService interface {
	CreateProvider(ctx context.Context, in scheduling.ProviderInput) (*scheduling.Provider, error)
	ListProviders(ctx context.Context, activeOnly bool) ([]scheduling.Provider, error)

	CreateTemplate(ctx context.Context, in scheduling.TemplateInput) (*scheduling.AvailabilityTemplate, error)
	UpdateTemplate(ctx context.Context, id uuid.UUID, in scheduling.TemplateInput) (*scheduling.AvailabilityTemplate, error)
	DeactivateTemplate(ctx context.Context, id uuid.UUID) (*scheduling.AvailabilityTemplate, error)
	ListTemplates(ctx context.Context, f scheduling.TemplateFilter) ([]scheduling.AvailabilityTemplate, error)

	GenerateSlots(ctx context.Context, req scheduling.GenerateRequest) (scheduling.GenerateResult, error)
	ListSlots(ctx context.Context, f scheduling.SlotFilter) ([]scheduling.Slot, error)
	SetSlotBlocked(ctx context.Context, id uuid.UUID, blocked bool) (*scheduling.Slot, error)

	BookSlot(ctx context.Context, slotID uuid.UUID, client scheduling.ClientInfo) (*scheduling.Booking, error)
	BookAt(ctx context.Context, req scheduling.OverrideRequest) (*scheduling.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*scheduling.Booking, error)
	ListBookings(ctx context.Context, f scheduling.BookingFilter) ([]scheduling.Booking, error)
	TransitionBooking(ctx context.Context, id uuid.UUID, action scheduling.Action) (*scheduling.Booking, error)
	AppendNote(ctx context.Context, id uuid.UUID, note string) (*scheduling.Booking, error)
}

type RouterConfig struct {
	Service     SchedulingService
	PgPool      Pinger
	Redis       *redis.Client
	Idempotency IdempotencyStore
	JWTSecret   string
	Logger      *logging.Logger
	Metrics     *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	h := &handlers{svc: cfg.Service, logger: logger}
	idem := IdempotencyMiddleware(cfg.Idempotency, logger)

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(PrincipalMiddleware(cfg.JWTSecret))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Public
	r.Get("/providers", h.listProviders)
	r.Get("/slots", h.listSlots)
	r.With(idem).Post("/slots/{id}/book", h.bookSlot)

	// Admin
	r.Group(func(r chi.Router) {
		r.Use(RequireRole(RoleAdmin))

		r.Post("/providers", h.createProvider)

		r.Get("/templates", h.listTemplates)
		r.Post("/templates", h.createTemplate)
		r.Put("/templates/{id}", h.updateTemplate)
		r.Delete("/templates/{id}", h.deactivateTemplate)

		r.Post("/slots/generate", h.generateSlots)
		r.Post("/slots/{id}/block", h.setSlotBlocked(true))
		r.Post("/slots/{id}/unblock", h.setSlotBlocked(false))

		r.With(idem).Post("/bookings/override", h.overrideBooking)
	})

	// Staff
	r.Group(func(r chi.Router) {
		r.Use(RequireRole(RoleAdmin, RoleProvider))

		r.Get("/bookings", h.listBookings)
		r.Get("/bookings/{id}", h.getBooking)
		r.Post("/bookings/{id}/cancel", h.transitionBooking(scheduling.ActionCancel))
		r.Post("/bookings/{id}/complete", h.transitionBooking(scheduling.ActionComplete))
		r.Post("/bookings/{id}/no-show", h.transitionBooking(scheduling.ActionNoShow))
		r.Post("/bookings/{id}/notes", h.appendNote)
	})

	return r
}

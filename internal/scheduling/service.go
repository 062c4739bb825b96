package scheduling

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/slot-booking-core/internal/config"
	"github.com/hackgods/slot-booking-core/internal/logging"
	"github.com/hackgods/slot-booking-core/internal/metrics"
	"github.com/hackgods/slot-booking-core/internal/notify"
)

const (
	EventSlotsGenerated         = "SLOTS_GENERATED"
	EventSlotBlocked            = "SLOT_BLOCKED"
	EventSlotUnblocked          = "SLOT_UNBLOCKED"
	EventBookingCreated         = "BOOKING_CREATED"
	EventBookingOverrideCreated = "BOOKING_OVERRIDE_CREATED"
	EventBookingCancelled       = "BOOKING_CANCELLED"
	EventBookingCompleted       = "BOOKING_COMPLETED"
	EventBookingNoShow          = "BOOKING_NO_SHOW"
	EventBookingNoteAdded       = "BOOKING_NOTE_ADDED"
)

const notifyTimeout = 10 * time.Second

// Service coordinates the slot calendar and bookings. It holds no per-slot
// state; every request goes straight to the repository.
type Service struct {
	repo     Repository
	cfg      config.Config
	notifier notify.Notifier
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
	tracer   trace.Tracer
	now      func() time.Time

	notifyWG sync.WaitGroup
}

// NewService wires the service. notifier, m and logger may be nil.
func NewService(repo Repository, cfg config.Config, notifier notify.Notifier, m *metrics.SchedulingMetrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	if cfg.AdminBookingDuration <= 0 {
		cfg.AdminBookingDuration = 2 * time.Hour
	}
	if cfg.MaxGenerationDays <= 0 {
		cfg.MaxGenerationDays = 366
	}
	return &Service{
		repo:     repo,
		cfg:      cfg,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("github.com/hackgods/slot-booking-core/internal/scheduling"),
		now:      time.Now,
	}
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "scheduling."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) logEvent(ctx context.Context, eventType string, bookingID, slotID *uuid.UUID, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", "event", eventType, "error", err)
		data = nil
	}

	ev := EventLog{
		EventType: eventType,
		BookingID: bookingID,
		SlotID:    slotID,
		Payload:   data,
		CreatedAt: s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert event log", "event", eventType, "error", err)
	}
}

// sendNotification hands the message to the notifier in the background and
// never fails the caller: the booking is already committed.
func (s *Service) sendNotification(ctx context.Context, template string, b *Booking) {
	data := map[string]any{
		"booking_id":   b.ID.String(),
		"client_name":  b.Client.Name,
		"service_type": b.Client.ServiceType,
		"status":       string(b.Status),
	}
	if b.Slot != nil {
		data["date"] = b.Slot.Date.String()
		data["start_time"] = FormatClock(b.Slot.StartTime)
		data["end_time"] = FormatClock(b.Slot.EndTime)
	}

	n := notify.Notification{
		TemplateID: template,
		To:         b.Client.Email,
		ToName:     b.Client.Name,
		Data:       data,
	}
	bookingID := b.ID
	nctx := context.WithoutCancel(ctx)

	s.notifyWG.Add(1)
	go func() {
		defer s.notifyWG.Done()
		ctx, cancel := context.WithTimeout(nctx, notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Warn("booking notification failed", "template", template, "booking_id", bookingID, "error", err)
		}
	}()
}

// WaitNotifications blocks until every notification already handed off has
// been sent or has failed, or ctx is done.
func (s *Service) WaitNotifications(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.notifyWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ptr[T any](v T) *T { return &v }

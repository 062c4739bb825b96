package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/slot-booking-core/internal/metrics"
	"github.com/hackgods/slot-booking-core/internal/notify"
	"github.com/hackgods/slot-booking-core/internal/validation"
)

const (
	modeSelfService = "self_service"
	modeOverride    = "override"
)

const maxOverrideDuration = 24 * time.Hour

// OverrideRequest books an arbitrary start time for a provider. Duration
// zero means the configured admin booking duration.
type OverrideRequest struct {
	ProviderID uuid.UUID
	Date       civil.Date
	StartTime  civil.Time
	Duration   time.Duration
	Client     ClientInfo
}

func normalizeClient(c ClientInfo) (ClientInfo, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	c.ServiceType = strings.TrimSpace(c.ServiceType)
	c.Notes = strings.TrimSpace(c.Notes)

	if err := validateInput(c); err != nil {
		return c, err
	}
	if c.Phone != nil {
		p := strings.TrimSpace(*c.Phone)
		if p == "" {
			c.Phone = nil
		} else {
			c.Phone = &p
		}
	}
	if c.Address != nil && *c.Address == (Address{}) {
		c.Address = nil
	}
	return c, nil
}

// validateInput applies the struct's validate tags and reports failures as
// ErrInvalidInput.
func validateInput(v any) error {
	if err := validation.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeBooked
	case errors.Is(err, ErrConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, ErrSlotUnavailable):
		return metrics.OutcomeUnavailable
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrSlotNotFound), errors.Is(err, ErrProviderNotFound):
		return metrics.OutcomeInvalid
	}
	return metrics.OutcomeError
}

// BookSlot books an existing slot for a client.
//
// The status check up front only turns away obviously stale requests. Two
// callers can both pass it; the repository's one-confirmed-booking-per-slot
// constraint decides the winner and the loser gets ErrConflict.
func (s *Service) BookSlot(ctx context.Context, slotID uuid.UUID, client ClientInfo) (b *Booking, err error) {
	ctx, span := s.startSpan(ctx, "BookSlot", attribute.String("slot.id", slotID.String()))
	defer func() {
		s.metrics.ObserveBooking(modeSelfService, outcomeOf(err))
		endSpan(span, err)
	}()

	client, err = normalizeClient(client)
	if err != nil {
		return nil, err
	}

	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.Status != SlotAvailable {
		return nil, ErrSlotUnavailable
	}

	b, err = s.repo.CreateBookingForSlot(ctx, slotID, client)
	if err != nil {
		switch {
		case errors.Is(err, ErrConflict):
			s.logger.Info("booking lost race for slot", "slot_id", slotID)
			return nil, err
		case errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrSlotNotFound):
			return nil, err
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}
	if b.Slot == nil {
		booked := *slot
		booked.Status = SlotBooked
		b.Slot = &booked
	}

	s.logger.Info("slot booked", "slot_id", slotID, "booking_id", b.ID)
	s.logEvent(ctx, EventBookingCreated, &b.ID, &b.SlotID, map[string]any{
		"provider_id": b.Slot.ProviderID.String(),
		"date":        b.Slot.Date.String(),
		"start_time":  FormatClock(b.Slot.StartTime),
	})
	s.sendNotification(ctx, notify.TemplateBookingConfirmed, b)

	return b, nil
}

// BookAt is the staff override: it books [start, start+duration) for a
// provider whether or not a generated slot exists there.
//
// Overlap is checked with a scan of booked slots before the write, so two
// overrides on overlapping but different start times can both succeed if they
// race. Only the exact (provider, date, start) slot is protected by a
// storage constraint on this path.
func (s *Service) BookAt(ctx context.Context, req OverrideRequest) (b *Booking, err error) {
	ctx, span := s.startSpan(ctx, "BookAt",
		attribute.String("provider.id", req.ProviderID.String()),
		attribute.String("date", req.Date.String()),
	)
	defer func() {
		s.metrics.ObserveBooking(modeOverride, outcomeOf(err))
		endSpan(span, err)
	}()

	client, err := normalizeClient(req.Client)
	if err != nil {
		return nil, err
	}
	if req.ProviderID == uuid.Nil {
		return nil, fmt.Errorf("%w: provider is required", ErrInvalidInput)
	}
	if !req.Date.IsValid() {
		return nil, fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	if !req.StartTime.IsValid() {
		return nil, fmt.Errorf("%w: start time is invalid", ErrInvalidInput)
	}

	duration := req.Duration
	if duration == 0 {
		duration = s.cfg.AdminBookingDuration
	}
	if duration < time.Minute || duration > maxOverrideDuration {
		return nil, fmt.Errorf("%w: duration must be between 1 minute and %s, got %s", ErrInvalidInput, maxOverrideDuration, duration)
	}
	minutes := int(duration / time.Minute)

	// Slot times are time-of-day values, so the last representable end is
	// 23:59 and a window may not reach midnight.
	start := truncateToMinute(req.StartTime)
	endMinute := minuteOfDay(start) + minutes
	if endMinute >= minutesPerDay {
		return nil, fmt.Errorf("%w: booking from %s for %d minutes must end by 23:59", ErrInvalidInput, FormatClock(start), minutes)
	}
	end := timeAtMinute(endMinute)

	provider, err := s.repo.GetProvider(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	if !provider.IsActive {
		return nil, fmt.Errorf("%w: provider %s is inactive", ErrInvalidInput, provider.ID)
	}

	overlapping, err := s.repo.ListBookedOverlapping(ctx, req.ProviderID, req.Date, start, end)
	if err != nil {
		return nil, fmt.Errorf("check overlap: %w", err)
	}
	if len(overlapping) > 0 {
		return nil, s.conflictFor(overlapping, minutes)
	}

	b, err = s.repo.CreateBookingAt(ctx, req.ProviderID, req.Date, start, end, client)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// The exact start was booked after our scan. Rescan to offer a time.
			if again, scanErr := s.repo.ListBookedOverlapping(ctx, req.ProviderID, req.Date, start, end); scanErr == nil && len(again) > 0 {
				return nil, s.conflictFor(again, minutes)
			}
			return nil, &ConflictError{}
		}
		if errors.Is(err, ErrProviderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("create override booking: %w", err)
	}

	s.logger.Info("override booking created",
		"provider_id", req.ProviderID,
		"slot_id", b.SlotID,
		"booking_id", b.ID,
		"date", req.Date.String(),
		"start_time", FormatClock(start),
		"end_time", FormatClock(end),
	)
	s.logEvent(ctx, EventBookingOverrideCreated, &b.ID, &b.SlotID, map[string]any{
		"provider_id": req.ProviderID.String(),
		"date":        req.Date.String(),
		"start_time":  FormatClock(start),
		"end_time":    FormatClock(end),
	})
	s.sendNotification(ctx, notify.TemplateBookingConfirmed, b)

	return b, nil
}

// conflictFor suggests the latest overlapping end plus the courtesy buffer,
// unless a booking of the same length would then run past midnight.
func (s *Service) conflictFor(overlapping []Slot, minutes int) *ConflictError {
	latest := overlapping[0].EndTime
	for _, sl := range overlapping[1:] {
		if sl.EndTime.After(latest) {
			latest = sl.EndTime
		}
	}

	ce := &ConflictError{Overlapping: overlapping}
	next := minuteOfDay(latest) + int(s.cfg.SuggestionBuffer/time.Minute)
	if next+minutes < minutesPerDay {
		ce.SuggestedTime = ptr(timeAtMinute(next))
	}
	return ce
}

package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/slot-booking-core/internal/notify"
)

const maxNoteLength = 2000

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var transitionEvents = map[BookingStatus]string{
	BookingCancelled: EventBookingCancelled,
	BookingCompleted: EventBookingCompleted,
	BookingNoShow:    EventBookingNoShow,
}

// TransitionBooking applies a staff action to a booking.
//
// Only confirmed bookings move. Repeating the transition a booking already
// went through succeeds without changes, and so does cancelling any booking
// that is already terminal. Other moves out of a terminal state return
// ErrInvalidTransition.
func (s *Service) TransitionBooking(ctx context.Context, id uuid.UUID, action Action) (b *Booking, err error) {
	ctx, span := s.startSpan(ctx, "TransitionBooking",
		attribute.String("booking.id", id.String()),
		attribute.String("action", string(action)),
	)
	defer func() { endSpan(span, err) }()

	target := action.Target()
	if target == "" {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action)
	}

	// A lost conditional update means someone else moved the booking; reload
	// once and judge the new state.
	for attempt := 0; attempt < 2; attempt++ {
		current, err := s.repo.GetBookingByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrBookingNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load booking: %w", err)
		}

		if current.Status != BookingConfirmed {
			if current.Status == target || action == ActionCancel {
				s.metrics.ObserveTransition(string(action), "noop")
				return current, nil
			}
			s.metrics.ObserveTransition(string(action), "rejected")
			s.logger.Warn("rejected booking transition",
				"booking_id", id,
				"status", current.Status,
				"action", action,
			)
			return nil, fmt.Errorf("%w: booking is %s, cannot %s", ErrInvalidTransition, current.Status, action)
		}

		updated, err := s.repo.TransitionBooking(ctx, id, BookingConfirmed, target)
		if err != nil {
			if errors.Is(err, ErrBookingNotFound) {
				continue
			}
			return nil, fmt.Errorf("transition booking: %w", err)
		}

		if current.Slot != nil {
			slot := *current.Slot
			if target == BookingCancelled {
				slot.Status = SlotAvailable
			}
			updated.Slot = &slot
		}

		s.metrics.ObserveTransition(string(action), "applied")
		s.logger.Info("booking transitioned", "booking_id", id, "slot_id", updated.SlotID, "status", target)
		s.logEvent(ctx, transitionEvents[target], &updated.ID, &updated.SlotID, map[string]any{
			"from": string(BookingConfirmed),
			"to":   string(target),
		})
		if target == BookingCancelled {
			s.sendNotification(ctx, notify.TemplateBookingCancelled, updated)
		}
		return updated, nil
	}

	return nil, fmt.Errorf("%w: booking %s changed concurrently", ErrInvalidTransition, id)
}

// AppendNote adds a line to the booking's notes. Existing text is never rewritten.
func (s *Service) AppendNote(ctx context.Context, id uuid.UUID, note string) (*Booking, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, fmt.Errorf("%w: note is empty", ErrInvalidInput)
	}
	if len(note) > maxNoteLength {
		return nil, fmt.Errorf("%w: note exceeds %d bytes", ErrInvalidInput, maxNoteLength)
	}

	b, err := s.repo.AppendBookingNote(ctx, id, note)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("append note: %w", err)
	}

	s.logEvent(ctx, EventBookingNoteAdded, &b.ID, &b.SlotID, map[string]any{"length": len(note)})
	return b, nil
}

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (s *Service) ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, fmt.Errorf("%w: to date is before from date", ErrInvalidInput)
	}

	bookings, err := s.repo.ListBookings(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

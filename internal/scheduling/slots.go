package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MarkBlocked takes an available slot off the calendar.
func (s *Service) MarkBlocked(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.setSlotStatus(ctx, id, SlotBlocked)
}

// MarkAvailable puts a blocked slot back on the calendar.
func (s *Service) MarkAvailable(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.setSlotStatus(ctx, id, SlotAvailable)
}

func (s *Service) SetSlotBlocked(ctx context.Context, id uuid.UUID, blocked bool) (*Slot, error) {
	if blocked {
		return s.MarkBlocked(ctx, id)
	}
	return s.MarkAvailable(ctx, id)
}

// setSlotStatus never touches a booked slot; only the booking paths may.
func (s *Service) setSlotStatus(ctx context.Context, id uuid.UUID, to SlotStatus) (*Slot, error) {
	for attempt := 0; attempt < 2; attempt++ {
		slot, err := s.repo.GetSlotByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrSlotNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load slot: %w", err)
		}

		if slot.Status == SlotBooked {
			return nil, fmt.Errorf("%w: slot %s is booked", ErrInvalidTransition, id)
		}
		if slot.Status == to {
			return slot, nil
		}

		updated, err := s.repo.UpdateSlotStatus(ctx, id, slot.Status, to)
		if err != nil {
			if errors.Is(err, ErrSlotNotFound) {
				continue
			}
			return nil, fmt.Errorf("update slot status: %w", err)
		}

		event := EventSlotBlocked
		if to == SlotAvailable {
			event = EventSlotUnblocked
		}
		s.logger.Info("slot status changed", "slot_id", id, "from", slot.Status, "to", to)
		s.logEvent(ctx, event, nil, &updated.ID, map[string]any{
			"from": string(slot.Status),
			"to":   string(to),
		})
		return updated, nil
	}

	return nil, fmt.Errorf("%w: slot %s changed concurrently", ErrInvalidTransition, id)
}

// ListSlots returns slots in the inclusive date range, ordered by date and start time.
func (s *Service) ListSlots(ctx context.Context, f SlotFilter) ([]Slot, error) {
	if err := s.validateRange(f.From, f.To); err != nil {
		return nil, err
	}
	slots, err := s.repo.ListSlots(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	slot, err := s.repo.GetSlotByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

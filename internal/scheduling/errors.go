package scheduling

import (
	"errors"

	"cloud.google.com/go/civil"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrSlotUnavailable   = errors.New("slot is no longer available")
	ErrConflict          = errors.New("slot was just taken")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNoTemplates       = errors.New("no active templates match the requested range")

	ErrProviderNotFound = errors.New("provider not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrSlotNotFound     = errors.New("slot not found")
	ErrBookingNotFound  = errors.New("booking not found")
)

// ConflictError is returned by the admin override path when the requested
// window overlaps booked slots. SuggestedTime is nil when no retry time fits
// within the same day.
type ConflictError struct {
	SuggestedTime *civil.Time
	Overlapping   []Slot
}

func (e *ConflictError) Error() string {
	if e.SuggestedTime != nil {
		return ErrConflict.Error() + ", next free time " + FormatClock(*e.SuggestedTime)
	}
	return ErrConflict.Error()
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

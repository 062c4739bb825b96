package scheduling

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotBlocked   SlotStatus = "blocked"
)

func ParseSlotStatus(s string) (SlotStatus, error) {
	switch st := SlotStatus(s); st {
	case SlotAvailable, SlotBooked, SlotBlocked:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown slot status %q", ErrInvalidInput, s)
}

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
	BookingNoShow    BookingStatus = "no_show"
)

func ParseBookingStatus(s string) (BookingStatus, error) {
	switch st := BookingStatus(s); st {
	case BookingConfirmed, BookingCancelled, BookingCompleted, BookingNoShow:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown booking status %q", ErrInvalidInput, s)
}

// Terminal reports whether no further transition is allowed out of s.
func (s BookingStatus) Terminal() bool {
	return s == BookingCancelled || s == BookingCompleted || s == BookingNoShow
}

// Action is a staff request to move a confirmed booking into a terminal state.
type Action string

const (
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
	ActionNoShow   Action = "no_show"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionCancel, ActionComplete, ActionNoShow:
		return a, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, s)
}

// Target is the status a confirmed booking ends up in after the action.
func (a Action) Target() BookingStatus {
	switch a {
	case ActionCancel:
		return BookingCancelled
	case ActionComplete:
		return BookingCompleted
	case ActionNoShow:
		return BookingNoShow
	}
	return ""
}

type Provider struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailabilityTemplate is a recurring weekly window for one provider.
// Templates are deactivated, never deleted.
type AvailabilityTemplate struct {
	ID                  uuid.UUID
	ProviderID          uuid.UUID
	DayOfWeek           time.Weekday
	StartTime           civil.Time
	EndTime             civil.Time
	SlotDurationMinutes int
	BufferMinutes       int
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Slot is one bookable unit of a provider's calendar, unique per
// (provider, date, start time).
type Slot struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Date       civil.Date
	StartTime  civil.Time
	EndTime    civil.Time
	Status     SlotStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Overlaps uses half-open intervals: a slot ending at 10:00 does not overlap one starting at 10:00.
func (s Slot) Overlaps(start, end civil.Time) bool {
	return s.StartTime.Before(end) && s.EndTime.After(start)
}

type Address struct {
	Line       string
	City       string
	PostalCode string
}

type ClientInfo struct {
	Name        string `validate:"required"`
	Email       string `validate:"required,email"`
	Phone       *string
	Address     *Address
	ServiceType string
	Notes       string
}

type Booking struct {
	ID        uuid.UUID
	SlotID    uuid.UUID
	Client    ClientInfo
	Status    BookingStatus
	CreatedAt time.Time
	UpdatedAt time.Time

	// Slot is filled on reads that join the slot row.
	Slot *Slot
}

type EventLog struct {
	ID        int64
	EventType string
	BookingID *uuid.UUID
	SlotID    *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

type TemplateFilter struct {
	ProviderID *uuid.UUID
	DayOfWeek  *time.Weekday
	ActiveOnly bool
}

// SlotFilter selects slots in the inclusive date range [From, To].
type SlotFilter struct {
	ProviderID *uuid.UUID
	From       civil.Date
	To         civil.Date
	Status     *SlotStatus
}

type BookingFilter struct {
	SlotID     *uuid.UUID
	ProviderID *uuid.UUID
	From       *civil.Date
	To         *civil.Date
	Status     *BookingStatus
	Limit      int
	Offset     int
}

// minute-of-day helpers; everything in the core is minute precision.

const minutesPerDay = 24 * 60

func minuteOfDay(t civil.Time) int {
	return t.Hour*60 + t.Minute
}

func timeAtMinute(m int) civil.Time {
	return civil.Time{Hour: m / 60, Minute: m % 60}
}

func truncateToMinute(t civil.Time) civil.Time {
	return civil.Time{Hour: t.Hour, Minute: t.Minute}
}

// ParseClock accepts "15:04" or "15:04:05" and drops anything below the minute.
func ParseClock(s string) (civil.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateToMinute(civil.TimeOf(t)), nil
		}
	}
	return civil.Time{}, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidInput, s)
}

func FormatClock(t civil.Time) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func ParseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return civil.Date{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidInput, s)
	}
	return d, nil
}

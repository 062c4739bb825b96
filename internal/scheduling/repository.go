package scheduling

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
//
// Implementations must enforce two storage constraints: slots are unique per
// (provider, date, start time), and at most one confirmed booking references
// a slot. A second confirmed booking for the same slot is reported as
// ErrConflict. Those constraints are the only synchronization the service
// relies on.
type Repository interface {
	CreateProvider(ctx context.Context, p Provider) (*Provider, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	ListProviders(ctx context.Context, activeOnly bool) ([]Provider, error)

	CreateTemplate(ctx context.Context, t AvailabilityTemplate) (*AvailabilityTemplate, error)
	UpdateTemplate(ctx context.Context, t AvailabilityTemplate) (*AvailabilityTemplate, error)
	DeactivateTemplate(ctx context.Context, id uuid.UUID) (*AvailabilityTemplate, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (*AvailabilityTemplate, error)
	ListTemplates(ctx context.Context, f TemplateFilter) ([]AvailabilityTemplate, error)

	// InsertSlotsIfAbsent inserts the candidates that do not exist yet and
	// returns how many rows were added. Existing rows are never modified.
	InsertSlotsIfAbsent(ctx context.Context, slots []Slot) (int64, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListSlots(ctx context.Context, f SlotFilter) ([]Slot, error)
	// UpdateSlotStatus moves a slot from one non-booked status to another.
	// Returns ErrSlotNotFound if the slot is not currently in from.
	UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error)
	ListBookedOverlapping(ctx context.Context, providerID uuid.UUID, date civil.Date, start, end civil.Time) ([]Slot, error)

	// CreateBookingForSlot inserts a confirmed booking and flips the slot
	// from available to booked in one transaction.
	CreateBookingForSlot(ctx context.Context, slotID uuid.UUID, client ClientInfo) (*Booking, error)
	// CreateBookingAt finds or creates the slot starting at (date, start),
	// stretches it to end, marks it booked and inserts the booking, all in
	// one transaction.
	CreateBookingAt(ctx context.Context, providerID uuid.UUID, date civil.Date, start, end civil.Time, client ClientInfo) (*Booking, error)
	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error)
	// TransitionBooking is a conditional update keyed by id and the expected
	// current status. Cancelling also releases the slot. Returns
	// ErrBookingNotFound if the booking is not currently in from.
	TransitionBooking(ctx context.Context, id uuid.UUID, from, to BookingStatus) (*Booking, error)
	AppendBookingNote(ctx context.Context, id uuid.UUID, note string) (*Booking, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

package api

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/hackgods/slot-booking-core/internal/scheduling"
)

type MockService struct{ mock.Mock }

func (m *MockService) CreateProvider(ctx context.Context, in scheduling.ProviderInput) (*scheduling.Provider, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduling.Provider), args.Error(1)
}

func (m *MockService) ListProviders(ctx context.Context, activeOnly bool) ([]scheduling.Provider, error) {
	args := m.Called(ctx, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]scheduling.Provider), args.Error(1)
}

func (m *MockService) CreateTemplate(ctx context.Context, in scheduling.TemplateInput) (*scheduling.AvailabilityTemplate, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduling.AvailabilityTemplate), args.Error(1)
}

func (m *MockService) UpdateTemplate(ctx context.Context, id uuid.UUID, in scheduling.TemplateInput) (*scheduling.AvailabilityTemplate, error) {
	args := m.Called(ctx, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduling.AvailabilityTemplate), args.Error(1)
}

func (m *MockService) DeactivateTemplate(ctx context.Context, id uuid.UUID) (*scheduling.AvailabilityTemplate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduling.AvailabilityTemplate), args.Error(1)
}

func (m *MockService) ListTemplates(ctx context.Context, f scheduling.TemplateFilter) ([]scheduling.AvailabilityTemplate, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]scheduling.AvailabilityTemplate), args.Error(1)
}

func (m *MockService) GenerateSlots(ctx context.Context, req scheduling.GenerateRequest) (scheduling.GenerateResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(scheduling.GenerateResult), args.Error(1)
}

func (m *MockService) ListSlots(ctx context.Context, f scheduling.SlotFilter) ([]scheduling.Slot, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]scheduling.Slot), args.Error(1)
}

func (m *MockService) SetSlotBlocked(ctx context.Context, id uuid.UUID, blocked bool) (*scheduling.Slot, error) {
	args := m.Called(ctx, id, blocked)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduling.Slot), args.Error(1)
}

func (m *MockService) BookSlot(ctx context.Context, slotID uuid.UUID, client scheduling.ClientInfo) (*scheduling.Booking, error) {
	args := m.Called(ctx, slotID, client)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduling.Booking), args.Error(1)
}

func (m *MockService) BookAt(ctx context.Context, req scheduling.OverrideRequest) (*scheduling.Booking, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduling.Booking), args.Error(1)
}

func (m *MockService) GetBooking(ctx context.Context, id uuid.UUID) (*scheduling.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduling.Booking), args.Error(1)
}

func (m *MockService) ListBookings(ctx context.Context, f scheduling.BookingFilter) ([]scheduling.Booking, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]scheduling.Booking), args.Error(1)
}

func (m *MockService) TransitionBooking(ctx context.Context, id uuid.UUID, action scheduling.Action) (*scheduling.Booking, error) {
	args := m.Called(ctx, id, action)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduling.Booking), args.Error(1)
}

func (m *MockService) AppendNote(ctx context.Context, id uuid.UUID, note string) (*scheduling.Booking, error) {
	args := m.Called(ctx, id, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduling.Booking), args.Error(1)
}

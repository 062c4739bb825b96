package api

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hackgods/slot-booking-core/internal/scheduling"
)

type ErrorResponse struct {
	Error         string  `json:"error"`
	Details       string  `json:"details,omitempty"`
	SuggestedTime *string `json:"suggested_time,omitempty"`
}

type ProviderRequest struct {
	Name     string  `json:"name" validate:"required"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone"`
	IsActive *bool   `json:"is_active"`
}

type ProviderResponse struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Email    *string   `json:"email,omitempty"`
	Phone    *string   `json:"phone,omitempty"`
	IsActive bool      `json:"is_active"`
}

type TemplateRequest struct {
	ProviderID          string `json:"provider_id" validate:"required,uuid"`
	DayOfWeek           int    `json:"day_of_week" validate:"gte=0,lte=6"`
	StartTime           string `json:"start_time" validate:"required"`
	EndTime             string `json:"end_time" validate:"required"`
	SlotDurationMinutes int    `json:"slot_duration_minutes" validate:"gt=0"`
	BufferMinutes       int    `json:"buffer_minutes" validate:"gte=0"`
	IsActive            *bool  `json:"is_active"`
}

type TemplateResponse struct {
	ID                  uuid.UUID `json:"id"`
	ProviderID          uuid.UUID `json:"provider_id"`
	DayOfWeek           int       `json:"day_of_week"`
	StartTime           string    `json:"start_time"`
	EndTime             string    `json:"end_time"`
	SlotDurationMinutes int       `json:"slot_duration_minutes"`
	BufferMinutes       int       `json:"buffer_minutes"`
	IsActive            bool      `json:"is_active"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type GenerateSlotsRequest struct {
	ProviderID string `json:"provider_id" validate:"omitempty,uuid"`
	StartDate  string `json:"start_date" validate:"required"`
	EndDate    string `json:"end_date" validate:"required"`
}

type GenerateSlotsResponse struct {
	Created    int64 `json:"created_count"`
	Candidates int   `json:"candidates"`
}

type SlotResponse struct {
	ID         uuid.UUID  `json:"id"`
	ProviderID uuid.UUID  `json:"provider_id"`
	Date       civil.Date `json:"date"`
	StartTime  string     `json:"start_time"`
	EndTime    string     `json:"end_time"`
	Status     string     `json:"status"`
}

type AddressPayload struct {
	Line       string `json:"line"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
}

type ClientPayload struct {
	Name        string          `json:"name" validate:"required"`
	Email       string          `json:"email" validate:"required,email"`
	Phone       *string         `json:"phone,omitempty"`
	Address     *AddressPayload `json:"address,omitempty"`
	ServiceType string          `json:"service_type"`
	Notes       string          `json:"notes,omitempty"`
}

type BookSlotRequest struct {
	Client ClientPayload `json:"client"`
}

// OverrideBookingRequest takes duration_minutes of zero to mean the
// configured default.
type OverrideBookingRequest struct {
	ProviderID      string        `json:"provider_id" validate:"required,uuid"`
	Date            string        `json:"date" validate:"required"`
	StartTime       string        `json:"start_time" validate:"required"`
	DurationMinutes int           `json:"duration_minutes" validate:"gte=0,lte=1440"`
	Client          ClientPayload `json:"client"`
}

type NoteRequest struct {
	Note string `json:"note" validate:"required"`
}

type BookingResponse struct {
	ID        uuid.UUID     `json:"id"`
	SlotID    uuid.UUID     `json:"slot_id"`
	Status    string        `json:"status"`
	Client    ClientPayload `json:"client"`
	Slot      *SlotResponse `json:"slot,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func newList[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items)}
}

func toProviderResponse(p scheduling.Provider) ProviderResponse {
	return ProviderResponse{ID: p.ID, Name: p.Name, Email: p.Email, Phone: p.Phone, IsActive: p.IsActive}
}

func toTemplateResponse(t scheduling.AvailabilityTemplate) TemplateResponse {
	return TemplateResponse{
		ID:                  t.ID,
		ProviderID:          t.ProviderID,
		DayOfWeek:           int(t.DayOfWeek),
		StartTime:           scheduling.FormatClock(t.StartTime),
		EndTime:             scheduling.FormatClock(t.EndTime),
		SlotDurationMinutes: t.SlotDurationMinutes,
		BufferMinutes:       t.BufferMinutes,
		IsActive:            t.IsActive,
		UpdatedAt:           t.UpdatedAt,
	}
}

func toSlotResponse(s scheduling.Slot) SlotResponse {
	return SlotResponse{
		ID:         s.ID,
		ProviderID: s.ProviderID,
		Date:       s.Date,
		StartTime:  scheduling.FormatClock(s.StartTime),
		EndTime:    scheduling.FormatClock(s.EndTime),
		Status:     string(s.Status),
	}
}

func toBookingResponse(b scheduling.Booking) BookingResponse {
	resp := BookingResponse{
		ID:     b.ID,
		SlotID: b.SlotID,
		Status: string(b.Status),
		Client: ClientPayload{
			Name:        b.Client.Name,
			Email:       b.Client.Email,
			Phone:       b.Client.Phone,
			ServiceType: b.Client.ServiceType,
			Notes:       b.Client.Notes,
		},
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
	if a := b.Client.Address; a != nil {
		resp.Client.Address = &AddressPayload{Line: a.Line, City: a.City, PostalCode: a.PostalCode}
	}
	if b.Slot != nil {
		s := toSlotResponse(*b.Slot)
		resp.Slot = &s
	}
	return resp
}

func (c ClientPayload) toClientInfo() scheduling.ClientInfo {
	info := scheduling.ClientInfo{
		Name:        c.Name,
		Email:       c.Email,
		Phone:       c.Phone,
		ServiceType: c.ServiceType,
		Notes:       c.Notes,
	}
	if c.Address != nil {
		info.Address = &scheduling.Address{Line: c.Address.Line, City: c.Address.City, PostalCode: c.Address.PostalCode}
	}
	return info
}

func mapSlice[T, R any](in []T, f func(T) R) []R {
	out := make([]R, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/slot-booking-core/internal/logging"
	"github.com/hackgods/slot-booking-core/internal/scheduling"
	"github.com/hackgods/slot-booking-core/internal/validation"
)

type handlers struct {
	svc    SchedulingService
	logger *logging.Logger
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	if err := validation.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseUUID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a UUID", scheduling.ErrInvalidInput, field)
	}
	return id, nil
}

func optUUID(field, raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := parseUUID(field, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optDate(raw string) (*civil.Date, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := scheduling.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optInt(field, raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", scheduling.ErrInvalidInput, field)
	}
	return n, nil
}

// Providers

func (h *handlers) listProviders(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("include_inactive") != "true" || PrincipalFromContext(r.Context()).Role != RoleAdmin
	providers, err := h.svc.ListProviders(r.Context(), activeOnly)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(mapSlice(providers, toProviderResponse)))
}

func (h *handlers) createProvider(w http.ResponseWriter, r *http.Request) {
	var req ProviderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.svc.CreateProvider(r.Context(), scheduling.ProviderInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		IsActive: req.IsActive,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProviderResponse(*p))
}

// Templates

func (req TemplateRequest) toInput() (scheduling.TemplateInput, error) {
	providerID, err := parseUUID("provider_id", req.ProviderID)
	if err != nil {
		return scheduling.TemplateInput{}, err
	}
	start, err := scheduling.ParseClock(req.StartTime)
	if err != nil {
		return scheduling.TemplateInput{}, err
	}
	end, err := scheduling.ParseClock(req.EndTime)
	if err != nil {
		return scheduling.TemplateInput{}, err
	}
	return scheduling.TemplateInput{
		ProviderID:          providerID,
		DayOfWeek:           req.DayOfWeek,
		StartTime:           start,
		EndTime:             end,
		SlotDurationMinutes: req.SlotDurationMinutes,
		BufferMinutes:       req.BufferMinutes,
		IsActive:            req.IsActive,
	}, nil
}

func (h *handlers) listTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	providerID, err := optUUID("provider_id", q.Get("provider_id"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	templates, err := h.svc.ListTemplates(r.Context(), scheduling.TemplateFilter{
		ProviderID: providerID,
		ActiveOnly: q.Get("active") == "true",
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(mapSlice(templates, toTemplateResponse)))
}

func (h *handlers) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.toInput()
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	t, err := h.svc.CreateTemplate(r.Context(), in)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTemplateResponse(*t))
}

func (h *handlers) updateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req TemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := req.toInput()
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	t, err := h.svc.UpdateTemplate(r.Context(), id, in)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateResponse(*t))
}

func (h *handlers) deactivateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	t, err := h.svc.DeactivateTemplate(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateResponse(*t))
}

// Slots

func (h *handlers) generateSlots(w http.ResponseWriter, r *http.Request) {
	var req GenerateSlotsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	providerID, err := optUUID("provider_id", req.ProviderID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	start, err := scheduling.ParseDate(req.StartDate)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	end, err := scheduling.ParseDate(req.EndDate)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	res, err := h.svc.GenerateSlots(r.Context(), scheduling.GenerateRequest{
		ProviderID: providerID,
		StartDate:  start,
		EndDate:    end,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateSlotsResponse{Created: res.Created, Candidates: res.Candidates})
}

func (h *handlers) listSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := scheduling.SlotFilter{}

	var err error
	if f.ProviderID, err = optUUID("provider_id", q.Get("provider_id")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if f.From, err = scheduling.ParseDate(q.Get("from")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if f.To, err = scheduling.ParseDate(q.Get("to")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if raw := q.Get("status"); raw != "" {
		st, err := scheduling.ParseSlotStatus(raw)
		if err != nil {
			handleServiceError(w, r, h.logger, err)
			return
		}
		f.Status = &st
	}

	slots, err := h.svc.ListSlots(r.Context(), f)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(mapSlice(slots, toSlotResponse)))
}

func (h *handlers) setSlotBlocked(blocked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		slot, err := h.svc.SetSlotBlocked(r.Context(), id, blocked)
		if err != nil {
			handleServiceError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponse(*slot))
	}
}

// Bookings

func (h *handlers) bookSlot(w http.ResponseWriter, r *http.Request) {
	slotID, ok := idParam(w, r)
	if !ok {
		return
	}
	var req BookSlotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.svc.BookSlot(r.Context(), slotID, req.Client.toClientInfo())
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(*b))
}

func (h *handlers) overrideBooking(w http.ResponseWriter, r *http.Request) {
	var req OverrideBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	providerID, err := parseUUID("provider_id", req.ProviderID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	date, err := scheduling.ParseDate(req.Date)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	start, err := scheduling.ParseClock(req.StartTime)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	b, err := h.svc.BookAt(r.Context(), scheduling.OverrideRequest{
		ProviderID: providerID,
		Date:       date,
		StartTime:  start,
		Duration:   time.Duration(req.DurationMinutes) * time.Minute,
		Client:     req.Client.toClientInfo(),
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(*b))
}

func (h *handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	b, err := h.svc.GetBooking(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(*b))
}

func (h *handlers) listBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := scheduling.BookingFilter{}

	var err error
	if f.SlotID, err = optUUID("slot_id", q.Get("slot_id")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if f.ProviderID, err = optUUID("provider_id", q.Get("provider_id")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if f.From, err = optDate(q.Get("from")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if f.To, err = optDate(q.Get("to")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if raw := q.Get("status"); raw != "" {
		st, err := scheduling.ParseBookingStatus(raw)
		if err != nil {
			handleServiceError(w, r, h.logger, err)
			return
		}
		f.Status = &st
	}
	if f.Limit, err = optInt("limit", q.Get("limit")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if f.Offset, err = optInt("offset", q.Get("offset")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	bookings, err := h.svc.ListBookings(r.Context(), f)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(mapSlice(bookings, toBookingResponse)))
}

func (h *handlers) transitionBooking(action scheduling.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		b, err := h.svc.TransitionBooking(r.Context(), id, action)
		if err != nil {
			handleServiceError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(*b))
	}
}

func (h *handlers) appendNote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req NoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.svc.AppendNote(r.Context(), id, req.Note)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(*b))
}

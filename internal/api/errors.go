package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hackgods/slot-booking-core/internal/logging"
	"github.com/hackgods/slot-booking-core/internal/scheduling"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleServiceError maps scheduling errors onto HTTP responses. Anything
// unrecognised is logged and reported as a 500 without internal detail.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	var conflict *scheduling.ConflictError

	switch {
	case errors.As(err, &conflict):
		resp := ErrorResponse{Error: "slot_taken", Details: err.Error()}
		if conflict.SuggestedTime != nil {
			s := scheduling.FormatClock(*conflict.SuggestedTime)
			resp.SuggestedTime = &s
		}
		writeJSON(w, http.StatusConflict, resp)
	case errors.Is(err, scheduling.ErrConflict):
		writeError(w, http.StatusConflict, "slot_taken", "this time was just taken, choose another")
	case errors.Is(err, scheduling.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "this time is no longer available, pick another")
	case errors.Is(err, scheduling.ErrInvalidTransition):
		logger.Warn("invalid transition requested", "error", err, "path", r.URL.Path, "request_id", GetRequestID(r.Context()))
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, scheduling.ErrNoTemplates):
		writeError(w, http.StatusUnprocessableEntity, "no_templates", err.Error())
	case errors.Is(err, scheduling.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, scheduling.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, scheduling.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
	case errors.Is(err, scheduling.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, scheduling.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, "template_not_found", err.Error())
	default:
		logger.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path, "request_id", GetRequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

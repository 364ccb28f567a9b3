package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/baytaljazeera/eliteslots/internal/domain"
)

const (
	codeMethodNotAllowed    = "method_not_allowed"
	codeNotFound            = "not_found"
	codeInvalidRequestBody  = "invalid_request_body"
	codeInvalidID           = "invalid_id"
	codeSlotUnavailable     = "slot_unavailable"
	codePeriodNotActive     = "period_not_active"
	codeHoldExpired         = "hold_expired"
	codeOfferExpired        = "offer_expired"
	codeAlreadyConfirmed    = "already_confirmed"
	codeAlreadyDecided      = "already_decided"
	codeNoSlotsConfigured   = "no_slots_configured"
	codeInvalidTransition   = "invalid_transition"
	codeInvalidDays         = "invalid_days"
	codeInvalidPrice        = "invalid_price"
	codeIdempotencyRequired = "idempotency_key_required"
	codeIdempotencyConflict = "idempotency_conflict"
	codeExtensionPending    = "extension_pending"
	codeRateLimited         = "rate_limited"
	codeForbidden           = "forbidden"
	codeInternalError       = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// respondValidationError reports a rejected request body. Everything lands on
// 400 with the most specific code available.
func respondValidationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrIdempotencyKeyRequired):
		writeError(w, http.StatusBadRequest, codeIdempotencyRequired, err.Error())
	case errors.Is(err, domain.ErrInvalidDays):
		writeError(w, http.StatusBadRequest, codeInvalidDays, err.Error())
	default:
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
	}
}

// respondError maps the engine's error taxonomy onto HTTP. Lost races land
// on 409 so clients can offer the waitlist; configuration faults land on 503
// so operators see them.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, codeSlotUnavailable, err.Error())
	case errors.Is(err, domain.ErrPeriodNotActive):
		writeError(w, http.StatusConflict, codePeriodNotActive, err.Error())
	case errors.Is(err, domain.ErrHoldExpired):
		writeError(w, http.StatusConflict, codeHoldExpired, err.Error())
	case errors.Is(err, domain.ErrOfferExpired):
		writeError(w, http.StatusConflict, codeOfferExpired, err.Error())
	case errors.Is(err, domain.ErrAlreadyConfirmed):
		writeError(w, http.StatusConflict, codeAlreadyConfirmed, err.Error())
	case errors.Is(err, domain.ErrAlreadyDecided):
		writeError(w, http.StatusConflict, codeAlreadyDecided, err.Error())
	case errors.Is(err, domain.ErrExtensionPending):
		writeError(w, http.StatusConflict, codeExtensionPending, err.Error())
	case errors.Is(err, domain.ErrIdempotencyConflict):
		writeError(w, http.StatusConflict, codeIdempotencyConflict, err.Error())
	case errors.Is(err, domain.ErrIdempotencyKeyRequired):
		writeError(w, http.StatusBadRequest, codeIdempotencyRequired, err.Error())
	case errors.Is(err, domain.ErrInvalidDays):
		writeError(w, http.StatusBadRequest, codeInvalidDays, err.Error())
	case errors.Is(err, domain.ErrInvalidPrice):
		writeError(w, http.StatusBadRequest, codeInvalidPrice, err.Error())
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, codeInvalidTransition, err.Error())
	case errors.Is(err, domain.ErrNoSlotsConfigured):
		writeError(w, http.StatusServiceUnavailable, codeNoSlotsConfigured, err.Error())
	case errors.Is(err, domain.ErrSlotNotFound),
		errors.Is(err, domain.ErrPeriodNotFound),
		errors.Is(err, domain.ErrReservationNotFound),
		errors.Is(err, domain.ErrWaitlistEntryNotFound),
		errors.Is(err, domain.ErrExtensionNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

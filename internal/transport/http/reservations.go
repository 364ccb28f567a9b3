package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/baytaljazeera/eliteslots/internal/app"
	"github.com/baytaljazeera/eliteslots/internal/domain"
)

const idempotencyHeader = "Idempotency-Key"

// SlotHolder is the minimal interface needed to place a hold.
type SlotHolder interface {
	Hold(ctx context.Context, in app.HoldInput) (domain.Reservation, error)
}

// HandleHold returns an HTTP handler for placing holds on slots.
func HandleHold(svc SlotHolder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req holdRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if key := r.Header.Get(idempotencyHeader); key != "" {
			req.IdempotencyKey = key
		}
		if err := req.validate(); err != nil {
			respondValidationError(w, err)
			return
		}

		res, err := svc.Hold(r.Context(), app.HoldInput{
			SlotID:         req.SlotID,
			PeriodID:       req.PeriodID,
			ListingID:      req.ListingID,
			OwnerID:        req.OwnerID,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			respondError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, renderReservation(res))
	}
}

// ReservationConfirmer is the minimal interface needed to confirm a hold.
type ReservationConfirmer interface {
	Confirm(ctx context.Context, reservationID, paymentRef string) (domain.Reservation, error)
}

// HandleConfirm returns an HTTP handler for confirming held reservations.
func HandleConfirm(svc ReservationConfirmer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		id, ok := parseReservationPath(r.URL.Path, "confirm")
		if !ok {
			http.NotFound(w, r)
			return
		}

		var req confirmRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.PaymentRef == "" {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "payment_ref is required")
			return
		}

		res, err := svc.Confirm(r.Context(), id, req.PaymentRef)
		if err != nil {
			respondError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, renderReservation(res))
	}
}

// ReservationCanceller is the minimal interface needed to cancel a reservation.
type ReservationCanceller interface {
	Cancel(ctx context.Context, reservationID, reason string, actor domain.CancelActor) (domain.Reservation, error)
}

// HandleCancel returns an HTTP handler for owner-initiated cancellation.
func HandleCancel(svc ReservationCanceller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		id, ok := parseReservationPath(r.URL.Path, "cancel")
		if !ok {
			http.NotFound(w, r)
			return
		}

		var req cancelRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		actor := domain.CancelActorOwner
		if req.Actor != "" {
			a, ok := parseCancelActor(req.Actor)
			if !ok {
				writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "unknown actor")
				return
			}
			actor = a
		}

		res, err := svc.Cancel(r.Context(), id, req.Reason, actor)
		if err != nil {
			respondError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, renderReservation(res))
	}
}

// ReservationReader is the minimal interface needed to fetch a reservation.
type ReservationReader interface {
	Get(ctx context.Context, reservationID string) (domain.Reservation, error)
}

// HandleGetReservation returns an HTTP handler for reading one reservation.
func HandleGetReservation(svc ReservationReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 2 || parts[0] != "reservations" || parts[1] == "" {
			http.NotFound(w, r)
			return
		}

		res, err := svc.Get(r.Context(), parts[1])
		if err != nil {
			respondError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, renderReservation(res))
	}
}

func parseReservationPath(path, action string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return "", false
	}
	if parts[0] != "reservations" || parts[2] != action {
		return "", false
	}
	if parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func parseCancelActor(s string) (domain.CancelActor, bool) {
	switch domain.CancelActor(s) {
	case domain.CancelActorOwner, domain.CancelActorAdmin:
		return domain.CancelActor(s), true
	}
	return "", false
}

type holdRequest struct {
	SlotID         string `json:"slot_id"`
	PeriodID       string `json:"period_id"`
	ListingID      string `json:"listing_id"`
	OwnerID        string `json:"owner_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (r holdRequest) validate() error {
	if r.SlotID == "" || r.PeriodID == "" || r.ListingID == "" || r.OwnerID == "" {
		return errors.New("slot_id, period_id, listing_id and owner_id are required")
	}
	if r.IdempotencyKey == "" {
		return domain.ErrIdempotencyKeyRequired
	}
	return nil
}

type confirmRequest struct {
	PaymentRef string `json:"payment_ref"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

type reservationResponse struct {
	ID            string     `json:"id"`
	SlotID        string     `json:"slot_id"`
	PeriodID      string     `json:"period_id"`
	ListingID     string     `json:"listing_id"`
	OwnerID       string     `json:"owner_id"`
	Status        string     `json:"status"`
	Price         string     `json:"price"`
	Tax           string     `json:"tax"`
	Total         string     `json:"total"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func renderReservation(res domain.Reservation) reservationResponse {
	out := reservationResponse{
		ID:           res.ID,
		SlotID:       res.SlotID,
		PeriodID:     res.PeriodID,
		ListingID:    res.ListingID,
		OwnerID:      res.OwnerID,
		Status:       string(res.Status),
		Price:        res.Price.StringFixed(2),
		Tax:          res.Tax.StringFixed(2),
		Total:        res.Total.StringFixed(2),
		ConfirmedAt:  res.ConfirmedAt,
		CancelledAt:  res.CancelledAt,
		CancelReason: res.CancelReason,
		CreatedAt:    res.CreatedAt,
	}
	if res.Status == domain.ReservationStatusHeld {
		t := res.HoldExpiresAt
		out.HoldExpiresAt = &t
	}
	if !res.EndsAt.IsZero() {
		t := res.EndsAt
		out.EndsAt = &t
	}
	return out
}

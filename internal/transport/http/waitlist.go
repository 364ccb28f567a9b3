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

// WaitlistJoiner is the minimal interface needed to queue an owner.
type WaitlistJoiner interface {
	Join(ctx context.Context, in app.JoinInput) (domain.WaitlistEntry, error)
}

// HandleWaitlistJoin returns an HTTP handler for joining the waitlist.
func HandleWaitlistJoin(svc WaitlistJoiner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req joinRequest
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

		entry, err := svc.Join(r.Context(), app.JoinInput{
			PeriodID:         req.PeriodID,
			OwnerID:          req.OwnerID,
			ListingID:        req.ListingID,
			TierPreference:   req.TierPreference,
			PriorityOverride: req.PriorityOverride,
			IdempotencyKey:   req.IdempotencyKey,
		})
		if err != nil {
			respondError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, renderWaitlistEntry(entry))
	}
}

// OfferAccepter is the minimal interface needed to accept a slot offer.
type OfferAccepter interface {
	Accept(ctx context.Context, entryID string) (domain.Reservation, error)
}

// HandleWaitlistAccept returns an HTTP handler for accepting an offered slot.
// A successful accept yields a fresh hold on the offered slot.
func HandleWaitlistAccept(svc OfferAccepter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		id, ok := parseWaitlistPath(r.URL.Path, "accept")
		if !ok {
			http.NotFound(w, r)
			return
		}

		res, err := svc.Accept(r.Context(), id)
		if err != nil {
			respondError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, renderReservation(res))
	}
}

// OfferDecliner is the minimal interface needed to decline a slot offer.
type OfferDecliner interface {
	Decline(ctx context.Context, entryID string) (domain.WaitlistEntry, error)
}

// HandleWaitlistDecline returns an HTTP handler for declining an offered slot.
func HandleWaitlistDecline(svc OfferDecliner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		id, ok := parseWaitlistPath(r.URL.Path, "decline")
		if !ok {
			http.NotFound(w, r)
			return
		}

		entry, err := svc.Decline(r.Context(), id)
		if err != nil {
			respondError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, renderWaitlistEntry(entry))
	}
}

func parseWaitlistPath(path, action string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return "", false
	}
	if parts[0] != "waitlist" || parts[2] != action {
		return "", false
	}
	if parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

type joinRequest struct {
	PeriodID         string `json:"period_id"`
	OwnerID          string `json:"owner_id"`
	ListingID        string `json:"listing_id"`
	TierPreference   string `json:"tier_preference"`
	PriorityOverride int64  `json:"priority_override"`
	IdempotencyKey   string `json:"idempotency_key"`
}

func (r joinRequest) validate() error {
	if r.PeriodID == "" || r.OwnerID == "" || r.ListingID == "" {
		return errors.New("period_id, owner_id and listing_id are required")
	}
	if r.IdempotencyKey == "" {
		return domain.ErrIdempotencyKeyRequired
	}
	return nil
}

type waitlistEntryResponse struct {
	ID             string     `json:"id"`
	PeriodID       string     `json:"period_id"`
	OwnerID        string     `json:"owner_id"`
	ListingID      string     `json:"listing_id"`
	TierPreference string     `json:"tier_preference"`
	Priority       int64      `json:"priority"`
	Status         string     `json:"status"`
	OfferedSlotID  string     `json:"offered_slot_id,omitempty"`
	OfferExpiresAt *time.Time `json:"offer_expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func renderWaitlistEntry(e domain.WaitlistEntry) waitlistEntryResponse {
	return waitlistEntryResponse{
		ID:             e.ID,
		PeriodID:       e.PeriodID,
		OwnerID:        e.OwnerID,
		ListingID:      e.ListingID,
		TierPreference: e.TierPreference,
		Priority:       e.Priority,
		Status:         string(e.Status),
		OfferedSlotID:  e.OfferedSlotID,
		OfferExpiresAt: e.OfferExpiresAt,
		CreatedAt:      e.CreatedAt,
	}
}

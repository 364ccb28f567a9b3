package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/baytaljazeera/eliteslots/internal/app"
	"github.com/baytaljazeera/eliteslots/internal/domain"
)

// AvailabilityReader is the minimal interface needed to report slot states.
type AvailabilityReader interface {
	Availability(ctx context.Context, periodID string) ([]app.SlotAvailability, error)
	ListActiveSlots(ctx context.Context) ([]domain.Slot, error)
}

// PeriodResolver resolves the current active period when the caller omits one.
type PeriodResolver interface {
	GetOrCreateActivePeriod(ctx context.Context) (domain.Period, error)
}

// HandleAvailability returns the grid's per-slot status for a period.
func HandleAvailability(catalog AvailabilityReader, periods PeriodResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		periodID := r.URL.Query().Get("period_id")
		var period domain.Period
		if periodID == "" {
			p, err := periods.GetOrCreateActivePeriod(r.Context())
			if err != nil {
				respondError(w, err)
				return
			}
			period = p
			periodID = p.ID
		}

		slots, err := catalog.Availability(r.Context(), periodID)
		if err != nil {
			respondError(w, err)
			return
		}

		resp := availabilityResponse{PeriodID: periodID}
		if period.ID != "" {
			resp.PeriodEndsAt = &period.EndsAt
		}
		for _, sa := range slots {
			resp.Slots = append(resp.Slots, slotStatus{
				ID:        sa.Slot.ID,
				Row:       sa.Slot.Row,
				Col:       sa.Slot.Col,
				Tier:      string(sa.Slot.Tier),
				BasePrice: sa.Slot.BasePrice.StringFixed(2),
				Status:    sa.Status,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleListSlots lists the active slot catalog in display order.
func HandleListSlots(catalog AvailabilityReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		slots, err := catalog.ListActiveSlots(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}

		out := make([]slotStatus, 0, len(slots))
		for _, s := range slots {
			out = append(out, slotStatus{
				ID:        s.ID,
				Row:       s.Row,
				Col:       s.Col,
				Tier:      string(s.Tier),
				BasePrice: s.BasePrice.StringFixed(2),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type availabilityResponse struct {
	PeriodID     string       `json:"period_id"`
	PeriodEndsAt *time.Time   `json:"period_ends_at,omitempty"`
	Slots        []slotStatus `json:"slots"`
}

type slotStatus struct {
	ID        string `json:"id"`
	Row       int    `json:"row"`
	Col       int    `json:"col"`
	Tier      string `json:"tier"`
	BasePrice string `json:"base_price"`
	Status    string `json:"status,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

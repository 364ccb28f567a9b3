package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/baytaljazeera/eliteslots/internal/app"
	"github.com/baytaljazeera/eliteslots/internal/domain"
)

func sampleEntry(status domain.WaitlistStatus) domain.WaitlistEntry {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	e := domain.WaitlistEntry{
		ID:             "wl-1",
		PeriodID:       "period-1",
		OwnerID:        "owner-2",
		ListingID:      "listing-2",
		TierPreference: "top",
		Priority:       7,
		Status:         status,
		CreatedAt:      now,
	}
	if status == domain.WaitlistStatusOffered {
		e.OfferedSlotID = "slot-1"
		expires := now.Add(10 * time.Minute)
		e.OfferExpiresAt = &expires
	}
	return e
}

func TestHandleWaitlistJoin(t *testing.T) {
	t.Parallel()

	validBody := `{"period_id":"period-1","owner_id":"owner-2","listing_id":"listing-2","tier_preference":"top","idempotency_key":"k1"}`

	tests := []struct {
		name           string
		body           string
		serviceErr     error
		expectedStatus int
		expectedSubstr string
	}{
		{
			name:           "success",
			body:           validBody,
			expectedStatus: http.StatusCreated,
			expectedSubstr: `"status":"waiting"`,
		},
		{
			name:           "invalid json",
			body:           `{"period_id"`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing idempotency key",
			body:           `{"period_id":"period-1","owner_id":"owner-2","listing_id":"listing-2"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "period not active",
			body:           validBody,
			serviceErr:     domain.ErrPeriodNotActive,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "idempotency conflict",
			body:           validBody,
			serviceErr:     domain.ErrIdempotencyConflict,
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &stubWaitlistService{
				entry: sampleEntry(domain.WaitlistStatusWaiting),
				err:   tt.serviceErr,
			}
			req := httptest.NewRequest(http.MethodPost, "/waitlist/join", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()

			HandleWaitlistJoin(svc).ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, rec.Code, rec.Body.String())
			}
			if tt.expectedSubstr != "" && !strings.Contains(rec.Body.String(), tt.expectedSubstr) {
				t.Fatalf("expected response to contain %q, got %q", tt.expectedSubstr, rec.Body.String())
			}
		})
	}
}

func TestHandleWaitlistAccept(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		path           string
		serviceErr     error
		expectedStatus int
		expectedSubstr string
	}{
		{
			name:           "success yields hold",
			path:           "/waitlist/wl-1/accept",
			expectedStatus: http.StatusCreated,
			expectedSubstr: `"status":"held"`,
		},
		{
			name:           "bad path",
			path:           "/waitlist//accept",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "offer expired",
			path:           "/waitlist/wl-1/accept",
			serviceErr:     domain.ErrOfferExpired,
			expectedStatus: http.StatusConflict,
			expectedSubstr: `"code":"offer_expired"`,
		},
		{
			name:           "slot taken again",
			path:           "/waitlist/wl-1/accept",
			serviceErr:     domain.ErrSlotUnavailable,
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "entry not found",
			path:           "/waitlist/wl-1/accept",
			serviceErr:     domain.ErrWaitlistEntryNotFound,
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &stubWaitlistService{
				reservation: sampleReservation(domain.ReservationStatusHeld),
				err:         tt.serviceErr,
			}
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			rec := httptest.NewRecorder()

			HandleWaitlistAccept(svc).ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, rec.Code, rec.Body.String())
			}
			if tt.expectedSubstr != "" && !strings.Contains(rec.Body.String(), tt.expectedSubstr) {
				t.Fatalf("expected response to contain %q, got %q", tt.expectedSubstr, rec.Body.String())
			}
		})
	}
}

func TestHandleWaitlistDecline(t *testing.T) {
	t.Parallel()

	svc := &stubWaitlistService{entry: sampleEntry(domain.WaitlistStatusDeclined)}
	req := httptest.NewRequest(http.MethodPost, "/waitlist/wl-1/decline", nil)
	rec := httptest.NewRecorder()

	HandleWaitlistDecline(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"status":"declined"`) {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

type stubWaitlistService struct {
	entry       domain.WaitlistEntry
	reservation domain.Reservation
	err         error
}

func (s *stubWaitlistService) Join(_ context.Context, _ app.JoinInput) (domain.WaitlistEntry, error) {
	if s.err != nil {
		return domain.WaitlistEntry{}, s.err
	}
	return s.entry, nil
}

func (s *stubWaitlistService) Accept(_ context.Context, _ string) (domain.Reservation, error) {
	if s.err != nil {
		return domain.Reservation{}, s.err
	}
	return s.reservation, nil
}

func (s *stubWaitlistService) Decline(_ context.Context, _ string) (domain.WaitlistEntry, error) {
	if s.err != nil {
		return domain.WaitlistEntry{}, s.err
	}
	return s.entry, nil
}

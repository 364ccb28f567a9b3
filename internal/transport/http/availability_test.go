package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baytaljazeera/eliteslots/internal/app"
	"github.com/baytaljazeera/eliteslots/internal/domain"
)

func TestHandleAvailability_ExplicitPeriod(t *testing.T) {
	t.Parallel()

	catalog := &stubCatalogService{
		availability: []app.SlotAvailability{
			{Slot: domain.Slot{ID: "slot-1", Row: 1, Col: 1, Tier: domain.TierTop, BasePrice: decimal.RequireFromString("500.00")}, Status: "held"},
			{Slot: domain.Slot{ID: "slot-2", Row: 1, Col: 2, Tier: domain.TierTop, BasePrice: decimal.RequireFromString("500.00")}, Status: "free"},
		},
	}
	periods := &stubPeriodService{}

	req := httptest.NewRequest(http.MethodGet, "/availability?period_id=period-1", nil)
	rec := httptest.NewRecorder()

	HandleAvailability(catalog, periods).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"period_id":"period-1"`) {
		t.Fatalf("expected period id in body, got %q", body)
	}
	if !strings.Contains(body, `"status":"held"`) || !strings.Contains(body, `"status":"free"`) {
		t.Fatalf("expected slot statuses in body, got %q", body)
	}
	if periods.called {
		t.Fatal("expected period resolver to be skipped when period_id is supplied")
	}
}

func TestHandleAvailability_ResolvesActivePeriod(t *testing.T) {
	t.Parallel()

	catalog := &stubCatalogService{}
	periods := &stubPeriodService{
		period: domain.Period{
			ID:       "period-2",
			StartsAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			EndsAt:   time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
			Status:   domain.PeriodStatusActive,
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/availability", nil)
	rec := httptest.NewRecorder()

	HandleAvailability(catalog, periods).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"period_id":"period-2"`) {
		t.Fatalf("expected resolved period in body, got %q", rec.Body.String())
	}
	if !periods.called {
		t.Fatal("expected period resolver to be used")
	}
}

func TestHandleAvailability_NoSlots(t *testing.T) {
	t.Parallel()

	catalog := &stubCatalogService{err: domain.ErrNoSlotsConfigured}
	periods := &stubPeriodService{}

	req := httptest.NewRequest(http.MethodGet, "/availability?period_id=period-1", nil)
	rec := httptest.NewRecorder()

	HandleAvailability(catalog, periods).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHandleListSlots(t *testing.T) {
	t.Parallel()

	catalog := &stubCatalogService{
		slots: []domain.Slot{
			{ID: "slot-1", Row: 1, Col: 1, Tier: domain.TierTop, BasePrice: decimal.RequireFromString("500.00")},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/slots", nil)
	rec := httptest.NewRecorder()

	HandleListSlots(catalog).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"base_price":"500.00"`) {
		t.Fatalf("expected price string in body, got %q", rec.Body.String())
	}
}

type stubCatalogService struct {
	availability []app.SlotAvailability
	slots        []domain.Slot
	err          error
}

func (s *stubCatalogService) Availability(_ context.Context, _ string) ([]app.SlotAvailability, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.availability, nil
}

func (s *stubCatalogService) ListActiveSlots(_ context.Context) ([]domain.Slot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.slots, nil
}

type stubPeriodService struct {
	period domain.Period
	called bool
	err    error
}

func (s *stubPeriodService) GetOrCreateActivePeriod(_ context.Context) (domain.Period, error) {
	s.called = true
	if s.err != nil {
		return domain.Period{}, s.err
	}
	return s.period, nil
}

package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/baytaljazeera/eliteslots/internal/domain"
)

type CatalogRepository interface {
	ListActiveSlots(ctx context.Context) ([]domain.Slot, error)
	GetSlot(ctx context.Context, id string) (domain.Slot, error)
	SetSlotActive(ctx context.Context, id string, active bool) error
	SetSlotPrice(ctx context.Context, id string, price decimal.Decimal) error
	// ActiveStatusBySlot maps slot id to the status of its active reservation
	// for the period, omitting slots with none.
	ActiveStatusBySlot(ctx context.Context, periodID string) (map[string]domain.ReservationStatus, error)
	GetPeriod(ctx context.Context, id string) (domain.Period, error)
}

type CatalogService struct {
	repo CatalogRepository
}

func NewCatalogService(repo CatalogRepository) *CatalogService {
	return &CatalogService{repo: repo}
}

func (s *CatalogService) ListActiveSlots(ctx context.Context) ([]domain.Slot, error) {
	slots, err := s.repo.ListActiveSlots(ctx)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, domain.ErrNoSlotsConfigured
	}
	return slots, nil
}

// SlotAvailability is one grid position's state for a period.
type SlotAvailability struct {
	Slot   domain.Slot
	Status string // free | held | pending_approval | confirmed
}

// Availability reports every active slot's state for the period, in display
// order, for the listing-creation UI.
func (s *CatalogService) Availability(ctx context.Context, periodID string) ([]SlotAvailability, error) {
	if periodID == "" {
		return nil, domain.ErrInvalidID
	}
	if _, err := s.repo.GetPeriod(ctx, periodID); err != nil {
		return nil, err
	}

	slots, err := s.ListActiveSlots(ctx)
	if err != nil {
		return nil, err
	}
	taken, err := s.repo.ActiveStatusBySlot(ctx, periodID)
	if err != nil {
		return nil, err
	}

	out := make([]SlotAvailability, 0, len(slots))
	for _, slot := range slots {
		status := "free"
		if st, ok := taken[slot.ID]; ok {
			status = string(st)
		}
		out = append(out, SlotAvailability{Slot: slot, Status: status})
	}
	return out, nil
}

func (s *CatalogService) SetSlotActive(ctx context.Context, slotID string, active bool) error {
	if slotID == "" {
		return domain.ErrInvalidID
	}
	return s.repo.SetSlotActive(ctx, slotID, active)
}

func (s *CatalogService) SetSlotPrice(ctx context.Context, slotID string, price decimal.Decimal) error {
	if slotID == "" {
		return domain.ErrInvalidID
	}
	if price.IsNegative() || price.IsZero() {
		return domain.ErrInvalidPrice
	}
	return s.repo.SetSlotPrice(ctx, slotID, price)
}

package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/baytaljazeera/eliteslots/internal/clock"
	"github.com/baytaljazeera/eliteslots/internal/domain"
	"github.com/baytaljazeera/eliteslots/internal/events"
	"github.com/baytaljazeera/eliteslots/internal/obs"
)

type WaitlistRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.WaitlistEntry, error)
	// Create inserts the entry, assigning the next FIFO priority when
	// e.Priority is zero.
	Create(ctx context.Context, e domain.WaitlistEntry) (domain.WaitlistEntry, error)
	GetForUpdate(ctx context.Context, id string) (domain.WaitlistEntry, error)
	// NextWaiting returns the highest-priority waiting entry for the period
	// matching the tier (or "any"), skipping rows locked by other workers.
	NextWaiting(ctx context.Context, periodID string, tier domain.Tier) (*domain.WaitlistEntry, error)
	MarkOffered(ctx context.Context, id, slotID string, expiresAt time.Time) (bool, error)
	// RevertToWaiting returns an offered entry to waiting at its original
	// priority, clearing the offer.
	RevertToWaiting(ctx context.Context, id string) (bool, error)
	SetStatus(ctx context.Context, id string, from, to domain.WaitlistStatus) (bool, error)

	GetSlot(ctx context.Context, id string) (domain.Slot, error)
	GetPeriod(ctx context.Context, id string) (domain.Period, error)
	// SlotTaken reports whether an active reservation exists for the pair.
	SlotTaken(ctx context.Context, slotID, periodID string) (bool, error)
}

// Holder is the slice of ReservationService the waitlist needs to claim a
// slot on behalf of an accepting owner.
type Holder interface {
	Hold(ctx context.Context, in HoldInput) (domain.Reservation, error)
}

type WaitlistService struct {
	repo     WaitlistRepository
	holder   Holder
	clock    clock.Clock
	bus      events.Publisher
	metrics  *obs.Metrics
	logger   *slog.Logger
	offerTTL time.Duration
}

const defaultOfferTTL = 10 * time.Minute

func NewWaitlistService(repo WaitlistRepository, holder Holder, clk clock.Clock, bus events.Publisher, opts ...WaitlistServiceOption) *WaitlistService {
	svc := &WaitlistService{
		repo:     repo,
		holder:   holder,
		clock:    clk,
		bus:      bus,
		logger:   slog.Default(),
		offerTTL: defaultOfferTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type WaitlistServiceOption func(*WaitlistService)

// WithOfferTTL overrides the default TTL for slot offers. Offers are shorter
// than holds: the owner already asked to be queued.
func WithOfferTTL(d time.Duration) WaitlistServiceOption {
	return func(s *WaitlistService) {
		if d > 0 {
			s.offerTTL = d
		}
	}
}

func WithWaitlistMetrics(m *obs.Metrics) WaitlistServiceOption {
	return func(s *WaitlistService) { s.metrics = m }
}

func WithWaitlistLogger(l *slog.Logger) WaitlistServiceOption {
	return func(s *WaitlistService) {
		if l != nil {
			s.logger = l
		}
	}
}

type JoinInput struct {
	PeriodID       string
	OwnerID        string
	ListingID      string
	TierPreference string
	// PriorityOverride, when > 0, is supplied by the loyalty collaborator;
	// lower values are offered first.
	PriorityOverride int64
	IdempotencyKey   string
}

// Join queues an owner for a slot in the period after a failed hold.
func (s *WaitlistService) Join(ctx context.Context, in JoinInput) (domain.WaitlistEntry, error) {
	if in.IdempotencyKey == "" {
		return domain.WaitlistEntry{}, domain.ErrIdempotencyKeyRequired
	}
	if in.PeriodID == "" || in.OwnerID == "" || in.ListingID == "" {
		return domain.WaitlistEntry{}, domain.ErrInvalidID
	}
	switch in.TierPreference {
	case domain.TierAny, string(domain.TierTop), string(domain.TierMiddle), string(domain.TierBottom):
	case "":
		in.TierPreference = domain.TierAny
	default:
		return domain.WaitlistEntry{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var result domain.WaitlistEntry

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if existing, err := s.repo.FindByIdempotencyKey(txCtx, in.IdempotencyKey); err != nil {
			return err
		} else if existing != nil {
			if existing.PeriodID != in.PeriodID || existing.OwnerID != in.OwnerID {
				return domain.ErrIdempotencyConflict
			}
			result = *existing
			return nil
		}

		period, err := s.repo.GetPeriod(txCtx, in.PeriodID)
		if err != nil {
			return err
		}
		if period.Status != domain.PeriodStatusActive {
			return domain.ErrPeriodNotActive
		}

		entry := domain.WaitlistEntry{
			ID:             newID(),
			PeriodID:       in.PeriodID,
			OwnerID:        in.OwnerID,
			ListingID:      in.ListingID,
			TierPreference: in.TierPreference,
			Priority:       in.PriorityOverride,
			Status:         domain.WaitlistStatusWaiting,
			IdempotencyKey: in.IdempotencyKey,
			CreatedAt:      now,
		}
		created, err := s.repo.Create(txCtx, entry)
		if err != nil {
			return err
		}
		result = created
		return nil
	})
	if err != nil {
		return domain.WaitlistEntry{}, err
	}
	return result, nil
}

// OnSlotFreed runs one cascade step for a freed (slot, period): if the slot
// is still free, the best matching waiting entry is moved to offered and the
// owner is notified. Direct holds racing the cascade win by design; a slot
// retaken in the interim makes this a no-op.
func (s *WaitlistService) OnSlotFreed(ctx context.Context, slotID, periodID string) error {
	now := s.clock.Now()
	var offered *domain.WaitlistEntry

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		period, err := s.repo.GetPeriod(txCtx, periodID)
		if err != nil {
			return err
		}
		if period.Status != domain.PeriodStatusActive {
			return nil
		}

		taken, err := s.repo.SlotTaken(txCtx, slotID, periodID)
		if err != nil {
			return err
		}
		if taken {
			return nil
		}

		slot, err := s.repo.GetSlot(txCtx, slotID)
		if err != nil {
			return err
		}
		if !slot.Active {
			return nil
		}

		entry, err := s.repo.NextWaiting(txCtx, periodID, slot.Tier)
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}

		applied, err := s.repo.MarkOffered(txCtx, entry.ID, slotID, now.Add(s.offerTTL))
		if err != nil {
			return err
		}
		if !applied {
			// Another cascade worker got there first.
			return nil
		}

		expiry := now.Add(s.offerTTL)
		entry.Status = domain.WaitlistStatusOffered
		entry.OfferedSlotID = slotID
		entry.OfferExpiresAt = &expiry
		offered = entry
		return nil
	})
	if err != nil {
		return err
	}
	if offered == nil {
		return nil
	}

	if s.metrics != nil {
		s.metrics.OffersMadeTotal.Inc()
	}
	s.notify(ctx, events.Notification{
		Type:     events.NotifySlotOffered,
		OwnerID:  offered.OwnerID,
		SlotID:   slotID,
		PeriodID: periodID,
		RecordID: offered.ID,
		Deadline: offered.OfferExpiresAt,
	})
	return nil
}

// Accept converts an offer into a fresh hold for the waitlisted owner. When
// a direct hold claimed the slot in the interim, the entry reverts to waiting
// at its original priority and the cascade will run again on the next free.
func (s *WaitlistService) Accept(ctx context.Context, entryID string) (domain.Reservation, error) {
	now := s.clock.Now()
	var entry domain.WaitlistEntry

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		e, err := s.repo.GetForUpdate(txCtx, entryID)
		if err != nil {
			return err
		}
		if e.Status != domain.WaitlistStatusOffered {
			return domain.ErrInvalidTransition
		}
		if e.OfferLapsed(now) {
			return domain.ErrOfferExpired
		}
		entry = e
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	res, err := s.holder.Hold(ctx, HoldInput{
		SlotID:         entry.OfferedSlotID,
		PeriodID:       entry.PeriodID,
		ListingID:      entry.ListingID,
		OwnerID:        entry.OwnerID,
		IdempotencyKey: "waitlist-accept-" + entry.ID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrSlotUnavailable) {
			if _, rerr := s.repo.RevertToWaiting(ctx, entry.ID); rerr != nil {
				s.logger.Error("revert to waiting failed", "entry_id", entry.ID, "error", rerr)
			}
			return domain.Reservation{}, domain.ErrSlotUnavailable
		}
		return domain.Reservation{}, err
	}

	if _, err := s.repo.SetStatus(ctx, entry.ID, domain.WaitlistStatusOffered, domain.WaitlistStatusAccepted); err != nil {
		s.logger.Error("mark accepted failed", "entry_id", entry.ID, "error", err)
	}
	return res, nil
}

// Decline terminalizes an offer and hands the slot to the next entry.
func (s *WaitlistService) Decline(ctx context.Context, entryID string) (domain.WaitlistEntry, error) {
	var entry domain.WaitlistEntry

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		e, err := s.repo.GetForUpdate(txCtx, entryID)
		if err != nil {
			return err
		}
		if e.Status == domain.WaitlistStatusDeclined {
			entry = e
			return nil
		}
		if e.Status != domain.WaitlistStatusOffered {
			return domain.ErrInvalidTransition
		}

		applied, err := s.repo.SetStatus(txCtx, e.ID, domain.WaitlistStatusOffered, domain.WaitlistStatusDeclined)
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrInvalidTransition
		}
		e.Status = domain.WaitlistStatusDeclined
		entry = e
		return nil
	})
	if err != nil {
		return domain.WaitlistEntry{}, err
	}

	if entry.OfferedSlotID != "" {
		s.publishFreed(ctx, entry.OfferedSlotID, entry.PeriodID)
	}
	return entry, nil
}

func (s *WaitlistService) publishFreed(ctx context.Context, slotID, periodID string) {
	if s.bus == nil {
		return
	}
	ev := events.SlotFreed{SlotID: slotID, PeriodID: periodID, FreedAt: s.clock.Now()}
	if err := s.bus.PublishSlotFreed(ctx, ev); err != nil {
		s.logger.Error("publish slot-freed failed", "slot_id", slotID, "period_id", periodID, "error", err)
	}
}

func (s *WaitlistService) notify(ctx context.Context, n events.Notification) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Notify(ctx, n); err != nil {
		s.logger.Error("notify failed", "type", string(n.Type), "owner_id", n.OwnerID, "error", err)
	}
}

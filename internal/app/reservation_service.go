package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baytaljazeera/eliteslots/internal/clock"
	"github.com/baytaljazeera/eliteslots/internal/domain"
	"github.com/baytaljazeera/eliteslots/internal/events"
	"github.com/baytaljazeera/eliteslots/internal/obs"
)

type ReservationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Reservation, error)
	GetForUpdate(ctx context.Context, id string) (domain.Reservation, error)
	// Create inserts a held reservation. The storage layer must reject a
	// second active-status row for the same (slot, period) with
	// domain.ErrSlotUnavailable, and a reused idempotency key with
	// domain.ErrIdempotencyConflict.
	Create(ctx context.Context, r domain.Reservation) error
	Confirm(ctx context.Context, id, paymentRef string, confirmedAt, endsAt time.Time, from domain.ReservationStatus) (bool, error)
	Cancel(ctx context.Context, id, reason string, actor domain.CancelActor, at time.Time) (bool, error)
	SetStatus(ctx context.Context, id string, from, to domain.ReservationStatus) (bool, error)
	ListActiveByListing(ctx context.Context, listingID string) ([]domain.Reservation, error)

	GetSlot(ctx context.Context, id string) (domain.Slot, error)
	CountActiveSlots(ctx context.Context) (int, error)
	GetPeriod(ctx context.Context, id string) (domain.Period, error)
}

type ReservationService struct {
	repo    ReservationRepository
	clock   clock.Clock
	bus     events.Publisher
	metrics *obs.Metrics
	logger  *slog.Logger
	holdTTL time.Duration
	taxRate decimal.Decimal
}

const defaultHoldTTL = 15 * time.Minute

func NewReservationService(repo ReservationRepository, clk clock.Clock, bus events.Publisher, opts ...ReservationServiceOption) *ReservationService {
	svc := &ReservationService{
		repo:    repo,
		clock:   clk,
		bus:     bus,
		logger:  slog.Default(),
		holdTTL: defaultHoldTTL,
		taxRate: decimal.NewFromFloat(0.15),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ReservationServiceOption func(*ReservationService)

// WithHoldTTL overrides the default TTL for new holds.
func WithHoldTTL(d time.Duration) ReservationServiceOption {
	return func(s *ReservationService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

func WithTaxRate(rate decimal.Decimal) ReservationServiceOption {
	return func(s *ReservationService) {
		if !rate.IsNegative() {
			s.taxRate = rate
		}
	}
}

func WithReservationMetrics(m *obs.Metrics) ReservationServiceOption {
	return func(s *ReservationService) { s.metrics = m }
}

func WithReservationLogger(l *slog.Logger) ReservationServiceOption {
	return func(s *ReservationService) {
		if l != nil {
			s.logger = l
		}
	}
}

type HoldInput struct {
	SlotID         string
	PeriodID       string
	ListingID      string
	OwnerID        string
	IdempotencyKey string
}

// Hold atomically claims a slot for the period. Two concurrent callers
// targeting the same (slot, period) never both succeed: one insert lands, the
// other hits the structural constraint and gets ErrSlotUnavailable.
func (s *ReservationService) Hold(ctx context.Context, in HoldInput) (domain.Reservation, error) {
	if in.IdempotencyKey == "" {
		return domain.Reservation{}, domain.ErrIdempotencyKeyRequired
	}
	if in.SlotID == "" || in.PeriodID == "" || in.ListingID == "" || in.OwnerID == "" {
		return domain.Reservation{}, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var result domain.Reservation

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if existing, err := s.repo.FindByIdempotencyKey(txCtx, in.IdempotencyKey); err != nil {
			return err
		} else if existing != nil {
			if existing.SlotID != in.SlotID || existing.PeriodID != in.PeriodID {
				return domain.ErrIdempotencyConflict
			}
			result = *existing
			return nil
		}

		active, err := s.repo.CountActiveSlots(txCtx)
		if err != nil {
			return err
		}
		if active == 0 {
			return domain.ErrNoSlotsConfigured
		}

		period, err := s.repo.GetPeriod(txCtx, in.PeriodID)
		if err != nil {
			return err
		}
		if period.Status != domain.PeriodStatusActive || !period.Covers(now) {
			return domain.ErrPeriodNotActive
		}

		slot, err := s.repo.GetSlot(txCtx, in.SlotID)
		if err != nil {
			return err
		}
		if !slot.Active {
			return domain.ErrSlotNotFound
		}

		amounts := domain.PriceReservation(slot.BasePrice, s.taxRate)
		result = domain.Reservation{
			ID:             newID(),
			SlotID:         in.SlotID,
			PeriodID:       in.PeriodID,
			ListingID:      in.ListingID,
			OwnerID:        in.OwnerID,
			Status:         domain.ReservationStatusHeld,
			Price:          amounts.Price,
			Tax:            amounts.Tax,
			Total:          amounts.Total,
			HoldExpiresAt:  now.Add(s.holdTTL),
			EndsAt:         period.EndsAt,
			IdempotencyKey: in.IdempotencyKey,
			CreatedAt:      now,
		}
		return s.repo.Create(txCtx, result)
	})
	if errors.Is(err, domain.ErrIdempotencyConflict) {
		// A concurrent request with the same key won the insert after our
		// pre-check. Re-read and replay it when the payloads match.
		if winner, findErr := s.repo.FindByIdempotencyKey(ctx, in.IdempotencyKey); findErr == nil &&
			winner != nil && winner.SlotID == in.SlotID && winner.PeriodID == in.PeriodID {
			s.countHold(nil)
			return *winner, nil
		}
	}
	if err != nil {
		s.countHold(err)
		return domain.Reservation{}, err
	}

	s.countHold(nil)
	return result, nil
}

// Confirm transitions a live hold to confirmed and records the payment
// reference. Confirming an expired hold fails with ErrHoldExpired without
// mutating the record; retries with the same payment reference replay the
// confirmed state.
func (s *ReservationService) Confirm(ctx context.Context, reservationID, paymentRef string) (domain.Reservation, error) {
	if paymentRef == "" {
		return domain.Reservation{}, domain.ErrIdempotencyKeyRequired
	}

	now := s.clock.Now()
	var result domain.Reservation

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}

		switch res.Status {
		case domain.ReservationStatusConfirmed:
			if res.PaymentRef == paymentRef {
				result = res
				return nil
			}
			return domain.ErrAlreadyConfirmed
		case domain.ReservationStatusHeld:
			if res.HoldLapsed(now) {
				return domain.ErrHoldExpired
			}
		case domain.ReservationStatusExpired:
			return domain.ErrHoldExpired
		default:
			return domain.ErrInvalidTransition
		}

		period, err := s.repo.GetPeriod(txCtx, res.PeriodID)
		if err != nil {
			return err
		}

		applied, err := s.repo.Confirm(txCtx, res.ID, paymentRef, now, period.EndsAt, domain.ReservationStatusHeld)
		if err != nil {
			return err
		}
		if !applied {
			// A sweeper or concurrent caller moved the row first.
			return domain.ErrHoldExpired
		}

		res.Status = domain.ReservationStatusConfirmed
		res.PaymentRef = paymentRef
		res.ConfirmedAt = &now
		res.EndsAt = period.EndsAt
		result = res
		return nil
	})
	if err != nil {
		s.countConfirm(err)
		return domain.Reservation{}, err
	}

	s.notify(ctx, events.Notification{
		Type:     events.NotifyReservationConfirmed,
		OwnerID:  result.OwnerID,
		SlotID:   result.SlotID,
		PeriodID: result.PeriodID,
		RecordID: result.ID,
	})
	s.countConfirm(nil)
	return result, nil
}

// Cancel moves any active reservation to cancelled and frees the slot.
// Cancelling an already-cancelled reservation is a no-op returning the
// terminal record.
func (s *ReservationService) Cancel(ctx context.Context, reservationID, reason string, actor domain.CancelActor) (domain.Reservation, error) {
	now := s.clock.Now()
	var result domain.Reservation
	var freed bool

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}

		if res.Status == domain.ReservationStatusCancelled {
			result = res
			return nil
		}
		if !res.Status.Active() {
			return domain.ErrInvalidTransition
		}

		applied, err := s.repo.Cancel(txCtx, res.ID, reason, actor, now)
		if err != nil {
			return err
		}
		if !applied {
			res, err = s.repo.GetForUpdate(txCtx, reservationID)
			if err != nil {
				return err
			}
			if res.Status == domain.ReservationStatusCancelled {
				result = res
				return nil
			}
			return domain.ErrInvalidTransition
		}

		res.Status = domain.ReservationStatusCancelled
		res.CancelledAt = &now
		res.CancelReason = reason
		res.CancelActor = actor
		result = res
		freed = true
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	if freed {
		if s.metrics != nil {
			s.metrics.CancellationsTotal.WithLabelValues(string(actor)).Inc()
		}
		s.publishFreed(ctx, result.SlotID, result.PeriodID)
	}
	return result, nil
}

// MarkPendingApproval parks a hold for manual review. The slot stays taken.
func (s *ReservationService) MarkPendingApproval(ctx context.Context, reservationID string) (domain.Reservation, error) {
	now := s.clock.Now()
	var result domain.Reservation

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}
		if res.Status == domain.ReservationStatusPendingApproval {
			result = res
			return nil
		}
		if res.Status != domain.ReservationStatusHeld {
			return domain.ErrInvalidTransition
		}
		if res.HoldLapsed(now) {
			return domain.ErrHoldExpired
		}

		applied, err := s.repo.SetStatus(txCtx, res.ID, domain.ReservationStatusHeld, domain.ReservationStatusPendingApproval)
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrInvalidTransition
		}
		res.Status = domain.ReservationStatusPendingApproval
		result = res
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return result, nil
}

// Approve resolves a pending-approval reservation into a confirmed one.
func (s *ReservationService) Approve(ctx context.Context, reservationID, paymentRef string) (domain.Reservation, error) {
	now := s.clock.Now()
	var result domain.Reservation

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}
		if res.Status == domain.ReservationStatusConfirmed {
			result = res
			return nil
		}
		if res.Status != domain.ReservationStatusPendingApproval {
			return domain.ErrInvalidTransition
		}

		period, err := s.repo.GetPeriod(txCtx, res.PeriodID)
		if err != nil {
			return err
		}
		applied, err := s.repo.Confirm(txCtx, res.ID, paymentRef, now, period.EndsAt, domain.ReservationStatusPendingApproval)
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrInvalidTransition
		}

		res.Status = domain.ReservationStatusConfirmed
		res.PaymentRef = paymentRef
		res.ConfirmedAt = &now
		res.EndsAt = period.EndsAt
		result = res
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	s.notify(ctx, events.Notification{
		Type:     events.NotifyReservationConfirmed,
		OwnerID:  result.OwnerID,
		SlotID:   result.SlotID,
		PeriodID: result.PeriodID,
		RecordID: result.ID,
	})
	return result, nil
}

// CascadeCancelForRejectedListing cancels every active reservation for a
// rejected listing. Each row is cancelled in its own transaction so one bad
// record never blocks the rest.
func (s *ReservationService) CascadeCancelForRejectedListing(ctx context.Context, listingID string) (int, error) {
	if listingID == "" {
		return 0, domain.ErrInvalidID
	}

	active, err := s.repo.ListActiveByListing(ctx, listingID)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, res := range active {
		if _, err := s.Cancel(ctx, res.ID, "listing rejected", domain.CancelActorModerator); err != nil {
			s.logger.Error("cascade cancel failed",
				"reservation_id", res.ID, "listing_id", listingID, "error", err)
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

func (s *ReservationService) Get(ctx context.Context, reservationID string) (domain.Reservation, error) {
	var result domain.Reservation
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.repo.GetForUpdate(txCtx, reservationID)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

func (s *ReservationService) publishFreed(ctx context.Context, slotID, periodID string) {
	if s.bus == nil {
		return
	}
	ev := events.SlotFreed{SlotID: slotID, PeriodID: periodID, FreedAt: s.clock.Now()}
	if err := s.bus.PublishSlotFreed(ctx, ev); err != nil {
		s.logger.Error("publish slot-freed failed", "slot_id", slotID, "period_id", periodID, "error", err)
	}
}

func (s *ReservationService) notify(ctx context.Context, n events.Notification) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Notify(ctx, n); err != nil {
		s.logger.Error("notify failed", "type", string(n.Type), "owner_id", n.OwnerID, "error", err)
	}
}

func (s *ReservationService) countHold(err error) {
	if s.metrics == nil {
		return
	}
	result := "created"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrSlotUnavailable):
		result = "unavailable"
	default:
		result = "rejected"
	}
	s.metrics.HoldsTotal.WithLabelValues(result).Inc()
}

func (s *ReservationService) countConfirm(err error) {
	if s.metrics == nil {
		return
	}
	result := "confirmed"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrHoldExpired):
		result = "expired"
	case errors.Is(err, domain.ErrAlreadyConfirmed):
		result = "conflict"
	default:
		result = "rejected"
	}
	s.metrics.ConfirmsTotal.WithLabelValues(result).Inc()
}

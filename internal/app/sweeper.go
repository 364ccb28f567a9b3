package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/baytaljazeera/eliteslots/internal/clock"
	"github.com/baytaljazeera/eliteslots/internal/domain"
	"github.com/baytaljazeera/eliteslots/internal/events"
	"github.com/baytaljazeera/eliteslots/internal/obs"
)

type SweeperStore interface {
	// ListExpiredHolds returns held reservations whose TTL passed cutoff.
	ListExpiredHolds(ctx context.Context, cutoff time.Time, limit int) ([]domain.Reservation, error)
	// ExpireHold conditionally moves held -> expired; false when another
	// worker already transitioned the row.
	ExpireHold(ctx context.Context, id string, cutoff time.Time) (bool, error)
	// ListHoldsExpiringBy returns unwarned held reservations expiring in the
	// window (now, deadline], for the pre-expiry notification.
	ListHoldsExpiringBy(ctx context.Context, now, deadline time.Time, limit int) ([]domain.Reservation, error)
	MarkExpiryWarned(ctx context.Context, id string, at time.Time) error

	ListExpiredOffers(ctx context.Context, cutoff time.Time, limit int) ([]domain.WaitlistEntry, error)
	// ExpireOffer conditionally moves offered -> expired.
	ExpireOffer(ctx context.Context, id string, cutoff time.Time) (bool, error)
	// ExpireWaitingForEndedPeriods terminalizes waiting entries whose period ended.
	ExpireWaitingForEndedPeriods(ctx context.Context, now time.Time) (int, error)
	// ListFreeSlots returns (slot, period) pairs in the active period with no
	// active-status reservation.
	ListFreeSlots(ctx context.Context, limit int) ([]domain.FreeSlot, error)

	CountWaiting(ctx context.Context) (int, error)
	CountActiveReservations(ctx context.Context) (int, error)
}

// PeriodAdvancer rolls the active period forward; implemented by PeriodService.
type PeriodAdvancer interface {
	GetOrCreateActivePeriod(ctx context.Context) (domain.Period, error)
}

// Sweeper reclaims stale holds and lapsed offers on a fixed interval. It is
// stateless over conditional updates: any number of instances may run, and a
// row already transitioned by another worker is a harmless no-op. Individual
// record failures are logged and skipped, never halting the sweep.
type Sweeper struct {
	store    SweeperStore
	periods  PeriodAdvancer
	clock    clock.Clock
	bus      events.Publisher
	metrics  *obs.Metrics
	logger   *slog.Logger
	interval time.Duration
	warnLead time.Duration
	batch    int
}

const (
	defaultSweepInterval = 60 * time.Second
	defaultWarnLead      = 5 * time.Minute
	defaultSweepBatch    = 200
)

func NewSweeper(store SweeperStore, periods PeriodAdvancer, clk clock.Clock, bus events.Publisher, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:    store,
		periods:  periods,
		clock:    clk,
		bus:      bus,
		logger:   slog.Default(),
		interval: defaultSweepInterval,
		warnLead: defaultWarnLead,
		batch:    defaultSweepBatch,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SweeperOption func(*Sweeper)

func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithWarnLead(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.warnLead = d
		}
	}
}

func WithSweeperMetrics(m *obs.Metrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = m }
}

func WithSweeperLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.SweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single pass: roll periods, expire overdue holds,
// expire lapsed offers, warn soon-to-expire holds, refresh gauges.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	start := time.Now()
	now := s.clock.Now()

	if s.periods != nil {
		if _, err := s.periods.GetOrCreateActivePeriod(ctx); err != nil {
			s.logger.Error("period advance failed", "error", err)
		}
	}

	expiredHolds := s.expireHolds(ctx, now)
	expiredOffers := s.expireOffers(ctx, now)
	s.warnExpiring(ctx, now)

	if n, err := s.store.ExpireWaitingForEndedPeriods(ctx, now); err != nil {
		s.logger.Error("expire waiting for ended periods failed", "error", err)
	} else if n > 0 {
		s.logger.Info("terminalized waitlist entries for ended periods", "count", n)
	}

	s.reconcileFreed(ctx)
	s.refreshGauges(ctx)

	if s.metrics != nil {
		s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
	if expiredHolds > 0 || expiredOffers > 0 {
		s.logger.Info("sweep complete",
			"expired_holds", expiredHolds,
			"expired_offers", expiredOffers,
			"duration", time.Since(start))
	}
}

func (s *Sweeper) expireHolds(ctx context.Context, now time.Time) int {
	holds, err := s.store.ListExpiredHolds(ctx, now, s.batch)
	if err != nil {
		s.logger.Error("list expired holds failed", "error", err)
		return 0
	}

	expired := 0
	for _, res := range holds {
		applied, err := s.store.ExpireHold(ctx, res.ID, now)
		if err != nil {
			s.logger.Error("expire hold failed", "reservation_id", res.ID, "error", err)
			continue
		}
		if !applied {
			continue
		}
		expired++
		if s.metrics != nil {
			s.metrics.ExpiredHoldsTotal.Inc()
		}
		s.publishFreed(ctx, res.SlotID, res.PeriodID)
	}
	return expired
}

func (s *Sweeper) expireOffers(ctx context.Context, now time.Time) int {
	offers, err := s.store.ListExpiredOffers(ctx, now, s.batch)
	if err != nil {
		s.logger.Error("list expired offers failed", "error", err)
		return 0
	}

	expired := 0
	for _, entry := range offers {
		applied, err := s.store.ExpireOffer(ctx, entry.ID, now)
		if err != nil {
			s.logger.Error("expire offer failed", "entry_id", entry.ID, "error", err)
			continue
		}
		if !applied {
			continue
		}
		expired++
		if s.metrics != nil {
			s.metrics.ExpiredOffersTotal.Inc()
		}
		// The slot is still free; hand it to the next entry.
		s.publishFreed(ctx, entry.OfferedSlotID, entry.PeriodID)
	}
	return expired
}

// reconcileFreed re-announces free slots while entries are waiting. A freed
// slot's event can be lost (full buffer, crash between the freeing commit and
// the publish); republishing every tick makes the cascade converge anyway.
// OnSlotFreed no-ops when the slot was retaken or no entry matches.
func (s *Sweeper) reconcileFreed(ctx context.Context) {
	if s.bus == nil {
		return
	}
	waiting, err := s.store.CountWaiting(ctx)
	if err != nil {
		s.logger.Error("count waiting failed", "error", err)
		return
	}
	if waiting == 0 {
		return
	}
	free, err := s.store.ListFreeSlots(ctx, s.batch)
	if err != nil {
		s.logger.Error("list free slots failed", "error", err)
		return
	}
	for _, f := range free {
		s.publishFreed(ctx, f.SlotID, f.PeriodID)
	}
}

func (s *Sweeper) warnExpiring(ctx context.Context, now time.Time) {
	if s.bus == nil {
		return
	}
	holds, err := s.store.ListHoldsExpiringBy(ctx, now, now.Add(s.warnLead), s.batch)
	if err != nil {
		s.logger.Error("list expiring holds failed", "error", err)
		return
	}
	for _, res := range holds {
		deadline := res.HoldExpiresAt
		err := s.bus.Notify(ctx, events.Notification{
			Type:     events.NotifyHoldExpiringSoon,
			OwnerID:  res.OwnerID,
			SlotID:   res.SlotID,
			PeriodID: res.PeriodID,
			RecordID: res.ID,
			Deadline: &deadline,
		})
		if err != nil {
			s.logger.Error("expiry warning failed", "reservation_id", res.ID, "error", err)
			continue
		}
		if err := s.store.MarkExpiryWarned(ctx, res.ID, now); err != nil {
			s.logger.Error("mark expiry warned failed", "reservation_id", res.ID, "error", err)
		}
	}
}

func (s *Sweeper) refreshGauges(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	if n, err := s.store.CountWaiting(ctx); err == nil {
		s.metrics.WaitlistDepth.Set(float64(n))
	}
	if n, err := s.store.CountActiveReservations(ctx); err == nil {
		s.metrics.ActiveReservations.Set(float64(n))
	}
}

func (s *Sweeper) publishFreed(ctx context.Context, slotID, periodID string) {
	if s.bus == nil {
		return
	}
	ev := events.SlotFreed{SlotID: slotID, PeriodID: periodID, FreedAt: s.clock.Now()}
	if err := s.bus.PublishSlotFreed(ctx, ev); err != nil {
		s.logger.Error("publish slot-freed failed", "slot_id", slotID, "period_id", periodID, "error", err)
	}
}

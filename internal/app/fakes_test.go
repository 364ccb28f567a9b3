package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baytaljazeera/eliteslots/internal/domain"
)

// fakeStore is an in-memory stand-in for the postgres repositories. It
// enforces the same structural rules the schema does: one active reservation
// per (slot, period), unique idempotency keys, one open extension per
// reservation, one active period.
type fakeStore struct {
	mu           sync.Mutex
	slots        map[string]domain.Slot
	periods      map[string]domain.Period
	reservations map[string]*domain.Reservation
	entries      map[string]*domain.WaitlistEntry
	extensions   map[string]*domain.ExtensionRequest
	nextPriority int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		slots:        make(map[string]domain.Slot),
		periods:      make(map[string]domain.Period),
		reservations: make(map[string]*domain.Reservation),
		entries:      make(map[string]*domain.WaitlistEntry),
		extensions:   make(map[string]*domain.ExtensionRequest),
	}
}

func (f *fakeStore) addSlot(s domain.Slot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slots[s.ID] = s
}

func (f *fakeStore) addPeriod(p domain.Period) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.periods[p.ID] = p
}

func (f *fakeStore) addReservation(r domain.Reservation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := r
	f.reservations[r.ID] = &cp
}

func (f *fakeStore) reservation(id string) domain.Reservation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.reservations[id]
}

func (f *fakeStore) entry(id string) domain.WaitlistEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.entries[id]
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- ReservationRepository ---

func (f *fakeStore) FindByIdempotencyKey(_ context.Context, key string) (*domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reservations {
		if r.IdempotencyKey == key {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetForUpdate(_ context.Context, id string) (domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return *r, nil
}

func (f *fakeStore) Create(_ context.Context, r domain.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.reservations {
		if existing.IdempotencyKey == r.IdempotencyKey {
			return domain.ErrIdempotencyConflict
		}
	}
	for _, existing := range f.reservations {
		if existing.SlotID == r.SlotID && existing.PeriodID == r.PeriodID && existing.Status.Active() {
			return domain.ErrSlotUnavailable
		}
	}
	cp := r
	f.reservations[r.ID] = &cp
	return nil
}

func (f *fakeStore) Confirm(_ context.Context, id, paymentRef string, confirmedAt, endsAt time.Time, from domain.ReservationStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = domain.ReservationStatusConfirmed
	r.PaymentRef = paymentRef
	at := confirmedAt
	r.ConfirmedAt = &at
	r.EndsAt = endsAt
	return true, nil
}

func (f *fakeStore) Cancel(_ context.Context, id, reason string, actor domain.CancelActor, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok || !r.Status.Active() {
		return false, nil
	}
	r.Status = domain.ReservationStatusCancelled
	t := at
	r.CancelledAt = &t
	r.CancelReason = reason
	r.CancelActor = actor
	return true, nil
}

func (f *fakeStore) SetStatus(_ context.Context, id string, from, to domain.ReservationStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	return true, nil
}

func (f *fakeStore) ListActiveByListing(_ context.Context, listingID string) ([]domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Reservation
	for _, r := range f.reservations {
		if r.ListingID == listingID && r.Status.Active() {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetSlot(_ context.Context, id string) (domain.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return domain.Slot{}, domain.ErrSlotNotFound
	}
	return s, nil
}

func (f *fakeStore) CountActiveSlots(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.slots {
		if s.Active {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) GetPeriod(_ context.Context, id string) (domain.Period, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.periods[id]
	if !ok {
		return domain.Period{}, domain.ErrPeriodNotFound
	}
	return p, nil
}

// --- WaitlistRepository ---

func (f *fakeStore) FindEntryByIdempotencyKey(_ context.Context, key string) (*domain.WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.IdempotencyKey == key {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateEntry(_ context.Context, e domain.WaitlistEntry) (domain.WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.Priority == 0 {
		f.nextPriority++
		e.Priority = f.nextPriority
	}
	cp := e
	f.entries[e.ID] = &cp
	return e, nil
}

func (f *fakeStore) GetEntryForUpdate(_ context.Context, id string) (domain.WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return domain.WaitlistEntry{}, domain.ErrWaitlistEntryNotFound
	}
	return *e, nil
}

func (f *fakeStore) NextWaiting(_ context.Context, periodID string, tier domain.Tier) (*domain.WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *domain.WaitlistEntry
	for _, e := range f.entries {
		if e.PeriodID != periodID || e.Status != domain.WaitlistStatusWaiting || !e.WantsTier(tier) {
			continue
		}
		if best == nil || e.Priority < best.Priority ||
			(e.Priority == best.Priority && e.CreatedAt.Before(best.CreatedAt)) {
			best = e
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (f *fakeStore) MarkOffered(_ context.Context, id, slotID string, expiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok || e.Status != domain.WaitlistStatusWaiting {
		return false, nil
	}
	e.Status = domain.WaitlistStatusOffered
	e.OfferedSlotID = slotID
	t := expiresAt
	e.OfferExpiresAt = &t
	return true, nil
}

func (f *fakeStore) RevertToWaiting(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok || e.Status != domain.WaitlistStatusOffered {
		return false, nil
	}
	e.Status = domain.WaitlistStatusWaiting
	e.OfferedSlotID = ""
	e.OfferExpiresAt = nil
	return true, nil
}

func (f *fakeStore) SetEntryStatus(_ context.Context, id string, from, to domain.WaitlistStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	return true, nil
}

func (f *fakeStore) SlotTaken(_ context.Context, slotID, periodID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reservations {
		if r.SlotID == slotID && r.PeriodID == periodID && r.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

// --- ExtensionRepository ---

func (f *fakeStore) FindExtensionByIdempotencyKey(_ context.Context, key string) (*domain.ExtensionRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.extensions {
		if e.IdempotencyKey == key {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateExtension(_ context.Context, e domain.ExtensionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.extensions {
		if existing.ReservationID == e.ReservationID && !existing.Status.Terminal() {
			return domain.ErrExtensionPending
		}
		if existing.IdempotencyKey == e.IdempotencyKey {
			return domain.ErrIdempotencyConflict
		}
	}
	cp := e
	f.extensions[e.ID] = &cp
	return nil
}

func (f *fakeStore) GetExtensionForUpdate(_ context.Context, id string) (domain.ExtensionRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.extensions[id]
	if !ok {
		return domain.ExtensionRequest{}, domain.ErrExtensionNotFound
	}
	return *e, nil
}

func (f *fakeStore) SetPaymentCaptured(_ context.Context, id, paymentRef string, to domain.ExtensionStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.extensions[id]
	if !ok || e.Status != domain.ExtensionStatusPendingPayment {
		return false, nil
	}
	e.Status = to
	e.PaymentRef = paymentRef
	return true, nil
}

func (f *fakeStore) Decide(_ context.Context, id string, to domain.ExtensionStatus, decidedBy, note string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.extensions[id]
	if !ok || e.Status != domain.ExtensionStatusPendingAdmin {
		return false, nil
	}
	e.Status = to
	e.DecidedBy = decidedBy
	e.DecisionNote = note
	t := at
	e.DecidedAt = &t
	return true, nil
}

func (f *fakeStore) SetExtensionStatus(_ context.Context, id string, from, to domain.ExtensionStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.extensions[id]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	return true, nil
}

func (f *fakeStore) GetReservationForUpdate(ctx context.Context, id string) (domain.Reservation, error) {
	return f.GetForUpdate(ctx, id)
}

func (f *fakeStore) ExtendReservation(_ context.Context, id string, endsAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return domain.ErrReservationNotFound
	}
	if r.Status != domain.ReservationStatusConfirmed {
		return domain.ErrInvalidTransition
	}
	r.EndsAt = endsAt
	return nil
}

// --- PeriodRepository ---

func (f *fakeStore) EndPeriodsBefore(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, p := range f.periods {
		if p.Status != domain.PeriodStatusEnded && !p.EndsAt.After(cutoff) {
			p.Status = domain.PeriodStatusEnded
			f.periods[id] = p
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) FindActive(_ context.Context) (*domain.Period, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.periods {
		if p.Status == domain.PeriodStatusActive {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ActivateUpcoming(_ context.Context, now time.Time) (*domain.Period, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range f.periods {
		if p.Status == domain.PeriodStatusUpcoming && p.Covers(now) {
			p.Status = domain.PeriodStatusActive
			f.periods[id] = p
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) LastEnd(_ context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last time.Time
	for _, p := range f.periods {
		if p.EndsAt.After(last) {
			last = p.EndsAt
		}
	}
	return last, nil
}

func (f *fakeStore) CreatePeriod(_ context.Context, p domain.Period) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.Status == domain.PeriodStatusActive {
		for _, existing := range f.periods {
			if existing.Status == domain.PeriodStatusActive {
				return domain.ErrActivePeriodExists
			}
		}
	}
	f.periods[p.ID] = p
	return nil
}

// --- SweeperStore ---

func (f *fakeStore) ListExpiredHolds(_ context.Context, cutoff time.Time, limit int) ([]domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Reservation
	for _, r := range f.reservations {
		if r.Status == domain.ReservationStatusHeld && !r.HoldExpiresAt.After(cutoff) {
			out = append(out, *r)
		}
	}
	sortReservations(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ExpireHold(_ context.Context, id string, cutoff time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok || r.Status != domain.ReservationStatusHeld || r.HoldExpiresAt.After(cutoff) {
		return false, nil
	}
	r.Status = domain.ReservationStatusExpired
	return true, nil
}

func (f *fakeStore) ListHoldsExpiringBy(_ context.Context, now, deadline time.Time, limit int) ([]domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Reservation
	for _, r := range f.reservations {
		if r.Status == domain.ReservationStatusHeld && r.ExpiryWarnedAt == nil &&
			r.HoldExpiresAt.After(now) && !r.HoldExpiresAt.After(deadline) {
			out = append(out, *r)
		}
	}
	sortReservations(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) MarkExpiryWarned(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return domain.ErrReservationNotFound
	}
	t := at
	r.ExpiryWarnedAt = &t
	return nil
}

func (f *fakeStore) ListExpiredOffers(_ context.Context, cutoff time.Time, limit int) ([]domain.WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.WaitlistEntry
	for _, e := range f.entries {
		if e.Status == domain.WaitlistStatusOffered && e.OfferExpiresAt != nil && !e.OfferExpiresAt.After(cutoff) {
			out = append(out, *e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ExpireOffer(_ context.Context, id string, cutoff time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok || e.Status != domain.WaitlistStatusOffered || e.OfferExpiresAt == nil || e.OfferExpiresAt.After(cutoff) {
		return false, nil
	}
	e.Status = domain.WaitlistStatusExpired
	return true, nil
}

func (f *fakeStore) ExpireWaitingForEndedPeriods(_ context.Context, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if e.Status != domain.WaitlistStatusWaiting {
			continue
		}
		if p, ok := f.periods[e.PeriodID]; ok && p.Status == domain.PeriodStatusEnded {
			e.Status = domain.WaitlistStatusExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListFreeSlots(_ context.Context, limit int) ([]domain.FreeSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var free []domain.FreeSlot
	for _, s := range f.slots {
		if !s.Active {
			continue
		}
		for _, p := range f.periods {
			if p.Status != domain.PeriodStatusActive {
				continue
			}
			taken := false
			for _, r := range f.reservations {
				if r.SlotID == s.ID && r.PeriodID == p.ID && r.Status.Active() {
					taken = true
					break
				}
			}
			if !taken {
				free = append(free, domain.FreeSlot{SlotID: s.ID, PeriodID: p.ID})
			}
		}
	}
	sort.Slice(free, func(i, j int) bool { return free[i].SlotID < free[j].SlotID })
	if len(free) > limit {
		free = free[:limit]
	}
	return free, nil
}

func (f *fakeStore) CountWaiting(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if e.Status == domain.WaitlistStatusWaiting {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountActiveReservations(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.reservations {
		if r.Status.Active() {
			n++
		}
	}
	return n, nil
}

// --- CatalogRepository ---

func (f *fakeStore) ListActiveSlots(_ context.Context) ([]domain.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Slot
	for _, s := range f.slots {
		if s.Active {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out, nil
}

func (f *fakeStore) SetSlotActive(_ context.Context, id string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return domain.ErrSlotNotFound
	}
	s.Active = active
	f.slots[id] = s
	return nil
}

func (f *fakeStore) SetSlotPrice(_ context.Context, id string, price decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return domain.ErrSlotNotFound
	}
	s.BasePrice = price
	f.slots[id] = s
	return nil
}

func (f *fakeStore) ActiveStatusBySlot(_ context.Context, periodID string) (map[string]domain.ReservationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]domain.ReservationStatus)
	for _, r := range f.reservations {
		if r.PeriodID == periodID && r.Status.Active() {
			out[r.SlotID] = r.Status
		}
	}
	return out, nil
}

func sortReservations(rs []domain.Reservation) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].HoldExpiresAt.Before(rs[j].HoldExpiresAt) })
}

// The repositories share method names with differing signatures, so thin
// wrappers rename the store's methods per interface. fakeStore itself
// satisfies ReservationRepository, SweeperStore and CatalogRepository.

type fakeWaitlistRepo struct{ *fakeStore }

func (r fakeWaitlistRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.WaitlistEntry, error) {
	return r.FindEntryByIdempotencyKey(ctx, key)
}

func (r fakeWaitlistRepo) Create(ctx context.Context, e domain.WaitlistEntry) (domain.WaitlistEntry, error) {
	return r.CreateEntry(ctx, e)
}

func (r fakeWaitlistRepo) GetForUpdate(ctx context.Context, id string) (domain.WaitlistEntry, error) {
	return r.GetEntryForUpdate(ctx, id)
}

func (r fakeWaitlistRepo) SetStatus(ctx context.Context, id string, from, to domain.WaitlistStatus) (bool, error) {
	return r.SetEntryStatus(ctx, id, from, to)
}

type fakeExtensionRepo struct{ *fakeStore }

func (r fakeExtensionRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.ExtensionRequest, error) {
	return r.FindExtensionByIdempotencyKey(ctx, key)
}

func (r fakeExtensionRepo) Create(ctx context.Context, e domain.ExtensionRequest) error {
	return r.CreateExtension(ctx, e)
}

func (r fakeExtensionRepo) GetForUpdate(ctx context.Context, id string) (domain.ExtensionRequest, error) {
	return r.GetExtensionForUpdate(ctx, id)
}

func (r fakeExtensionRepo) SetStatus(ctx context.Context, id string, from, to domain.ExtensionStatus) (bool, error) {
	return r.SetExtensionStatus(ctx, id, from, to)
}

type fakePeriodRepo struct{ *fakeStore }

func (r fakePeriodRepo) Create(ctx context.Context, p domain.Period) error {
	return r.CreatePeriod(ctx, p)
}

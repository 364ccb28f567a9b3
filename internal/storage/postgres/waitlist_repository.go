package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baytaljazeera/eliteslots/internal/domain"
)

type WaitlistRepository struct {
	pool *pgxpool.Pool
}

func NewWaitlistRepository(pool *pgxpool.Pool) *WaitlistRepository {
	return &WaitlistRepository{pool: pool}
}

const waitlistColumns = `
id, period_id, owner_id, listing_id, tier_preference, priority, status,
COALESCE(offered_slot_id::text, ''), offer_expires_at, idempotency_key, created_at`

func (r *WaitlistRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *WaitlistRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE idempotency_key = $1`

	entry, err := scanWaitlistEntry(r.queryRow(ctx, query, key))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find waitlist entry by idempotency key: %w", err)
	}
	return &entry, nil
}

func (r *WaitlistRepository) Create(ctx context.Context, e domain.WaitlistEntry) (domain.WaitlistEntry, error) {
	// Priority 0 means FIFO: take the next value off the shared sequence.
	const stmt = `
INSERT INTO waitlist_entries (
	id, period_id, owner_id, listing_id, tier_preference, priority, status,
	idempotency_key, created_at
) VALUES ($1, $2, $3, $4, $5,
	CASE WHEN $6::bigint > 0 THEN $6::bigint ELSE nextval('waitlist_priority_seq') END,
	$7, $8, $9)
RETURNING priority`

	err := r.queryRow(ctx, stmt,
		e.ID, e.PeriodID, e.OwnerID, e.ListingID, e.TierPreference,
		e.Priority, e.Status, e.IdempotencyKey, e.CreatedAt,
	).Scan(&e.Priority)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WaitlistEntry{}, domain.ErrIdempotencyConflict
		}
		if isInvalidUUID(err) {
			return domain.WaitlistEntry{}, domain.ErrInvalidID
		}
		return domain.WaitlistEntry{}, fmt.Errorf("create waitlist entry: %w", err)
	}
	return e, nil
}

func (r *WaitlistRepository) GetForUpdate(ctx context.Context, id string) (domain.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE id = $1 FOR UPDATE`

	entry, err := scanWaitlistEntry(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.WaitlistEntry{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.WaitlistEntry{}, domain.ErrWaitlistEntryNotFound
		}
		return domain.WaitlistEntry{}, fmt.Errorf("get waitlist entry: %w", err)
	}
	return entry, nil
}

func (r *WaitlistRepository) NextWaiting(ctx context.Context, periodID string, tier domain.Tier) (*domain.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + `
FROM waitlist_entries
WHERE period_id = $1 AND status = 'waiting' AND tier_preference IN ($2, 'any')
ORDER BY priority, created_at
LIMIT 1
FOR UPDATE SKIP LOCKED`

	entry, err := scanWaitlistEntry(r.queryRow(ctx, query, periodID, string(tier)))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("next waiting entry: %w", err)
	}
	return &entry, nil
}

func (r *WaitlistRepository) MarkOffered(ctx context.Context, id, slotID string, expiresAt time.Time) (bool, error) {
	const stmt = `
UPDATE waitlist_entries
SET status = 'offered', offered_slot_id = $2, offer_expires_at = $3
WHERE id = $1 AND status = 'waiting'`

	tag, err := r.exec(ctx, stmt, id, slotID, expiresAt)
	if err != nil {
		return false, fmt.Errorf("mark offered: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *WaitlistRepository) RevertToWaiting(ctx context.Context, id string) (bool, error) {
	const stmt = `
UPDATE waitlist_entries
SET status = 'waiting', offered_slot_id = NULL, offer_expires_at = NULL
WHERE id = $1 AND status = 'offered'`

	tag, err := r.exec(ctx, stmt, id)
	if err != nil {
		return false, fmt.Errorf("revert to waiting: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *WaitlistRepository) SetStatus(ctx context.Context, id string, from, to domain.WaitlistStatus) (bool, error) {
	const stmt = `UPDATE waitlist_entries SET status = $3 WHERE id = $1 AND status = $2`

	tag, err := r.exec(ctx, stmt, id, from, to)
	if err != nil {
		return false, fmt.Errorf("set waitlist status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *WaitlistRepository) GetSlot(ctx context.Context, id string) (domain.Slot, error) {
	return getSlot(ctx, r.queryRow, id)
}

func (r *WaitlistRepository) GetPeriod(ctx context.Context, id string) (domain.Period, error) {
	return getPeriod(ctx, r.queryRow, id)
}

func (r *WaitlistRepository) SlotTaken(ctx context.Context, slotID, periodID string) (bool, error) {
	const query = `
SELECT EXISTS (
	SELECT 1 FROM reservations
	WHERE slot_id = $1 AND period_id = $2
	  AND status IN ('held', 'confirmed', 'pending_approval')
)`

	var taken bool
	if err := r.queryRow(ctx, query, slotID, periodID).Scan(&taken); err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("slot taken: %w", err)
	}
	return taken, nil
}

func (r *WaitlistRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *WaitlistRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func scanWaitlistEntry(row pgx.Row) (domain.WaitlistEntry, error) {
	var e domain.WaitlistEntry
	err := row.Scan(
		&e.ID, &e.PeriodID, &e.OwnerID, &e.ListingID, &e.TierPreference,
		&e.Priority, &e.Status, &e.OfferedSlotID, &e.OfferExpiresAt,
		&e.IdempotencyKey, &e.CreatedAt,
	)
	if err != nil {
		return domain.WaitlistEntry{}, err
	}
	return e, nil
}

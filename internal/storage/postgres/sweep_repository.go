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

// SweepRepository backs the expiry sweeper. Every transition here is a
// conditional update, so concurrent sweepers racing on the same row are
// harmless no-ops.
type SweepRepository struct {
	pool *pgxpool.Pool
}

func NewSweepRepository(pool *pgxpool.Pool) *SweepRepository {
	return &SweepRepository{pool: pool}
}

func (r *SweepRepository) ListExpiredHolds(ctx context.Context, cutoff time.Time, limit int) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
FROM reservations
WHERE status = 'held' AND hold_expires_at <= $1
ORDER BY hold_expires_at
LIMIT $2`

	rows, err := r.query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired holds: %w", err)
	}
	defer rows.Close()
	return collectReservations(rows)
}

func (r *SweepRepository) ExpireHold(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	const stmt = `
UPDATE reservations SET status = 'expired'
WHERE id = $1 AND status = 'held' AND hold_expires_at <= $2`

	tag, err := r.exec(ctx, stmt, id, cutoff)
	if err != nil {
		return false, fmt.Errorf("expire hold: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SweepRepository) ListHoldsExpiringBy(ctx context.Context, now, deadline time.Time, limit int) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
FROM reservations
WHERE status = 'held' AND hold_expires_at <= $2 AND hold_expires_at > $1
  AND expiry_warned_at IS NULL
ORDER BY hold_expires_at
LIMIT $3`

	rows, err := r.query(ctx, query, now, deadline, limit)
	if err != nil {
		return nil, fmt.Errorf("list expiring holds: %w", err)
	}
	defer rows.Close()
	return collectReservations(rows)
}

func (r *SweepRepository) MarkExpiryWarned(ctx context.Context, id string, at time.Time) error {
	const stmt = `UPDATE reservations SET expiry_warned_at = $2 WHERE id = $1 AND expiry_warned_at IS NULL`

	if _, err := r.exec(ctx, stmt, id, at); err != nil {
		return fmt.Errorf("mark expiry warned: %w", err)
	}
	return nil
}

func (r *SweepRepository) ListExpiredOffers(ctx context.Context, cutoff time.Time, limit int) ([]domain.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + `
FROM waitlist_entries
WHERE status = 'offered' AND offer_expires_at <= $1
ORDER BY offer_expires_at
LIMIT $2`

	rows, err := r.query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired offers: %w", err)
	}
	defer rows.Close()

	var out []domain.WaitlistEntry
	for rows.Next() {
		entry, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (r *SweepRepository) ExpireOffer(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	const stmt = `
UPDATE waitlist_entries SET status = 'expired'
WHERE id = $1 AND status = 'offered' AND offer_expires_at <= $2`

	tag, err := r.exec(ctx, stmt, id, cutoff)
	if err != nil {
		return false, fmt.Errorf("expire offer: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SweepRepository) ExpireWaitingForEndedPeriods(ctx context.Context, now time.Time) (int, error) {
	const stmt = `
UPDATE waitlist_entries SET status = 'expired'
WHERE status = 'waiting'
  AND period_id IN (SELECT id FROM periods WHERE status = 'ended' OR ends_at <= $1)`

	tag, err := r.exec(ctx, stmt, now)
	if err != nil {
		return 0, fmt.Errorf("expire waiting for ended periods: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *SweepRepository) ListFreeSlots(ctx context.Context, limit int) ([]domain.FreeSlot, error) {
	const query = `
SELECT s.id, p.id
FROM slots s
CROSS JOIN periods p
WHERE s.active AND p.status = 'active'
  AND NOT EXISTS (
    SELECT 1 FROM reservations r
    WHERE r.slot_id = s.id AND r.period_id = p.id
      AND r.status IN ('held', 'confirmed', 'pending_approval'))
ORDER BY s.display_order
LIMIT $1`

	rows, err := r.query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list free slots: %w", err)
	}
	defer rows.Close()

	var free []domain.FreeSlot
	for rows.Next() {
		var f domain.FreeSlot
		if err := rows.Scan(&f.SlotID, &f.PeriodID); err != nil {
			return nil, fmt.Errorf("scan free slot: %w", err)
		}
		free = append(free, f)
	}
	return free, rows.Err()
}

func (r *SweepRepository) CountWaiting(ctx context.Context) (int, error) {
	var n int
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM waitlist_entries WHERE status = 'waiting'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count waiting: %w", err)
	}
	return n, nil
}

func (r *SweepRepository) CountActiveReservations(ctx context.Context) (int, error) {
	const query = `
SELECT COUNT(*) FROM reservations
WHERE status IN ('held', 'confirmed', 'pending_approval')`

	var n int
	if err := r.queryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active reservations: %w", err)
	}
	return n, nil
}

func (r *SweepRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *SweepRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *SweepRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

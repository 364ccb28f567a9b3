package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/baytaljazeera/eliteslots/internal/domain"
)

type ReservationRepository struct {
	pool *pgxpool.Pool
}

func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

const reservationColumns = `
id, slot_id, period_id, listing_id, owner_id, status,
price::text, tax::text, total::text,
hold_expires_at, ends_at, payment_ref,
confirmed_at, cancelled_at, cancel_reason, cancel_actor,
expiry_warned_at, idempotency_key, created_at`

func (r *ReservationRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *ReservationRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE idempotency_key = $1`

	res, err := scanReservation(r.queryRow(ctx, query, key))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("find reservation by idempotency key: %w", err)
	}
	return &res, nil
}

func (r *ReservationRepository) GetForUpdate(ctx context.Context, id string) (domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 FOR UPDATE`

	res, err := scanReservation(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Reservation{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

func (r *ReservationRepository) Create(ctx context.Context, res domain.Reservation) error {
	const stmt = `
INSERT INTO reservations (
	id, slot_id, period_id, listing_id, owner_id, status,
	price, tax, total, hold_expires_at, ends_at, idempotency_key, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.exec(ctx, stmt,
		res.ID,
		res.SlotID,
		res.PeriodID,
		res.ListingID,
		res.OwnerID,
		res.Status,
		res.Price.StringFixed(2),
		res.Tax.StringFixed(2),
		res.Total.StringFixed(2),
		res.HoldExpiresAt,
		res.EndsAt,
		res.IdempotencyKey,
		res.CreatedAt,
	)
	if err != nil {
		switch violatedConstraint(err) {
		case "reservations_slot_period_active_idx":
			return domain.ErrSlotUnavailable
		case "reservations_idempotency_key_key":
			return domain.ErrIdempotencyConflict
		}
		if isUniqueViolation(err) {
			return domain.ErrSlotUnavailable
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (r *ReservationRepository) Confirm(ctx context.Context, id, paymentRef string, confirmedAt, endsAt time.Time, from domain.ReservationStatus) (bool, error) {
	const stmt = `
UPDATE reservations
SET status = 'confirmed', payment_ref = $2, confirmed_at = $3, ends_at = $4
WHERE id = $1 AND status = $5`

	tag, err := r.exec(ctx, stmt, id, paymentRef, confirmedAt, endsAt, from)
	if err != nil {
		return false, fmt.Errorf("confirm reservation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ReservationRepository) Cancel(ctx context.Context, id, reason string, actor domain.CancelActor, at time.Time) (bool, error) {
	const stmt = `
UPDATE reservations
SET status = 'cancelled', cancel_reason = $2, cancel_actor = $3, cancelled_at = $4
WHERE id = $1 AND status IN ('held', 'confirmed', 'pending_approval')`

	tag, err := r.exec(ctx, stmt, id, reason, actor, at)
	if err != nil {
		return false, fmt.Errorf("cancel reservation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ReservationRepository) SetStatus(ctx context.Context, id string, from, to domain.ReservationStatus) (bool, error) {
	const stmt = `UPDATE reservations SET status = $3 WHERE id = $1 AND status = $2`

	tag, err := r.exec(ctx, stmt, id, from, to)
	if err != nil {
		return false, fmt.Errorf("set reservation status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ReservationRepository) ListActiveByListing(ctx context.Context, listingID string) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
FROM reservations
WHERE listing_id = $1 AND status IN ('held', 'confirmed', 'pending_approval')
ORDER BY created_at`

	rows, err := r.query(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("list active by listing: %w", err)
	}
	defer rows.Close()
	return collectReservations(rows)
}

func (r *ReservationRepository) GetSlot(ctx context.Context, id string) (domain.Slot, error) {
	return getSlot(ctx, r.queryRow, id)
}

func (r *ReservationRepository) CountActiveSlots(ctx context.Context) (int, error) {
	var n int
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM slots WHERE active`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active slots: %w", err)
	}
	return n, nil
}

func (r *ReservationRepository) GetPeriod(ctx context.Context, id string) (domain.Period, error) {
	return getPeriod(ctx, r.queryRow, id)
}

func (r *ReservationRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ReservationRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *ReservationRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var (
		res               domain.Reservation
		price, tax, total string
		paymentRef        *string
		cancelReason      *string
		cancelActor       *string
	)
	err := row.Scan(
		&res.ID, &res.SlotID, &res.PeriodID, &res.ListingID, &res.OwnerID, &res.Status,
		&price, &tax, &total,
		&res.HoldExpiresAt, &res.EndsAt, &paymentRef,
		&res.ConfirmedAt, &res.CancelledAt, &cancelReason, &cancelActor,
		&res.ExpiryWarnedAt, &res.IdempotencyKey, &res.CreatedAt,
	)
	if err != nil {
		return domain.Reservation{}, err
	}

	if res.Price, err = decimal.NewFromString(price); err != nil {
		return domain.Reservation{}, fmt.Errorf("parse price: %w", err)
	}
	if res.Tax, err = decimal.NewFromString(tax); err != nil {
		return domain.Reservation{}, fmt.Errorf("parse tax: %w", err)
	}
	if res.Total, err = decimal.NewFromString(total); err != nil {
		return domain.Reservation{}, fmt.Errorf("parse total: %w", err)
	}
	if paymentRef != nil {
		res.PaymentRef = *paymentRef
	}
	if cancelReason != nil {
		res.CancelReason = *cancelReason
	}
	if cancelActor != nil {
		res.CancelActor = domain.CancelActor(*cancelActor)
	}
	return res, nil
}

func collectReservations(rows pgx.Rows) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

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

type ExtensionRepository struct {
	pool *pgxpool.Pool
}

func NewExtensionRepository(pool *pgxpool.Pool) *ExtensionRepository {
	return &ExtensionRepository{pool: pool}
}

const extensionColumns = `
id, reservation_id, additional_days, price::text, tax::text, total::text,
status, payment_ref, decided_by, decision_note, decided_at,
idempotency_key, created_at`

func (r *ExtensionRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *ExtensionRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.ExtensionRequest, error) {
	query := `SELECT ` + extensionColumns + ` FROM extension_requests WHERE idempotency_key = $1`

	ext, err := scanExtension(r.queryRow(ctx, query, key))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find extension by idempotency key: %w", err)
	}
	return &ext, nil
}

func (r *ExtensionRepository) Create(ctx context.Context, e domain.ExtensionRequest) error {
	const stmt = `
INSERT INTO extension_requests (
	id, reservation_id, additional_days, price, tax, total, status,
	idempotency_key, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.exec(ctx, stmt,
		e.ID, e.ReservationID, e.AdditionalDays,
		e.Price.StringFixed(2), e.Tax.StringFixed(2), e.Total.StringFixed(2),
		e.Status, e.IdempotencyKey, e.CreatedAt,
	)
	if err != nil {
		switch violatedConstraint(err) {
		case "extension_requests_open_idx":
			return domain.ErrExtensionPending
		case "extension_requests_idempotency_key_key":
			return domain.ErrIdempotencyConflict
		}
		if isUniqueViolation(err) {
			return domain.ErrIdempotencyConflict
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create extension request: %w", err)
	}
	return nil
}

func (r *ExtensionRepository) GetForUpdate(ctx context.Context, id string) (domain.ExtensionRequest, error) {
	query := `SELECT ` + extensionColumns + ` FROM extension_requests WHERE id = $1 FOR UPDATE`

	ext, err := scanExtension(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ExtensionRequest{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.ExtensionRequest{}, domain.ErrExtensionNotFound
		}
		return domain.ExtensionRequest{}, fmt.Errorf("get extension request: %w", err)
	}
	return ext, nil
}

func (r *ExtensionRepository) SetPaymentCaptured(ctx context.Context, id, paymentRef string, to domain.ExtensionStatus) (bool, error) {
	const stmt = `
UPDATE extension_requests
SET status = $3, payment_ref = $2
WHERE id = $1 AND status = 'pending_payment'`

	tag, err := r.exec(ctx, stmt, id, paymentRef, to)
	if err != nil {
		return false, fmt.Errorf("set payment captured: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ExtensionRepository) Decide(ctx context.Context, id string, to domain.ExtensionStatus, decidedBy, note string, at time.Time) (bool, error) {
	const stmt = `
UPDATE extension_requests
SET status = $2, decided_by = $3, decision_note = $4, decided_at = $5
WHERE id = $1 AND status = 'pending_admin'`

	tag, err := r.exec(ctx, stmt, id, to, decidedBy, note, at)
	if err != nil {
		return false, fmt.Errorf("decide extension: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ExtensionRepository) SetStatus(ctx context.Context, id string, from, to domain.ExtensionStatus) (bool, error) {
	const stmt = `UPDATE extension_requests SET status = $3 WHERE id = $1 AND status = $2`

	tag, err := r.exec(ctx, stmt, id, from, to)
	if err != nil {
		return false, fmt.Errorf("set extension status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ExtensionRepository) GetReservationForUpdate(ctx context.Context, id string) (domain.Reservation, error) {
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

func (r *ExtensionRepository) ExtendReservation(ctx context.Context, id string, endsAt time.Time) error {
	const stmt = `UPDATE reservations SET ends_at = $2 WHERE id = $1 AND status = 'confirmed'`

	tag, err := r.exec(ctx, stmt, id, endsAt)
	if err != nil {
		return fmt.Errorf("extend reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *ExtensionRepository) GetSlot(ctx context.Context, id string) (domain.Slot, error) {
	return getSlot(ctx, r.queryRow, id)
}

func (r *ExtensionRepository) GetPeriod(ctx context.Context, id string) (domain.Period, error) {
	return getPeriod(ctx, r.queryRow, id)
}

func (r *ExtensionRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ExtensionRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func scanExtension(row pgx.Row) (domain.ExtensionRequest, error) {
	var (
		e                 domain.ExtensionRequest
		price, tax, total string
		paymentRef        *string
		decidedBy         *string
		decisionNote      *string
	)
	err := row.Scan(
		&e.ID, &e.ReservationID, &e.AdditionalDays, &price, &tax, &total,
		&e.Status, &paymentRef, &decidedBy, &decisionNote, &e.DecidedAt,
		&e.IdempotencyKey, &e.CreatedAt,
	)
	if err != nil {
		return domain.ExtensionRequest{}, err
	}

	if e.Price, err = decimal.NewFromString(price); err != nil {
		return domain.ExtensionRequest{}, fmt.Errorf("parse price: %w", err)
	}
	if e.Tax, err = decimal.NewFromString(tax); err != nil {
		return domain.ExtensionRequest{}, fmt.Errorf("parse tax: %w", err)
	}
	if e.Total, err = decimal.NewFromString(total); err != nil {
		return domain.ExtensionRequest{}, fmt.Errorf("parse total: %w", err)
	}
	if paymentRef != nil {
		e.PaymentRef = *paymentRef
	}
	if decidedBy != nil {
		e.DecidedBy = *decidedBy
	}
	if decisionNote != nil {
		e.DecisionNote = *decisionNote
	}
	return e, nil
}

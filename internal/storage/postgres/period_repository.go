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

type PeriodRepository struct {
	pool *pgxpool.Pool
}

func NewPeriodRepository(pool *pgxpool.Pool) *PeriodRepository {
	return &PeriodRepository{pool: pool}
}

func (r *PeriodRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *PeriodRepository) EndPeriodsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const stmt = `UPDATE periods SET status = 'ended' WHERE status <> 'ended' AND ends_at <= $1`

	tag, err := r.exec(ctx, stmt, cutoff)
	if err != nil {
		return 0, fmt.Errorf("end periods: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PeriodRepository) FindActive(ctx context.Context) (*domain.Period, error) {
	const query = `SELECT id, starts_at, ends_at, status FROM periods WHERE status = 'active'`

	var p domain.Period
	err := r.queryRow(ctx, query).Scan(&p.ID, &p.StartsAt, &p.EndsAt, &p.Status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find active period: %w", err)
	}
	return &p, nil
}

func (r *PeriodRepository) ActivateUpcoming(ctx context.Context, now time.Time) (*domain.Period, error) {
	const stmt = `
UPDATE periods SET status = 'active'
WHERE status = 'upcoming' AND starts_at <= $1 AND ends_at > $1
RETURNING id, starts_at, ends_at, status`

	var p domain.Period
	err := r.queryRow(ctx, stmt, now).Scan(&p.ID, &p.StartsAt, &p.EndsAt, &p.Status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		if violatedConstraint(err) == "periods_one_active_idx" {
			return nil, domain.ErrActivePeriodExists
		}
		return nil, fmt.Errorf("activate upcoming period: %w", err)
	}
	return &p, nil
}

func (r *PeriodRepository) LastEnd(ctx context.Context) (time.Time, error) {
	const query = `SELECT COALESCE(MAX(ends_at), 'epoch'::timestamptz) FROM periods`

	var end time.Time
	if err := r.queryRow(ctx, query).Scan(&end); err != nil {
		return time.Time{}, fmt.Errorf("last period end: %w", err)
	}
	if end.Unix() == 0 {
		return time.Time{}, nil
	}
	return end, nil
}

func (r *PeriodRepository) Create(ctx context.Context, p domain.Period) error {
	const stmt = `INSERT INTO periods (id, starts_at, ends_at, status) VALUES ($1, $2, $3, $4)`

	_, err := r.exec(ctx, stmt, p.ID, p.StartsAt, p.EndsAt, p.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrActivePeriodExists
		}
		return fmt.Errorf("create period: %w", err)
	}
	return nil
}

func (r *PeriodRepository) GetPeriod(ctx context.Context, id string) (domain.Period, error) {
	return getPeriod(ctx, r.queryRow, id)
}

func (r *PeriodRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *PeriodRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

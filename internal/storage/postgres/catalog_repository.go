package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/baytaljazeera/eliteslots/internal/domain"
)

type CatalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

const slotColumns = `id, grid_row, grid_col, tier, base_price::text, display_order, active, created_at`

func (r *CatalogRepository) ListActiveSlots(ctx context.Context) ([]domain.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE active ORDER BY display_order`

	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active slots: %w", err)
	}
	defer rows.Close()

	var out []domain.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, slot)
	}
	return out, rows.Err()
}

func (r *CatalogRepository) GetSlot(ctx context.Context, id string) (domain.Slot, error) {
	return getSlot(ctx, r.queryRow, id)
}

func (r *CatalogRepository) SetSlotActive(ctx context.Context, id string, active bool) error {
	tag, err := r.exec(ctx, `UPDATE slots SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("set slot active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSlotNotFound
	}
	return nil
}

func (r *CatalogRepository) SetSlotPrice(ctx context.Context, id string, price decimal.Decimal) error {
	tag, err := r.exec(ctx, `UPDATE slots SET base_price = $2 WHERE id = $1`, id, price.StringFixed(2))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("set slot price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSlotNotFound
	}
	return nil
}

func (r *CatalogRepository) ActiveStatusBySlot(ctx context.Context, periodID string) (map[string]domain.ReservationStatus, error) {
	const query = `
SELECT slot_id, status
FROM reservations
WHERE period_id = $1 AND status IN ('held', 'confirmed', 'pending_approval')`

	rows, err := r.query(ctx, query, periodID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("availability by slot: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.ReservationStatus)
	for rows.Next() {
		var slotID string
		var status domain.ReservationStatus
		if err := rows.Scan(&slotID, &status); err != nil {
			return nil, err
		}
		out[slotID] = status
	}
	return out, rows.Err()
}

func (r *CatalogRepository) GetPeriod(ctx context.Context, id string) (domain.Period, error) {
	return getPeriod(ctx, r.queryRow, id)
}

func (r *CatalogRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *CatalogRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *CatalogRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}

type rowQuerier func(ctx context.Context, sql string, args ...any) pgx.Row

func scanSlot(row pgx.Row) (domain.Slot, error) {
	var (
		slot  domain.Slot
		price string
	)
	err := row.Scan(&slot.ID, &slot.Row, &slot.Col, &slot.Tier, &price,
		&slot.DisplayOrder, &slot.Active, &slot.CreatedAt)
	if err != nil {
		return domain.Slot{}, err
	}
	if slot.BasePrice, err = decimal.NewFromString(price); err != nil {
		return domain.Slot{}, fmt.Errorf("parse base price: %w", err)
	}
	return slot, nil
}

// getSlot and getPeriod are shared by every repository that needs catalog
// reads inside its own transaction.
func getSlot(ctx context.Context, queryRow rowQuerier, id string) (domain.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE id = $1`

	slot, err := scanSlot(queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Slot{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Slot{}, domain.ErrSlotNotFound
		}
		return domain.Slot{}, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

func getPeriod(ctx context.Context, queryRow rowQuerier, id string) (domain.Period, error) {
	const query = `SELECT id, starts_at, ends_at, status FROM periods WHERE id = $1`

	var p domain.Period
	err := queryRow(ctx, query, id).Scan(&p.ID, &p.StartsAt, &p.EndsAt, &p.Status)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Period{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Period{}, domain.ErrPeriodNotFound
		}
		return domain.Period{}, fmt.Errorf("get period: %w", err)
	}
	return p, nil
}

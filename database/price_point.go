package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/icodeforyou/meterit-go/period"
	"github.com/icodeforyou/meterit-go/types/maybe"
	"github.com/shopspring/decimal"
)

type PricePointRow struct {
	When       period.Slot
	Price      decimal.Decimal
	Percentage float64 // reserved, always 0 today
	UpdatedAt  time.Time
}

// SavePricePoint inserts the price for a slot or replaces the one stored,
// so fetching the same day any number of times converges to one row per slot.
func (d *Database) SavePricePoint(ctx context.Context, row PricePointRow) error {
	if row.When.IsZero() {
		return fmt.Errorf("saving price point: missing slot")
	}
	_, err := d.write.ExecContext(ctx, d.rebind(`
		INSERT INTO price_point (date, price, percentage, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			price = excluded.price,
			percentage = excluded.percentage,
			updated_at = excluded.updated_at`),
		row.When.Key(),
		row.Price.String(),
		row.Percentage,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving price point %s: %w", row.When.Key(), err)
	}
	return nil
}

// GetPriceForSlot returns sql.ErrNoRows when the slot has no price.
func (d *Database) GetPriceForSlot(ctx context.Context, slot period.Slot) (PricePointRow, error) {
	var (
		date, updatedAt string
		r               PricePointRow
	)
	err := d.read.QueryRowContext(ctx, d.rebind(`
		SELECT date, price, percentage, updated_at
		FROM price_point
		WHERE date = ?`),
		slot.Key()).Scan(&date, &r.Price, &r.Percentage, &updatedAt)
	if err != nil {
		return PricePointRow{}, err
	}

	if r.When, err = period.ParseKey(date); err != nil {
		return PricePointRow{}, err
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return PricePointRow{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return r, nil
}

// GetPricesFrom returns the stored price points from slot onwards, oldest first.
func (d *Database) GetPricesFrom(ctx context.Context, slot period.Slot) ([]PricePointRow, error) {
	rows, err := d.read.QueryContext(ctx, d.rebind(`
		SELECT date, price, percentage, updated_at
		FROM price_point
		WHERE date >= ?
		ORDER BY date ASC`),
		slot.Key())
	if err != nil {
		return nil, fmt.Errorf("fetching price points from %s: %w", slot.Key(), err)
	}
	defer rows.Close()

	prices := []PricePointRow{}
	for rows.Next() {
		var (
			date, updatedAt string
			r               PricePointRow
		)
		if err := rows.Scan(&date, &r.Price, &r.Percentage, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning price point row: %w", err)
		}
		if r.When, err = period.ParseKey(date); err != nil {
			return nil, err
		}
		if r.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at of %s: %w", date, err)
		}
		prices = append(prices, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading price point rows: %w", err)
	}
	return prices, nil
}

// GetCurrentPrice looks up the price of the slot containing now. A missing
// row is None, only store failures are errors.
func (d *Database) GetCurrentPrice(ctx context.Context, now time.Time) (maybe.Maybe[decimal.Decimal], error) {
	row, err := d.GetPriceForSlot(ctx, period.FromTime(now))
	if errors.Is(err, sql.ErrNoRows) {
		return maybe.None[decimal.Decimal](), nil
	}
	if err != nil {
		return maybe.None[decimal.Decimal](), fmt.Errorf("fetching current price: %w", err)
	}
	return maybe.Some(row.Price), nil
}

func (d *Database) PurgePricePoints(ctx context.Context, retentionDays int) error {
	before := period.FromTime(time.Now().AddDate(0, 0, -retentionDays))
	res, err := d.write.ExecContext(ctx, d.rebind(`DELETE FROM price_point WHERE date < ?`), before.Key())
	if err != nil {
		return fmt.Errorf("purging price points: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil {
		d.logger.Debug(fmt.Sprintf("purged %d price points", rows))
	}
	return nil
}

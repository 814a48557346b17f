package database

import (
	"context"
	"fmt"
	"time"

	"github.com/icodeforyou/meterit-go/types/maybe"
	"github.com/shopspring/decimal"
)

type ReadingRow struct {
	ID        int64
	Watts     float64
	StationID string
	// Snapshot of the current price when the reading was stored, None when unknown
	Price     maybe.Maybe[decimal.Decimal]
	CreatedAt time.Time
}

func (d *Database) SaveReading(ctx context.Context, r ReadingRow) error {
	price := decimal.NullDecimal{Decimal: r.Price.Value(), Valid: r.Price.IsValid()}
	_, err := d.write.ExecContext(ctx, d.rebind(`
		INSERT INTO reading (watts, station_id, price) VALUES (?, ?, ?)`),
		r.Watts, r.StationID, price)
	if err != nil {
		return fmt.Errorf("saving reading: %w", err)
	}
	return nil
}

func (d *Database) GetReadings(ctx context.Context) ([]ReadingRow, error) {
	rows, err := d.read.QueryContext(ctx, `
		SELECT id, watts, station_id, price, created_at
		FROM reading
		ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("fetching readings: %w", err)
	}
	defer rows.Close()

	readings := []ReadingRow{}
	for rows.Next() {
		var (
			r         ReadingRow
			price     decimal.NullDecimal
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.Watts, &r.StationID, &price, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning reading row: %w", err)
		}
		if price.Valid {
			r.Price = maybe.Some(price.Decimal)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at of reading %d: %w", r.ID, err)
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}

	return readings, nil
}

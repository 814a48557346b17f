package task

import (
	"context"
	"time"

	"github.com/icodeforyou/meterit-go/database"
	"github.com/icodeforyou/meterit-go/period"
)

type PriceReader interface {
	GetPricesFrom(ctx context.Context, slot period.Slot) ([]database.PricePointRow, error)
}

// pricedUntil returns the end of the unbroken run of priced slots starting
// at from, or the start of from when from itself has no price.
func pricedUntil(rows []database.PricePointRow, from period.Slot) time.Time {
	until := from.Start()
	next := from
	for _, r := range rows {
		if r.When.Compare(next) != 0 {
			break
		}
		until = r.When.End()
		next = next.Add(1)
	}
	return until
}

func loadPricedUntil(ctx context.Context, prices PriceReader, now time.Time) (time.Time, error) {
	from := period.FromTime(now)
	rows, err := prices.GetPricesFrom(ctx, from)
	if err != nil {
		return time.Time{}, err
	}
	return pricedUntil(rows, from), nil
}

package types

import (
	"context"
	"time"

	"github.com/icodeforyou/meterit-go/period"
	"github.com/shopspring/decimal"
)

type PricePoint struct {
	Slot  period.Slot
	Price decimal.Decimal // EUR per MWh as published by the provider
}

// PriceCurveProvider returns the day-ahead price curve for the given day.
type PriceCurveProvider interface {
	GetPrices(ctx context.Context, day time.Time) ([]PricePoint, error)
}

package task

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const priceTaskTimeout = 2 * time.Minute

// NewEnergyPriceTask returns the scheduled job storing tomorrow's prices.
// When catchUp is set and the current slot has no price yet, today's
// prices are fetched before returning.
func NewEnergyPriceTask(logger *slog.Logger, fetcher *PriceFetcher, prices PriceReader, catchUp bool) func() {
	if catchUp {
		ctx, cancel := context.WithTimeout(context.Background(), priceTaskTimeout)
		if needImmediateEnergyPriceUpdate(ctx, logger, prices, fetcher.now()) {
			logger.Info("need an immediate update of energy prices")
			runEnergyPriceTask(ctx, logger, fetcher, true)
		} else {
			logger.Debug("no need for immediate update of energy prices")
		}
		cancel()
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), priceTaskTimeout)
		defer cancel()
		runEnergyPriceTask(ctx, logger, fetcher, false)
	}
}

func runEnergyPriceTask(ctx context.Context, logger *slog.Logger, fetcher *PriceFetcher, today bool) {
	logger.Debug("running energy price task...", slog.Bool("today", today))

	if _, err := fetcher.Fetch(ctx, today); err != nil {
		if errors.Is(err, ErrFetchInProgress) {
			logger.Info("energy price task skipped, another fetch is running")
			return
		}
		logger.Error("energy price task error", slog.Any("error", err))
	}
}

func needImmediateEnergyPriceUpdate(ctx context.Context, logger *slog.Logger, prices PriceReader, now time.Time) bool {
	until, err := loadPricedUntil(ctx, prices, now)
	if err != nil {
		logger.Warn("can't tell if the current price is known", slog.Any("error", err))
		return true
	}
	logger.Debug("stored prices", slog.Time("pricedUntil", until))
	return !until.After(now)
}

package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/icodeforyou/meterit-go/database"
	"github.com/icodeforyou/meterit-go/metrics"
	"github.com/icodeforyou/meterit-go/types"
)

// Upper bound of a fetch run, the lock expires on its own if the holder dies.
const fetchLockTTL = 5 * time.Minute

var ErrFetchInProgress = errors.New("a price fetch is already in progress")

type PricePointWriter interface {
	SavePricePoint(ctx context.Context, row database.PricePointRow) error
}

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type FetchResult struct {
	Day      time.Time
	Received int
	Stored   int
	Failed   int

	// Points landing in a slot already seen in the same run, only the first is kept
	Duplicate int
}

type PriceFetcher struct {
	logger   *slog.Logger
	db       PricePointWriter
	provider types.PriceCurveProvider
	metrics  *metrics.Metrics
	now      func() time.Time
	mu       sync.Mutex
	locker   Locker
	lockKey  string
}

func NewPriceFetcher(logger *slog.Logger, db PricePointWriter, provider types.PriceCurveProvider, m *metrics.Metrics) *PriceFetcher {
	return &PriceFetcher{
		logger:   logger,
		db:       db,
		provider: provider,
		metrics:  m,
		now:      time.Now,
	}
}

// SetLocker makes fetches exclusive across every process sharing the lock.
func (f *PriceFetcher) SetLocker(l Locker, key string) {
	f.locker, f.lockKey = l, key
}

func (f *PriceFetcher) SetClock(now func() time.Time) {
	f.now = now
}

// Fetch stores the provider's prices for tomorrow, or for today when today
// is true, as seen in UTC. A point that can't be stored is logged and
// counted, the rest of the day is still stored.
func (f *PriceFetcher) Fetch(ctx context.Context, today bool) (FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.locker != nil {
		token, ok, err := f.locker.TryLock(ctx, f.lockKey, fetchLockTTL)
		if err != nil {
			f.metrics.FetchRun(metrics.FetchResultError)
			return FetchResult{}, fmt.Errorf("acquiring fetch lock: %w", err)
		}
		if !ok {
			f.metrics.FetchRun(metrics.FetchResultSkipped)
			return FetchResult{}, ErrFetchInProgress
		}
		defer func() {
			if err := f.locker.Release(context.WithoutCancel(ctx), f.lockKey, token); err != nil {
				f.logger.Warn("failed to release fetch lock", slog.Any("error", err))
			}
		}()
	}

	res := FetchResult{Day: targetDay(f.now(), today)}
	f.logger.Debug("fetching prices", slog.String("day", res.Day.Format(time.DateOnly)))

	prices, err := f.provider.GetPrices(ctx, res.Day)
	if err != nil {
		f.metrics.FetchRun(metrics.FetchResultError)
		return res, fmt.Errorf("fetching prices for %s: %w", res.Day.Format(time.DateOnly), err)
	}
	res.Received = len(prices)

	seen := make(map[string]bool, len(prices))
	for _, p := range prices {
		key := p.Slot.Key()
		if seen[key] {
			res.Duplicate++
			f.logger.Warn("skipping price point for an already stored slot",
				slog.String("slot", key),
				slog.String("price", p.Price.String()))
			continue
		}
		seen[key] = true

		if err := f.db.SavePricePoint(ctx, database.PricePointRow{When: p.Slot, Price: p.Price}); err != nil {
			res.Failed++
			f.logger.Warn("failed to store price point",
				slog.String("slot", p.Slot.Key()),
				slog.String("price", p.Price.String()),
				slog.Any("error", err))
			continue
		}
		res.Stored++
	}

	f.metrics.PricePoints(res.Stored, res.Failed)
	f.metrics.FetchRun(metrics.FetchResultOK)

	f.logger.Info("price fetch done",
		slog.String("day", res.Day.Format(time.DateOnly)),
		slog.Int("received", res.Received),
		slog.Int("stored", res.Stored),
		slog.Int("failed", res.Failed),
		slog.Int("duplicate", res.Duplicate))

	return res, nil
}

func targetDay(now time.Time, today bool) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !today {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

package www

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/icodeforyou/meterit-go/task"
)

// NewForceGetPricesHandler fetches today's prices before answering.
func NewForceGetPricesHandler(logger *slog.Logger, fetcher PriceFetcher, prices PriceSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := fetcher.Fetch(r.Context(), true)
		if errors.Is(err, task.ErrFetchInProgress) {
			writeStatus(w, http.StatusConflict, "Fetch In Progress")
			return
		}
		if err != nil {
			logger.Error("handling force get prices request", slog.Any("error", err))
			writeStatus(w, http.StatusInternalServerError, "")
			return
		}
		prices.Invalidate(r.Context())

		logger.Info("prices fetched on request", slog.Int("stored", res.Stored), slog.Int("failed", res.Failed))
		writeStatus(w, http.StatusOK, "OK")
	}
}

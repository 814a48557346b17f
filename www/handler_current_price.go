package www

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"
)

func NewCurrentPriceHandler(logger *slog.Logger, prices PriceSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		price := prices.Get(r.Context())
		if !price.IsValid() {
			logger.Debug("no price for the current period")
			writeStatus(w, http.StatusServiceUnavailable, "Price Unavailable")
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Price decimal.Decimal `json:"price"`
		}{price.Value()})
	}
}

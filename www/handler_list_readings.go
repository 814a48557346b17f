package www

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

type readingJSON struct {
	ID        int64            `json:"id"`
	Watts     float64          `json:"watts"`
	StationID string           `json:"station_id"`
	Price     *decimal.Decimal `json:"price"`
	CreatedAt time.Time        `json:"created_at"`
}

func NewListReadingsHandler(logger *slog.Logger, db ReadingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.GetReadings(r.Context())
		if err != nil {
			logger.Error("handling list readings request", slog.Any("error", err))
			writeStatus(w, http.StatusInternalServerError, "")
			return
		}

		readings := make([]readingJSON, len(rows))
		for i, row := range rows {
			readings[i] = readingJSON{
				ID:        row.ID,
				Watts:     row.Watts,
				StationID: row.StationID,
				Price:     row.Price.Ptr(),
				CreatedAt: row.CreatedAt,
			}
		}
		writeJSON(w, http.StatusOK, struct {
			Readings []readingJSON `json:"readings"`
		}{readings})
	}
}

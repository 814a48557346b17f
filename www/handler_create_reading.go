package www

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/icodeforyou/meterit-go/database"
	"github.com/icodeforyou/meterit-go/metrics"
)

const maxBodyBytes = 1 << 20

type createReadingRequest struct {
	Watts     *float64 `json:"watts"`
	StationID *string  `json:"station_id"`
}

// valid rejects absent, zero and empty fields alike.
func (r createReadingRequest) valid() bool {
	return r.Watts != nil && *r.Watts != 0 && r.StationID != nil && *r.StationID != ""
}

func NewCreateReadingHandler(logger *slog.Logger, db ReadingStore, prices PriceSource, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createReadingRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || !req.valid() {
			writeStatus(w, http.StatusBadRequest, "")
			return
		}

		row := database.ReadingRow{
			Watts:     *req.Watts,
			StationID: *req.StationID,
			Price:     prices.Get(r.Context()),
		}
		if err := db.SaveReading(r.Context(), row); err != nil {
			logger.Error("handling create reading request", slog.Any("error", err))
			writeStatus(w, http.StatusInternalServerError, "")
			return
		}
		m.ReadingStored()

		writeStatus(w, http.StatusOK, "OK")
	}
}

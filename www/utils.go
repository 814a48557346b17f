package www

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to write response", slog.Any("error", err))
	}
}

// writeStatus answers with the status envelope, message defaults to the status text.
func writeStatus(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, envelope{Status: status, Message: message})
}

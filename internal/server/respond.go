package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stratumhq/stratum/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes: validation 400,
// missing 404, optimistic-concurrency losses 409, quota 429, degraded
// dependencies 503, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case model.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrVersionConflict):
		status = http.StatusConflict
	case errors.Is(err, model.ErrCapacityExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, model.ErrDependencyUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

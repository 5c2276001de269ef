package server

import (
	"encoding/json"
	"net/http"

	"github.com/kestrelrun/conductor/pkg/apperrors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an apperrors.Kind to the HTTP status the command
// surface reports: not-found 404, validation 400, permission 403,
// conflict and cancelled 409, unavailable and circuit-open 503,
// timeout 504, capacity-reached 429, and anything else 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindValidation:
		status = http.StatusBadRequest
	case apperrors.KindPermission:
		status = http.StatusForbidden
	case apperrors.KindConflict:
		status = http.StatusConflict
	case apperrors.KindUnavailable, apperrors.KindCircuitOpen:
		status = http.StatusServiceUnavailable
	case apperrors.KindTimeout:
		status = http.StatusGatewayTimeout
	case apperrors.KindCancelled:
		status = http.StatusConflict
	case apperrors.KindCapacityReached:
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/autotrader/internal/domain"
	"github.com/rs/zerolog"
)

// StatusForError maps ledger and order errors to HTTP status codes
func StatusForError(err error) int {
	var validationErr *domain.ValidationError
	var rejectedErr *domain.RiskRejectedError

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &rejectedErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoMarketData):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPersistenceConflict):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes data as a JSON response
func WriteJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteData wraps data in the standard {data, metadata} envelope
func WriteData(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	WriteJSON(w, log, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// WriteError writes {"error": message}
func WriteError(w http.ResponseWriter, log zerolog.Logger, status int, message string) {
	WriteJSON(w, log, status, map[string]string{"error": message})
}

// WriteErr maps err to a status code and writes it. Server errors are logged.
func WriteErr(w http.ResponseWriter, log zerolog.Logger, err error) {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	WriteError(w, log, status, err.Error())
}

// QueryInt reads a positive integer query parameter. Missing, malformed and
// non-positive values fall back to def; the result is clamped to max when max > 0.
func QueryInt(r *http.Request, name string, def, max int) int {
	value := def
	if raw := r.URL.Query().Get(name); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			value = parsed
		}
	}
	if max > 0 && value > max {
		value = max
	}
	return value
}

// QueryTime reads an RFC3339 query parameter; a missing value is the zero time
func QueryTime(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domain.NewValidationError(name, "must be an RFC3339 timestamp")
	}
	return t, nil
}

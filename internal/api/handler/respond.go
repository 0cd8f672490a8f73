package handler

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/notifyhub/step-engine/internal/domain"
)

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// mapError translates domain sentinel errors to a status code and a stable
// machine readable code. Unknown errors never leak their message.
func mapError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	respondJSON(w, status, errorBody{Error: msg, Code: code})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrJobNotDispatchable):
		return http.StatusConflict, "job_not_dispatchable"
	case errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusConflict, "invalid_status"
	case errors.Is(err, domain.ErrInvalidPriority):
		return http.StatusUnprocessableEntity, "invalid_priority"
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable, "queue_full"
	}
	return http.StatusInternalServerError, "internal"
}

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"live-quiz-service/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]domain.ErrorPayload{"error": domain.ErrorPayloadOf(err)})
}

func statusFor(err error) int {
	if errors.Is(err, domain.ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuth:
		return http.StatusForbidden
	case domain.KindState:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"pair-quiz-service/internal/domain"
)

type errorBody struct {
	Error string `json:"error"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidID), errors.Is(err, domain.ErrInvalidAnswer):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrAlreadyInGame),
		errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrAlreadyComplete):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrPairNotFound), errors.Is(err, domain.ErrNoActiveGame):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientQuestions):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("[http] internal error: %v", err)
		message = "internal error"
	}
	writeJSON(w, status, errorBody{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[http] write response: %v", err)
	}
}

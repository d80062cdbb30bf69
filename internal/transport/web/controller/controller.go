package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"discord-feedback-bot/internal/database"
	"discord-feedback-bot/internal/logger"
	"discord-feedback-bot/internal/pipeline"
	"discord-feedback-bot/internal/training"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, training.ErrInsufficientCandidates):
		return http.StatusUnprocessableEntity
	case errors.Is(err, training.ErrPromptExpired), errors.Is(err, database.ErrAlreadyFinalized):
		return http.StatusConflict
	case errors.Is(err, database.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, log *logger.Logger, status int, msg string) {
	writeJSON(w, log, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, log *logger.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("unable to write response", "error", err)
	}
}

package controller

import (
	"context"
	"encoding/json"
	"net/http"

	"discord-feedback-bot/internal/logger"
)

type PromptCreate struct {
	Poster interface {
		PostPrompt(ctx context.Context, text, category string) (uint, error)
	}
	Log *logger.Logger
}

type PromptCreateRequest struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

type PromptCreateResponse struct {
	PromptID uint `json:"prompt_id"`
}

func (c PromptCreate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req PromptCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.Log.Warn("unable to decode prompt request", "error", err)
		writeError(w, c.Log, http.StatusBadRequest, "invalid request body")
		return
	}

	promptID, err := c.Poster.PostPrompt(r.Context(), req.Text, req.Category)
	if err != nil {
		c.Log.Error("unable to post prompt", "prompt_id", promptID, "error", err)
		writeError(w, c.Log, statusFor(err), err.Error())
		return
	}

	writeJSON(w, c.Log, http.StatusCreated, PromptCreateResponse{PromptID: promptID})
}

package controller

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"discord-feedback-bot/internal/logger"
	"discord-feedback-bot/internal/models"
	"discord-feedback-bot/internal/training"
)

type PromptAggregate struct {
	Aggregator interface {
		Aggregate(ctx context.Context, promptID uint) (*models.TrainingPair, error)
	}
	Log *logger.Logger
}

func (c PromptAggregate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["prompt_id"]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.Log.Warn("invalid prompt id", "prompt_id", raw)
		writeError(w, c.Log, http.StatusBadRequest, "invalid prompt id")
		return
	}
	log := c.Log.With("prompt_id", id)

	pair, err := c.Aggregator.Aggregate(r.Context(), uint(id))
	if err != nil {
		log.Warn("unable to aggregate prompt", "error", err)
		writeError(w, log, statusFor(err), err.Error())
		return
	}

	writeJSON(w, log, http.StatusOK, training.ToRecords([]models.TrainingPair{*pair})[0])
}

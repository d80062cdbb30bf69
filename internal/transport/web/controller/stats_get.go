package controller

import (
	"context"
	"net/http"

	"discord-feedback-bot/internal/logger"
	"discord-feedback-bot/internal/models"
)

type StatsGet struct {
	Stats interface {
		Stats(ctx context.Context) (*models.Stats, error)
	}
	Log *logger.Logger
}

type StatsResponse struct {
	Prompts       int64            `json:"prompts"`
	Responses     int64            `json:"responses"`
	Feedback      int64            `json:"feedback"`
	TrainingPairs int64            `json:"training_pairs"`
	Categories    map[string]int64 `json:"categories"`
}

func (c StatsGet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stats, err := c.Stats.Stats(r.Context())
	if err != nil {
		c.Log.Error("unable to fetch stats", "error", err)
		writeError(w, c.Log, statusFor(err), "unable to fetch stats")
		return
	}

	resp := StatsResponse{
		Prompts:       stats.Prompts,
		Responses:     stats.Responses,
		Feedback:      stats.Feedback,
		TrainingPairs: stats.TrainingPairs,
		Categories:    make(map[string]int64, len(stats.Categories)),
	}
	for _, cat := range stats.Categories {
		resp.Categories[cat.Category] = cat.Count
	}
	writeJSON(w, c.Log, http.StatusOK, resp)
}

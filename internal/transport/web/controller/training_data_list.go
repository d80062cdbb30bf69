package controller

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"discord-feedback-bot/internal/logger"
	"discord-feedback-bot/internal/models"
	"discord-feedback-bot/internal/training"
)

const maxExportLimit = 1000

type TrainingDataList struct {
	Exporter interface {
		ExportTrainingData(ctx context.Context, limit int) ([]models.TrainingPair, error)
	}
	DefaultLimit int
	Log          *logger.Logger
}

func (c TrainingDataList) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit, err := c.limitFromQuery(r)
	if err != nil {
		c.Log.Warn("unable to parse limit in query string", "error", err)
		writeError(w, c.Log, http.StatusBadRequest, err.Error())
		return
	}

	pairs, err := c.Exporter.ExportTrainingData(r.Context(), limit)
	if err != nil {
		c.Log.Error("unable to export training data", "error", err)
		writeError(w, c.Log, statusFor(err), "unable to export training data")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := training.WriteJSON(w, pairs); err != nil {
		c.Log.Error("unable to write training data to response", "error", err)
	}
}

func (c TrainingDataList) limitFromQuery(r *http.Request) (int, error) {
	q := r.URL.Query()
	if !q.Has("limit") {
		return c.DefaultLimit, nil
	}
	l, err := strconv.ParseInt(q.Get("limit"), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("unable to parse limit from query: %w", err)
	}
	if l < 1 || l > maxExportLimit {
		return 0, fmt.Errorf("limit [%d] must be between 1 and %d", l, maxExportLimit)
	}
	return int(l), nil
}

package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"discord-feedback-bot/internal/logger"
	"discord-feedback-bot/internal/models"
	"discord-feedback-bot/internal/transport/web/controller"
)

type Pipeline interface {
	PostPrompt(ctx context.Context, text, category string) (uint, error)
	Aggregate(ctx context.Context, promptID uint) (*models.TrainingPair, error)
	ExportTrainingData(ctx context.Context, limit int) ([]models.TrainingPair, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

func MakeRouter(p Pipeline, exportLimit int, log *logger.Logger) http.Handler {
	log = log.With("component", "http")

	r := mux.NewRouter()
	r.Use(loggingMiddleware(log))

	r.Handle("/v1/training-data", controller.TrainingDataList{
		Exporter:     p,
		DefaultLimit: exportLimit,
		Log:          log,
	}).Methods(http.MethodGet)

	r.Handle("/v1/prompts", controller.PromptCreate{
		Poster: p,
		Log:    log,
	}).Methods(http.MethodPost)

	r.Handle("/v1/prompts/{prompt_id:[0-9]+}/aggregate", controller.PromptAggregate{
		Aggregator: p,
		Log:        log,
	}).Methods(http.MethodPost)

	r.Handle("/v1/stats", controller.StatsGet{
		Stats: p,
		Log:   log,
	}).Methods(http.MethodGet)

	return r
}

func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("request served", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		})
	}
}

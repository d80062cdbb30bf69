package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"discord-feedback-bot/internal/database"
	"discord-feedback-bot/internal/logger"
	"discord-feedback-bot/internal/models"
	"discord-feedback-bot/internal/pipeline"
	"discord-feedback-bot/internal/training"
)

type fakePipeline struct {
	gotLimit    int
	gotText     string
	gotCategory string
	gotPromptID uint

	pairs    []models.TrainingPair
	pair     *models.TrainingPair
	stats    *models.Stats
	promptID uint
	err      error
}

func (f *fakePipeline) ExportTrainingData(_ context.Context, limit int) ([]models.TrainingPair, error) {
	f.gotLimit = limit
	return f.pairs, f.err
}

func (f *fakePipeline) PostPrompt(_ context.Context, text, category string) (uint, error) {
	f.gotText, f.gotCategory = text, category
	return f.promptID, f.err
}

func (f *fakePipeline) Aggregate(_ context.Context, promptID uint) (*models.TrainingPair, error) {
	f.gotPromptID = promptID
	return f.pair, f.err
}

func (f *fakePipeline) Stats(context.Context) (*models.Stats, error) {
	return f.stats, f.err
}

var testTime = time.Date(2024, 4, 27, 12, 0, 0, 0, time.UTC)

func TestTrainingDataList_ServeHTTP(t *testing.T) {
	cases := []struct {
		name       string
		query      string
		err        error
		wantStatus int
		wantLimit  int
	}{
		{name: "default_limit", wantStatus: http.StatusOK, wantLimit: 100},
		{name: "explicit_limit", query: "?limit=5", wantStatus: http.StatusOK, wantLimit: 5},
		{name: "limit_not_a_number", query: "?limit=abc", wantStatus: http.StatusBadRequest},
		{name: "limit_zero", query: "?limit=0", wantStatus: http.StatusBadRequest},
		{name: "limit_too_large", query: "?limit=5000", wantStatus: http.StatusBadRequest},
		{name: "storage_unavailable", err: database.ErrStorageUnavailable, wantStatus: http.StatusServiceUnavailable, wantLimit: 100},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakePipeline{
				err: tc.err,
				pairs: []models.TrainingPair{{
					PromptText: "Explain X", ChosenText: "A",
					RejectedTexts: datatypes.JSONSlice[string]{"B"}, Score: 2, CreatedAt: testTime,
				}},
			}
			c := TrainingDataList{Exporter: p, DefaultLimit: 100, Log: logger.NewNop()}

			rec := httptest.NewRecorder()
			c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/training-data"+tc.query, nil))

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantLimit, p.gotLimit)
			if tc.wantStatus != http.StatusOK {
				return
			}
			var got []training.ExportRecord
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			require.Len(t, got, 1)
			assert.Equal(t, "A", got[0].Chosen)
			assert.Equal(t, []string{"B"}, got[0].Rejected)
		})
	}
}

func TestPromptCreate_ServeHTTP(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{name: "created", body: `{"text":"Explain X","category":"ml"}`, wantStatus: http.StatusCreated},
		{name: "bad_json", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "empty_prompt", body: `{"text":""}`, err: pipeline.ErrEmptyPrompt, wantStatus: http.StatusBadRequest},
		{name: "post_failed", body: `{"text":"Explain X"}`, err: errors.New("discord down"), wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakePipeline{promptID: 7, err: tc.err}
			c := PromptCreate{Poster: p, Log: logger.NewNop()}

			rec := httptest.NewRecorder()
			c.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/prompts", strings.NewReader(tc.body)))

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantStatus == http.StatusCreated {
				assert.Equal(t, "Explain X", p.gotText)
				assert.Equal(t, "ml", p.gotCategory)
				assert.JSONEq(t, `{"prompt_id":7}`, rec.Body.String())
			}
		})
	}
}

func TestPromptAggregate_ServeHTTP(t *testing.T) {
	cases := []struct {
		name       string
		promptID   string
		err        error
		wantStatus int
	}{
		{name: "aggregated", promptID: "3", wantStatus: http.StatusOK},
		{name: "invalid_id", promptID: "abc", wantStatus: http.StatusBadRequest},
		{name: "zero_id", promptID: "0", wantStatus: http.StatusBadRequest},
		{name: "not_found", promptID: "3", err: database.ErrNotFound, wantStatus: http.StatusNotFound},
		{name: "insufficient", promptID: "3", err: fmt.Errorf("prompt 3: %w", training.ErrInsufficientCandidates), wantStatus: http.StatusUnprocessableEntity},
		{name: "expired", promptID: "3", err: training.ErrPromptExpired, wantStatus: http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakePipeline{
				err:  tc.err,
				pair: &models.TrainingPair{ID: 1, PromptID: 3, PromptText: "Explain X", ChosenText: "A", Score: 1, CreatedAt: testTime},
			}
			c := PromptAggregate{Aggregator: p, Log: logger.NewNop()}

			req := httptest.NewRequest(http.MethodPost, "/v1/prompts/"+tc.promptID+"/aggregate", nil)
			req = mux.SetURLVars(req, map[string]string{"prompt_id": tc.promptID})
			rec := httptest.NewRecorder()
			c.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantStatus == http.StatusOK {
				assert.EqualValues(t, 3, p.gotPromptID)
				var got training.ExportRecord
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				assert.Equal(t, "A", got.Chosen)
				assert.Equal(t, []string{}, got.Rejected)
			}
		})
	}
}

func TestStatsGet_ServeHTTP(t *testing.T) {
	p := &fakePipeline{stats: &models.Stats{
		Prompts: 2, Responses: 6, Feedback: 9, TrainingPairs: 1,
		Categories: []models.CategoryCount{{Category: "ml", Count: 2}},
	}}
	c := StatsGet{Stats: p, Log: logger.NewNop()}

	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"prompts":2,"responses":6,"feedback":9,"training_pairs":1,"categories":{"ml":2}}`, rec.Body.String())

	p.err = database.ErrStorageUnavailable
	rec = httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

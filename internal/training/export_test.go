package training

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discord-feedback-bot/internal/models"
)

func TestWriteJSONFieldNamesAndOrder(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	pairs := []models.TrainingPair{
		{PromptText: "newer", ChosenText: "c1", RejectedTexts: []string{"r1", "r2"}, Score: 3, CreatedAt: created.Add(time.Hour)},
		{PromptText: "older <b>", ChosenText: "c2", Score: -1, CreatedAt: created},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, pairs))

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	require.Len(t, raw, 2)

	assert.Equal(t, "newer", raw[0]["prompt"])
	assert.Equal(t, "c1", raw[0]["chosen"])
	assert.Equal(t, []any{"r1", "r2"}, raw[0]["rejected"])
	assert.EqualValues(t, 3, raw[0]["score"])
	assert.Equal(t, "2025-03-01T13:00:00Z", raw[0]["created_at"])

	assert.Equal(t, []any{}, raw[1]["rejected"])
	assert.Contains(t, buf.String(), "older <b>")
}

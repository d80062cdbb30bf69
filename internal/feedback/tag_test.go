package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discord-feedback-bot/internal/models"
)

func TestTagRoundTrip(t *testing.T) {
	tag := FormatTag(12, 345)
	assert.Equal(t, "Prompt: 12 | Response: 345", tag)

	p, r, err := ParseTag(tag)
	require.NoError(t, err)
	assert.EqualValues(t, 12, p)
	assert.EqualValues(t, 345, r)
}

func TestParseTagRejects(t *testing.T) {
	for _, tag := range []string{
		"",
		"Prompt: 1",
		"Prompt: 1 | Response:",
		"Prompt: -1 | Response: 2",
		"Prompt: 0 | Response: 2",
		"Prompt: 1 | Response: 0",
		"prompt: 1 | response: 2",
		"Prompt: 1 | Response: 2 | extra",
		"Prompt: 99999999999999999999999 | Response: 2",
	} {
		_, _, err := ParseTag(tag)
		assert.ErrorIs(t, err, ErrMalformedReference, "tag %q", tag)
	}
}

func TestClassifySymbol(t *testing.T) {
	assert.Equal(t, models.FeedbackLike, ClassifySymbol("👍"))
	assert.Equal(t, models.FeedbackLike, ClassifySymbol("❤️"))
	assert.Equal(t, models.FeedbackLike, ClassifySymbol("🔥"))
	assert.Equal(t, models.FeedbackDislike, ClassifySymbol("👎"))
	assert.Equal(t, models.FeedbackDislike, ClassifySymbol("🤔"))
	assert.Equal(t, models.FeedbackDislike, ClassifySymbol("custom_emoji"))
}

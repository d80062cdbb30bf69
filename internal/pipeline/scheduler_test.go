package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discord-feedback-bot/internal/generator"
	"discord-feedback-bot/internal/logger"
	"discord-feedback-bot/internal/models"
)

type fixedPicker struct{ sample Sample }

func (p fixedPicker) Pick() Sample { return p.sample }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestScheduler(h *harness, c *clock, window time.Duration) *Scheduler {
	return NewScheduler(SchedulerConfig{
		Runner: h.svc,
		Store:  h.db,
		Picker: fixedPicker{Sample{Text: "Explain X", Category: "ml"}},
		Period: time.Hour,
		Window: window,
		Retry:  testPolicy(),
		Log:    logger.NewNop(),
		Now:    c.Now,
	})
}

func TestSchedulerPostsWhenIdleOnly(t *testing.T) {
	h := newHarness(t)
	c := &clock{t: time.Now()}
	s := newTestScheduler(h, c, 24*time.Hour)
	ctx := context.Background()

	assert.Equal(t, StateIdle, s.Current().State)

	s.RunOnce(ctx)
	require.Len(t, h.poster.batches, 1)
	cur := s.Current()
	assert.Equal(t, StateCollectingFeedback, cur.State)
	assert.NotEmpty(t, cur.ID)
	assert.Equal(t, h.poster.batches[0].PromptID, cur.PromptID)

	c.Advance(6 * time.Hour)
	s.RunOnce(ctx)
	assert.Len(t, h.poster.batches, 1, "no new prompt while collecting")
}

func TestSchedulerAggregatesAfterWindow(t *testing.T) {
	h := newHarness(t)
	c := &clock{t: time.Now()}
	s := newTestScheduler(h, c, 24*time.Hour)
	ctx := context.Background()

	s.RunOnce(ctx)
	first := s.Current()
	cands := h.poster.batches[0].Candidates
	h.react(t, cands[1].Tag, "alice", "👍")

	c.Advance(25 * time.Hour)
	s.RunOnce(ctx)

	prompt, err := h.db.GetPrompt(ctx, first.PromptID)
	require.NoError(t, err)
	assert.Equal(t, models.PromptClosed, prompt.Status)

	pair, err := h.db.TrainingPairForPrompt(ctx, first.PromptID)
	require.NoError(t, err)
	assert.Equal(t, cands[1].Text, pair.ChosenText)

	require.Len(t, h.poster.batches, 2, "a new cycle starts once the previous one is aggregated")
	next := s.Current()
	assert.NotEqual(t, first.ID, next.ID)
	assert.Equal(t, StateCollectingFeedback, next.State)
}

func TestSchedulerExpiresPromptWithoutVotes(t *testing.T) {
	h := newHarness(t)
	c := &clock{t: time.Now()}
	s := newTestScheduler(h, c, 24*time.Hour)
	ctx := context.Background()

	s.RunOnce(ctx)
	promptID := s.Current().PromptID
	cands := h.poster.batches[0].Candidates
	h.react(t, cands[0].Tag, "alice", "") // ignored, no symbol

	c.Advance(25 * time.Hour)
	s.RunOnce(ctx)

	prompt, err := h.db.GetPrompt(ctx, promptID)
	require.NoError(t, err)
	assert.Equal(t, models.PromptExpired, prompt.Status)

	pairs, err := h.db.ListTrainingPairs(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestSchedulerExpiresPromptWithOneCandidate(t *testing.T) {
	h := newHarness(t)
	h.gen.candidates = []generator.Candidate{
		{Text: "only", Model: "gpt-4", Temperature: 0.7},
		{Model: "gpt-4", Temperature: 0.7, FailureReason: "timeout"},
	}
	c := &clock{t: time.Now()}
	s := newTestScheduler(h, c, 24*time.Hour)
	ctx := context.Background()

	s.RunOnce(ctx)
	promptID := s.Current().PromptID
	h.react(t, h.poster.batches[0].Candidates[0].Tag, "alice", "👍")

	c.Advance(25 * time.Hour)
	s.RunOnce(ctx)

	prompt, err := h.db.GetPrompt(ctx, promptID)
	require.NoError(t, err)
	assert.Equal(t, models.PromptExpired, prompt.Status)
}

func TestSchedulerNoticesManualAggregation(t *testing.T) {
	h := newHarness(t)
	c := &clock{t: time.Now()}
	s := newTestScheduler(h, c, 24*time.Hour)
	ctx := context.Background()

	s.RunOnce(ctx)
	first := s.Current()
	cands := h.poster.batches[0].Candidates
	h.react(t, cands[0].Tag, "alice", "👍")

	_, err := h.svc.Aggregate(ctx, first.PromptID)
	require.NoError(t, err)

	c.Advance(time.Hour)
	s.RunOnce(ctx)

	require.Len(t, h.poster.batches, 2, "a manually aggregated prompt frees the scheduler")
	next := s.Current()
	assert.NotEqual(t, first.ID, next.ID)
	assert.NotEqual(t, first.PromptID, next.PromptID)
	assert.Equal(t, StateCollectingFeedback, next.State)
}

func TestSchedulerNoticesExternalExpiry(t *testing.T) {
	h := newHarness(t)
	c := &clock{t: time.Now()}
	s := newTestScheduler(h, c, 24*time.Hour)
	ctx := context.Background()

	s.RunOnce(ctx)
	first := s.Current()
	require.NoError(t, h.db.ExpirePrompt(ctx, first.PromptID))

	c.Advance(time.Hour)
	s.RunOnce(ctx)

	require.Len(t, h.poster.batches, 2)
	assert.NotEqual(t, first.ID, s.Current().ID)
}

func TestSchedulerWithoutWindowPostsEveryTick(t *testing.T) {
	h := newHarness(t)
	c := &clock{t: time.Now()}
	s := newTestScheduler(h, c, 0)
	ctx := context.Background()

	s.RunOnce(ctx)
	c.Advance(48 * time.Hour)
	s.RunOnce(ctx)

	assert.Len(t, h.poster.batches, 2)
	prompt, err := h.db.GetPrompt(ctx, h.poster.batches[0].PromptID)
	require.NoError(t, err)
	assert.Equal(t, models.PromptActive, prompt.Status)
}

func TestSchedulerPostFailureStaysIdle(t *testing.T) {
	h := newHarness(t)
	h.gen.err = errBoom
	c := &clock{t: time.Now()}
	s := newTestScheduler(h, c, 24*time.Hour)

	s.RunOnce(context.Background())
	assert.Equal(t, StateIdle, s.Current().State)

	h.gen.err = nil
	s.RunOnce(context.Background())
	assert.Equal(t, StateCollectingFeedback, s.Current().State)
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	c := &clock{t: time.Now()}
	s := newTestScheduler(h, c, 24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		h.poster.mu.Lock()
		defer h.poster.mu.Unlock()
		return len(h.poster.batches) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

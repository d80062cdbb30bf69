// internal/pipeline/scheduler.go
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"discord-feedback-bot/internal/database"
	"discord-feedback-bot/internal/logger"
	"discord-feedback-bot/internal/models"
	"discord-feedback-bot/internal/retry"
	"discord-feedback-bot/internal/training"
)

type CycleState string

const (
	StateIdle               CycleState = "idle"
	StatePromptPosted       CycleState = "prompt_posted"
	StateCollectingFeedback CycleState = "collecting_feedback"
	StateAggregated         CycleState = "aggregated"
	StateExpired            CycleState = "expired"
)

func (s CycleState) terminal() bool {
	return s == StateIdle || s == StateAggregated || s == StateExpired
}

type Cycle struct {
	ID        string
	PromptID  uint
	State     CycleState
	StartedAt time.Time
}

type CycleRunner interface {
	PostPrompt(ctx context.Context, text, category string) (uint, error)
	Aggregate(ctx context.Context, promptID uint) (*models.TrainingPair, error)
}

type DueStore interface {
	GetPrompt(ctx context.Context, id uint) (*models.Prompt, error)
	ActivePromptsCreatedBefore(ctx context.Context, t time.Time) ([]models.Prompt, error)
	RankedResponses(ctx context.Context, promptID uint) ([]models.RankedResponse, error)
	ExpirePrompt(ctx context.Context, promptID uint) error
}

type SchedulerConfig struct {
	Runner CycleRunner
	Store  DueStore
	Picker PromptPicker
	// Period between cycles.
	Period time.Duration
	// Window is how long a prompt collects feedback before it is finalized.
	// Zero disables finalization.
	Window time.Duration
	Retry  retry.Policy
	Log    *logger.Logger
	Now    func() time.Time
}

// Scheduler posts a prompt whenever no cycle is open and finalizes prompts
// whose collection window has elapsed.
type Scheduler struct {
	runner CycleRunner
	store  DueStore
	picker PromptPicker
	period time.Duration
	window time.Duration
	retry  retry.Policy
	log    *logger.Logger
	now    func() time.Time

	mu    sync.Mutex
	cycle *Cycle
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Period <= 0 {
		cfg.Period = 6 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Picker == nil {
		cfg.Picker = NewSamplePicker(nil, nil)
	}
	return &Scheduler{
		runner: cfg.Runner,
		store:  cfg.Store,
		picker: cfg.Picker,
		period: cfg.Period,
		window: cfg.Window,
		retry:  cfg.Retry,
		log:    cfg.Log.With("component", "scheduler"),
		now:    cfg.Now,
	}
}

// Run executes a cycle immediately and then once per period until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce finalizes due prompts and, when idle, starts a new cycle. Errors
// are logged and never stop the next tick.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.finalizeDue(ctx)
	s.refreshCurrent(ctx)

	if !s.idle() {
		return
	}
	s.startCycle(ctx)
}

// Current returns a copy of the current cycle, or an idle cycle.
func (s *Scheduler) Current() Cycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycle == nil {
		return Cycle{State: StateIdle}
	}
	return *s.cycle
}

func (s *Scheduler) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycle == nil || s.cycle.State.terminal() {
		return true
	}
	// Without a window nothing ever closes a cycle.
	return s.window <= 0 && s.cycle.State == StateCollectingFeedback
}

func (s *Scheduler) setState(promptID uint, state CycleState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycle != nil && s.cycle.PromptID == promptID {
		s.cycle.State = state
	}
}

func (s *Scheduler) startCycle(ctx context.Context) {
	sample := s.picker.Pick()
	cycle := &Cycle{ID: uuid.NewString(), State: StateIdle, StartedAt: s.now()}
	log := s.log.With("cycle_id", cycle.ID)

	log.Info("starting feedback cycle", "category", sample.Category)
	promptID, err := s.runner.PostPrompt(ctx, sample.Text, sample.Category)
	if err != nil {
		log.Error("failed to post scheduled prompt", "prompt_id", promptID, "error", err)
		return
	}

	cycle.PromptID = promptID
	cycle.State = StatePromptPosted
	s.mu.Lock()
	s.cycle = cycle
	s.mu.Unlock()

	s.setState(promptID, StateCollectingFeedback)
	log.Info("collecting feedback", "prompt_id", promptID, "window", s.window)
}

func (s *Scheduler) finalizeDue(ctx context.Context) {
	if s.window <= 0 {
		return
	}

	cutoff := s.now().Add(-s.window)
	due, err := retry.Do(ctx, s.retry, "due_prompts", func() ([]models.Prompt, error) {
		return s.store.ActivePromptsCreatedBefore(ctx, cutoff)
	})
	if err != nil {
		s.log.Error("failed to list due prompts", "error", err)
		return
	}

	for _, p := range due {
		if ctx.Err() != nil {
			return
		}
		s.setState(p.ID, s.finalize(ctx, p))
	}
}

// refreshCurrent picks up a current prompt that was closed or expired
// outside the scheduler, for example by a manual aggregate command.
func (s *Scheduler) refreshCurrent(ctx context.Context) {
	s.mu.Lock()
	if s.cycle == nil || s.cycle.State.terminal() {
		s.mu.Unlock()
		return
	}
	promptID := s.cycle.PromptID
	s.mu.Unlock()

	prompt, err := retry.Do(ctx, s.retry, "get_prompt", func() (*models.Prompt, error) {
		return s.store.GetPrompt(ctx, promptID)
	})
	if err != nil {
		s.log.Error("failed to reload current prompt", "prompt_id", promptID, "error", err)
		return
	}

	switch prompt.Status {
	case models.PromptClosed:
		s.log.Info("current prompt was aggregated elsewhere", "prompt_id", promptID)
		s.setState(promptID, StateAggregated)
	case models.PromptExpired:
		s.log.Info("current prompt was expired elsewhere", "prompt_id", promptID)
		s.setState(promptID, StateExpired)
	}
}

// finalize aggregates a prompt whose window elapsed. Prompts without two
// rankable candidates or without any vote are expired instead.
func (s *Scheduler) finalize(ctx context.Context, p models.Prompt) CycleState {
	log := s.log.With("prompt_id", p.ID)

	ranked, err := retry.Do(ctx, s.retry, "ranked_responses", func() ([]models.RankedResponse, error) {
		return s.store.RankedResponses(ctx, p.ID)
	})
	if err != nil {
		log.Error("failed to rank due prompt", "error", err)
		return StateCollectingFeedback
	}

	if len(ranked) >= training.MinCandidates && hasVotes(ranked) {
		pair, err := s.runner.Aggregate(ctx, p.ID)
		switch {
		case err == nil:
			log.Info("collection window closed, training pair derived", "training_pair_id", pair.ID, "score", pair.Score)
			return StateAggregated
		case errors.Is(err, training.ErrPromptExpired):
			return StateExpired
		case !errors.Is(err, training.ErrInsufficientCandidates):
			log.Error("failed to aggregate due prompt", "error", err)
			return StateCollectingFeedback
		}
	}

	err = retry.Exec(ctx, s.retry, "expire_prompt", func() error {
		return s.store.ExpirePrompt(ctx, p.ID)
	})
	switch {
	case err == nil:
		log.Info("collection window closed without enough feedback, prompt expired", "candidates", len(ranked))
		return StateExpired
	case errors.Is(err, database.ErrAlreadyFinalized):
		return StateExpired
	default:
		log.Error("failed to expire prompt", "error", err)
		return StateCollectingFeedback
	}
}

func hasVotes(ranked []models.RankedResponse) bool {
	for _, r := range ranked {
		if r.Likes+r.Dislikes > 0 {
			return true
		}
	}
	return false
}

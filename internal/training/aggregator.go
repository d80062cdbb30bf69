// internal/training/aggregator.go
package training

import (
	"context"
	"errors"
	"fmt"

	"discord-feedback-bot/internal/database"
	"discord-feedback-bot/internal/logger"
	"discord-feedback-bot/internal/models"
	"discord-feedback-bot/internal/retry"
)

var (
	// ErrInsufficientCandidates is returned when a prompt has fewer than two
	// rankable candidates.
	ErrInsufficientCandidates = errors.New("insufficient candidates")
	// ErrPromptExpired is returned when the collection window closed without
	// a training pair.
	ErrPromptExpired = errors.New("prompt expired")
)

const MinCandidates = 2

type Store interface {
	GetPrompt(ctx context.Context, id uint) (*models.Prompt, error)
	RankedResponses(ctx context.Context, promptID uint) ([]models.RankedResponse, error)
	SaveTrainingPair(ctx context.Context, pair *models.TrainingPair) error
	TrainingPairForPrompt(ctx context.Context, promptID uint) (*models.TrainingPair, error)
}

type Aggregator struct {
	store Store
	retry retry.Policy
	log   *logger.Logger
}

func NewAggregator(store Store, policy retry.Policy, log *logger.Logger) *Aggregator {
	return &Aggregator{store: store, retry: policy, log: log.With("component", "aggregator")}
}

// Aggregate derives the training pair for a prompt. A prompt yields at most
// one pair: once closed, the stored pair is returned unchanged.
func (a *Aggregator) Aggregate(ctx context.Context, promptID uint) (*models.TrainingPair, error) {
	prompt, err := retry.Do(ctx, a.retry, "get_prompt", func() (*models.Prompt, error) {
		return a.store.GetPrompt(ctx, promptID)
	})
	if err != nil {
		return nil, fmt.Errorf("loading prompt %d: %w", promptID, err)
	}

	switch prompt.Status {
	case models.PromptClosed:
		return a.existing(ctx, promptID)
	case models.PromptExpired:
		return nil, fmt.Errorf("prompt %d: %w", promptID, ErrPromptExpired)
	}

	ranked, err := retry.Do(ctx, a.retry, "ranked_responses", func() ([]models.RankedResponse, error) {
		return a.store.RankedResponses(ctx, promptID)
	})
	if err != nil {
		return nil, fmt.Errorf("ranking responses for prompt %d: %w", promptID, err)
	}

	chosen, rejected, err := Select(ranked)
	if err != nil {
		return nil, fmt.Errorf("prompt %d has %d candidates: %w", promptID, len(ranked), err)
	}

	rejectedTexts := make([]string, 0, len(rejected))
	for _, r := range rejected {
		rejectedTexts = append(rejectedTexts, r.Text)
	}

	pair := &models.TrainingPair{
		PromptID:      promptID,
		PromptText:    prompt.Text,
		ChosenText:    chosen.Text,
		RejectedTexts: rejectedTexts,
		Score:         chosen.Score,
	}

	err = retry.Exec(ctx, a.retry, "save_training_pair", func() error {
		return a.store.SaveTrainingPair(ctx, pair)
	})
	if errors.Is(err, database.ErrAlreadyFinalized) {
		// Another run closed the prompt between our read and write.
		return a.existing(ctx, promptID)
	}
	if err != nil {
		return nil, fmt.Errorf("saving training pair for prompt %d: %w", promptID, err)
	}

	a.log.Info("training pair derived",
		"prompt_id", promptID, "chosen_response_id", chosen.ResponseID, "score", chosen.Score, "rejected", len(rejected))
	return pair, nil
}

func (a *Aggregator) existing(ctx context.Context, promptID uint) (*models.TrainingPair, error) {
	pair, err := retry.Do(ctx, a.retry, "get_training_pair", func() (*models.TrainingPair, error) {
		return a.store.TrainingPairForPrompt(ctx, promptID)
	})
	if errors.Is(err, database.ErrNotFound) {
		// Finalized without a pair: the prompt was expired concurrently.
		return nil, fmt.Errorf("prompt %d: %w", promptID, ErrPromptExpired)
	}
	if err != nil {
		return nil, fmt.Errorf("loading training pair for prompt %d: %w", promptID, err)
	}
	return pair, nil
}

// Select picks the highest-scoring candidate from a ranked list. Among equal
// scores the earliest entry in ranked order wins. Rejected keeps the ranked
// order of everything else.
func Select(ranked []models.RankedResponse) (chosen models.RankedResponse, rejected []models.RankedResponse, err error) {
	if len(ranked) < MinCandidates {
		return models.RankedResponse{}, nil, ErrInsufficientCandidates
	}

	best := 0
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[best].Score {
			best = i
		}
	}

	rejected = make([]models.RankedResponse, 0, len(ranked)-1)
	for i, r := range ranked {
		if i != best {
			rejected = append(rejected, r)
		}
	}
	return ranked[best], rejected, nil
}

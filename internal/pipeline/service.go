// internal/pipeline/service.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"discord-feedback-bot/internal/feedback"
	"discord-feedback-bot/internal/generator"
	"discord-feedback-bot/internal/logger"
	"discord-feedback-bot/internal/models"
	"discord-feedback-bot/internal/retry"
)

var ErrEmptyPrompt = errors.New("prompt text is empty")

const DefaultCategory = "general"

// Batch is what the posting collaborator renders: one prompt and its
// successful candidates, each carrying the tag reactions are resolved by.
type Batch struct {
	PromptID   uint
	Text       string
	Category   string
	Candidates []Posting
}

type Posting struct {
	ResponseID  uint
	Index       int
	Text        string
	Model       string
	Temperature float32
	Tag         string
}

// Poster renders a batch to end users and returns a reference to the first
// rendered artifact.
type Poster interface {
	Post(ctx context.Context, batch Batch) (string, error)
}

type Store interface {
	CreatePrompt(ctx context.Context, text, category, externalRef string) (uint, error)
	SetPromptMessageRef(ctx context.Context, promptID uint, ref string) error
	CreateResponse(ctx context.Context, promptID uint, text, model string, temperature float32) (uint, error)
	CreateFailedResponse(ctx context.Context, promptID uint, model string, temperature float32, reason string) (uint, error)
	ListTrainingPairs(ctx context.Context, limit int) ([]models.TrainingPair, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

type CandidateGenerator interface {
	Generate(ctx context.Context, prompt string, k int) ([]generator.Candidate, error)
}

type Ingester interface {
	Ingest(ctx context.Context, ev feedback.Event) error
}

type PairAggregator interface {
	Aggregate(ctx context.Context, promptID uint) (*models.TrainingPair, error)
}

// Service is the surface the bot, the scheduler, the HTTP transport and the
// CLI share.
type Service struct {
	store      Store
	gen        CandidateGenerator
	poster     Poster
	ingestor   Ingester
	aggregator PairAggregator
	candidates int
	retry      retry.Policy
	log        *logger.Logger
}

type ServiceConfig struct {
	Store      Store
	Generator  CandidateGenerator
	Poster     Poster
	Ingestor   Ingester
	Aggregator PairAggregator
	Candidates int
	Retry      retry.Policy
	Log        *logger.Logger
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Candidates <= 0 {
		cfg.Candidates = generator.DefaultCandidates
	}
	return &Service{
		store:      cfg.Store,
		gen:        cfg.Generator,
		poster:     cfg.Poster,
		ingestor:   cfg.Ingestor,
		aggregator: cfg.Aggregator,
		candidates: cfg.Candidates,
		retry:      cfg.Retry,
		log:        cfg.Log.With("component", "service"),
	}
}

// PostPrompt stores a prompt, generates and stores its candidates, and hands
// the successful ones to the poster. Candidates committed before a failure
// or cancellation stay in the store.
func (s *Service) PostPrompt(ctx context.Context, text, category string) (uint, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrEmptyPrompt
	}
	category = strings.TrimSpace(category)
	if category == "" {
		category = DefaultCategory
	}

	promptID, err := retry.Do(ctx, s.retry, "create_prompt", func() (uint, error) {
		return s.store.CreatePrompt(ctx, text, category, "")
	})
	if err != nil {
		return 0, fmt.Errorf("creating prompt: %w", err)
	}
	log := s.log.With("prompt_id", promptID)

	candidates, err := s.gen.Generate(ctx, text, s.candidates)
	if err != nil {
		return promptID, fmt.Errorf("generating candidates for prompt %d: %w", promptID, err)
	}

	batch := Batch{PromptID: promptID, Text: text, Category: category}
	for i, c := range candidates {
		responseID, err := s.persist(ctx, promptID, c)
		if err != nil {
			return promptID, fmt.Errorf("storing candidate %d of prompt %d: %w", i+1, promptID, err)
		}
		if c.Failed() {
			log.Warn("candidate generation failed", "response_id", responseID, "model", c.Model, "reason", c.FailureReason)
			continue
		}
		batch.Candidates = append(batch.Candidates, Posting{
			ResponseID:  responseID,
			Index:       len(batch.Candidates) + 1,
			Text:        c.Text,
			Model:       c.Model,
			Temperature: c.Temperature,
			Tag:         feedback.FormatTag(promptID, responseID),
		})
	}

	log.Info("prompt created", "category", category, "candidates", len(candidates), "ok", len(batch.Candidates))

	if s.poster == nil || len(batch.Candidates) == 0 {
		return promptID, nil
	}

	ref, err := s.poster.Post(ctx, batch)
	if err != nil {
		return promptID, fmt.Errorf("posting prompt %d: %w", promptID, err)
	}
	if ref != "" {
		err = retry.Exec(ctx, s.retry, "set_prompt_ref", func() error {
			return s.store.SetPromptMessageRef(ctx, promptID, ref)
		})
		if err != nil {
			log.Warn("failed to store message reference", "ref", ref, "error", err)
		}
	}

	return promptID, nil
}

func (s *Service) persist(ctx context.Context, promptID uint, c generator.Candidate) (uint, error) {
	return retry.Do(ctx, s.retry, "create_response", func() (uint, error) {
		if c.Failed() {
			return s.store.CreateFailedResponse(ctx, promptID, c.Model, c.Temperature, c.FailureReason)
		}
		return s.store.CreateResponse(ctx, promptID, c.Text, c.Model, c.Temperature)
	})
}

// RecordReaction feeds one reaction or reply into the ingestor.
func (s *Service) RecordReaction(ctx context.Context, ev feedback.Event) error {
	return s.ingestor.Ingest(ctx, ev)
}

func (s *Service) Aggregate(ctx context.Context, promptID uint) (*models.TrainingPair, error) {
	return s.aggregator.Aggregate(ctx, promptID)
}

// ExportTrainingData returns up to limit training pairs, most recent first.
func (s *Service) ExportTrainingData(ctx context.Context, limit int) ([]models.TrainingPair, error) {
	pairs, err := retry.Do(ctx, s.retry, "list_training_pairs", func() ([]models.TrainingPair, error) {
		return s.store.ListTrainingPairs(ctx, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("listing training pairs: %w", err)
	}
	return pairs, nil
}

func (s *Service) Stats(ctx context.Context) (*models.Stats, error) {
	return retry.Do(ctx, s.retry, "stats", func() (*models.Stats, error) {
		return s.store.Stats(ctx)
	})
}

// internal/generator/generator.go
package generator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"discord-feedback-bot/internal/logger"
)

const DefaultCandidates = 3

// Completer is the external text-completion service.
type Completer interface {
	Complete(ctx context.Context, prompt, model string, temperature float32) (string, error)
}

// Candidate is either a generated answer or a failed attempt. Failed
// candidates carry the reason instead of text and are never ranked.
type Candidate struct {
	Text          string
	Model         string
	Temperature   float32
	FailureReason string
}

func (c Candidate) Failed() bool {
	return c.FailureReason != ""
}

type Generator struct {
	completer    Completer
	models       []string
	temperatures []float32
	delay        time.Duration
	rng          *rand.Rand
	log          *logger.Logger
}

type Option func(*Generator)

// WithRand fixes the sampling source, mostly for tests.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rng = r }
}

// WithDelay sets the pause between consecutive completion calls.
func WithDelay(d time.Duration) Option {
	return func(g *Generator) { g.delay = d }
}

func New(completer Completer, models []string, temperatures []float32, log *logger.Logger, opts ...Option) *Generator {
	g := &Generator{
		completer:    completer,
		models:       models,
		temperatures: temperatures,
		delay:        time.Second,
		rng:          rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		log:          log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces exactly k candidates for prompt, one completion call
// each, sampling model and temperature independently per call. Completion
// failures become failed candidates; only cancellation of ctx aborts the
// batch.
func (g *Generator) Generate(ctx context.Context, prompt string, k int) ([]Candidate, error) {
	if k <= 0 {
		k = DefaultCandidates
	}
	if len(g.models) == 0 || len(g.temperatures) == 0 {
		return nil, fmt.Errorf("generator has no models or temperatures configured")
	}

	candidates := make([]Candidate, 0, k)
	for i := 0; i < k; i++ {
		if i > 0 && g.delay > 0 {
			select {
			case <-ctx.Done():
				return candidates, ctx.Err()
			case <-time.After(g.delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return candidates, err
		}

		c := Candidate{
			Model:       g.models[g.rng.IntN(len(g.models))],
			Temperature: g.temperatures[g.rng.IntN(len(g.temperatures))],
		}

		text, err := g.completer.Complete(ctx, prompt, c.Model, c.Temperature)
		switch {
		case err != nil && ctx.Err() != nil:
			return candidates, ctx.Err()
		case err != nil:
			g.log.Warn("completion failed", "model", c.Model, "temperature", c.Temperature, "error", err)
			c.FailureReason = err.Error()
		case text == "":
			c.FailureReason = "empty completion"
		default:
			c.Text = text
		}

		candidates = append(candidates, c)
	}

	return candidates, nil
}

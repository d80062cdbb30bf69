package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"discord-feedback-bot/internal/database"
	"discord-feedback-bot/internal/feedback"
	"discord-feedback-bot/internal/generator"
	"discord-feedback-bot/internal/logger"
	"discord-feedback-bot/internal/retry"
	"discord-feedback-bot/internal/training"
)

type fakeGenerator struct {
	candidates []generator.Candidate
	err        error
}

func (g *fakeGenerator) Generate(_ context.Context, _ string, k int) ([]generator.Candidate, error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.candidates != nil {
		return g.candidates, nil
	}
	out := make([]generator.Candidate, k)
	for i := range out {
		out[i] = generator.Candidate{Text: "answer " + string(rune('A'+i)), Model: "gpt-4", Temperature: 0.7}
	}
	return out, nil
}

type fakePoster struct {
	mu      sync.Mutex
	batches []Batch
	ref     string
	err     error
}

func (p *fakePoster) Post(_ context.Context, b Batch) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, b)
	return p.ref, p.err
}

// fakeSource resolves artifacts "<tag>" to the tag itself, which keeps tests
// free of any rendering detail.
type fakeSource struct{}

func (fakeSource) SelfID() string            { return "bot" }
func (fakeSource) FeedbackChannelID() string { return "training" }
func (fakeSource) ResolveTag(_ context.Context, _, artifactRef string) (string, error) {
	return artifactRef, nil
}

type harness struct {
	db     *database.DB
	gen    *fakeGenerator
	poster *fakePoster
	svc    *Service
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxTries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Log: logger.NewNop()}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logger.NewNop()
	h := &harness{db: db, gen: &fakeGenerator{}, poster: &fakePoster{ref: "msg-100"}}
	h.svc = NewService(ServiceConfig{
		Store:      db,
		Generator:  h.gen,
		Poster:     h.poster,
		Ingestor:   feedback.NewIngestor(db, fakeSource{}, testPolicy(), log),
		Aggregator: training.NewAggregator(db, testPolicy(), log),
		Candidates: 3,
		Retry:      testPolicy(),
		Log:        log,
	})
	return h
}

func (h *harness) react(t *testing.T, tag, user, symbol string) {
	t.Helper()
	require.NoError(t, h.svc.RecordReaction(context.Background(), feedback.Event{
		ActorID: user, ActorName: user, Symbol: symbol, ArtifactRef: tag, ChannelRef: "training",
	}))
}

var errBoom = errors.New("boom")

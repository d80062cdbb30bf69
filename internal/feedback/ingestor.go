// internal/feedback/ingestor.go
package feedback

import (
	"context"
	"fmt"
	"strings"

	"discord-feedback-bot/internal/logger"
	"discord-feedback-bot/internal/models"
	"discord-feedback-bot/internal/retry"
)

// Event is one inbound reaction or textual reply on a rendered candidate.
// A non-empty Comment makes it a comment; otherwise Symbol is classified.
type Event struct {
	ActorID     string
	ActorName   string
	Symbol      string
	Comment     string
	ArtifactRef string
	ChannelRef  string
}

// Source is the presentation side the ingestor needs to trust an event.
type Source interface {
	SelfID() string
	FeedbackChannelID() string
	// ResolveTag returns the tag stored on the artifact, or "" when the
	// artifact is not a tagged candidate posted by the bot.
	ResolveTag(ctx context.Context, channelRef, artifactRef string) (string, error)
}

type Store interface {
	AppendFeedback(ctx context.Context, promptID, responseID uint, userID, userName string, kind models.FeedbackKind, value string) error
}

type Ingestor struct {
	store  Store
	source Source
	retry  retry.Policy
	log    *logger.Logger
}

func NewIngestor(store Store, source Source, policy retry.Policy, log *logger.Logger) *Ingestor {
	return &Ingestor{
		store:  store,
		source: source,
		retry:  policy,
		log:    log.With("component", "ingestor"),
	}
}

// Ingest appends exactly one feedback row for an accepted event. Events from
// the bot itself, from other channels, or on untagged artifacts are ignored
// and return nil. Failures are logged here; callers only need the error for
// reporting.
func (in *Ingestor) Ingest(ctx context.Context, ev Event) error {
	if ev.ActorID == "" || ev.ActorID == in.source.SelfID() {
		return nil
	}
	channelID := in.source.FeedbackChannelID()
	if channelID == "" || ev.ChannelRef != channelID {
		return nil
	}

	kind, value, ok := classify(ev)
	if !ok {
		return nil
	}

	tag, err := in.source.ResolveTag(ctx, ev.ChannelRef, ev.ArtifactRef)
	if err != nil {
		in.log.Warn("failed to resolve candidate reference", "artifact", ev.ArtifactRef, "error", err)
		return fmt.Errorf("resolving reference on %s: %w", ev.ArtifactRef, err)
	}
	if tag == "" {
		return nil
	}

	promptID, responseID, err := ParseTag(tag)
	if err != nil {
		in.log.Warn("ignoring feedback with malformed reference", "artifact", ev.ArtifactRef, "tag", tag)
		return err
	}

	err = retry.Exec(ctx, in.retry, "append_feedback", func() error {
		return in.store.AppendFeedback(ctx, promptID, responseID, ev.ActorID, ev.ActorName, kind, value)
	})
	if err != nil {
		in.log.Error("failed to record feedback",
			"prompt_id", promptID, "response_id", responseID, "user", ev.ActorName, "error", err)
		return fmt.Errorf("recording feedback: %w", err)
	}

	in.log.Info("feedback recorded",
		"prompt_id", promptID, "response_id", responseID, "user", ev.ActorName, "kind", kind, "value", value)
	return nil
}

func classify(ev Event) (models.FeedbackKind, string, bool) {
	if text := strings.TrimSpace(ev.Comment); text != "" {
		return models.FeedbackComment, text, true
	}
	if ev.Symbol == "" {
		return "", "", false
	}
	return ClassifySymbol(ev.Symbol), ev.Symbol, true
}

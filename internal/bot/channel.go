// internal/bot/channel.go
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"discord-feedback-bot/internal/feedback"
	"discord-feedback-bot/internal/logger"
	"discord-feedback-bot/internal/pipeline"

	"github.com/bwmarrin/discordgo"
)

const (
	embedColor        = 0x9b59b6
	fieldValueLimit   = 1024
	descriptionLimit  = 4096
	promptSnippetSize = 50
)

// FeedChannel is the feedback channel as seen by the pipeline: it renders
// candidate batches and reads the tag back from a rendered message.
type FeedChannel struct {
	session   *discordgo.Session
	name      string
	postDelay time.Duration
	log       *logger.Logger

	mu        sync.RWMutex
	channelID string
	selfID    string
	bound     chan struct{}
}

func NewFeedChannel(session *discordgo.Session, name string, postDelay time.Duration, log *logger.Logger) *FeedChannel {
	return &FeedChannel{
		session:   session,
		name:      name,
		postDelay: postDelay,
		log:       log.With("component", "feed_channel"),
		bound:     make(chan struct{}),
	}
}

// Bound is closed once the feedback channel has been discovered.
func (c *FeedChannel) Bound() <-chan struct{} { return c.bound }

func (c *FeedChannel) Name() string { return c.name }

func (c *FeedChannel) SelfID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selfID
}

func (c *FeedChannel) FeedbackChannelID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channelID
}

func (c *FeedChannel) setSelf(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selfID = id
}

// bind records the first text channel matching the configured name.
func (c *FeedChannel) bind(channels []*discordgo.Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channelID != "" {
		return false
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText && ch.Name == c.name {
			c.channelID = ch.ID
			close(c.bound)
			return true
		}
	}
	return false
}

// Post sends one embed per candidate and seeds it with the reaction
// affordances. It returns the ID of the first message sent.
func (c *FeedChannel) Post(ctx context.Context, batch pipeline.Batch) (string, error) {
	channelID := c.FeedbackChannelID()
	if channelID == "" {
		return "", fmt.Errorf("feedback channel %q not found", c.name)
	}

	var first string
	for i, cand := range batch.Candidates {
		if i > 0 && c.postDelay > 0 {
			select {
			case <-ctx.Done():
				return first, ctx.Err()
			case <-time.After(c.postDelay):
			}
		}

		msg, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{candidateEmbed(batch, cand, time.Now())},
		}, discordgo.WithContext(ctx))
		if err != nil {
			return first, fmt.Errorf("sending candidate %d: %w", cand.Index, err)
		}
		if first == "" {
			first = msg.ID
		}

		for _, symbol := range feedback.SeedSymbols {
			if err := c.session.MessageReactionAdd(channelID, msg.ID, symbol, discordgo.WithContext(ctx)); err != nil {
				c.log.Warn("failed to seed reaction", "message_id", msg.ID, "symbol", symbol, "error", err)
			}
		}
	}

	return first, nil
}

// ResolveTag returns the footer tag of a message the bot posted, or "" for
// any other message.
func (c *FeedChannel) ResolveTag(ctx context.Context, channelID, messageID string) (string, error) {
	msg, err := c.session.State.Message(channelID, messageID)
	if err != nil {
		msg, err = c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
		if err != nil {
			return "", err
		}
	}
	return tagFromMessage(msg, c.SelfID()), nil
}

func tagFromMessage(msg *discordgo.Message, selfID string) string {
	if msg == nil || msg.Author == nil || selfID == "" || msg.Author.ID != selfID {
		return ""
	}
	if len(msg.Embeds) == 0 || msg.Embeds[0].Footer == nil {
		return ""
	}
	return msg.Embeds[0].Footer.Text
}

func candidateEmbed(batch pipeline.Batch, cand pipeline.Posting, now time.Time) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🧠 AI training prompt: %s", batch.Category),
		Description: truncate(fmt.Sprintf("**Prompt**: %s", batch.Text), descriptionLimit),
		Color:       embedColor,
		Timestamp:   now.UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   fmt.Sprintf("🤖 AI response %d", cand.Index),
				Value:  truncate(cand.Text, fieldValueLimit),
				Inline: false,
			},
			{
				Name:   "⚙️ Generation settings",
				Value:  fmt.Sprintf("Model: %s\nTemperature: %.1f", cand.Model, cand.Temperature),
				Inline: true,
			},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: cand.Tag},
	}
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

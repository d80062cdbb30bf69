// internal/bot/handler.go
package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"discord-feedback-bot/internal/database"
	"discord-feedback-bot/internal/feedback"
	"discord-feedback-bot/internal/logger"
	"discord-feedback-bot/internal/models"
	"discord-feedback-bot/internal/pipeline"
	"discord-feedback-bot/internal/training"

	"github.com/bwmarrin/discordgo"
)

// Core is the part of the pipeline the Discord surface drives.
type Core interface {
	PostPrompt(ctx context.Context, text, category string) (uint, error)
	RecordReaction(ctx context.Context, ev feedback.Event) error
	Aggregate(ctx context.Context, promptID uint) (*models.TrainingPair, error)
	ExportTrainingData(ctx context.Context, limit int) ([]models.TrainingPair, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

type BotHandler struct {
	ctx         context.Context
	core        Core
	feed        *FeedChannel
	session     *discordgo.Session
	exportLimit int
	log         *logger.Logger
}

// NewBotHandler builds the handler. ctx bounds every operation started from a
// Discord event.
func NewBotHandler(ctx context.Context, core Core, feed *FeedChannel, exportLimit int, log *logger.Logger) *BotHandler {
	return &BotHandler{
		ctx:         ctx,
		core:        core,
		feed:        feed,
		exportLimit: exportLimit,
		log:         log.With("component", "bot"),
	}
}

func (h *BotHandler) SetSession(s *discordgo.Session) {
	h.session = s

	s.AddHandler(h.OnReady)
	s.AddHandler(h.OnGuildCreate)
	s.AddHandler(h.OnMessageReactionAdd)
	s.AddHandler(h.OnMessageCreate)
	s.AddHandler(h.handleInteraction)
}

const maxExportLimit = 1000

var minExportLimit = 1.0

var commands = []*discordgo.ApplicationCommand{
	{
		Name:        "train_ai",
		Description: "Post a prompt and collect feedback on the AI's answers",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "prompt",
				Description: "The prompt to generate answers for",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "category",
				Description: "Prompt category",
				Required:    false,
			},
		},
	},
	{
		Name:        "feedback_stats",
		Description: "Show feedback collection statistics",
	},
	{
		Name:        "export_training_data",
		Description: "Export training pairs as JSON",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "limit",
				Description: "Maximum number of pairs to export",
				Required:    false,
				MinValue:    &minExportLimit,
				MaxValue:    maxExportLimit,
			},
		},
	},
	{
		Name:        "aggregate",
		Description: "Derive the training pair for a prompt now",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "prompt_id",
				Description: "Prompt ID",
				Required:    true,
			},
		},
	},
}

// RegisterCommands registers slash commands for the bot
func (h *BotHandler) RegisterCommands() error {
	for _, cmd := range commands {
		_, err := h.session.ApplicationCommandCreate(h.session.State.User.ID, "", cmd)
		if err != nil {
			return fmt.Errorf("error creating '%s' command: %w", cmd.Name, err)
		}
	}

	h.log.Info("slash commands registered", "count", len(commands))
	return nil
}

func (h *BotHandler) OnReady(s *discordgo.Session, r *discordgo.Ready) {
	h.feed.setSelf(r.User.ID)
	h.log.Info("connected to discord", "user", r.User.Username, "guilds", len(r.Guilds))
}

// OnGuildCreate binds the feedback channel once its guild becomes available.
func (h *BotHandler) OnGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if h.feed.bind(g.Channels) {
		h.log.Info("feedback channel bound", "guild", g.Name, "channel", h.feed.Name(), "channel_id", h.feed.FeedbackChannelID())
	}
}

func (h *BotHandler) OnMessageReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	ev := reactionEvent(r)
	if err := h.core.RecordReaction(h.ctx, ev); err != nil {
		h.log.Warn("reaction not recorded", "message_id", r.MessageID, "user_id", r.UserID, "error", err)
	}
}

// OnMessageCreate turns replies to the bot's candidate messages into comments.
func (h *BotHandler) OnMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	ev, ok := replyEvent(m)
	if !ok {
		return
	}
	if err := h.core.RecordReaction(h.ctx, ev); err != nil {
		h.log.Warn("comment not recorded", "message_id", m.ID, "user_id", ev.ActorID, "error", err)
	}
}

func reactionEvent(r *discordgo.MessageReactionAdd) feedback.Event {
	ev := feedback.Event{
		ActorID:     r.UserID,
		Symbol:      r.Emoji.Name,
		ArtifactRef: r.MessageID,
		ChannelRef:  r.ChannelID,
	}
	if r.Member != nil {
		ev.ActorName = memberName(r.Member)
	}
	return ev
}

func replyEvent(m *discordgo.MessageCreate) (feedback.Event, bool) {
	if m.Author == nil || m.MessageReference == nil || m.MessageReference.MessageID == "" || m.Content == "" {
		return feedback.Event{}, false
	}
	ev := feedback.Event{
		ActorID:     m.Author.ID,
		ActorName:   m.Author.Username,
		Comment:     m.Content,
		ArtifactRef: m.MessageReference.MessageID,
		ChannelRef:  m.ChannelID,
	}
	if m.Member != nil && m.Member.Nick != "" {
		ev.ActorName = m.Member.Nick
	}
	return ev, true
}

func memberName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User != nil {
		return m.User.Username
	}
	return ""
}

// handleInteraction handles slash command interactions
func (h *BotHandler) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	// Acknowledge the interaction immediately
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		h.log.Error("failed to acknowledge interaction", "error", err)
		return
	}

	data := i.ApplicationCommandData()
	switch data.Name {
	case "train_ai":
		h.handleTrainInteraction(s, i, data)
	case "feedback_stats":
		h.handleStatsInteraction(s, i)
	case "export_training_data":
		h.handleExportInteraction(s, i, data)
	case "aggregate":
		h.handleAggregateInteraction(s, i, data)
	default:
		h.log.Warn("unknown command", "command", data.Name)
		h.replyText(s, i, unknownCommandReply(data.Name))
	}
}

func unknownCommandReply(name string) string {
	return fmt.Sprintf("❌ Unknown command `/%s`.", name)
}

func (h *BotHandler) reply(s *discordgo.Session, i *discordgo.InteractionCreate, edit *discordgo.WebhookEdit) {
	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		h.log.Error("failed to edit interaction response", "error", err)
	}
}

func (h *BotHandler) replyText(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	h.reply(s, i, &discordgo.WebhookEdit{Content: &content})
}

func (h *BotHandler) handleTrainInteraction(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	opts := optionMap(data.Options)
	var text, category string
	if o, ok := opts["prompt"]; ok {
		text = o.StringValue()
	}
	if o, ok := opts["category"]; ok {
		category = o.StringValue()
	}

	promptID, err := h.core.PostPrompt(h.ctx, text, category)
	if err != nil {
		h.log.Error("train_ai failed", "prompt_id", promptID, "error", err)
		h.replyText(s, i, "❌ "+describeError(err))
		return
	}

	h.replyText(s, i, fmt.Sprintf("✅ Prompt #%d posted in #%s: `%s`\nReact with 👍 or 👎 on the answers, or reply with a comment.",
		promptID, h.feed.Name(), truncate(text, promptSnippetSize)))
}

func (h *BotHandler) handleStatsInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	stats, err := h.core.Stats(h.ctx)
	if err != nil {
		h.log.Error("feedback_stats failed", "error", err)
		h.replyText(s, i, "❌ "+describeError(err))
		return
	}

	h.reply(s, i, &discordgo.WebhookEdit{Embeds: &[]*discordgo.MessageEmbed{statsEmbed(stats, time.Now())}})
}

func (h *BotHandler) handleExportInteraction(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	limit, err := exportLimit(optionMap(data.Options), h.exportLimit)
	if err != nil {
		h.replyText(s, i, "❌ The "+err.Error()+".")
		return
	}

	pairs, err := h.core.ExportTrainingData(h.ctx, limit)
	if err != nil {
		h.log.Error("export_training_data failed", "error", err)
		h.replyText(s, i, "❌ "+describeError(err))
		return
	}
	if len(pairs) == 0 {
		h.replyText(s, i, "📭 No training data to export yet.")
		return
	}

	var buf bytes.Buffer
	if err := training.WriteJSON(&buf, pairs); err != nil {
		h.log.Error("failed to encode export", "error", err)
		h.replyText(s, i, "❌ Could not encode training data.")
		return
	}

	content := fmt.Sprintf("📦 Exported %d training pairs.", len(pairs))
	h.reply(s, i, &discordgo.WebhookEdit{
		Content: &content,
		Files: []*discordgo.File{{
			Name:        exportFileName(time.Now()),
			ContentType: "application/json",
			Reader:      &buf,
		}},
	})
}

func (h *BotHandler) handleAggregateInteraction(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	o, ok := optionMap(data.Options)["prompt_id"]
	if !ok || o.IntValue() <= 0 {
		h.replyText(s, i, "❌ Please provide a valid prompt ID.")
		return
	}
	promptID := uint(o.IntValue())

	pair, err := h.core.Aggregate(h.ctx, promptID)
	if err != nil {
		h.log.Warn("aggregate failed", "prompt_id", promptID, "error", err)
		h.replyText(s, i, fmt.Sprintf("❌ Prompt #%d: %s", promptID, describeError(err)))
		return
	}

	h.replyText(s, i, fmt.Sprintf("🏆 Training pair #%d for prompt #%d (score %d, %d rejected)\n> %s",
		pair.ID, promptID, pair.Score, len(pair.RejectedTexts), truncate(pair.ChosenText, 300)))
}

// exportLimit reads the optional limit option. An explicit limit outside
// 1..maxExportLimit is rejected rather than exporting the whole table.
func exportLimit(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, def int) (int, error) {
	o, ok := opts["limit"]
	if !ok {
		return def, nil
	}
	limit := o.IntValue()
	if limit < 1 || limit > maxExportLimit {
		return 0, fmt.Errorf("limit must be between 1 and %d", maxExportLimit)
	}
	return int(limit), nil
}

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

// describeError maps pipeline errors to a short user-facing message.
func describeError(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrEmptyPrompt):
		return "the prompt is empty."
	case errors.Is(err, training.ErrInsufficientCandidates):
		return fmt.Sprintf("not enough candidates to rank (need at least %d).", training.MinCandidates)
	case errors.Is(err, training.ErrPromptExpired):
		return "the prompt expired without a training pair."
	case errors.Is(err, database.ErrNotFound):
		return "not found."
	case errors.Is(err, database.ErrStorageUnavailable):
		return "storage is unavailable, try again later."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "the bot is shutting down."
	default:
		return "something went wrong."
	}
}

func statsEmbed(stats *models.Stats, now time.Time) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:     "📊 Feedback collection stats",
		Color:     embedColor,
		Timestamp: now.UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Prompts", Value: fmt.Sprint(stats.Prompts), Inline: true},
			{Name: "Responses", Value: fmt.Sprint(stats.Responses), Inline: true},
			{Name: "Feedback", Value: fmt.Sprint(stats.Feedback), Inline: true},
			{Name: "Training pairs", Value: fmt.Sprint(stats.TrainingPairs), Inline: true},
		},
	}

	if len(stats.Categories) > 0 {
		var buf bytes.Buffer
		for _, c := range stats.Categories {
			fmt.Fprintf(&buf, "• %s: %d\n", c.Category, c.Count)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Categories",
			Value: truncate(buf.String(), fieldValueLimit),
		})
	}
	return embed
}

func exportFileName(now time.Time) string {
	return fmt.Sprintf("training_data_%s.json", now.UTC().Format("20060102_150405"))
}

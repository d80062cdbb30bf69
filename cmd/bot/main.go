// cmd/bot/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"discord-feedback-bot/internal/ai"
	"discord-feedback-bot/internal/bot"
	"discord-feedback-bot/internal/config"
	"discord-feedback-bot/internal/database"
	"discord-feedback-bot/internal/feedback"
	"discord-feedback-bot/internal/generator"
	"discord-feedback-bot/internal/logger"
	"discord-feedback-bot/internal/pipeline"
	"discord-feedback-bot/internal/retry"
	"discord-feedback-bot/internal/training"
	"discord-feedback-bot/internal/transport/web/router"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "feedback-bot",
	Short:         "Collect Discord feedback on AI answers and turn it into preference pairs",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd.Context())
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Discord bot, the prompt scheduler and the optional HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd, exportCmd, aggregateCmd, statsCmd)
}

func openDB(cfg config.Config) (*database.DB, error) {
	if cfg.Database.Driver == "sqlite" {
		return database.NewSQLiteDB(cfg.Database.SQLitePath)
	}
	return database.NewDB(
		cfg.Database.Host,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.Port,
	)
}

func runBot(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireBot(); err != nil {
		return err
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	aiService := ai.NewAIService(cfg.OpenAI.APIKey, cfg.OpenAI.MaxTokens)
	gen := generator.New(aiService, cfg.Generation.Models, cfg.Generation.Temperatures, log,
		generator.WithDelay(cfg.Generation.Delay))

	discord, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("creating discord session: %w", err)
	}

	// Cached messages let ResolveTag skip a REST call for recent candidates.
	discord.State.MaxMessageCount = 500

	feed := bot.NewFeedChannel(discord, cfg.Discord.FeedbackChannel, cfg.Discord.PostDelay, log)
	policy := retry.NewPolicy(cfg.Database.Retries, log)
	svc := pipeline.NewService(pipeline.ServiceConfig{
		Store:      db,
		Generator:  gen,
		Poster:     feed,
		Ingestor:   feedback.NewIngestor(db, feed, policy, log),
		Aggregator: training.NewAggregator(db, policy, log),
		Candidates: cfg.Generation.CandidatesPerPrompt,
		Retry:      policy,
		Log:        log,
	})

	botHandler := bot.NewBotHandler(ctx, svc, feed, cfg.Schedule.ExportLimit, log)
	botHandler.SetSession(discord)

	discord.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	if err := discord.Open(); err != nil {
		return fmt.Errorf("opening discord connection: %w", err)
	}
	defer discord.Close()

	if err := botHandler.RegisterCommands(); err != nil {
		log.Warn("slash commands unavailable", "error", err)
	}

	scheduler := pipeline.NewScheduler(pipeline.SchedulerConfig{
		Runner: svc,
		Store:  db,
		Period: cfg.Schedule.Interval,
		Window: cfg.Schedule.CollectionWindow,
		Retry:  policy,
		Log:    log,
	})

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		select {
		case <-feed.Bound():
		case <-grpCtx.Done():
			return nil
		}
		return scheduler.Run(grpCtx)
	})

	if cfg.Server.Addr != "" {
		srv := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: router.MakeRouter(svc, cfg.Schedule.ExportLimit, log),
			BaseContext: func(_ net.Listener) context.Context {
				return grpCtx
			},
		}
		grp.Go(func() error {
			log.Info("http server listening", "addr", cfg.Server.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		grp.Go(func() error {
			<-grpCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	log.Info("feedback bot is running",
		"feedback_channel", cfg.Discord.FeedbackChannel,
		"prompt_interval", cfg.Schedule.Interval,
		"collection_window", cfg.Schedule.CollectionWindow)

	err = grp.Wait()
	log.Info("shutting down feedback bot")
	return err
}

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"discord-feedback-bot/internal/config"
	"discord-feedback-bot/internal/logger"
	"discord-feedback-bot/internal/pipeline"
	"discord-feedback-bot/internal/retry"
	"discord-feedback-bot/internal/training"
)

// offline opens the store and builds a service with no Discord or OpenAI
// collaborators, for commands that only read or aggregate stored feedback.
func offline(fn func(cfg config.Config, svc *pipeline.Service) error) error {
	cfg, err := config.Load()
	if err != nil {
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

	policy := retry.NewPolicy(cfg.Database.Retries, log)
	svc := pipeline.NewService(pipeline.ServiceConfig{
		Store:      db,
		Aggregator: training.NewAggregator(db, policy, log),
		Candidates: cfg.Generation.CandidatesPerPrompt,
		Retry:      policy,
		Log:        log,
	})
	return fn(cfg, svc)
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export training pairs as JSON, most recent first",
	Long: `Export training pairs as JSON, most recent first.

Examples:
  feedback-bot export
  feedback-bot export --limit 500 --out training_data.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		out, _ := cmd.Flags().GetString("out")

		return offline(func(cfg config.Config, svc *pipeline.Service) error {
			if !cmd.Flags().Changed("limit") {
				limit = cfg.Schedule.ExportLimit
			}

			pairs, err := svc.ExportTrainingData(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("exporting training data: %w", err)
			}

			toFile := out != "" && out != "-"
			w := cmd.OutOrStdout()
			if toFile {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("creating %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}

			if err := training.WriteJSON(w, pairs); err != nil {
				return fmt.Errorf("writing training data: %w", err)
			}
			if toFile {
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d training pairs to %s\n", len(pairs), out)
			}
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().Int("limit", 0, "maximum number of pairs (default EXPORT_LIMIT)")
	exportCmd.Flags().String("out", "", "output file, stdout when empty or -")
}

// --- aggregate ---

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <prompt_id>",
	Short: "Derive the training pair for a prompt from its feedback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil || id == 0 {
			return fmt.Errorf("invalid prompt id %q", args[0])
		}

		return offline(func(_ config.Config, svc *pipeline.Service) error {
			pair, err := svc.Aggregate(cmd.Context(), uint(id))
			if err != nil {
				return fmt.Errorf("aggregating prompt %d: %w", id, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Training pair #%d for prompt #%d\n", pair.ID, pair.PromptID)
			fmt.Fprintf(cmd.OutOrStdout(), "  score:    %d\n", pair.Score)
			fmt.Fprintf(cmd.OutOrStdout(), "  chosen:   %s\n", pair.ChosenText)
			fmt.Fprintf(cmd.OutOrStdout(), "  rejected: %d\n", len(pair.RejectedTexts))
			return nil
		})
	},
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show feedback collection statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return offline(func(_ config.Config, svc *pipeline.Service) error {
			stats, err := svc.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading stats: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Prompts:        %d\n", stats.Prompts)
			fmt.Fprintf(w, "Responses:      %d\n", stats.Responses)
			fmt.Fprintf(w, "Feedback:       %d\n", stats.Feedback)
			fmt.Fprintf(w, "Training pairs: %d\n", stats.TrainingPairs)
			for _, c := range stats.Categories {
				fmt.Fprintf(w, "  %s: %d\n", c.Category, c.Count)
			}
			return nil
		})
	},
}

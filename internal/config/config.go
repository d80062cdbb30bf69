// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Discord    DiscordConfig
	OpenAI     OpenAIConfig
	Database   DatabaseConfig
	Generation GenerationConfig
	Schedule   ScheduleConfig
	Server     ServerConfig
	LogMode    string `env:"LOG_MODE" envDefault:"dev"`
}

type DiscordConfig struct {
	Token           string        `env:"DISCORD_TOKEN"`
	FeedbackChannel string        `env:"FEEDBACK_CHANNEL" envDefault:"ai-training"`
	PostDelay       time.Duration `env:"POST_DELAY" envDefault:"2s"`
}

type OpenAIConfig struct {
	APIKey    string `env:"OPENAI_API_KEY"`
	MaxTokens int    `env:"MAX_TOKENS" envDefault:"500"`
}

type DatabaseConfig struct {
	Driver     string `env:"DB_DRIVER" envDefault:"postgres"`
	Host       string `env:"DB_HOST"`
	User       string `env:"DB_USER"`
	Password   string `env:"DB_PASSWORD"`
	Name       string `env:"DB_NAME"`
	Port       int    `env:"DB_PORT" envDefault:"5432"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"feedback.db"`
	Retries    int    `env:"STORAGE_RETRIES" envDefault:"3"`
}

type GenerationConfig struct {
	CandidatesPerPrompt int           `env:"CANDIDATES_PER_PROMPT" envDefault:"3"`
	Models              []string      `env:"MODELS" envSeparator:"," envDefault:"gpt-3.5-turbo,gpt-4"`
	Temperatures        []float32     `env:"TEMPERATURES" envSeparator:"," envDefault:"0.3,0.7,1.0"`
	Delay               time.Duration `env:"GENERATION_DELAY" envDefault:"1s"`
}

type ScheduleConfig struct {
	Interval        time.Duration `env:"PROMPT_INTERVAL" envDefault:"6h"`
	CollectionHours int           `env:"FEEDBACK_COLLECTION_HOURS" envDefault:"24"`
	ExportLimit     int           `env:"EXPORT_LIMIT" envDefault:"100"`

	// CollectionWindow is CollectionHours as a duration. Zero disables
	// finalization.
	CollectionWindow time.Duration
}

type ServerConfig struct {
	Addr string `env:"HTTP_ADDR"`
}

// Load reads an optional .env file and then the process environment.
// Values already present in the environment win over the .env file.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadWith(env.Options{})
}

func loadWith(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.Generation.Models = compact(cfg.Generation.Models)
	cfg.Schedule.CollectionWindow = time.Duration(cfg.Schedule.CollectionHours) * time.Hour

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// compact trims list entries and drops empty ones.
func compact(items []string) []string {
	out := items[:0]
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want postgres or sqlite)", c.Database.Driver)
	}
	if c.Generation.CandidatesPerPrompt < 2 {
		return fmt.Errorf("CANDIDATES_PER_PROMPT must be at least 2, got %d", c.Generation.CandidatesPerPrompt)
	}
	if len(c.Generation.Models) == 0 {
		return fmt.Errorf("MODELS must name at least one model")
	}
	if len(c.Generation.Temperatures) == 0 {
		return fmt.Errorf("TEMPERATURES must contain at least one value")
	}
	if c.Schedule.Interval <= 0 {
		return fmt.Errorf("PROMPT_INTERVAL must be positive")
	}
	if c.Schedule.CollectionHours < 0 {
		return fmt.Errorf("FEEDBACK_COLLECTION_HOURS must not be negative")
	}
	if c.Database.Retries < 1 {
		return fmt.Errorf("STORAGE_RETRIES must be at least 1")
	}
	return nil
}

// RequireBot checks the settings only the long-running bot needs.
func (c Config) RequireBot() error {
	var missing []string
	if c.Discord.Token == "" {
		missing = append(missing, "DISCORD_TOKEN")
	}
	if c.OpenAI.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

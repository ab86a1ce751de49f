package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv string `env:"APP_ENV" default:"development"`
	Port   string `env:"PORT" default:"3012"`

	TwitchClientID     string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string `env:"TWITCH_CLIENT_SECRET"`

	// Optional: without callback and secret the subscription manager stays inert.
	EventSubCallback string `env:"EVENTSUB_CALLBACK"`
	EventSubSecret   string `env:"EVENTSUB_SECRET"`

	// Optional: without a token the Discord bot is disabled and alerts are
	// logged only.
	DiscordBotToken string `env:"DISCORD_BOT_TOKEN"`

	// Shared key protecting the mutating API routes.
	APIKey string `env:"API_KEY"`

	DataDir      string `env:"DATA_DIR" default:"./data"`
	ProfilesPath string `env:"PROFILES_PATH"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"TWITCH_CLIENT_ID":     cfg.TwitchClientID,
		"TWITCH_CLIENT_SECRET": cfg.TwitchClientSecret,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if cfg.EventSubCallback != "" && cfg.EventSubSecret == "" {
		return errors.New("EVENTSUB_SECRET is required when EVENTSUB_CALLBACK is set")
	}
	if cfg.EventSubSecret != "" && (len(cfg.EventSubSecret) < 10 || len(cfg.EventSubSecret) > 100) {
		return errors.New("EVENTSUB_SECRET must be between 10 and 100 characters")
	}

	return nil
}

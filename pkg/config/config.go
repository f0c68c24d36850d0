package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full console configuration, loaded from the environment.
type Config struct {
	// Backend connection.
	BaseURL   string        `env:"TOC_BASE_URL" envDefault:"http://localhost:8080"`
	CSRFToken string        `env:"TOC_CSRF_TOKEN"`
	TeamID    string        `env:"TOC_TEAM_ID"`
	Timeout   time.Duration `env:"TOC_HTTP_TIMEOUT" envDefault:"10s"`

	// Read retry policy. Writes are never retried.
	ReadRetries  int           `env:"TOC_READ_RETRIES" envDefault:"2"`
	RetryBackoff time.Duration `env:"TOC_RETRY_BACKOFF" envDefault:"250ms"`

	// Live channel timers.
	PollInterval   time.Duration `env:"TOC_POLL_INTERVAL" envDefault:"3s"`
	HealthInterval time.Duration `env:"TOC_HEALTH_INTERVAL" envDefault:"10s"`
	ReconnectMin   time.Duration `env:"TOC_RECONNECT_MIN" envDefault:"1s"`
	ReconnectMax   time.Duration `env:"TOC_RECONNECT_MAX" envDefault:"30s"`

	LogLevel string `env:"TOC_LOG_LEVEL" envDefault:"info"`

	Discord  DiscordConfig
	Slack    SlackConfig
	Telegram TelegramConfig
}

// DiscordConfig configures the Discord chat bridge. The bridge is enabled
// when a token is present.
type DiscordConfig struct {
	Token     string   `env:"TOC_DISCORD_TOKEN"`
	ChannelID string   `env:"TOC_DISCORD_CHANNEL_ID"`
	AllowFrom []string `env:"TOC_DISCORD_ALLOW_FROM" envSeparator:","`
}

type SlackConfig struct {
	BotToken  string   `env:"TOC_SLACK_BOT_TOKEN"`
	AppToken  string   `env:"TOC_SLACK_APP_TOKEN"`
	ChannelID string   `env:"TOC_SLACK_CHANNEL_ID"`
	AllowFrom []string `env:"TOC_SLACK_ALLOW_FROM" envSeparator:","`
}

type TelegramConfig struct {
	Token     string   `env:"TOC_TELEGRAM_TOKEN"`
	ChatID    int64    `env:"TOC_TELEGRAM_CHAT_ID"`
	AllowFrom []string `env:"TOC_TELEGRAM_ALLOW_FROM" envSeparator:","`
}

func (c DiscordConfig) Enabled() bool  { return c.Token != "" }
func (c SlackConfig) Enabled() bool    { return c.BotToken != "" && c.AppToken != "" }
func (c TelegramConfig) Enabled() bool { return c.Token != "" }

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.TeamID == "" {
		return nil, fmt.Errorf("TOC_TEAM_ID is required")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("TOC_POLL_INTERVAL must be positive")
	}
	return cfg, nil
}

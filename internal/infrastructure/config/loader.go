package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	DefaultIRCAddr           = "irc.chat.twitch.tv:6667"
	DefaultModerationURL     = "https://api.openai.com/v1/moderations"
	DefaultDatabasePath      = "data/berrybot.db"
	DefaultHTTPAddr          = ":8080"
	DefaultClassifierTimeout = 10 * time.Second
	DefaultReadBackoff       = 500 * time.Millisecond
	DefaultWriteTimeout      = 5 * time.Second
	DefaultReconnectMax      = 3
	DefaultReconnectDelay    = 2 * time.Second
)

type Config struct {
	TwitchUsername string
	TwitchToken    string
	TwitchChannels []string
	TwitchIRCAddr  string

	OpenAIAPIKey        string
	OpenAIModerationURL string
	ClassifierTimeout   time.Duration

	DatabasePath string
	HTTPAddr     string
	AdminToken   string

	ReadBackoff    time.Duration
	WriteTimeout   time.Duration
	ReconnectMax   int
	ReconnectDelay time.Duration

	LogLevel     string
	Env          string
	OTLPEndpoint string
}

// Load reads .env if present, then the environment. Malformed numbers and
// durations are errors; missing values fall back to defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		TwitchUsername:      strings.TrimSpace(os.Getenv("TWITCH_BOT_USERNAME")),
		TwitchToken:         strings.TrimSpace(os.Getenv("TWITCH_BOT_ACCESS_TOKEN")),
		TwitchChannels:      ParseChannels(os.Getenv("TWITCH_BOT_CHANNELS")),
		TwitchIRCAddr:       getEnv("TWITCH_IRC_ADDR", DefaultIRCAddr),
		OpenAIAPIKey:        strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModerationURL: getEnv("OPENAI_MODERATION_URL", DefaultModerationURL),
		DatabasePath:        getEnv("DATABASE_PATH", DefaultDatabasePath),
		HTTPAddr:            getEnv("HTTP_ADDR", DefaultHTTPAddr),
		AdminToken:          strings.TrimSpace(os.Getenv("ADMIN_TOKEN")),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Env:                 getEnv("APP_ENV", "production"),
		OTLPEndpoint:        strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
	}

	var err error
	if cfg.ClassifierTimeout, err = getDuration("CLASSIFIER_TIMEOUT", DefaultClassifierTimeout); err != nil {
		return nil, err
	}
	if cfg.ReadBackoff, err = getDuration("READ_BACKOFF", DefaultReadBackoff); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout, err = getDuration("WRITE_TIMEOUT", DefaultWriteTimeout); err != nil {
		return nil, err
	}
	if cfg.ReconnectDelay, err = getDuration("RECONNECT_DELAY", DefaultReconnectDelay); err != nil {
		return nil, err
	}
	if cfg.ReconnectMax, err = getInt("RECONNECT_MAX", DefaultReconnectMax); err != nil {
		return nil, err
	}
	if cfg.ReconnectMax < 0 {
		return nil, fmt.Errorf("config: RECONNECT_MAX must not be negative")
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// HasBotCredentials reports whether the bot can log in to chat.
func (c *Config) HasBotCredentials() bool {
	return c.TwitchUsername != "" && c.TwitchToken != ""
}

// Logger builds the process logger: console output in development, JSON
// otherwise.
func (c *Config) Logger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	if c.IsDevelopment() {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// ParseChannels splits a comma separated channel list, normalizing and
// de-duplicating the names.
func ParseChannels(raw string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		channel := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(part), "#"))
		if channel == "" {
			continue
		}
		if _, ok := seen[channel]; ok {
			continue
		}
		seen[channel] = struct{}{}
		out = append(out, channel)
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %s", key, raw)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

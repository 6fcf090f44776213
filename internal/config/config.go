package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pauljones0/feed-relay/internal/validator"
)

type Config struct {
	FeedURLs []string `validate:"required,min=1,dive,url"`
	Channels []string `validate:"required,min=1,dive,required"`

	Transport      string `validate:"oneof=mirai telegram"`
	MiraiAPIURL    string `validate:"required_if=Transport mirai"`
	MiraiVerifyKey string
	MiraiQQ        int64  `validate:"required_if=Transport mirai"`
	TelegramToken  string `validate:"required_if=Transport telegram"`

	Translator      string `validate:"oneof=deepseek gemini none"`
	DeepSeekAPIKey  string
	DeepSeekBaseURL string `validate:"omitempty,url"`
	DeepSeekModel   string
	GeminiAPIKey    string
	GeminiModel     string

	StateBackend string `validate:"oneof=json badger firestore"`
	StateDir     string `validate:"required"`
	ProjectID    string `validate:"required_if=StateBackend firestore"`

	AvatarDir   string `validate:"required"`
	DownloadDir string `validate:"required"`
	OutputDir   string `validate:"required"`

	PollInterval      time.Duration `validate:"min=1s"`
	Port              string
	DialectConfigPath string
	LogLevel          string `validate:"oneof=debug info warn error"`
}

func Load() (*Config, error) {
	cfg := &Config{
		FeedURLs:          splitList(os.Getenv("FEED_URLS")),
		Channels:          splitList(os.Getenv("TARGET_CHANNELS")),
		Transport:         strings.ToLower(getenv("TRANSPORT", "mirai")),
		MiraiAPIURL:       os.Getenv("MIRAI_API_URL"),
		MiraiVerifyKey:    os.Getenv("MIRAI_VERIFY_KEY"),
		TelegramToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		Translator:        strings.ToLower(getenv("TRANSLATOR", "deepseek")),
		DeepSeekAPIKey:    os.Getenv("DEEPSEEK_API_KEY"),
		DeepSeekBaseURL:   getenv("DEEPSEEK_BASE_URL", "https://api.deepseek.com"),
		DeepSeekModel:     getenv("DEEPSEEK_MODEL", "deepseek-chat"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getenv("GEMINI_MODEL", "gemini-2.0-flash"),
		StateBackend:      strings.ToLower(getenv("STATE_BACKEND", "json")),
		StateDir:          getenv("STATE_DIR", "./state"),
		ProjectID:         os.Getenv("GOOGLE_CLOUD_PROJECT"),
		AvatarDir:         getenv("AVATAR_DIR", "./avatar"),
		DownloadDir:       getenv("DOWNLOAD_DIR", "./downloads"),
		OutputDir:         getenv("OUTPUT_DIR", "./output"),
		Port:              getenv("PORT", "8080"),
		DialectConfigPath: os.Getenv("DIALECT_CONFIG_PATH"),
		LogLevel:          strings.ToLower(getenv("LOG_LEVEL", "info")),
	}

	if v := os.Getenv("MIRAI_QQ_ID"); v != "" {
		qq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MIRAI_QQ_ID %q: %w", v, err)
		}
		cfg.MiraiQQ = qq
	}

	pollIntervalStr := getenv("POLL_INTERVAL", "1m")
	pollInterval, err := time.ParseDuration(pollIntervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL %q: %w", pollIntervalStr, err)
	}
	cfg.PollInterval = pollInterval

	switch {
	case cfg.Translator == "deepseek" && cfg.DeepSeekAPIKey == "":
		slog.Warn("DEEPSEEK_API_KEY not set, translation will be skipped")
		cfg.Translator = "none"
	case cfg.Translator == "gemini" && cfg.GeminiAPIKey == "":
		slog.Warn("GEMINI_API_KEY not set, translation will be skipped")
		cfg.Translator = "none"
	}

	if err := validator.New().ValidateStruct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps LogLevel onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

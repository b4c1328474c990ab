package app

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	// .env in the working directory is loaded before LoadConfig runs.
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string

	MongoURI      string
	MongoDatabase string
	RedisURL      string

	TMDBAPIKey        string
	TMDBBaseURL       string
	TMDBLanguage      string
	TMDBCacheTTL      time.Duration
	TMDBRatePerSecond float64
	TMDBBurst         int

	SourceTimeout time.Duration
	CacheTTL      time.Duration
	CacheDisabled bool

	AdminAPIKey string

	TelegramBotToken string
	TelegramChatID   int64
	RecsDailyTime    string
	RecsTimezone     string
	RecsTimeout      time.Duration
	PublicSiteURL    string

	OTelEndpoint    string
	OTelSampleRatio float64
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "text")),

		MongoURI:      getEnv("MONGO_URI", getEnv("MONGODB_URI", "mongodb://localhost:27017")),
		MongoDatabase: getEnv("MONGO_DB", "cineamore"),
		RedisURL:      getEnv("REDIS_URL", ""),

		TMDBAPIKey:        strings.TrimSpace(os.Getenv("TMDB_API_KEY")),
		TMDBBaseURL:       getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDBLanguage:      getEnv("TMDB_LANGUAGE", "en-US"),
		TMDBCacheTTL:      time.Duration(getEnvInt("TMDB_CACHE_TTL_DAYS", 7)) * 24 * time.Hour,
		TMDBRatePerSecond: getEnvFloat("TMDB_RATE_PER_SECOND", 4),
		TMDBBurst:         getEnvInt("TMDB_RATE_BURST", 10),

		SourceTimeout: time.Duration(getEnvInt("SEARCH_SOURCE_TIMEOUT_SECONDS", 8)) * time.Second,
		CacheTTL:      time.Duration(getEnvInt("SEARCH_CACHE_TTL_MINUTES", 10)) * time.Minute,
		CacheDisabled: getEnvBool("SEARCH_CACHE_DISABLED", false),

		AdminAPIKey: strings.TrimSpace(os.Getenv("ADMIN_API_KEY")),

		TelegramBotToken: strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		TelegramChatID:   getEnvInt64("TELEGRAM_CHAT_ID", 0),
		RecsDailyTime:    getEnv("RECS_DAILY_TIME", "09:00"),
		RecsTimezone:     getEnv("RECS_TIMEZONE", "UTC"),
		RecsTimeout:      time.Duration(getEnvInt("RECS_TIMEOUT_SECONDS", 120)) * time.Second,
		PublicSiteURL:    getEnv("PUBLIC_SITE_URL", "https://cineamore.vercel.app"),

		OTelEndpoint:    strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTelSampleRatio: getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", 1),
	}
}

// TelegramEnabled reports whether both the bot token and the target chat are
// set.
func (c Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

// NewLogger builds the process logger from LOG_FORMAT and LOG_LEVEL.
func (c Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// getEnvInt64 accepts negative values; Telegram group chat ids are negative.
func getEnvInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port            string        `long:"port" env:"PORT" default:"8080" description:"Admin HTTP server port"`
	Env             string        `long:"env" env:"APP_ENV" default:"development" description:"Deployment environment"`
	ShutdownTimeout time.Duration `long:"shutdown-timeout" env:"SHUTDOWN_TIMEOUT" default:"15s" description:"Graceful shutdown timeout"`
	AdminAPIKey     string        `long:"admin-api-key" env:"ADMIN_API_KEY" description:"API key for the admin endpoints"`
	SeedFile        string        `long:"seed-file" env:"SEED_FILE" description:"YAML file with channels and sources to sync at startup"`

	// Telegram
	BotToken       string `long:"bot-token" env:"BOT_TOKEN" description:"Telegram bot token" validate:"required"`
	TelegramAPIURL string `long:"telegram-api-url" env:"TELEGRAM_API_URL" default:"https://api.telegram.org" description:"Telegram Bot API base URL" validate:"required,url"`

	// Database
	DBDriver    string `long:"db-driver" env:"DB_DRIVER" default:"sqlite" description:"Database driver (sqlite or postgres)" validate:"oneof=sqlite postgres"`
	DatabaseURL string `long:"database-url" env:"DATABASE_URL" default:"./data/feedcaster.db" description:"Database DSN or sqlite file path" validate:"required"`

	// Redis configuration, optional
	RedisURL    string        `long:"redis-url" env:"REDIS_URL" description:"Redis URL for the fingerprint cache"`
	RedisPrefix string        `long:"redis-prefix" env:"REDIS_PREFIX" default:"feedcaster:" description:"Key prefix for Redis"`
	CacheTTL    time.Duration `long:"cache-ttl" env:"CACHE_TTL" default:"720h" description:"Fingerprint cache TTL"`

	// AI Configuration
	AIProvider       string        `long:"ai-provider" env:"AI_PROVIDER" default:"openai" description:"Language model provider (openai or gemini)" validate:"oneof=openai gemini"`
	AIApiKey         string        `long:"ai-api-key" env:"AI_API_KEY" description:"Language model API key"`
	AIBaseURL        string        `long:"ai-base-url" env:"AI_BASE_URL" description:"Override for the provider base URL" validate:"omitempty,url"`
	AIDefaultModel   string        `long:"ai-default-model" env:"AI_DEFAULT_MODEL" default:"llama-3.3-70b-versatile" description:"Model used when a channel has none or an unknown one" validate:"required"`
	AIModels         []string      `long:"ai-models" env:"AI_MODELS" env-delim:"," description:"Allow-list of model identifiers"`
	AITimeout        time.Duration `long:"ai-timeout" env:"AI_TIMEOUT" default:"20s" description:"Timeout for one model call" validate:"gt=0"`
	AIMaxTokens      int           `long:"ai-max-tokens" env:"AI_MAX_TOKENS" default:"800" description:"Completion token limit"`
	AITargetLanguage string        `long:"ai-target-language" env:"AI_TARGET_LANGUAGE" default:"ru" description:"Language of published posts"`

	// Scheduling
	IngestInterval    time.Duration `long:"ingest-interval" env:"INGEST_INTERVAL" default:"1800s" description:"Interval between ingestion cycles" validate:"gt=0"`
	PublishInterval   time.Duration `long:"publish-interval" env:"PUBLISH_INTERVAL" default:"60s" description:"Interval between publish cycles" validate:"gt=0"`
	PublishPacing     time.Duration `long:"publish-pacing" env:"PUBLISH_PACING" default:"3s" description:"Pause between consecutive publications" validate:"gte=0"`
	SourceConcurrency int           `long:"source-concurrency" env:"SOURCE_CONCURRENCY" default:"4" description:"Sources processed in parallel" validate:"gte=1"`
	MinLeadTime       time.Duration `long:"min-lead-time" env:"MIN_LEAD_TIME" default:"5m" description:"Lead time for a channel's first scheduled post" validate:"gte=0"`
	EntriesPerSource  int           `long:"entries-per-source" env:"ENTRIES_PER_SOURCE" default:"2" description:"Fresh entries taken per source and cycle" validate:"gte=1"`

	// Media
	PlaceholderImageURL string        `long:"placeholder-image-url" env:"PLACEHOLDER_IMAGE_URL" description:"Image used when no media URL is usable" validate:"omitempty,url"`
	MediaMaxBytes       int64         `long:"media-max-bytes" env:"MEDIA_MAX_BYTES" default:"8388608" description:"Largest media download accepted" validate:"gt=0"`
	MediaTimeout        time.Duration `long:"media-timeout" env:"MEDIA_TIMEOUT" default:"10s" description:"Timeout for one media download" validate:"gt=0"`

	// Feeds
	FeedTimeout        time.Duration `long:"feed-timeout" env:"FEED_TIMEOUT" default:"15s" description:"Timeout for one feed fetch" validate:"gt=0"`
	FeedMaxBytes       int           `long:"feed-max-bytes" env:"FEED_MAX_BYTES" default:"10485760" description:"Largest feed document or page accepted" validate:"gt=0"`
	FeedExtractArticle bool          `long:"feed-extract-article" env:"FEED_EXTRACT_ARTICLE" description:"Fetch the article page when the feed text is short"`
	UserAgent          string        `long:"user-agent" env:"USER_AGENT" default:"feedcaster/1.0" description:"User agent for outgoing requests"`

	// CloudFlare R2 Configuration, optional media archive
	R2Endpoint  string `long:"r2-endpoint" env:"R2_ENDPOINT" description:"S3-compatible endpoint" validate:"omitempty,url"`
	R2AccessKey string `long:"r2-access-key" env:"R2_ACCESS_KEY" description:"S3 access key"`
	R2SecretKey string `long:"r2-secret-key" env:"R2_SECRET_ACCESS_KEY" description:"S3 secret key"`
	R2Bucket    string `long:"r2-bucket" env:"R2_BUCKET" description:"Bucket for archived media"`
	R2Region    string `long:"r2-region" env:"R2_REGION" default:"auto" description:"S3 region"`

	// Logging
	LogLevel  string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"Log level"`
	LogFile   string `long:"log-file" env:"LOG_FILE" description:"Log file path, stdout when empty"`
	LogPretty bool   `long:"log-pretty" env:"LOG_PRETTY" description:"Human readable console logs"`
}

var validate = validator.New()

// Load loads configuration from the environment and validates it.
// A .env file in the working directory is read first if it exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	parser := flags.NewParser(&cfg, flags.IgnoreUnknown)
	if _, err := parser.ParseArgs(nil); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.R2Bucket != "" && (c.R2AccessKey == "" || c.R2SecretKey == "") {
		return errors.New("invalid configuration: R2_BUCKET requires R2_ACCESS_KEY and R2_SECRET_ACCESS_KEY")
	}
	return nil
}

// ArchiveEnabled reports whether published media should be copied to object storage.
func (c *Config) ArchiveEnabled() bool {
	return c.R2Bucket != ""
}

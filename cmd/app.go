package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bilgisen/feedcaster/internal/ai"
	"github.com/bilgisen/feedcaster/internal/cache"
	"github.com/bilgisen/feedcaster/internal/config"
	"github.com/bilgisen/feedcaster/internal/feed"
	"github.com/bilgisen/feedcaster/internal/logger"
	"github.com/bilgisen/feedcaster/internal/publisher"
	"github.com/bilgisen/feedcaster/internal/scheduler"
	"github.com/bilgisen/feedcaster/internal/service"
	"github.com/bilgisen/feedcaster/internal/storage"
	"github.com/bilgisen/feedcaster/internal/utils"
)

const telegramTimeout = 30 * time.Second

// application owns every long-lived resource of the process.
type application struct {
	cfg       *config.Config
	transport *http.Transport
	store     *storage.Store
	cache     cache.Cache
	scheduler *scheduler.Scheduler
	service   *service.Service
}

func build(ctx context.Context, cfg *config.Config) (*application, error) {
	log := logger.Get()
	a := &application{cfg: cfg, transport: utils.NewTransport()}

	store, err := storage.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.store = store

	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisPrefix, cfg.CacheTTL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize Redis client: %w", err)
		}
		a.cache = rc
	} else {
		log.Info().Msg("REDIS_URL not set, using in-memory fingerprint cache")
		a.cache = cache.NewMemoryCache(cfg.CacheTTL)
	}

	reader := feed.NewReader(
		utils.NewRestyClient(a.transport, cfg.FeedTimeout, cfg.UserAgent),
		feed.WithArticleExtraction(cfg.FeedExtractArticle),
		feed.WithMaxFeedBytes(cfg.FeedMaxBytes),
		feed.WithLogger(logger.Component("feed")),
	)

	transformer := ai.NewTransformer(newProvider(cfg, utils.NewRestyClient(a.transport, cfg.AITimeout, cfg.UserAgent)), ai.Options{
		DefaultModel:   cfg.AIDefaultModel,
		Models:         cfg.AIModels,
		Timeout:        cfg.AITimeout,
		MaxTokens:      cfg.AIMaxTokens,
		TargetLanguage: cfg.AITargetLanguage,
	}, logger.Component("ai"))

	sink, err := a.newSink(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.scheduler = scheduler.New(store, reader, transformer, sink, scheduler.Config{
		IngestInterval:    cfg.IngestInterval,
		PublishInterval:   cfg.PublishInterval,
		PublishPacing:     cfg.PublishPacing,
		MinLeadTime:       cfg.MinLeadTime,
		SourceConcurrency: cfg.SourceConcurrency,
		EntriesPerSource:  cfg.EntriesPerSource,
	},
		scheduler.WithCache(a.cache),
		scheduler.WithLogger(logger.Component("scheduler")),
	)

	a.service = service.New(store, reader, transformer, sink,
		service.WithCache(a.cache),
		service.WithLogger(logger.Component("service")),
	)
	return a, nil
}

func newProvider(cfg *config.Config, client *resty.Client) ai.Provider {
	if cfg.AIProvider == "gemini" {
		return ai.NewGeminiClient(client, cfg.AIApiKey, cfg.AIBaseURL, ai.DefaultRetryPolicy)
	}
	return ai.NewOpenAIClient(client, cfg.AIApiKey, cfg.AIBaseURL, ai.DefaultRetryPolicy)
}

func (a *application) newSink(ctx context.Context) (*publisher.Sink, error) {
	cfg := a.cfg
	tg := publisher.NewTelegramClient(
		utils.NewRestyClient(a.transport, telegramTimeout, cfg.UserAgent),
		cfg.TelegramAPIURL, cfg.BotToken,
	)
	media := publisher.NewMediaFetcher(
		utils.NewRestyClient(a.transport, cfg.MediaTimeout, cfg.UserAgent),
		cfg.MediaMaxBytes,
	)

	opts := []publisher.SinkOption{
		publisher.WithPlaceholder(cfg.PlaceholderImageURL),
		publisher.WithLogger(logger.Component("publisher")),
	}
	if cfg.ArchiveEnabled() {
		archiver, err := publisher.NewS3Archiver(ctx, publisher.ArchiveConfig{
			Endpoint:  cfg.R2Endpoint,
			Region:    cfg.R2Region,
			AccessKey: cfg.R2AccessKey,
			SecretKey: cfg.R2SecretKey,
			Bucket:    cfg.R2Bucket,
		}, &http.Client{Transport: a.transport})
		if err != nil {
			return nil, err
		}
		opts = append(opts, publisher.WithArchiver(archiver))
	}
	return publisher.NewSink(tg, media, opts...), nil
}

func (a *application) syncSeed(ctx context.Context) error {
	if a.cfg.SeedFile == "" {
		return nil
	}
	seed, err := config.LoadSeed(a.cfg.SeedFile)
	if err != nil {
		return err
	}
	_, err = a.service.SyncSeed(ctx, seed)
	return err
}

// Close releases resources in reverse order of acquisition. The scheduler
// must already be stopped.
func (a *application) Close() {
	log := logger.Get()
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing cache")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}
	a.transport.CloseIdleConnections()
}

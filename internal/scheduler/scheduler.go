package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/bilgisen/feedcaster/internal/cache"
	"github.com/bilgisen/feedcaster/internal/feed"
	"github.com/bilgisen/feedcaster/internal/models"
)

// ErrCycleRunning is returned when a cycle is triggered while the previous
// run of the same cycle is still in flight.
var ErrCycleRunning = errors.New("scheduler: cycle already running")

const defaultPublishBatch = 100

// EntrySource fetches feed entries newer than a cursor.
type EntrySource interface {
	Fetch(ctx context.Context, feedURL, cursor string) feed.FetchResult
}

// ContentTransformer turns an entry into channel-ready content. It never fails.
type ContentTransformer interface {
	Transform(ctx context.Context, entry models.FeedEntry, settings models.ChannelSettings) string
}

// Publisher delivers content to a channel and returns the message id.
type Publisher interface {
	Publish(ctx context.Context, chatID, content string, mediaURLs []string) (int64, error)
}

// Store is the persistence the cycles need.
type Store interface {
	GetChannel(ctx context.Context, id int64) (*models.Channel, error)
	ListActiveSources(ctx context.Context) ([]models.Source, error)
	RecordCheckSuccess(ctx context.Context, id int64, cursor string, at time.Time) error
	RecordCheckFailure(ctx context.Context, id int64, at time.Time) error
	PostExists(ctx context.Context, channelID int64, fingerprint string) (bool, error)
	LastScheduledAt(ctx context.Context, channelID int64) (time.Time, bool, error)
	CreatePost(ctx context.Context, p *models.Post) error
	DuePosts(ctx context.Context, now time.Time, limit int) ([]models.Post, error)
	Transition(ctx context.Context, id int64, from, to models.PostStatus, messageID *int64, publishedAt *time.Time) error
}

// Config controls cycle timing.
type Config struct {
	IngestInterval    time.Duration
	PublishInterval   time.Duration
	PublishPacing     time.Duration
	MinLeadTime       time.Duration
	SourceConcurrency int
	EntriesPerSource  int
	PublishBatch      int
}

func (c Config) withDefaults() Config {
	if c.IngestInterval <= 0 {
		c.IngestInterval = 30 * time.Minute
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = time.Minute
	}
	if c.SourceConcurrency < 1 {
		c.SourceConcurrency = 1
	}
	if c.EntriesPerSource < 1 {
		c.EntriesPerSource = 2
	}
	if c.PublishBatch < 1 {
		c.PublishBatch = defaultPublishBatch
	}
	return c
}

// Scheduler runs the ingestion and publish cycles on their own tickers.
type Scheduler struct {
	store       Store
	reader      EntrySource
	transformer ContentTransformer
	sink        Publisher
	seen        cache.Cache
	cfg         Config
	logger      zerolog.Logger
	now         func() time.Time

	ingestMu  sync.Mutex
	publishMu sync.Mutex
	chains    channelLocks
	pacer     *rate.Limiter

	statsMu     sync.RWMutex
	lastIngest  IngestStats
	lastPublish PublishStats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Scheduler)

// WithCache puts a fingerprint cache in front of the store duplicate check.
func WithCache(c cache.Cache) Option {
	return func(s *Scheduler) { s.seen = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(store Store, reader EntrySource, transformer ContentTransformer, sink Publisher, cfg Config, opts ...Option) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		store:       store,
		reader:      reader,
		transformer: transformer,
		sink:        sink,
		cfg:         cfg,
		logger:      zerolog.Nop(),
		now:         time.Now,
		pacer:       newPacer(cfg.PublishPacing),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newPacer(every time.Duration) *rate.Limiter {
	if every <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(every), 1)
}

// Start launches both cycles. Each runs once immediately and then on its
// interval until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info().
		Dur("ingest_interval", s.cfg.IngestInterval).
		Dur("publish_interval", s.cfg.PublishInterval).
		Msg("Starting scheduler")

	s.wg.Add(2)
	go s.loop(ctx, "ingest", s.cfg.IngestInterval, func(ctx context.Context) error {
		_, err := s.RunIngest(ctx)
		return err
	})
	go s.loop(ctx, "publish", s.cfg.PublishInterval, func(ctx context.Context) error {
		_, err := s.RunPublish(ctx)
		return err
	})
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, run func(context.Context) error) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			if errors.Is(err, ErrCycleRunning) {
				s.logger.Debug().Str("cycle", name).Msg("Previous run still in flight, skipping tick")
			} else {
				s.logger.Error().Err(err).Str("cycle", name).Msg("Cycle failed")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels both cycles and waits for them to return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the outcome of the most recent run of each cycle.
func (s *Scheduler) Stats() (IngestStats, PublishStats) {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.lastIngest, s.lastPublish
}

// channelLocks hands out one mutex per channel.
type channelLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func (l *channelLocks) lock(channelID int64) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[int64]*sync.Mutex)
	}
	m, ok := l.locks[channelID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[channelID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

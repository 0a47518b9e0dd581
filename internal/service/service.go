package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/bilgisen/feedcaster/internal/cache"
	"github.com/bilgisen/feedcaster/internal/feed"
	"github.com/bilgisen/feedcaster/internal/models"
)

var (
	// ErrNoSources is returned when a manual post is requested for a channel without active sources.
	ErrNoSources = errors.New("service: channel has no active sources")
	// ErrNoEntries is returned when none of the channel's sources offered a fresh entry.
	ErrNoEntries = errors.New("service: no fresh entries")
	// ErrNotPublished is returned when a published-post action targets a post that was never delivered.
	ErrNotPublished = errors.New("service: post is not published")
	// ErrInvalidInput wraps validation failures.
	ErrInvalidInput = errors.New("service: invalid input")
)

// manualEntriesPerSource bounds how many entries each source contributes to a manual post.
const manualEntriesPerSource = 3

type Store interface {
	CreateChannel(ctx context.Context, ch *models.Channel) error
	GetChannel(ctx context.Context, id int64) (*models.Channel, error)
	GetChannelByExternalID(ctx context.Context, externalID string) (*models.Channel, error)
	ListChannels(ctx context.Context) ([]models.Channel, error)
	UpdateChannel(ctx context.Context, ch *models.Channel) error
	SetChannelActive(ctx context.Context, id int64, active bool) error
	DeleteChannel(ctx context.Context, id int64) error

	AddSource(ctx context.Context, src *models.Source) error
	GetSource(ctx context.Context, id int64) (*models.Source, error)
	ListSources(ctx context.Context, channelID int64) ([]models.Source, error)
	DeleteSource(ctx context.Context, id int64) error

	CreatePost(ctx context.Context, p *models.Post) error
	GetPost(ctx context.Context, id int64) (*models.Post, error)
	PostExists(ctx context.Context, channelID int64, fingerprint string) (bool, error)
	ChannelQueue(ctx context.Context, channelID int64) ([]models.Post, error)
	ModerationQueue(ctx context.Context, channelID int64) ([]models.Post, error)
	Transition(ctx context.Context, id int64, from, to models.PostStatus, messageID *int64, publishedAt *time.Time) error
	UpdateProcessed(ctx context.Context, id int64, processed string) error
	DeletePost(ctx context.Context, id int64) error
	ClearQueue(ctx context.Context, channelID int64) (int64, error)
	StatusCounts(ctx context.Context) (map[models.PostStatus]int, error)
}

type Reader interface {
	Fetch(ctx context.Context, feedURL, cursor string) feed.FetchResult
	Discover(ctx context.Context, siteURL string) ([]feed.DiscoveredFeed, error)
}

type Transformer interface {
	Transform(ctx context.Context, entry models.FeedEntry, settings models.ChannelSettings) string
}

type Sink interface {
	Publish(ctx context.Context, chatID, content string, mediaURLs []string) (int64, error)
	Edit(ctx context.Context, chatID string, messageID int64, content string) bool
	Delete(ctx context.Context, chatID string, messageID int64) bool
}

// Service exposes the channel, source and post operations used by the
// admin API and the CLI.
type Service struct {
	store       Store
	reader      Reader
	transformer Transformer
	sink        Sink
	seen        cache.Cache
	validate    *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time
	intn        func(n int) int
	posts       postLocks
}

type Option func(*Service)

func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.seen = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRand replaces the random choice among manual post candidates.
func WithRand(intn func(n int) int) Option {
	return func(s *Service) { s.intn = intn }
}

func New(store Store, reader Reader, transformer Transformer, sink Sink, opts ...Option) *Service {
	s := &Service{
		store:       store,
		reader:      reader,
		transformer: transformer,
		sink:        sink,
		validate:    validator.New(),
		logger:      zerolog.Nop(),
		now:         time.Now,
		intn:        rand.IntN,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// postLocks serializes moderation actions on the same post. Entries are
// dropped once no caller holds or waits for them.
type postLocks struct {
	mu    sync.Mutex
	locks map[int64]*postLock
}

type postLock struct {
	sync.Mutex
	refs int
}

func (l *postLocks) lock(postID int64) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[int64]*postLock)
	}
	m, ok := l.locks[postID]
	if !ok {
		m = &postLock{}
		l.locks[postID] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, postID)
		}
		l.mu.Unlock()
	}
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return errors.Join(ErrInvalidInput, err)
	}
	return nil
}

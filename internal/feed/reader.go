package feed

import (
	"bytes"
	"context"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/go-shiori/go-readability"
	"github.com/rs/zerolog"

	"github.com/bilgisen/feedcaster/internal/models"
	"github.com/bilgisen/feedcaster/internal/utils"
)

const (
	// MaxItemsPerFetch bounds how many raw items are considered per call.
	MaxItemsPerFetch = 10

	minExtractRunes = 200
)

// FetchResult is the outcome of one Reader.Fetch call.
//
// Entries holds the new publishable entries, newest first. Newest is the guid
// of the newest raw item in the feed, publishable or not. Err is the health
// signal for the source: it is set when the feed could not be fetched or
// parsed, in which case Entries is empty. An empty feed is not an error.
type FetchResult struct {
	Entries []models.FeedEntry
	Newest  string
	Err     error
}

// Reader fetches a feed and returns the entries newer than a cursor.
type Reader struct {
	fetcher        *Fetcher
	parser         *Parser
	extractArticle bool
	logger         zerolog.Logger
}

type ReaderOption func(*Reader)

// WithArticleExtraction makes the reader fetch the linked article and extract
// its text when the feed only carries a short summary.
func WithArticleExtraction(enabled bool) ReaderOption {
	return func(r *Reader) { r.extractArticle = enabled }
}

// WithRetry sets how often a failed feed request is retried and the wait
// between attempts.
func WithRetry(count int, wait time.Duration) ReaderOption {
	return func(r *Reader) {
		r.fetcher.client.
			SetRetryCount(count).
			SetRetryWaitTime(wait).
			SetRetryMaxWaitTime(wait)
	}
}

// WithMaxFeedBytes caps the size of fetched feeds and pages.
func WithMaxFeedBytes(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.fetcher.maxBytes = n
		}
	}
}

func WithLogger(l zerolog.Logger) ReaderOption {
	return func(r *Reader) { r.logger = l }
}

func NewReader(client *resty.Client, opts ...ReaderOption) *Reader {
	r := &Reader{
		fetcher: NewFetcher(client),
		parser:  NewParser(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch reads the feed at feedURL. It walks at most MaxItemsPerFetch items,
// newest first, and stops at the item whose guid equals cursor. Items
// without an image are dropped.
func (r *Reader) Fetch(ctx context.Context, feedURL, cursor string) FetchResult {
	data, err := r.fetcher.FetchFeed(ctx, feedURL)
	if err != nil {
		return FetchResult{Err: err}
	}

	feed, err := r.parser.Parse(data)
	if err != nil {
		return FetchResult{Err: err}
	}

	var result FetchResult
	for i, item := range feed.Items {
		if i >= MaxItemsPerFetch {
			break
		}
		if item == nil {
			continue
		}

		guid := itemGUID(item)
		if result.Newest == "" {
			result.Newest = guid
		}
		if cursor != "" && guid == cursor {
			break
		}
		if guid == "" {
			continue
		}

		entry := r.parser.NormalizeItem(item)
		if !entry.HasMedia() {
			r.logger.Debug().Str("feed", feedURL).Str("guid", guid).Msg("Dropping entry without media")
			continue
		}

		if r.extractArticle && entry.Link != "" && utf8.RuneCountInString(entry.Content) < minExtractRunes {
			if text := r.extract(ctx, entry.Link); utf8.RuneCountInString(text) > utf8.RuneCountInString(entry.Content) {
				entry.Content = text
			}
		}

		result.Entries = append(result.Entries, entry)
	}

	return result
}

// extract returns the readable text of the article at link, or "" on failure.
func (r *Reader) extract(ctx context.Context, link string) string {
	data, err := r.fetcher.FetchPage(ctx, link)
	if err != nil {
		r.logger.Debug().Err(err).Str("url", link).Msg("Article fetch failed")
		return ""
	}

	pageURL, _ := url.Parse(link)
	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		r.logger.Debug().Err(err).Str("url", link).Msg("Article extraction failed")
		return ""
	}

	return utils.TruncateRunes(utils.CollapseSpaces(article.TextContent), maxContentRunes)
}

package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const feedAccept = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.9, */*;q=0.5"

const (
	// DefaultMaxFeedBytes caps the size of a feed document or page.
	DefaultMaxFeedBytes = 10 << 20

	fetchRetries      = 3
	fetchRetryWait    = 2 * time.Second
	fetchRetryMaxWait = 10 * time.Second
)

type Fetcher struct {
	client   *resty.Client
	maxBytes int
}

func NewFetcher(client *resty.Client) *Fetcher {
	client.
		SetRetryCount(fetchRetries).
		SetRetryWaitTime(fetchRetryWait).
		SetRetryMaxWaitTime(fetchRetryMaxWait).
		AddRetryCondition(retryable)
	return &Fetcher{client: client, maxBytes: DefaultMaxFeedBytes}
}

// retryable retries transport errors, throttling and server errors.
func retryable(resp *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, resty.ErrResponseBodyTooLarge)
	}
	return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError
}

// FetchFeed retrieves the raw feed document from url.
func (f *Fetcher) FetchFeed(ctx context.Context, url string) ([]byte, error) {
	return f.get(ctx, url, feedAccept)
}

// FetchPage retrieves an HTML page, used for article extraction and feed discovery.
func (f *Fetcher) FetchPage(ctx context.Context, url string) ([]byte, error) {
	return f.get(ctx, url, "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")
}

func (f *Fetcher) get(ctx context.Context, url, accept string) ([]byte, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Accept", accept).
		SetResponseBodyLimit(f.maxBytes).
		Get(url)

	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode(), url)
	}

	return resp.Body(), nil
}

// Probe issues a HEAD request and returns the status code and content type.
func (f *Fetcher) Probe(ctx context.Context, url string) (int, string, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		Head(url)
	if err != nil {
		return 0, "", fmt.Errorf("failed to probe %s: %w", url, err)
	}
	return resp.StatusCode(), resp.Header().Get("Content-Type"), nil
}

package feed

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	feedLinkTypes = []string{"application/rss+xml", "application/atom+xml", "application/feed+json"}
	commonPaths   = []string{"/rss", "/feed", "/rss.xml", "/feed.xml", "/atom.xml", "/blog/rss", "/news/rss"}
)

const (
	freshWindow     = 30 * 24 * time.Hour
	minFreshEntries = 2
)

// DiscoveredFeed is a feed found on a site.
type DiscoveredFeed struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Entries int    `json:"entries"`
}

// Discover looks for feeds advertised by siteURL through <link rel="alternate">
// and, failing that, probes a few conventional paths. Only feeds with at least
// two entries from the last 30 days are returned.
func (r *Reader) Discover(ctx context.Context, siteURL string) ([]DiscoveredFeed, error) {
	base, err := url.Parse(siteURL)
	if err != nil {
		return nil, err
	}

	page, err := r.fetcher.FetchPage(ctx, siteURL)
	if err != nil {
		return nil, err
	}

	candidates := advertisedFeeds(base, page)
	if len(candidates) == 0 {
		candidates = r.probeCommonPaths(ctx, base)
	}

	var feeds []DiscoveredFeed
	seen := make(map[string]bool)
	for _, c := range candidates {
		if seen[c.URL] {
			continue
		}
		seen[c.URL] = true

		if f, ok := r.validate(ctx, c); ok {
			feeds = append(feeds, f)
		}
	}
	return feeds, nil
}

func advertisedFeeds(base *url.URL, page []byte) []DiscoveredFeed {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil
	}
	siteTitle := strings.TrimSpace(doc.Find("title").First().Text())

	var out []DiscoveredFeed
	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		typ := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
		if !isFeedType(typ) {
			return
		}
		ref, err := url.Parse(s.AttrOr("href", ""))
		if err != nil {
			return
		}
		out = append(out, DiscoveredFeed{
			URL:   base.ResolveReference(ref).String(),
			Title: strings.TrimSpace(s.AttrOr("title", siteTitle)),
		})
	})
	return out
}

func isFeedType(t string) bool {
	for _, ft := range feedLinkTypes {
		if t == ft {
			return true
		}
	}
	return false
}

func (r *Reader) probeCommonPaths(ctx context.Context, base *url.URL) []DiscoveredFeed {
	for _, p := range commonPaths {
		candidate := base.ResolveReference(&url.URL{Path: p}).String()
		status, contentType, err := r.fetcher.Probe(ctx, candidate)
		if err != nil || status != http.StatusOK {
			continue
		}
		ct := strings.ToLower(contentType)
		if strings.Contains(ct, "xml") || strings.Contains(ct, "json") || strings.Contains(ct, "feed") {
			return []DiscoveredFeed{{URL: candidate, Title: base.Host + " RSS"}}
		}
	}
	return nil
}

func (r *Reader) validate(ctx context.Context, c DiscoveredFeed) (DiscoveredFeed, bool) {
	data, err := r.fetcher.FetchFeed(ctx, c.URL)
	if err != nil {
		return c, false
	}
	feed, err := r.parser.Parse(data)
	if err != nil || len(feed.Items) == 0 {
		return c, false
	}

	cutoff := time.Now().Add(-freshWindow)
	fresh := 0
	for i, item := range feed.Items {
		if i >= MaxItemsPerFetch {
			break
		}
		ts := item.PublishedParsed
		if ts == nil {
			ts = item.UpdatedParsed
		}
		if ts != nil && ts.After(cutoff) {
			fresh++
		}
	}
	if fresh < minFreshEntries {
		r.logger.Debug().Str("feed", c.URL).Int("fresh", fresh).Msg("Skipping stale feed")
		return c, false
	}

	if feed.Title != "" {
		c.Title = feed.Title
	}
	c.Entries = len(feed.Items)
	return c, true
}

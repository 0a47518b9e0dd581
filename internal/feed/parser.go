package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/bilgisen/feedcaster/internal/models"
	"github.com/bilgisen/feedcaster/internal/utils"
)

const (
	maxContentRunes = 2000
	maxTags         = 5
	maxInlineImages = 3
	maxMedia        = 1
	untitled        = "No title"
)

// Parser turns feed documents into normalized entries.
type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Parse decodes an RSS, Atom or JSON feed document.
func (p *Parser) Parse(data []byte) (*gofeed.Feed, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return feed, nil
}

// itemGUID prefers the explicit id and falls back to the link.
func itemGUID(item *gofeed.Item) string {
	return cmp.Or(strings.TrimSpace(item.GUID), strings.TrimSpace(item.Link))
}

// NormalizeItem converts a gofeed.Item into a FeedEntry. MediaURLs is empty
// when no image could be resolved.
func (p *Parser) NormalizeItem(item *gofeed.Item) models.FeedEntry {
	entry := models.FeedEntry{
		GUID:      itemGUID(item),
		Title:     cmp.Or(utils.PlainText(item.Title), untitled),
		Link:      strings.TrimSpace(item.Link),
		Content:   extractText(item),
		MediaURLs: resolveMedia(item),
		Author:    extractAuthor(item),
	}

	if item.PublishedParsed != nil {
		entry.PublishedAt = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		entry.PublishedAt = item.UpdatedParsed
	}

	for _, c := range item.Categories {
		if c = strings.TrimSpace(c); c != "" && len(entry.Tags) < maxTags {
			entry.Tags = append(entry.Tags, c)
		}
	}

	return entry
}

func extractText(item *gofeed.Item) string {
	raw := cmp.Or(item.Content, item.Description)
	return utils.TruncateRunes(utils.PlainText(raw), maxContentRunes)
}

func extractAuthor(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return strings.TrimSpace(item.Author.Name)
	}
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return strings.TrimSpace(a.Name)
		}
	}
	return ""
}

// resolveMedia collects image candidates in priority order: image
// enclosures, media:content images, media:thumbnail, then inline <img> tags.
// Only the first candidate is kept.
func resolveMedia(item *gofeed.Item) []string {
	var candidates []string
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u != "" {
			candidates = append(candidates, u)
		}
	}

	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(strings.ToLower(enc.Type), "image") {
			add(enc.URL)
		}
	}

	media := mediaExtensions(item)
	for _, c := range media["content"] {
		if isImageMedia(c) {
			add(c.Attrs["url"])
		}
	}
	for _, t := range media["thumbnail"] {
		add(t.Attrs["url"])
	}

	if len(candidates) == 0 {
		for _, src := range inlineImages(cmp.Or(item.Content, item.Description)) {
			add(src)
		}
	}

	return dedupe(candidates, maxMedia)
}

// mediaExtensions flattens media:* elements, including those nested in media:group.
func mediaExtensions(item *gofeed.Item) map[string][]ext.Extension {
	out := make(map[string][]ext.Extension)
	media, ok := item.Extensions["media"]
	if !ok {
		return out
	}
	for name, list := range media {
		if name == "group" {
			for _, g := range list {
				for child, nested := range g.Children {
					out[child] = append(out[child], nested...)
				}
			}
			continue
		}
		out[name] = append(out[name], list...)
	}
	return out
}

func isImageMedia(e ext.Extension) bool {
	if strings.HasPrefix(strings.ToLower(e.Attrs["type"]), "image") {
		return true
	}
	return strings.EqualFold(e.Attrs["medium"], "image")
}

func inlineImages(body string) []string {
	if !strings.Contains(body, "<img") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var urls []string
	doc.Find("img").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxInlineImages {
			return false
		}
		if src, ok := s.Attr("src"); ok && strings.HasPrefix(src, "http") {
			urls = append(urls, src)
		}
		return true
	})
	return urls
}

func dedupe(urls []string, limit int) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, limit)
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
		if len(out) == limit {
			break
		}
	}
	return out
}

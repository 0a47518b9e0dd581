package models

import "time"

// FeedEntry is one normalized feed item considered for publication.
// It is never persisted; Post keeps what is needed of it.
type FeedEntry struct {
	GUID        string     `json:"guid"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Content     string     `json:"content"`
	MediaURLs   []string   `json:"media_urls"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Author      string     `json:"author,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

// HasMedia reports whether the entry carries at least one image candidate.
func (e FeedEntry) HasMedia() bool {
	return len(e.MediaURLs) > 0
}

package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PostStatus is the lifecycle state of a queued post.
type PostStatus string

const (
	StatusPending    PostStatus = "pending"
	StatusModeration PostStatus = "moderation"
	StatusPublished  PostStatus = "published"
	StatusFailed     PostStatus = "failed"
)

// Terminal reports whether no transition may leave s.
func (s PostStatus) Terminal() bool {
	return s == StatusPublished || s == StatusFailed
}

// CanTransition reports whether a post in state s may move to next.
//
//	pending    -> moderation | published | failed
//	moderation -> published | failed
func (s PostStatus) CanTransition(next PostStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusModeration || next == StatusPublished || next == StatusFailed
	case StatusModeration:
		return next == StatusPublished || next == StatusFailed
	default:
		return false
	}
}

// Post is one queued or published unit tied to a channel.
type Post struct {
	ID          int64      `db:"id" json:"id"`
	ChannelID   int64      `db:"channel_id" json:"channel_id"`
	SourceURL   string     `db:"source_url" json:"source_url"`
	Title       string     `db:"title" json:"title"`
	Content     string     `db:"content" json:"content"`
	Processed   string     `db:"processed" json:"processed"`
	MediaURLs   StringList `db:"media_urls" json:"media_urls"`
	Fingerprint string     `db:"fingerprint" json:"fingerprint"`
	Status      PostStatus `db:"status" json:"status"`
	ScheduledAt time.Time  `db:"scheduled_at" json:"scheduled_at"`
	PublishedAt *time.Time `db:"published_at" json:"published_at,omitempty"`
	MessageID   *int64     `db:"message_id" json:"message_id,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// StringList is stored as a JSON array column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported type %T for StringList", src)
	}
	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode string list: %w", err)
	}
	*l = out
	return nil
}

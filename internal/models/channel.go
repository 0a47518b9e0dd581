package models

import "time"

// DefaultPostInterval is applied to channels created without an explicit interval.
const DefaultPostInterval = 2 * time.Hour

// Channel is a publish target.
type Channel struct {
	ID           int64     `db:"id" json:"id"`
	ExternalID   string    `db:"external_id" json:"external_id" validate:"required"`
	Name         string    `db:"name" json:"name" validate:"required"`
	Topic        string    `db:"topic" json:"topic"`
	Active       bool      `db:"active" json:"active"`
	Moderation   bool      `db:"moderation" json:"moderation"`
	Model        string    `db:"model" json:"model"`
	Prompt       string    `db:"prompt" json:"prompt,omitempty"`
	PostInterval int64     `db:"post_interval" json:"post_interval" validate:"gt=0"` // seconds
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Interval returns the minimum spacing between two scheduled posts of the channel.
func (c Channel) Interval() time.Duration {
	return time.Duration(c.PostInterval) * time.Second
}

// Settings returns the generation settings the transformer needs.
func (c Channel) Settings() ChannelSettings {
	return ChannelSettings{
		Model:  c.Model,
		Prompt: c.Prompt,
		Topic:  c.Topic,
	}
}

// ChannelSettings steers content generation for one channel.
type ChannelSettings struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt,omitempty"`
	Topic  string `json:"topic"`
}

// ChannelUpdate is a partial settings update; nil fields are left untouched.
type ChannelUpdate struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Topic        *string `json:"topic,omitempty"`
	Model        *string `json:"model,omitempty"`
	Prompt       *string `json:"prompt,omitempty"`
	PostInterval *int64  `json:"post_interval,omitempty" validate:"omitempty,gt=0"`
	Moderation   *bool   `json:"moderation,omitempty"`
	Active       *bool   `json:"active,omitempty"`
}

// Apply copies the non-nil fields of u onto c.
func (u ChannelUpdate) Apply(c *Channel) {
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Topic != nil {
		c.Topic = *u.Topic
	}
	if u.Model != nil {
		c.Model = *u.Model
	}
	if u.Prompt != nil {
		c.Prompt = *u.Prompt
	}
	if u.PostInterval != nil {
		c.PostInterval = *u.PostInterval
	}
	if u.Moderation != nil {
		c.Moderation = *u.Moderation
	}
	if u.Active != nil {
		c.Active = *u.Active
	}
}

// Source is a feed subscription bound to exactly one channel.
type Source struct {
	ID            int64      `db:"id" json:"id"`
	ChannelID     int64      `db:"channel_id" json:"channel_id"`
	URL           string     `db:"url" json:"url" validate:"required,url"`
	Name          string     `db:"name" json:"name"`
	Active        bool       `db:"active" json:"active"`
	Cursor        string     `db:"cursor" json:"cursor,omitempty"`
	ErrorCount    int        `db:"error_count" json:"error_count"`
	LastCheckedAt *time.Time `db:"last_checked_at" json:"last_checked_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

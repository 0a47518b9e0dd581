package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bilgisen/feedcaster/internal/models"
)

const channelColumns = `id, external_id, name, topic, active, moderation, model, prompt, post_interval, created_at`

// CreateChannel inserts a channel and fills in its ID and creation time.
func (s *Store) CreateChannel(ctx context.Context, ch *models.Channel) error {
	if ch.PostInterval <= 0 {
		ch.PostInterval = int64(models.DefaultPostInterval / time.Second)
	}

	if _, err := s.GetChannelByExternalID(ctx, ch.ExternalID); err == nil {
		return fmt.Errorf("channel %s: %w", ch.ExternalID, ErrAlreadyExists)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	ch.CreatedAt = ts(time.Now())
	query := s.q(`
		INSERT INTO channels (external_id, name, topic, active, moderation, model, prompt, post_interval, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	err := s.db.QueryRowxContext(ctx, query,
		ch.ExternalID, ch.Name, ch.Topic, ch.Active, ch.Moderation,
		ch.Model, ch.Prompt, ch.PostInterval, ch.CreatedAt,
	).Scan(&ch.ID)
	if err != nil {
		return fmt.Errorf("failed to insert channel: %w", err)
	}
	return nil
}

// GetChannel returns the channel with the given ID.
func (s *Store) GetChannel(ctx context.Context, id int64) (*models.Channel, error) {
	return s.getChannel(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = ?`, id)
}

// GetChannelByExternalID returns the channel bound to a messaging channel identifier.
func (s *Store) GetChannelByExternalID(ctx context.Context, externalID string) (*models.Channel, error) {
	return s.getChannel(ctx, `SELECT `+channelColumns+` FROM channels WHERE external_id = ?`, externalID)
}

func (s *Store) getChannel(ctx context.Context, query string, arg any) (*models.Channel, error) {
	var ch models.Channel
	if err := s.db.GetContext(ctx, &ch, s.q(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return &ch, nil
}

// ListChannels returns all channels ordered by ID.
func (s *Store) ListChannels(ctx context.Context) ([]models.Channel, error) {
	channels := []models.Channel{}
	if err := s.db.SelectContext(ctx, &channels, `SELECT `+channelColumns+` FROM channels ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

// UpdateChannel persists the mutable settings of ch.
func (s *Store) UpdateChannel(ctx context.Context, ch *models.Channel) error {
	query := s.q(`
		UPDATE channels
		SET name = ?, topic = ?, active = ?, moderation = ?, model = ?, prompt = ?, post_interval = ?
		WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query,
		ch.Name, ch.Topic, ch.Active, ch.Moderation, ch.Model, ch.Prompt, ch.PostInterval, ch.ID)
	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}
	return expectAffected(res)
}

// SetChannelActive switches a channel on or off.
func (s *Store) SetChannelActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE channels SET active = ? WHERE id = ?`), active, id)
	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}
	return expectAffected(res)
}

// DeleteChannel removes a channel together with its sources and posts.
func (s *Store) DeleteChannel(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM channels WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bilgisen/feedcaster/internal/models"
)

// CreateChannel registers a publish target. A zero post interval falls back
// to the default.
func (s *Service) CreateChannel(ctx context.Context, ch models.Channel) (*models.Channel, error) {
	if ch.PostInterval == 0 {
		ch.PostInterval = int64(models.DefaultPostInterval / time.Second)
	}
	if err := s.check(ch); err != nil {
		return nil, err
	}
	if err := s.store.CreateChannel(ctx, &ch); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("channel_id", ch.ID).Str("external_id", ch.ExternalID).Msg("Channel created")
	return &ch, nil
}

func (s *Service) GetChannel(ctx context.Context, id int64) (*models.Channel, error) {
	return s.store.GetChannel(ctx, id)
}

func (s *Service) ListChannels(ctx context.Context) ([]models.Channel, error) {
	return s.store.ListChannels(ctx)
}

// ToggleChannelActive flips the active flag and returns the new value.
func (s *Service) ToggleChannelActive(ctx context.Context, id int64) (bool, error) {
	ch, err := s.store.GetChannel(ctx, id)
	if err != nil {
		return false, err
	}
	if err := s.store.SetChannelActive(ctx, id, !ch.Active); err != nil {
		return false, err
	}
	return !ch.Active, nil
}

// UpdateChannelSettings applies a partial update.
func (s *Service) UpdateChannelSettings(ctx context.Context, id int64, update models.ChannelUpdate) (*models.Channel, error) {
	if err := s.check(update); err != nil {
		return nil, err
	}
	ch, err := s.store.GetChannel(ctx, id)
	if err != nil {
		return nil, err
	}
	update.Apply(ch)
	if err := s.store.UpdateChannel(ctx, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

// DeleteChannel removes the channel together with its sources and posts.
func (s *Service) DeleteChannel(ctx context.Context, id int64) error {
	if err := s.store.DeleteChannel(ctx, id); err != nil {
		return err
	}
	if s.seen != nil {
		if err := s.seen.ClearProcessed(ctx, id); err != nil {
			s.logger.Warn().Err(err).Int64("channel_id", id).Msg("Failed to clear fingerprint cache")
		}
	}
	s.logger.Info().Int64("channel_id", id).Msg("Channel deleted")
	return nil
}

// AddSource subscribes a channel to a feed.
func (s *Service) AddSource(ctx context.Context, channelID int64, url, name string) (*models.Source, error) {
	src := models.Source{ChannelID: channelID, URL: url, Name: name, Active: true}
	if err := s.check(src); err != nil {
		return nil, err
	}
	if _, err := s.store.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}
	if err := s.store.AddSource(ctx, &src); err != nil {
		return nil, err
	}
	return &src, nil
}

func (s *Service) ListSources(ctx context.Context, channelID int64) ([]models.Source, error) {
	if _, err := s.store.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}
	return s.store.ListSources(ctx, channelID)
}

func (s *Service) DeleteSource(ctx context.Context, id int64) error {
	return s.store.DeleteSource(ctx, id)
}

// ListDueQueue returns the channel's pending posts in publish order.
func (s *Service) ListDueQueue(ctx context.Context, channelID int64) ([]models.Post, error) {
	if _, err := s.store.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}
	return s.store.ChannelQueue(ctx, channelID)
}

// ClearQueue drops the channel's pending posts.
func (s *Service) ClearQueue(ctx context.Context, channelID int64) (int64, error) {
	if _, err := s.store.GetChannel(ctx, channelID); err != nil {
		return 0, err
	}
	n, err := s.store.ClearQueue(ctx, channelID)
	if err != nil {
		return 0, fmt.Errorf("clear queue of channel %d: %w", channelID, err)
	}
	return n, nil
}

func (s *Service) StatusCounts(ctx context.Context) (map[models.PostStatus]int, error) {
	return s.store.StatusCounts(ctx)
}

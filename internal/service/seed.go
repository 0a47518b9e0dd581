package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bilgisen/feedcaster/internal/config"
	"github.com/bilgisen/feedcaster/internal/feed"
	"github.com/bilgisen/feedcaster/internal/models"
	"github.com/bilgisen/feedcaster/internal/storage"
)

// SeedResult reports what a seed sync added.
type SeedResult struct {
	ChannelsCreated int `json:"channels_created"`
	SourcesAdded    int `json:"sources_added"`
}

// SyncSeed creates the channels and sources declared in the seed that do not
// exist yet. Existing channels keep their stored settings.
func (s *Service) SyncSeed(ctx context.Context, seed *config.Seed) (SeedResult, error) {
	var res SeedResult

	for _, sc := range seed.Channels {
		ch, err := s.store.GetChannelByExternalID(ctx, sc.ExternalID)
		if errors.Is(err, storage.ErrNotFound) {
			name := sc.Name
			if name == "" {
				name = sc.ExternalID
			}
			ch, err = s.CreateChannel(ctx, models.Channel{
				ExternalID:   sc.ExternalID,
				Name:         name,
				Topic:        sc.Topic,
				Active:       true,
				Moderation:   sc.Moderation,
				Model:        sc.Model,
				Prompt:       sc.Prompt,
				PostInterval: int64(sc.PostInterval / time.Second),
			})
			if err != nil {
				return res, fmt.Errorf("seed channel %s: %w", sc.ExternalID, err)
			}
			res.ChannelsCreated++
		} else if err != nil {
			return res, err
		}

		for _, url := range sc.Sources {
			_, err := s.AddSource(ctx, ch.ID, url, "")
			if errors.Is(err, storage.ErrAlreadyExists) {
				continue
			}
			if err != nil {
				return res, fmt.Errorf("seed source %s: %w", url, err)
			}
			res.SourcesAdded++
		}
	}

	s.logger.Info().
		Int("channels_created", res.ChannelsCreated).
		Int("sources_added", res.SourcesAdded).
		Msg("Seed synced")
	return res, nil
}

// DiscoverFeeds lists usable feeds offered by a site.
func (s *Service) DiscoverFeeds(ctx context.Context, siteURL string) ([]feed.DiscoveredFeed, error) {
	if err := s.validate.Var(siteURL, "required,url"); err != nil {
		return nil, errors.Join(ErrInvalidInput, err)
	}
	return s.reader.Discover(ctx, siteURL)
}

package service

import (
	"context"
	"fmt"

	"github.com/bilgisen/feedcaster/internal/models"
	"github.com/bilgisen/feedcaster/internal/storage"
	"github.com/bilgisen/feedcaster/internal/utils"
)

// ModerationQueue lists posts awaiting review. channelID 0 lists every channel.
func (s *Service) ModerationQueue(ctx context.Context, channelID int64) ([]models.Post, error) {
	return s.store.ModerationQueue(ctx, channelID)
}

// ApprovePost publishes a post held for moderation right away. Concurrent
// approvals of one post deliver it once; the others see it already published.
func (s *Service) ApprovePost(ctx context.Context, postID int64) (*models.Post, error) {
	defer s.posts.lock(postID)()

	post, ch, err := s.moderated(ctx, postID)
	if err != nil {
		return nil, err
	}

	msgID, err := s.sink.Publish(ctx, ch.ExternalID, post.Processed, post.MediaURLs)
	if err != nil {
		if terr := s.store.Transition(ctx, post.ID, models.StatusModeration, models.StatusFailed, nil, nil); terr != nil {
			s.logger.Error().Err(terr).Int64("post_id", post.ID).Msg("Failed to mark post failed")
		}
		return nil, fmt.Errorf("approve post %d: %w", post.ID, err)
	}

	at := s.now()
	if err := s.store.Transition(ctx, post.ID, models.StatusModeration, models.StatusPublished, &msgID, &at); err != nil {
		return nil, err
	}
	post.Status = models.StatusPublished
	post.MessageID = &msgID
	post.PublishedAt = &at

	s.logger.Info().Int64("post_id", post.ID).Int64("message_id", msgID).Msg("Post approved")
	return post, nil
}

// RejectPost discards a post held for moderation.
func (s *Service) RejectPost(ctx context.Context, postID int64) error {
	defer s.posts.lock(postID)()

	post, _, err := s.moderated(ctx, postID)
	if err != nil {
		return err
	}
	return s.store.DeletePost(ctx, post.ID)
}

func (s *Service) moderated(ctx context.Context, postID int64) (*models.Post, *models.Channel, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, nil, err
	}
	if post.Status != models.StatusModeration {
		return nil, nil, fmt.Errorf("post %d is %s: %w", post.ID, post.Status, storage.ErrInvalidTransition)
	}
	ch, err := s.store.GetChannel(ctx, post.ChannelID)
	if err != nil {
		return nil, nil, err
	}
	return post, ch, nil
}

// EditPublishedPost replaces the content of a delivered post. The stored
// content is updated only when the edit reached the channel.
func (s *Service) EditPublishedPost(ctx context.Context, postID int64, content string) (bool, error) {
	post, ch, err := s.published(ctx, postID)
	if err != nil {
		return false, err
	}

	content = utils.Sanitize(content)
	if !s.sink.Edit(ctx, ch.ExternalID, *post.MessageID, content) {
		return false, nil
	}
	if err := s.store.UpdateProcessed(ctx, post.ID, content); err != nil {
		return true, err
	}
	return true, nil
}

// DeletePublishedPost removes a delivered message from its channel. The post
// record is kept so the item is still recognized as a duplicate.
func (s *Service) DeletePublishedPost(ctx context.Context, postID int64) (bool, error) {
	post, ch, err := s.published(ctx, postID)
	if err != nil {
		return false, err
	}
	return s.sink.Delete(ctx, ch.ExternalID, *post.MessageID), nil
}

func (s *Service) published(ctx context.Context, postID int64) (*models.Post, *models.Channel, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, nil, err
	}
	if post.Status != models.StatusPublished || post.MessageID == nil {
		return nil, nil, fmt.Errorf("post %d: %w", post.ID, ErrNotPublished)
	}
	ch, err := s.store.GetChannel(ctx, post.ChannelID)
	if err != nil {
		return nil, nil, err
	}
	return post, ch, nil
}

type candidate struct {
	entry       models.FeedEntry
	fingerprint string
}

// CreateManualPost publishes one fresh entry from the channel's sources
// immediately, outside the recurring cycles, and records it as published.
func (s *Service) CreateManualPost(ctx context.Context, channelID int64) (*models.Post, error) {
	ch, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}

	sources, err := s.store.ListSources(ctx, channelID)
	if err != nil {
		return nil, err
	}

	var candidates []candidate
	active := 0
	for _, src := range sources {
		if !src.Active {
			continue
		}
		active++

		res := s.reader.Fetch(ctx, src.URL, "")
		if res.Err != nil {
			s.logger.Warn().Err(res.Err).Str("url", src.URL).Msg("Source failed during manual post")
			continue
		}

		entries := res.Entries
		if len(entries) > manualEntriesPerSource {
			entries = entries[:manualEntriesPerSource]
		}
		for _, e := range entries {
			fp := utils.Fingerprint(e.Title, e.Content)
			exists, err := s.store.PostExists(ctx, ch.ID, fp)
			if err != nil {
				return nil, err
			}
			if !exists {
				candidates = append(candidates, candidate{entry: e, fingerprint: fp})
			}
		}
	}

	if active == 0 {
		return nil, ErrNoSources
	}
	if len(candidates) == 0 {
		return nil, ErrNoEntries
	}

	pick := candidates[s.intn(len(candidates))]
	content := s.transformer.Transform(ctx, pick.entry, ch.Settings())

	msgID, err := s.sink.Publish(ctx, ch.ExternalID, content, pick.entry.MediaURLs)
	if err != nil {
		return nil, fmt.Errorf("manual post for channel %d: %w", ch.ID, err)
	}

	now := s.now()
	post := &models.Post{
		ChannelID:   ch.ID,
		SourceURL:   pick.entry.Link,
		Title:       pick.entry.Title,
		Content:     pick.entry.Content,
		Processed:   content,
		MediaURLs:   models.StringList(pick.entry.MediaURLs),
		Fingerprint: pick.fingerprint,
		Status:      models.StatusPublished,
		ScheduledAt: now,
		PublishedAt: &now,
		MessageID:   &msgID,
	}
	if err := s.store.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("record manual post: %w", err)
	}

	if s.seen != nil {
		if err := s.seen.MarkProcessed(ctx, ch.ID, pick.fingerprint); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to cache fingerprint")
		}
	}

	s.logger.Info().Int64("channel_id", ch.ID).Int64("post_id", post.ID).Int64("message_id", msgID).Msg("Manual post published")
	return post, nil
}

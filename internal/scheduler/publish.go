package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bilgisen/feedcaster/internal/models"
)

// PublishStats summarizes one publish run.
type PublishStats struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Due       int           `json:"due"`
	Published int           `json:"published"`
	Moderated int           `json:"moderated"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
}

// RunPublish executes one publish cycle over the posts that are due. Posts
// are handled one at a time with the pacing delay between deliveries.
func (s *Scheduler) RunPublish(ctx context.Context) (PublishStats, error) {
	if !s.publishMu.TryLock() {
		return PublishStats{}, ErrCycleRunning
	}
	defer s.publishMu.Unlock()

	stats := PublishStats{RunID: uuid.NewString(), StartedAt: s.now()}
	log := s.logger.With().Str("cycle", "publish").Str("run_id", stats.RunID).Logger()

	posts, err := s.store.DuePosts(ctx, stats.StartedAt, s.cfg.PublishBatch)
	if err != nil {
		return stats, fmt.Errorf("failed to list due posts: %w", err)
	}
	stats.Due = len(posts)

	channels := make(map[int64]*models.Channel)
	for _, post := range posts {
		if ctx.Err() != nil {
			break
		}

		ch, ok := channels[post.ChannelID]
		if !ok {
			ch, err = s.store.GetChannel(ctx, post.ChannelID)
			if err != nil {
				log.Error().Err(err).Int64("post_id", post.ID).Msg("Failed to load channel")
				stats.Skipped++
				continue
			}
			channels[post.ChannelID] = ch
		}

		if !ch.Active {
			stats.Skipped++
			continue
		}

		if ch.Moderation {
			if err := s.store.Transition(ctx, post.ID, models.StatusPending, models.StatusModeration, nil, nil); err != nil {
				log.Error().Err(err).Int64("post_id", post.ID).Msg("Failed to move post to moderation")
				continue
			}
			stats.Moderated++
			log.Info().Int64("post_id", post.ID).Int64("channel_id", ch.ID).Msg("Post awaiting moderation")
			continue
		}

		if err := s.pacer.Wait(ctx); err != nil {
			break
		}

		msgID, err := s.sink.Publish(ctx, ch.ExternalID, post.Processed, post.MediaURLs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Info().Int64("post_id", post.ID).Msg("Publish interrupted, post stays pending")
				break
			}
			log.Warn().Err(err).Int64("post_id", post.ID).Int64("channel_id", ch.ID).Msg("Publish failed")
			if err := s.store.Transition(ctx, post.ID, models.StatusPending, models.StatusFailed, nil, nil); err != nil {
				log.Error().Err(err).Int64("post_id", post.ID).Msg("Failed to mark post failed")
			}
			stats.Failed++
			continue
		}

		at := s.now()
		if err := s.store.Transition(ctx, post.ID, models.StatusPending, models.StatusPublished, &msgID, &at); err != nil {
			log.Error().Err(err).Int64("post_id", post.ID).Int64("message_id", msgID).Msg("Failed to record publication")
			continue
		}
		stats.Published++
		log.Info().Int64("post_id", post.ID).Int64("channel_id", ch.ID).Int64("message_id", msgID).Msg("Post published")
	}

	stats.Duration = s.now().Sub(stats.StartedAt)

	s.statsMu.Lock()
	s.lastPublish = stats
	s.statsMu.Unlock()

	if stats.Due > 0 {
		log.Info().
			Int("due", stats.Due).
			Int("published", stats.Published).
			Int("moderated", stats.Moderated).
			Int("failed", stats.Failed).
			Int("skipped", stats.Skipped).
			Msg("Publish finished")
	}
	return stats, nil
}

package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bilgisen/feedcaster/internal/models"
	"github.com/bilgisen/feedcaster/internal/utils"
)

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Sources    int           `json:"sources"`
	Failed     int           `json:"failed"`
	Created    int           `json:"created"`
	Duplicates int           `json:"duplicates"`
}

// RunIngest executes one ingestion cycle over every active source. A broken
// source is counted and skipped; only a failure to list sources aborts.
func (s *Scheduler) RunIngest(ctx context.Context) (IngestStats, error) {
	if !s.ingestMu.TryLock() {
		return IngestStats{}, ErrCycleRunning
	}
	defer s.ingestMu.Unlock()

	stats := IngestStats{RunID: uuid.NewString(), StartedAt: s.now()}
	log := s.logger.With().Str("cycle", "ingest").Str("run_id", stats.RunID).Logger()

	sources, err := s.store.ListActiveSources(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list sources: %w", err)
	}
	stats.Sources = len(sources)
	log.Info().Int("sources", len(sources)).Msg("Ingestion started")

	var failed, created, duplicates atomic.Int64

	var g errgroup.Group
	g.SetLimit(s.cfg.SourceConcurrency)
	for _, src := range sources {
		g.Go(func() error {
			res, err := s.ingestSource(ctx, src, log)
			created.Add(int64(res.created))
			duplicates.Add(int64(res.duplicates))
			if err != nil {
				failed.Add(1)
				log.Warn().Err(err).Int64("source_id", src.ID).Str("url", src.URL).Msg("Source failed")
				if err := s.store.RecordCheckFailure(ctx, src.ID, s.now()); err != nil {
					log.Error().Err(err).Int64("source_id", src.ID).Msg("Failed to record source failure")
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Failed = int(failed.Load())
	stats.Created = int(created.Load())
	stats.Duplicates = int(duplicates.Load())
	stats.Duration = s.now().Sub(stats.StartedAt)

	s.statsMu.Lock()
	s.lastIngest = stats
	s.statsMu.Unlock()

	log.Info().
		Int("created", stats.Created).
		Int("duplicates", stats.Duplicates).
		Int("failed", stats.Failed).
		Dur("duration", stats.Duration).
		Msg("Ingestion finished")
	return stats, nil
}

type sourceResult struct {
	created    int
	duplicates int
}

func (s *Scheduler) ingestSource(ctx context.Context, src models.Source, log zerolog.Logger) (res sourceResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while ingesting source: %v", r)
		}
	}()

	ch, err := s.store.GetChannel(ctx, src.ChannelID)
	if err != nil {
		return res, err
	}

	fetched := s.reader.Fetch(ctx, src.URL, src.Cursor)
	if fetched.Err != nil {
		return res, fetched.Err
	}

	entries := fetched.Entries
	if len(entries) > s.cfg.EntriesPerSource {
		entries = entries[:s.cfg.EntriesPerSource]
	}

	for _, entry := range entries {
		fp := utils.Fingerprint(entry.Title, entry.Content)

		dup, err := s.isDuplicate(ctx, ch.ID, fp)
		if err != nil {
			return res, err
		}
		if dup {
			res.duplicates++
			continue
		}

		content := s.transformer.Transform(ctx, entry, ch.Settings())

		post := &models.Post{
			ChannelID:   ch.ID,
			SourceURL:   entry.Link,
			Title:       entry.Title,
			Content:     entry.Content,
			Processed:   content,
			MediaURLs:   models.StringList(entry.MediaURLs),
			Fingerprint: fp,
			Status:      models.StatusPending,
		}
		ok, err := s.enqueue(ctx, ch, post)
		if err != nil {
			return res, err
		}
		if !ok {
			res.duplicates++
			continue
		}
		res.created++

		log.Info().
			Int64("channel_id", ch.ID).
			Int64("post_id", post.ID).
			Time("scheduled_at", post.ScheduledAt).
			Str("title", entry.Title).
			Msg("Post queued")
	}

	if err := s.store.RecordCheckSuccess(ctx, src.ID, fetched.Newest, s.now()); err != nil {
		return res, err
	}
	return res, nil
}

// isDuplicate consults the cache first and falls back to the store.
func (s *Scheduler) isDuplicate(ctx context.Context, channelID int64, fp string) (bool, error) {
	if s.seen != nil {
		hit, err := s.seen.IsProcessed(ctx, channelID, fp)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Fingerprint cache lookup failed")
		} else if hit {
			return true, nil
		}
	}
	return s.store.PostExists(ctx, channelID, fp)
}

// enqueue assigns the post its slot on the channel timeline and stores it.
// The duplicate check is repeated under the channel lock so two sources
// carrying the same item cannot both insert it.
func (s *Scheduler) enqueue(ctx context.Context, ch *models.Channel, post *models.Post) (bool, error) {
	unlock := s.chains.lock(ch.ID)
	defer unlock()

	exists, err := s.store.PostExists(ctx, ch.ID, post.Fingerprint)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	at, err := s.nextSlot(ctx, ch)
	if err != nil {
		return false, err
	}
	post.ScheduledAt = at

	if err := s.store.CreatePost(ctx, post); err != nil {
		return false, err
	}

	if s.seen != nil {
		if err := s.seen.MarkProcessed(ctx, ch.ID, post.Fingerprint); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to cache fingerprint")
		}
	}
	return true, nil
}

// nextSlot chains after the channel's latest scheduled post when that post
// is still in the future, otherwise it leaves the minimum lead time.
func (s *Scheduler) nextSlot(ctx context.Context, ch *models.Channel) (time.Time, error) {
	now := s.now()
	earliest := now.Add(s.cfg.MinLeadTime)

	last, ok, err := s.store.LastScheduledAt(ctx, ch.ID)
	if err != nil {
		return time.Time{}, err
	}
	if !ok || !last.After(now) {
		return earliest, nil
	}

	next := last.Add(ch.Interval())
	if next.Before(earliest) {
		next = earliest
	}
	return next, nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bilgisen/feedcaster/internal/models"
)

const postColumns = `id, channel_id, source_url, title, content, processed, media_urls, fingerprint,
	status, scheduled_at, published_at, message_id, created_at`

// CreatePost inserts a post and fills in its ID and creation time.
func (s *Store) CreatePost(ctx context.Context, p *models.Post) error {
	if p.Status == "" {
		p.Status = models.StatusPending
	}
	p.ScheduledAt = ts(p.ScheduledAt)
	p.PublishedAt = tsPtr(p.PublishedAt)
	p.CreatedAt = ts(time.Now())

	query := s.q(`
		INSERT INTO posts (channel_id, source_url, title, content, processed, media_urls, fingerprint,
			status, scheduled_at, published_at, message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	err := s.db.QueryRowxContext(ctx, query,
		p.ChannelID, p.SourceURL, p.Title, p.Content, p.Processed, p.MediaURLs, p.Fingerprint,
		string(p.Status), p.ScheduledAt, p.PublishedAt, p.MessageID, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// GetPost returns the post with the given ID.
func (s *Store) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	var p models.Post
	if err := s.db.GetContext(ctx, &p, s.q(`SELECT `+postColumns+` FROM posts WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &p, nil
}

// PostExists reports whether the channel already holds a post with the fingerprint.
func (s *Store) PostExists(ctx context.Context, channelID int64, fingerprint string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		s.q(`SELECT COUNT(*) FROM posts WHERE channel_id = ? AND fingerprint = ?`), channelID, fingerprint)
	if err != nil {
		return false, fmt.Errorf("failed to check fingerprint: %w", err)
	}
	return n > 0, nil
}

// LastScheduledAt returns the latest scheduled time across all posts of the
// channel. ok is false when the channel has no posts.
func (s *Store) LastScheduledAt(ctx context.Context, channelID int64) (t time.Time, ok bool, err error) {
	err = s.db.GetContext(ctx, &t, s.q(`
		SELECT scheduled_at FROM posts
		WHERE channel_id = ?
		ORDER BY scheduled_at DESC
		LIMIT 1`), channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get last scheduled post: %w", err)
	}
	return t, true, nil
}

// DuePosts returns pending posts of active channels scheduled at or before
// now, oldest first. Posts of inactive channels stay pending and are not
// counted against limit.
func (s *Store) DuePosts(ctx context.Context, now time.Time, limit int) ([]models.Post, error) {
	posts := []models.Post{}
	query := s.q(`SELECT ` + postColumns + ` FROM posts
		WHERE status = ? AND scheduled_at <= ?
			AND channel_id IN (SELECT id FROM channels WHERE active = ?)
		ORDER BY scheduled_at, id
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &posts, query, string(models.StatusPending), ts(now), true, limit); err != nil {
		return nil, fmt.Errorf("failed to list due posts: %w", err)
	}
	return posts, nil
}

// ChannelQueue returns the pending posts of a channel in publish order.
func (s *Store) ChannelQueue(ctx context.Context, channelID int64) ([]models.Post, error) {
	return s.listByStatus(ctx, channelID, models.StatusPending)
}

// ModerationQueue returns the posts awaiting review. channelID 0 lists all channels.
func (s *Store) ModerationQueue(ctx context.Context, channelID int64) ([]models.Post, error) {
	return s.listByStatus(ctx, channelID, models.StatusModeration)
}

func (s *Store) listByStatus(ctx context.Context, channelID int64, status models.PostStatus) ([]models.Post, error) {
	posts := []models.Post{}
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = ?`
	args := []any{string(status)}
	if channelID != 0 {
		query += ` AND channel_id = ?`
		args = append(args, channelID)
	}
	query += ` ORDER BY scheduled_at, id`

	if err := s.db.SelectContext(ctx, &posts, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list %s posts: %w", status, err)
	}
	return posts, nil
}

// Transition moves a post from one status to the next. messageID and
// publishedAt are recorded when non-nil. The change is applied only if the
// post is still in from, so concurrent transitions cannot both succeed.
func (s *Store) Transition(ctx context.Context, id int64, from, to models.PostStatus, messageID *int64, publishedAt *time.Time) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}

	query := s.q(`
		UPDATE posts
		SET status = ?,
			message_id = COALESCE(?, message_id),
			published_at = COALESCE(?, published_at)
		WHERE id = ? AND status = ?`)
	res, err := s.db.ExecContext(ctx, query, string(to), messageID, tsPtr(publishedAt), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update post status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		current, err := s.GetPost(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("post %d is %s, not %s: %w", id, current.Status, from, ErrInvalidTransition)
	}
	return nil
}

// UpdateProcessed replaces the ready-to-publish content of a post.
func (s *Store) UpdateProcessed(ctx context.Context, id int64, processed string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE posts SET processed = ? WHERE id = ?`), processed, id)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	return expectAffected(res)
}

// DeletePost removes one post.
func (s *Store) DeletePost(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM posts WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return expectAffected(res)
}

// ClearQueue deletes the pending posts of a channel and returns how many were removed.
func (s *Store) ClearQueue(ctx context.Context, channelID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM posts WHERE channel_id = ? AND status = ?`), channelID, string(models.StatusPending))
	if err != nil {
		return 0, fmt.Errorf("failed to clear queue: %w", err)
	}
	return res.RowsAffected()
}

// StatusCounts returns the number of posts per status.
func (s *Store) StatusCounts(ctx context.Context) (map[models.PostStatus]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM posts GROUP BY status`); err != nil {
		return nil, fmt.Errorf("failed to count posts: %w", err)
	}

	counts := make(map[models.PostStatus]int, len(rows))
	for _, r := range rows {
		counts[models.PostStatus(r.Status)] = r.Count
	}
	return counts, nil
}

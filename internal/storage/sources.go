package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bilgisen/feedcaster/internal/models"
)

const sourceColumns = `s.id, s.channel_id, s.url, s.name, s.active, s.cursor, s.error_count, s.last_checked_at, s.created_at`

// AddSource subscribes a channel to a feed URL.
func (s *Store) AddSource(ctx context.Context, src *models.Source) error {
	var exists int
	err := s.db.GetContext(ctx, &exists,
		s.q(`SELECT COUNT(*) FROM sources WHERE channel_id = ? AND url = ?`), src.ChannelID, src.URL)
	if err != nil {
		return fmt.Errorf("failed to check source: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("source %s: %w", src.URL, ErrAlreadyExists)
	}

	src.CreatedAt = ts(time.Now())
	query := s.q(`
		INSERT INTO sources (channel_id, url, name, active, cursor, error_count, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		RETURNING id`)
	err = s.db.QueryRowxContext(ctx, query,
		src.ChannelID, src.URL, src.Name, src.Active, src.Cursor, src.CreatedAt,
	).Scan(&src.ID)
	if err != nil {
		return fmt.Errorf("failed to insert source: %w", err)
	}
	return nil
}

// GetSource returns the source with the given ID.
func (s *Store) GetSource(ctx context.Context, id int64) (*models.Source, error) {
	var src models.Source
	err := s.db.GetContext(ctx, &src, s.q(`SELECT `+sourceColumns+` FROM sources s WHERE s.id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return &src, nil
}

// ListSources returns the sources of one channel.
func (s *Store) ListSources(ctx context.Context, channelID int64) ([]models.Source, error) {
	sources := []models.Source{}
	err := s.db.SelectContext(ctx, &sources,
		s.q(`SELECT `+sourceColumns+` FROM sources s WHERE s.channel_id = ? ORDER BY s.id`), channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}

// ListActiveSources returns every active source whose channel is active too.
func (s *Store) ListActiveSources(ctx context.Context) ([]models.Source, error) {
	sources := []models.Source{}
	query := s.q(`
		SELECT ` + sourceColumns + `
		FROM sources s
		JOIN channels c ON c.id = s.channel_id
		WHERE s.active = ? AND c.active = ?
		ORDER BY s.id`)
	if err := s.db.SelectContext(ctx, &sources, query, true, true); err != nil {
		return nil, fmt.Errorf("failed to list active sources: %w", err)
	}
	return sources, nil
}

// RecordCheckSuccess resets the error counter and advances the cursor.
// An empty cursor leaves the stored one untouched.
func (s *Store) RecordCheckSuccess(ctx context.Context, id int64, cursor string, at time.Time) error {
	var (
		res sql.Result
		err error
	)
	if cursor == "" {
		res, err = s.db.ExecContext(ctx,
			s.q(`UPDATE sources SET error_count = 0, last_checked_at = ? WHERE id = ?`), ts(at), id)
	} else {
		res, err = s.db.ExecContext(ctx,
			s.q(`UPDATE sources SET error_count = 0, cursor = ?, last_checked_at = ? WHERE id = ?`), cursor, ts(at), id)
	}
	if err != nil {
		return fmt.Errorf("failed to update source check: %w", err)
	}
	return expectAffected(res)
}

// RecordCheckFailure increments the consecutive error counter.
func (s *Store) RecordCheckFailure(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE sources SET error_count = error_count + 1, last_checked_at = ? WHERE id = ?`), ts(at), id)
	if err != nil {
		return fmt.Errorf("failed to update source check: %w", err)
	}
	return expectAffected(res)
}

// DeleteSource removes one source.
func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM sources WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	return expectAffected(res)
}

package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bilgisen/feedcaster/internal/utils"
)

const (
	// CaptionLimit is the visible length limit of a photo caption.
	CaptionLimit = 1024
	// MessageLimit is the visible length limit of a text message.
	MessageLimit = 4096
)

// ErrPublishFailed is returned when every delivery stage failed.
var ErrPublishFailed = errors.New("publisher: publish failed")

// Sink delivers finished posts to channels. Delivery falls back from the
// entry's media to a placeholder image and finally to plain text.
type Sink struct {
	tg             *TelegramClient
	media          *MediaFetcher
	placeholderURL string
	archive        Archiver
	logger         zerolog.Logger
}

type SinkOption func(*Sink)

func WithPlaceholder(url string) SinkOption {
	return func(s *Sink) { s.placeholderURL = url }
}

func WithArchiver(a Archiver) SinkOption {
	return func(s *Sink) { s.archive = a }
}

func WithLogger(l zerolog.Logger) SinkOption {
	return func(s *Sink) { s.logger = l }
}

func NewSink(tg *TelegramClient, media *MediaFetcher, opts ...SinkOption) *Sink {
	s := &Sink{
		tg:     tg,
		media:  media,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish sends content to the channel and returns the message id.
func (s *Sink) Publish(ctx context.Context, chatID, content string, mediaURLs []string) (int64, error) {
	if len(mediaURLs) == 0 {
		return s.sendText(ctx, chatID, content)
	}

	caption := utils.TruncateHTML(content, CaptionLimit)
	for _, u := range mediaURLs {
		if id, ok := s.sendPhoto(ctx, chatID, u, caption); ok {
			return id, nil
		}
	}

	if s.placeholderURL != "" {
		if id, ok := s.sendPhoto(ctx, chatID, s.placeholderURL, caption); ok {
			return id, nil
		}
	}

	s.logger.Warn().Str("chat", chatID).Msg("Media delivery failed, sending text only")
	return s.sendText(ctx, chatID, content)
}

func (s *Sink) sendPhoto(ctx context.Context, chatID, url, caption string) (int64, bool) {
	jpeg, err := s.media.Fetch(ctx, url)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", url).Msg("Media download failed")
		return 0, false
	}

	id, err := s.tg.SendPhoto(ctx, chatID, jpeg, caption)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", url).Str("chat", chatID).Msg("Send photo failed")
		return 0, false
	}

	if s.archive != nil {
		if key, err := s.archive.Archive(ctx, jpeg); err != nil {
			s.logger.Warn().Err(err).Msg("Media archive failed")
		} else {
			s.logger.Debug().Str("key", key).Msg("Media archived")
		}
	}
	return id, true
}

func (s *Sink) sendText(ctx context.Context, chatID, content string) (int64, error) {
	id, err := s.tg.SendMessage(ctx, chatID, utils.TruncateHTML(content, MessageLimit))
	if err != nil {
		s.logger.Error().Err(err).Str("chat", chatID).Msg("Send message failed")
		return 0, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return id, nil
}

// Edit replaces the content of a published message. Photo messages get
// their caption replaced instead.
func (s *Sink) Edit(ctx context.Context, chatID string, messageID int64, content string) bool {
	err := s.tg.EditMessageText(ctx, chatID, messageID, utils.TruncateHTML(content, MessageLimit))
	if err == nil {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "no text in the message") {
		err = s.tg.EditMessageCaption(ctx, chatID, messageID, utils.TruncateHTML(content, CaptionLimit))
		if err == nil {
			return true
		}
	}

	s.logger.Warn().Err(err).Str("chat", chatID).Int64("message_id", messageID).Msg("Edit failed")
	return false
}

// Delete removes a published message.
func (s *Sink) Delete(ctx context.Context, chatID string, messageID int64) bool {
	if err := s.tg.DeleteMessage(ctx, chatID, messageID); err != nil {
		s.logger.Warn().Err(err).Str("chat", chatID).Int64("message_id", messageID).Msg("Delete failed")
		return false
	}
	return true
}

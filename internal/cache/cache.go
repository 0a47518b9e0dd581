package cache

import (
	"context"
	"strconv"
	"time"
)

// Cache remembers which content fingerprints were already ingested per
// channel. It is a fast path in front of the post store, never the only check.
type Cache interface {
	IsProcessed(ctx context.Context, channelID int64, fingerprint string) (bool, error)
	MarkProcessed(ctx context.Context, channelID int64, fingerprint string) error
	ClearProcessed(ctx context.Context, channelID int64) error
	Close() error
}

func key(prefix string, channelID int64, fingerprint string) string {
	return prefix + strconv.FormatInt(channelID, 10) + ":" + fingerprint
}

func channelPattern(prefix string, channelID int64) string {
	return prefix + strconv.FormatInt(channelID, 10) + ":*"
}

const defaultTTL = 30 * 24 * time.Hour

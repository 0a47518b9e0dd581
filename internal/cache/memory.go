package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache used when Redis is not configured.
type MemoryCache struct {
	mu   sync.Mutex
	data map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemoryCache{
		data: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (m *MemoryCache) Close() error {
	return nil
}

func (m *MemoryCache) IsProcessed(_ context.Context, channelID int64, fingerprint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key("", channelID, fingerprint)
	expires, ok := m.data[k]
	if !ok {
		return false, nil
	}
	if m.now().After(expires) {
		delete(m.data, k)
		return false, nil
	}
	return true, nil
}

func (m *MemoryCache) MarkProcessed(_ context.Context, channelID int64, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key("", channelID, fingerprint)] = m.now().Add(m.ttl)
	return nil
}

func (m *MemoryCache) ClearProcessed(_ context.Context, channelID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := strings.TrimSuffix(channelPattern("", channelID), "*")
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	return nil
}

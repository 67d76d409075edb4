package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryItem struct {
	value     string
	expiresAt time.Time // zero = без срока
}

// MemoryCache - in-process реализация, когда Redis не настроен.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

func (m *MemoryCache) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return "", ErrNotFound
	}
	if !item.expiresAt.IsZero() && m.now().After(item.expiresAt) {
		delete(m.items, key)
		return "", ErrNotFound
	}
	return item.value, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := memoryItem{value: value}
	if expiration > 0 {
		item.expiresAt = m.now().Add(expiration)
	}
	m.items[key] = item
	return nil
}

func (m *MemoryCache) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	if item, ok := m.items[key]; ok {
		parsed, err := strconv.ParseInt(item.value, 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	}
	n++
	m.items[key] = memoryItem{value: strconv.FormatInt(n, 10)}
	return n, nil
}

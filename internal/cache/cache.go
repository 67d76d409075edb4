package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var ErrNotFound = errors.New("key not found in cache")

// Cache - минимальный набор операций, который нужен версионному кэшу.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
}

// Versioned - инвалидация через счетчик версии: ключ данных содержит
// текущую версию, Bump делает один INCR и старые ключи просто перестают читаться.
type Versioned struct {
	cache Cache
	ttl   time.Duration
}

func NewVersioned(c Cache, ttl time.Duration) *Versioned {
	return &Versioned{cache: c, ttl: ttl}
}

func versionKey(ns, id string) string {
	return fmt.Sprintf("%s:%s:version", ns, id)
}

// Key - ns:id:v{N} с текущей версией.
func (v *Versioned) Key(ctx context.Context, ns, id string) (string, error) {
	version := int64(0)
	raw, err := v.cache.Get(ctx, versionKey(ns, id))
	switch {
	case err == nil:
		version, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return "", fmt.Errorf("corrupt version for %s:%s: %w", ns, id, err)
		}
	case !errors.Is(err, ErrNotFound):
		return "", err
	}
	return fmt.Sprintf("%s:%s:v%d", ns, id, version), nil
}

// Bump - O(1) инвалидация всего, что лежало под ns:id.
func (v *Versioned) Bump(ctx context.Context, ns, id string) error {
	_, err := v.cache.Incr(ctx, versionKey(ns, id))
	return err
}

// GetJSON читает значение текущей версии. false = промах.
func (v *Versioned) GetJSON(ctx context.Context, ns, id string, dst interface{}) (bool, error) {
	key, err := v.Key(ctx, ns, id)
	if err != nil {
		return false, err
	}
	raw, err := v.cache.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, err
	}
	return true, nil
}

func (v *Versioned) SetJSON(ctx context.Context, ns, id string, value interface{}) error {
	key, err := v.Key(ctx, ns, id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return v.cache.Set(ctx, key, string(data), v.ttl)
}

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/coocood/freecache"
	"github.com/riskibarqy/tm-alerts/internal/platform/resilience"
)

const minSizeBytes = 512 * 1024

// Store is a byte cache with a fixed TTL. Values are copied in and out, so
// callers may keep the returned slice.
type Store struct {
	cache  *freecache.Cache
	ttl    int
	flight resilience.SingleFlight[[]byte]
}

// NewStore allocates sizeBytes of cache memory. A ttl below one second
// disables expiry.
func NewStore(sizeBytes int, ttl time.Duration) *Store {
	if sizeBytes < minSizeBytes {
		sizeBytes = minSizeBytes
	}
	seconds := 0
	if ttl > 0 {
		seconds = max(int(ttl.Seconds()), 1)
	}
	return &Store{
		cache: freecache.NewCache(sizeBytes),
		ttl:   seconds,
	}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool) {
	if s == nil || key == "" {
		return nil, false
	}
	value, err := s.cache.Get([]byte(key))
	if err != nil {
		return nil, false
	}
	return value, true
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	if s == nil || key == "" {
		return nil
	}
	if err := s.cache.Set([]byte(key), value, s.ttl); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) {
	if s == nil || key == "" {
		return
	}
	s.cache.Del([]byte(key))
}

func (s *Store) Clear() {
	if s == nil {
		return
	}
	s.cache.Clear()
}

// GetOrLoad returns the cached value or runs loader once per key across
// concurrent callers. The second return reports a cache hit.
func (s *Store) GetOrLoad(ctx context.Context, key string, loader func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	if loader == nil {
		return nil, false, fmt.Errorf("loader is required")
	}
	if s == nil || key == "" {
		value, err := loader(ctx)
		return value, false, err
	}

	if value, ok := s.Get(ctx, key); ok {
		return value, true, nil
	}

	value, err, _ := s.flight.Do(key, func() ([]byte, error) {
		if cached, ok := s.Get(ctx, key); ok {
			return cached, nil
		}

		loaded, loadErr := loader(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		// Oversized entries are served uncached.
		_ = s.Set(ctx, key, loaded)
		return loaded, nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, false, nil
}

package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedClient layers a Redis cache over a Source. A nil Redis client
// turns the layer into a passthrough. Cache failures are logged and
// ignored; the provider stays the source of truth.
type CachedClient struct {
	source Source
	cache  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ Source = (*CachedClient)(nil)

// NewCachedClient wraps source with a Redis cache.
func NewCachedClient(source Source, cache *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedClient {
	return &CachedClient{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: logger.Named("places_cache"),
	}
}

// FetchDetails returns cached details when present, otherwise fetches
// and caches.
func (c *CachedClient) FetchDetails(ctx context.Context, placeRef string) (*PlaceDetails, error) {
	if c.cache == nil {
		return c.source.FetchDetails(ctx, placeRef)
	}

	key := "places:details:" + placeRef
	if raw, err := c.cache.Get(ctx, key).Bytes(); err == nil {
		var details PlaceDetails
		if err := json.Unmarshal(raw, &details); err == nil {
			return &details, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Debug("cache read failed", zap.String("key", key), zap.Error(err))
	}

	details, err := c.source.FetchDetails(ctx, placeRef)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, details)
	return details, nil
}

// FetchPhotos returns cached photos when present, otherwise fetches and
// caches. The cap participates in the key because it changes the result.
func (c *CachedClient) FetchPhotos(ctx context.Context, placeRef string, max int) ([]Photo, error) {
	if c.cache == nil {
		return c.source.FetchPhotos(ctx, placeRef, max)
	}

	key := fmt.Sprintf("places:photos:%s:%d", placeRef, max)
	if raw, err := c.cache.Get(ctx, key).Bytes(); err == nil {
		var photos []Photo
		if err := json.Unmarshal(raw, &photos); err == nil {
			return photos, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Debug("cache read failed", zap.String("key", key), zap.Error(err))
	}

	photos, err := c.source.FetchPhotos(ctx, placeRef, max)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, photos)
	return photos, nil
}

func (c *CachedClient) store(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Debug("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

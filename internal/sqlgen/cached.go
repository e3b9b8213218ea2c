package sqlgen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/flipdesk/flipquery/internal/cache"
	"github.com/flipdesk/flipquery/internal/metrics"
)

// Cached memoizes hybrid generations by structured prompt. Identical
// concurrent requests share one upstream call. Legacy requests depend on
// free text and history, so they always pass through.
type Cached struct {
	next  Generator
	cache cache.Cache
	ttl   time.Duration
	sf    singleflight.Group
}

// NewCached wraps next with cache c.
func NewCached(next Generator, c cache.Cache, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: c, ttl: ttl}
}

// Key is the cache key for a hybrid request.
func Key(req Request) string {
	h := sha256.Sum256([]byte(req.StructuredPrompt))
	return hex.EncodeToString(h[:])
}

func (c *Cached) Generate(ctx context.Context, req Request) (string, error) {
	if !req.IsHybridQuery || req.StructuredPrompt == "" {
		return c.next.Generate(ctx, req)
	}
	key := Key(req)

	if sql, ok, err := c.cache.Get(ctx, key); err != nil {
		log.Warn().Err(err).Msg("sql cache read failed")
	} else if ok {
		metrics.SQLCacheLookups.WithLabelValues("hit").Inc()
		return sql, nil
	}
	metrics.SQLCacheLookups.WithLabelValues("miss").Inc()

	v, err, shared := c.sf.Do(key, func() (any, error) {
		if sql, ok, _ := c.cache.Get(ctx, key); ok {
			return sql, nil
		}
		sql, err := c.next.Generate(ctx, req)
		if err != nil {
			return "", err
		}
		if err := c.cache.Set(ctx, key, sql, c.ttl); err != nil {
			log.Warn().Err(err).Msg("sql cache write failed")
		}
		return sql, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		log.Debug().Str("key", key[:12]).Msg("sql generation shared")
	}
	return v.(string), nil
}

// Invalidate drops the cached SQL for req.
func (c *Cached) Invalidate(ctx context.Context, req Request) error {
	return c.cache.Invalidate(ctx, Key(req))
}

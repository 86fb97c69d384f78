// Package cache holds the last aggregated article set and refreshes it at
// most once at a time.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/news-intel/internal/model"
)

// DefaultTTL is how long an entry is served before a refresh.
const DefaultTTL = 30 * time.Minute

// Loader produces a fresh article set, typically by running the pipeline.
type Loader func(ctx context.Context) ([]model.Article, error)

// Cache is a single-slot get-or-refresh cache.
type Cache struct {
	load  Loader
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu    sync.RWMutex
	entry *model.CacheEntry
}

// New creates a cache. A non-positive ttl uses DefaultTTL.
func New(load Loader, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{load: load, ttl: ttl, now: time.Now}
}

// Get returns the cached entry while it is fresh. An expired slot or force
// triggers one refresh shared by every concurrent caller. When the refresh
// fails and an older entry exists, the older entry is returned.
func (c *Cache) Get(ctx context.Context, force bool) (model.CacheEntry, error) {
	if !force {
		if e, ok := c.fresh(); ok {
			return e, nil
		}
	}

	v, err, shared := c.group.Do("refresh", func() (any, error) {
		// A refresh may have finished since the check above.
		if !force {
			if e, ok := c.fresh(); ok {
				return e, nil
			}
		}
		return c.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		if stale, ok := c.Peek(); ok {
			zap.L().Warn("cache: refresh failed, serving stale entry",
				zap.Time("fetched_at", stale.FetchedAt),
				zap.Error(err),
			)
			return stale, nil
		}
		return model.CacheEntry{}, err
	}
	if shared {
		zap.L().Debug("cache: joined in-flight refresh")
	}
	return v.(model.CacheEntry), nil
}

func (c *Cache) refresh(ctx context.Context) (model.CacheEntry, error) {
	start := c.now()
	articles, err := c.load(ctx)
	if err != nil {
		return model.CacheEntry{}, eris.Wrap(err, "cache: refresh")
	}
	if articles == nil {
		articles = []model.Article{}
	}
	fetched := c.now()
	e := model.CacheEntry{
		Articles:  articles,
		FetchedAt: fetched,
		ExpiresAt: fetched.Add(c.ttl),
	}

	c.mu.Lock()
	c.entry = &e
	c.mu.Unlock()

	zap.L().Info("cache: refreshed",
		zap.Int("articles", len(articles)),
		zap.Duration("elapsed", fetched.Sub(start)),
	)
	return e, nil
}

func (c *Cache) fresh() (model.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry.Expired(c.now()) {
		return model.CacheEntry{}, false
	}
	return *c.entry, true
}

// Peek returns the current entry regardless of expiry.
func (c *Cache) Peek() (model.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return model.CacheEntry{}, false
	}
	return *c.entry, true
}

// Invalidate drops the entry so the next Get refreshes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

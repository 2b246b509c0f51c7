package fetch

import (
	"context"
	"log/slog"
)

// Cache stores responses keyed by the requested URL.
// Get reports found=false on a miss; err is reserved for storage failures.
type Cache interface {
	Get(ctx context.Context, url string) (resp *Response, found bool, err error)
	Put(ctx context.Context, url string, resp *Response) error
}

// Cached is a Fetcher that prefers cached responses and stores fresh ones.
// Cache failures are logged and never fail a fetch.
type Cached struct {
	next   Fetcher
	cache  Cache
	logger *slog.Logger
}

// NewCached layers cache over next. A nil logger means slog.Default().
func NewCached(next Fetcher, cache Cache, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, cache: cache, logger: logger}
}

// Fetch returns the cached response for url, or fetches and caches it.
// data: URLs bypass the cache.
func (c *Cached) Fetch(ctx context.Context, url string) (*Response, error) {
	if IsDataURL(url) {
		return c.next.Fetch(ctx, url)
	}

	resp, found, err := c.cache.Get(ctx, url)
	if err != nil {
		c.logger.Warn("cache lookup failed", "url", url, "error", err)
	} else if found {
		c.logger.Debug("cache hit", "url", url)
		return resp, nil
	}

	resp, err = c.next.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(ctx, url, resp); err != nil {
		c.logger.Warn("cache store failed", "url", url, "error", err)
	}
	return resp, nil
}

package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TemplateFetcher retrieves template bytes from the network.
type TemplateFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// TemplateCache caches fetched templates with TTL so a long running server
// downloads each template once per period.
type TemplateCache struct {
	fetcher TemplateFetcher
	ttl     time.Duration
	clock   func() time.Time
	sf      singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedTemplate
}

type cachedTemplate struct {
	body      []byte
	expiresAt time.Time
}

func NewTemplateCache(fetcher TemplateFetcher, ttl time.Duration) *TemplateCache {
	return &TemplateCache{
		fetcher: fetcher,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:   make(map[string]cachedTemplate),
	}
}

// Fetch returns a private copy of the template; callers may modify it freely.
func (c *TemplateCache) Fetch(ctx context.Context, url string) ([]byte, error) {
	if c.ttl <= 0 {
		return c.fetcher.Fetch(ctx, url)
	}
	if body, ok := c.lookup(url); ok {
		return clone(body), nil
	}

	result, err, _ := c.sf.Do(url, func() (interface{}, error) {
		if body, ok := c.lookup(url); ok {
			return body, nil
		}

		body, err := c.fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		expiresAt := c.clock().Add(c.ttlWithJitter())
		c.cache[url] = cachedTemplate{body: body, expiresAt: expiresAt}
		c.mu.Unlock()
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(result.([]byte)), nil
}

func (c *TemplateCache) lookup(url string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[url]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return nil, false
	}
	return entry.body, true
}

// ttlWithJitter must be called with mu held; rnd is not safe for concurrent use.
func (c *TemplateCache) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedAnswer is what Cache stores/returns for a fingerprint hit
// (spec §4.11 step 2: "return cached answer + citations").
type CachedAnswer struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Usage     Usage      `json:"usage"`
}

// Cache is the Redis-backed answer cache keyed by Fingerprint. Grounded
// on cache/redis.go's client lifecycle and the teacher's own
// Redis-as-TTL-cache idiom (SETEX on write, GET on read); misses and
// Redis outages are treated identically — a cache miss, not an error —
// since the answer cache is an optimization, never a correctness path.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	hits    atomic.Int64
	misses  atomic.Int64
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(fingerprint string) string {
	return "answer_cache:" + fingerprint
}

// Get returns the cached answer for fingerprint, or ok=false on a miss
// or any Redis error.
func (c *Cache) Get(ctx context.Context, fingerprint string) (CachedAnswer, bool) {
	if c == nil || c.client == nil {
		return CachedAnswer{}, false
	}
	raw, err := c.client.Get(ctx, cacheKey(fingerprint)).Bytes()
	if err != nil {
		c.misses.Add(1)
		return CachedAnswer{}, false
	}
	var cached CachedAnswer
	if err := json.Unmarshal(raw, &cached); err != nil {
		c.misses.Add(1)
		return CachedAnswer{}, false
	}
	c.hits.Add(1)
	return cached, true
}

// Put stores ans under fingerprint with the configured TTL.
func (c *Cache) Put(ctx context.Context, fingerprint string, ans CachedAnswer) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(ans)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, cacheKey(fingerprint), raw, c.ttl).Err()
}

// Invalidate deletes every cached answer whose fingerprint key matches
// pattern (supplemented feature: original_source exposes cache
// invalidation by pattern alongside its TTL cache).
func (c *Cache) Invalidate(ctx context.Context, pattern string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	var deleted int64
	iter := c.client.Scan(ctx, 0, cacheKey(pattern), 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err == nil {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("answer: scan cache keys: %w", err)
	}
	return deleted, nil
}

// Stats reports cumulative hit/miss counters (supplemented feature: the
// cache statistics endpoint in SPEC_FULL.md).
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

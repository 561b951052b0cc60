// Package cache memoizes stage results per (symbol, stage) within each
// stage's freshness window. The first level is a sharded in-memory store
// shared by every run in the process; an optional Redis second level shares
// results across processes. Failed results are never stored, so the next
// request always retries a failed stage.
package cache

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/anveshkr/stockscout/internal/contracts"
	"github.com/anveshkr/stockscout/pkg/logger"
	"github.com/anveshkr/stockscout/pkg/redis"
)

const shardCount = 16

// entry is immutable once stored: a put replaces the pointer under the
// shard lock, never mutates an entry in place.
type entry struct {
	result    contracts.StageResult
	expiresAt time.Time
}

type shard struct {
	mu    sync.RWMutex
	items map[string]*entry
}

// l2Envelope is the JSON shape stored in Redis.
type l2Envelope struct {
	Result    contracts.StageResult `json:"result"`
	ExpiresAt time.Time             `json:"expires_at"`
}

// ResultCache is the process-wide stage result cache. Concurrent access to
// different keys contends only on the owning shard.
type ResultCache struct {
	shards [shardCount]*shard
	l2     *redis.Cache // nil when Redis is disabled
	logger *logger.Logger

	stopJanitor chan struct{}
	stopOnce    sync.Once
}

// New creates a result cache. l2 may be nil for a memory-only cache.
// A background janitor evicts expired entries so long-idle processes do
// not accumulate stale payloads.
func New(log *logger.Logger, l2 *redis.Cache) *ResultCache {
	c := &ResultCache{
		l2:          l2,
		logger:      log,
		stopJanitor: make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i] = &shard{items: make(map[string]*entry)}
	}
	go c.janitor(5 * time.Minute)
	return c
}

// Close stops the janitor.
func (c *ResultCache) Close() {
	c.stopOnce.Do(func() { close(c.stopJanitor) })
}

// Get returns the cached result for (symbol, stage) if one exists and now
// is before its expiry. The returned result carries Source == Cached.
func (c *ResultCache) Get(ctx context.Context, symbol contracts.Symbol, stage string, now time.Time) (contracts.StageResult, bool) {
	key := cacheKey(symbol, stage)
	sh := c.shardFor(key)

	sh.mu.RLock()
	e, ok := sh.items[key]
	sh.mu.RUnlock()

	if ok {
		if now.Before(e.expiresAt) {
			res := e.result
			res.Source = contracts.SourceCached
			return res, true
		}
		// Lazily evict the expired entry.
		sh.mu.Lock()
		if cur, still := sh.items[key]; still && cur == e {
			delete(sh.items, key)
		}
		sh.mu.Unlock()
	}

	if c.l2 == nil {
		return contracts.StageResult{}, false
	}

	var env l2Envelope
	found, err := c.l2.Get(ctx, key, &env)
	if err != nil {
		c.logger.WithError(err).Warn("L2 cache read failed")
		return contracts.StageResult{}, false
	}
	if !found || !now.Before(env.ExpiresAt) {
		return contracts.StageResult{}, false
	}

	// Promote to memory for subsequent hits.
	sh.mu.Lock()
	sh.items[key] = &entry{result: env.Result, expiresAt: env.ExpiresAt}
	sh.mu.Unlock()

	res := env.Result
	res.Source = contracts.SourceCached
	return res, true
}

// Put stores a non-Failed result with expiry now + window. Storing a
// Failed result is a no-op. A concurrent put for the same key is
// last-writer-wins: the entry pointer is replaced atomically.
func (c *ResultCache) Put(ctx context.Context, symbol contracts.Symbol, stage string, result contracts.StageResult, window time.Duration, now time.Time) {
	if result.Status == contracts.StatusFailed || window <= 0 {
		return
	}

	key := cacheKey(symbol, stage)
	expiresAt := now.Add(window)
	sh := c.shardFor(key)

	sh.mu.Lock()
	sh.items[key] = &entry{result: result, expiresAt: expiresAt}
	sh.mu.Unlock()

	if c.l2 != nil {
		env := l2Envelope{Result: result, ExpiresAt: expiresAt}
		if err := c.l2.Set(ctx, key, env, window); err != nil {
			c.logger.WithError(err).Warn("L2 cache write failed")
		}
	}
}

// Invalidate forcibly evicts the entry for (symbol, stage).
func (c *ResultCache) Invalidate(ctx context.Context, symbol contracts.Symbol, stage string) {
	key := cacheKey(symbol, stage)
	sh := c.shardFor(key)

	sh.mu.Lock()
	delete(sh.items, key)
	sh.mu.Unlock()

	if c.l2 != nil {
		if err := c.l2.Delete(ctx, key); err != nil {
			c.logger.WithError(err).Warn("L2 cache delete failed")
		}
	}
}

// InvalidateSymbol evicts every stage entry for the symbol. Used when a
// caller requests a forced refresh.
func (c *ResultCache) InvalidateSymbol(ctx context.Context, symbol contracts.Symbol) {
	prefix := string(symbol) + "|"
	for _, sh := range c.shards {
		sh.mu.Lock()
		for key := range sh.items {
			if len(key) > len(prefix) && key[:len(prefix)] == prefix {
				delete(sh.items, key)
			}
		}
		sh.mu.Unlock()
	}

	if c.l2 != nil {
		if err := c.l2.DeletePattern(ctx, prefix+"*"); err != nil {
			c.logger.WithError(err).Warn("L2 cache pattern delete failed")
		}
	}
}

// janitor periodically evicts expired entries from memory.
func (c *ResultCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopJanitor:
			return
		case now := <-ticker.C:
			for _, sh := range c.shards {
				sh.mu.Lock()
				for key, e := range sh.items {
					if !now.Before(e.expiresAt) {
						delete(sh.items, key)
					}
				}
				sh.mu.Unlock()
			}
		}
	}
}

func (c *ResultCache) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%shardCount]
}

func cacheKey(symbol contracts.Symbol, stage string) string {
	return fmt.Sprintf("%s|%s", symbol, stage)
}

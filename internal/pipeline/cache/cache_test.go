package cache

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anveshkr/stockscout/internal/contracts"
	"github.com/anveshkr/stockscout/pkg/config"
	"github.com/anveshkr/stockscout/pkg/logger"
)

func newTestCache(t *testing.T) *ResultCache {
	t.Helper()
	c := New(logger.New(&config.Config{LogLevel: "error", LogFormat: "json"}), nil)
	t.Cleanup(c.Close)
	return c
}

func successResult(stage, payload string) contracts.StageResult {
	return contracts.StageResult{
		Stage:     stage,
		Status:    contracts.StatusSuccess,
		Payload:   json.RawMessage(payload),
		Timestamp: time.Now(),
		Source:    contracts.SourceFresh,
	}
}

func TestResultCache_PutGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now()

	c.Put(ctx, "NSE:TCS", "market_data", successResult("market_data", `{"price":100}`), 15*time.Minute, now)

	got, ok := c.Get(ctx, "NSE:TCS", "market_data", now.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, contracts.SourceCached, got.Source, "cache hits must be marked cached")
	assert.JSONEq(t, `{"price":100}`, string(got.Payload))
}

func TestResultCache_Expiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now()

	c.Put(ctx, "NSE:TCS", "news", successResult("news", `{}`), 30*time.Minute, now)

	_, ok := c.Get(ctx, "NSE:TCS", "news", now.Add(29*time.Minute))
	assert.True(t, ok, "entry inside the freshness window must hit")

	_, ok = c.Get(ctx, "NSE:TCS", "news", now.Add(30*time.Minute))
	assert.False(t, ok, "entry at the window boundary must miss")
}

func TestResultCache_NeverStoresFailures(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now()

	failed := contracts.StageResult{
		Stage:  "news",
		Status: contracts.StatusFailed,
		Reason: "all sources unreachable",
	}
	c.Put(ctx, "NSE:TCS", "news", failed, 30*time.Minute, now)

	_, ok := c.Get(ctx, "NSE:TCS", "news", now)
	assert.False(t, ok, "failed results must never be cached")
}

func TestResultCache_DegradedIsCached(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now()

	degraded := contracts.StageResult{
		Stage:   "news",
		Status:  contracts.StatusDegraded,
		Payload: json.RawMessage(`{}`),
		Caveats: []string{"one source down"},
	}
	c.Put(ctx, "NSE:TCS", "news", degraded, 30*time.Minute, now)

	got, ok := c.Get(ctx, "NSE:TCS", "news", now)
	require.True(t, ok)
	assert.Equal(t, contracts.StatusDegraded, got.Status)
	assert.Equal(t, []string{"one source down"}, got.Caveats)
}

func TestResultCache_ZeroWindowIsNotStored(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now()

	c.Put(ctx, "NSE:TCS", "report", successResult("report", `{}`), 0, now)

	_, ok := c.Get(ctx, "NSE:TCS", "report", now)
	assert.False(t, ok)
}

func TestResultCache_Invalidate(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now()

	c.Put(ctx, "NSE:TCS", "market_data", successResult("market_data", `{}`), time.Hour, now)
	c.Invalidate(ctx, "NSE:TCS", "market_data")

	_, ok := c.Get(ctx, "NSE:TCS", "market_data", now)
	assert.False(t, ok)
}

func TestResultCache_InvalidateSymbol(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now()

	for _, stage := range []string{"market_data", "news", "technical"} {
		c.Put(ctx, "NSE:TCS", stage, successResult(stage, `{}`), time.Hour, now)
	}
	c.Put(ctx, "NSE:INFY", "market_data", successResult("market_data", `{}`), time.Hour, now)

	c.InvalidateSymbol(ctx, "NSE:TCS")

	for _, stage := range []string{"market_data", "news", "technical"} {
		_, ok := c.Get(ctx, "NSE:TCS", stage, now)
		assert.False(t, ok, "stage %s should be invalidated", stage)
	}

	_, ok := c.Get(ctx, "NSE:INFY", "market_data", now)
	assert.True(t, ok, "other symbols must be untouched")
}

func TestResultCache_LastWriterWins(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now()

	c.Put(ctx, "NSE:TCS", "market_data", successResult("market_data", `{"v":1}`), time.Hour, now)
	c.Put(ctx, "NSE:TCS", "market_data", successResult("market_data", `{"v":2}`), time.Hour, now)

	got, ok := c.Get(ctx, "NSE:TCS", "market_data", now)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(got.Payload))
}

func TestResultCache_ConcurrentAccess(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Put(ctx, "NSE:TCS", "market_data", successResult("market_data", `{"v":1}`), time.Hour, now)
				c.Get(ctx, "NSE:TCS", "market_data", now)
				c.Get(ctx, "NSE:INFY", "news", now)
			}
		}()
	}
	wg.Wait()

	got, ok := c.Get(ctx, "NSE:TCS", "market_data", now)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":1}`, string(got.Payload))
}

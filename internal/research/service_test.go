package research

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anveshkr/stockscout/internal/contracts"
	"github.com/anveshkr/stockscout/pkg/config"
	"github.com/anveshkr/stockscout/pkg/logger"
)

func healthyGateway(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/quote", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbol": "NSE:TCS", "company_name": "Tata Consultancy Services",
			"sector": "Information Technology", "price": 3500, "prev_close": 3450,
			"volume": 100000, "avg_volume": 90000}`)
	})
	mux.HandleFunc("/v1/history", func(w http.ResponseWriter, r *http.Request) {
		var sb strings.Builder
		sb.WriteString(`{"symbol": "NSE:TCS", "candles": [`)
		for i := 0; i < 220; i++ {
			if i > 0 {
				sb.WriteString(",")
			}
			c := 3300.0 + float64(i)
			fmt.Fprintf(&sb, `{"date":"2026-01-02","open":%f,"high":%f,"low":%f,"close":%f,"volume":90000}`,
				c-1, c+2, c-2, c)
		}
		sb.WriteString("]}")
		fmt.Fprint(w, sb.String())
	})
	mux.HandleFunc("/v1/fundamentals", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"pe": 12, "pb": 1.5, "roe": 22, "net_margin": 18,
			"debt_to_equity": 0.2, "current_ratio": 2.1,
			"earnings_growth": 15, "revenue_growth": 12}`)
	})

	feed := `<?xml version="1.0"?><rss version="2.0"><channel>
		<item><title>Tata Consultancy shares surge on record profit</title><link>http://example.com</link></item>
	</channel></rss>`
	mux.HandleFunc("/business", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, feed) })
	mux.HandleFunc("/headlines", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, feed) })
	mux.HandleFunc("/market", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/1">Tata Consultancy wins large infrastructure order</a></body></html>`)
	})

	return httptest.NewServer(mux)
}

func newTestService(t *testing.T, baseURL string) *Service {
	t.Helper()

	cfg := &config.Config{
		LogLevel:  "error",
		LogFormat: "json",
		MarketData: config.MarketDataConfig{
			BaseURL: baseURL,
		},
		News: config.NewsConfig{
			BusinessFeedURL: baseURL + "/business",
			HeadlinesURL:    baseURL + "/headlines",
			MarketPageURL:   baseURL + "/market",
		},
		Pipeline: config.PipelineConfig{
			MaxWorkers:        4,
			RunTimeout:        30 * time.Second,
			RetryMaxAttempts:  2,
			RetryBaseDelay:    time.Millisecond,
			RetryMaxDelay:     5 * time.Millisecond,
			RetryMaxElapsed:   time.Second,
			AttemptTimeout:    5 * time.Second,
			BreakerThreshold:  100,
			BreakerWindow:     time.Minute,
			BreakerCooldown:   time.Second,
			ExternalCallsRate: 1000,
			ExternalCallBurst: 1000,
		},
		Freshness: config.FreshnessConfig{
			MarketData:   15 * time.Minute,
			News:         30 * time.Minute,
			Fundamentals: 6 * time.Hour,
			Technical:    15 * time.Minute,
			Strategy:     15 * time.Minute,
			Report:       15 * time.Minute,
		},
	}

	svc, err := New(cfg, nil, logger.New(cfg))
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func TestService_RunProducesCompleteReport(t *testing.T) {
	srv := healthyGateway(t)
	defer srv.Close()
	svc := newTestService(t, srv.URL)

	report, err := svc.Run(context.Background(), RunRequest{Symbol: "TCS"})
	require.NoError(t, err)

	assert.Equal(t, contracts.RunComplete, report.Status)
	assert.Equal(t, contracts.Symbol("NSE:TCS"), report.Symbol)
	require.Len(t, report.Sections, 6)

	section, ok := report.Section(contracts.StageReport)
	require.True(t, ok)
	assert.Equal(t, contracts.StatusSuccess, section.Status)
	assert.Contains(t, string(section.Payload), "Research Report")
}

func TestService_SecondRunServedFromCache(t *testing.T) {
	srv := healthyGateway(t)
	defer srv.Close()
	svc := newTestService(t, srv.URL)

	_, err := svc.Run(context.Background(), RunRequest{Symbol: "TCS"})
	require.NoError(t, err)

	report, err := svc.Run(context.Background(), RunRequest{Symbol: "TCS"})
	require.NoError(t, err)

	section, ok := report.Section(contracts.StageMarketData)
	require.True(t, ok)
	assert.Equal(t, contracts.SourceCached, section.Source)
}

func TestService_InvalidSymbolIsTheOnlyError(t *testing.T) {
	srv := healthyGateway(t)
	defer srv.Close()
	svc := newTestService(t, srv.URL)

	_, err := svc.Run(context.Background(), RunRequest{Symbol: "not a symbol!"})
	require.Error(t, err)
}

func TestService_GatewayDownAbortsInsideTheReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	svc := newTestService(t, srv.URL)

	report, err := svc.Run(context.Background(), RunRequest{Symbol: "TCS"})
	require.NoError(t, err, "stage failures must come back inside the report")

	assert.Equal(t, contracts.RunAborted, report.Status)
	assert.NotEmpty(t, report.Error)
	for _, s := range report.Sections {
		assert.Equal(t, contracts.StatusFailed, s.Status)
		assert.NotEmpty(t, s.Placeholder)
	}
}

func TestService_StagesListsTopologicalOrder(t *testing.T) {
	srv := healthyGateway(t)
	defer srv.Close()
	svc := newTestService(t, srv.URL)

	stages := svc.Stages()
	require.Len(t, stages, 6)
	assert.Equal(t, contracts.StageMarketData, stages[0].Name)
	assert.True(t, stages[0].Mandatory)
	assert.Equal(t, contracts.StageReport, stages[len(stages)-1].Name)
}

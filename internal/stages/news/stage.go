// Package news implements the news aggregation stage: a concurrent fan-out
// over three sources with lexicon sentiment per item. Losing some sources
// degrades the stage; losing all of them fails it.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/anveshkr/stockscout/internal/contracts"
	"github.com/anveshkr/stockscout/pkg/config"
	"github.com/anveshkr/stockscout/pkg/httputil"
	"github.com/anveshkr/stockscout/pkg/logger"
)

const maxItems = 25

// Item is one scored news item.
type Item struct {
	Title       string  `json:"title"`
	Summary     string  `json:"summary,omitempty"`
	Source      string  `json:"source"`
	URL         string  `json:"url,omitempty"`
	PublishedAt string  `json:"published_at,omitempty"`
	Sentiment   string  `json:"sentiment"`
	Score       float64 `json:"score"`
}

// Payload is the news stage output.
type Payload struct {
	Symbol       string  `json:"symbol"`
	Company      string  `json:"company,omitempty"`
	Items        []Item  `json:"items"`
	Overall      string  `json:"overall"`
	OverallScore float64 `json:"overall_score"`
	Bullish      int     `json:"bullish"`
	Bearish      int     `json:"bearish"`
	Neutral      int     `json:"neutral"`
}

// marketDataView is the slice of the market-data payload this stage reads.
type marketDataView struct {
	CompanyName string `json:"company_name"`
}

// Stage aggregates news from the configured sources.
type Stage struct {
	client *httputil.Client
	cfg    config.NewsConfig
	logger *logger.Logger
}

// New creates the news stage.
func New(cfg *config.Config, client *httputil.Client, log *logger.Logger) *Stage {
	return &Stage{
		client: client,
		cfg:    cfg.News,
		logger: log,
	}
}

// Execute implements contracts.StageExecutor.
func (s *Stage) Execute(ctx context.Context, symbol contracts.Symbol, deps map[string]contracts.StageInput) (contracts.StageResult, error) {
	company := ""
	if md, ok := deps[contracts.StageMarketData]; ok && !md.Unavailable {
		var view marketDataView
		if err := json.Unmarshal(md.Payload, &view); err == nil {
			company = view.CompanyName
		}
	}
	ticker := symbol.Ticker()

	type sourceFetch struct {
		name  string
		fetch func(context.Context, string, string) ([]Item, error)
	}
	sources := []sourceFetch{
		{"business-feed", s.fetchBusinessFeed},
		{"headlines", s.fetchHeadlines},
		{"market-page", s.fetchMarketPage},
	}

	var (
		mu     sync.Mutex
		items  []Item
		failed []string
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			fetched, err := src.fetch(gctx, company, ticker)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.WithError(err).WithField("source", src.name).Warn("News source failed")
				failed = append(failed, src.name)
				return nil // a single source never sinks the stage
			}
			items = append(items, fetched...)
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) == len(sources) {
		return contracts.StageResult{}, fmt.Errorf("all %d news sources unreachable", len(sources))
	}

	items = dedupe(items)
	for i := range items {
		items[i].Score, items[i].Sentiment = scoreText(items[i].Title + " " + items[i].Summary)
	}

	// Deterministic ordering: strongest sentiment first, then title.
	sort.Slice(items, func(i, j int) bool {
		ai, aj := abs(items[i].Score), abs(items[j].Score)
		if ai != aj {
			return ai > aj
		}
		return items[i].Title < items[j].Title
	})
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	payload := Payload{
		Symbol:  symbol.String(),
		Company: company,
		Items:   items,
	}

	var total float64
	for _, it := range items {
		total += it.Score
		switch it.Sentiment {
		case SentimentBullish:
			payload.Bullish++
		case SentimentBearish:
			payload.Bearish++
		default:
			payload.Neutral++
		}
	}
	if len(items) > 0 {
		payload.OverallScore = total / float64(len(items))
	}
	switch {
	case payload.OverallScore > 0.15:
		payload.Overall = SentimentBullish
	case payload.OverallScore < -0.15:
		payload.Overall = SentimentBearish
	default:
		payload.Overall = SentimentNeutral
	}

	if len(failed) > 0 {
		caveats := make([]string, 0, len(failed))
		for _, name := range failed {
			caveats = append(caveats, fmt.Sprintf("news source %s unavailable", name))
		}
		return contracts.DegradedResult(contracts.StageNews, payload, caveats...)
	}
	return contracts.SuccessResult(contracts.StageNews, payload)
}

// dedupe drops repeated titles across sources, keeping the first seen.
func dedupe(items []Item) []Item {
	seen := make(map[string]bool, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if seen[it.Title] {
			continue
		}
		seen[it.Title] = true
		out = append(out, it)
	}
	return out
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

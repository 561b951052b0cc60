// Package research wires the analytical stages into the pipeline and exposes
// the single entry point callers use: run one report request for a symbol.
package research

import (
	"context"
	"time"

	"github.com/anveshkr/stockscout/internal/contracts"
	"github.com/anveshkr/stockscout/internal/pipeline/aggregator"
	"github.com/anveshkr/stockscout/internal/pipeline/cache"
	"github.com/anveshkr/stockscout/internal/pipeline/executor"
	"github.com/anveshkr/stockscout/internal/pipeline/graph"
	"github.com/anveshkr/stockscout/internal/pipeline/retry"
	"github.com/anveshkr/stockscout/internal/stages/fundamentals"
	"github.com/anveshkr/stockscout/internal/stages/marketdata"
	"github.com/anveshkr/stockscout/internal/stages/news"
	"github.com/anveshkr/stockscout/internal/stages/reportwriter"
	"github.com/anveshkr/stockscout/internal/stages/strategy"
	"github.com/anveshkr/stockscout/internal/stages/technical"
	"github.com/anveshkr/stockscout/pkg/config"
	"github.com/anveshkr/stockscout/pkg/httputil"
	"github.com/anveshkr/stockscout/pkg/logger"
	"github.com/anveshkr/stockscout/pkg/redis"
)

// Service owns the stage graph, result cache and executor. One Service
// serves every request in the process; it is safe for concurrent use.
type Service struct {
	graph    *graph.Graph
	cache    *cache.ResultCache
	executor *executor.Executor
	logger   *logger.Logger
}

// RunRequest describes one report request.
type RunRequest struct {
	Symbol       string        // raw user input, normalized by the service
	ForceRefresh bool          // invalidate cached stage results first
	Timeout      time.Duration // whole-run bound, zero means the configured default
}

// New builds the service: collaborator stages, the validated graph, the
// shared result cache (with an optional Redis second level) and the
// executor. Graph construction errors are configuration errors.
func New(cfg *config.Config, redisClient *redis.Client, log *logger.Logger) (*Service, error) {
	client := httputil.New(cfg, log)

	var l2 *redis.Cache
	if redisClient != nil && redisClient.Enabled() {
		l2 = redis.NewCache(redisClient, "stockscout")
	}
	resultCache := cache.New(log, l2)

	defs := []graph.StageDefinition{
		{
			Name:      contracts.StageMarketData,
			Title:     "Market Data",
			Mandatory: true,
			Freshness: cfg.Freshness.MarketData,
			Executor:  marketdata.New(cfg, client, log),
		},
		{
			Name:      contracts.StageNews,
			Title:     "News & Sentiment",
			DependsOn: []string{contracts.StageMarketData},
			Freshness: cfg.Freshness.News,
			Executor:  news.New(cfg, client, log),
		},
		{
			Name:      contracts.StageFundamentals,
			Title:     "Fundamental Analysis",
			DependsOn: []string{contracts.StageMarketData},
			Freshness: cfg.Freshness.Fundamentals,
			Executor:  fundamentals.New(cfg, client, log),
		},
		{
			Name:      contracts.StageTechnical,
			Title:     "Technical Analysis",
			DependsOn: []string{contracts.StageMarketData},
			Freshness: cfg.Freshness.Technical,
			Executor:  technical.New(log),
		},
		{
			Name:      contracts.StageStrategy,
			Title:     "Investment Strategy",
			DependsOn: []string{contracts.StageNews, contracts.StageFundamentals, contracts.StageTechnical},
			Freshness: cfg.Freshness.Strategy,
			Executor:  strategy.New(log),
		},
		{
			Name:  contracts.StageReport,
			Title: "Executive Report",
			DependsOn: []string{
				contracts.StageMarketData,
				contracts.StageNews,
				contracts.StageFundamentals,
				contracts.StageTechnical,
				contracts.StageStrategy,
			},
			Freshness: cfg.Freshness.Report,
			Executor:  reportwriter.New(log),
		},
	}

	g, err := graph.New(defs)
	if err != nil {
		resultCache.Close()
		return nil, err
	}

	breakers := retry.NewBreakerSet(cfg.Pipeline.BreakerThreshold, cfg.Pipeline.BreakerWindow, cfg.Pipeline.BreakerCooldown)
	policy := retry.NewPolicy(cfg.Pipeline, breakers, log)
	exec := executor.New(g, resultCache, policy, cfg.Pipeline.MaxWorkers, cfg.Pipeline.RunTimeout, log)

	return &Service{
		graph:    g,
		cache:    resultCache,
		executor: exec,
		logger:   log,
	}, nil
}

// OnEvent registers a progress event handler with the executor. Must be
// called before the first Run.
func (s *Service) OnEvent(fn executor.EventFunc) {
	s.executor.OnEvent(fn)
}

// Run executes one report request. The only error is a malformed symbol:
// stage failures, timeouts and aborted runs all come back inside the Report.
func (s *Service) Run(ctx context.Context, req RunRequest) (*contracts.Report, error) {
	symbol, err := contracts.ParseSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}

	state := s.executor.Run(ctx, symbol, executor.RunOptions{
		ForceRefresh: req.ForceRefresh,
		Timeout:      req.Timeout,
	})

	return aggregator.Build(s.graph, state), nil
}

// StageInfo describes one configured stage for API consumers.
type StageInfo struct {
	Name      string   `json:"name"`
	Title     string   `json:"title"`
	DependsOn []string `json:"depends_on,omitempty"`
	Mandatory bool     `json:"mandatory"`
	Freshness string   `json:"freshness"`
}

// Stages lists the configured stages in topological order.
func (s *Service) Stages() []StageInfo {
	defs := s.graph.Stages()
	out := make([]StageInfo, 0, len(defs))
	for _, def := range defs {
		out = append(out, StageInfo{
			Name:      def.Name,
			Title:     def.Title,
			DependsOn: def.DependsOn,
			Mandatory: def.Mandatory,
			Freshness: def.Freshness.String(),
		})
	}
	return out
}

// Close releases the service's background resources.
func (s *Service) Close() {
	s.cache.Close()
}

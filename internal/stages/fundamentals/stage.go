// Package fundamentals implements the fundamental-ratio stage: ratios are
// fetched from the market-data gateway and rated per category, mirroring
// the valuation/profitability/health/growth breakdown analysts expect.
package fundamentals

import (
	"context"
	"fmt"
	"net/url"

	"github.com/anveshkr/stockscout/internal/contracts"
	"github.com/anveshkr/stockscout/pkg/config"
	"github.com/anveshkr/stockscout/pkg/httputil"
	"github.com/anveshkr/stockscout/pkg/logger"
)

// Ratios holds the raw fundamental ratios. Pointers distinguish "not
// reported" from a true zero.
type Ratios struct {
	PE             *float64 `json:"pe,omitempty"`
	PB             *float64 `json:"pb,omitempty"`
	EVEBITDA       *float64 `json:"ev_ebitda,omitempty"`
	ROE            *float64 `json:"roe,omitempty"`
	ROA            *float64 `json:"roa,omitempty"`
	NetMargin      *float64 `json:"net_margin,omitempty"`
	DebtToEquity   *float64 `json:"debt_to_equity,omitempty"`
	CurrentRatio   *float64 `json:"current_ratio,omitempty"`
	EarningsGrowth *float64 `json:"earnings_growth,omitempty"`
	RevenueGrowth  *float64 `json:"revenue_growth,omitempty"`
	DividendYield  *float64 `json:"dividend_yield,omitempty"`

	PromoterHolding      *float64 `json:"promoter_holding,omitempty"`
	InstitutionalHolding *float64 `json:"institutional_holding,omitempty"`
}

// Rating labels per category.
const (
	RatingStrong  = "strong"
	RatingFair    = "fair"
	RatingWeak    = "weak"
	RatingUnknown = "unknown"
)

// Payload is the fundamentals stage output.
type Payload struct {
	Symbol string `json:"symbol"`
	Ratios Ratios `json:"ratios"`

	ValuationRating     string `json:"valuation_rating"`
	ProfitabilityRating string `json:"profitability_rating"`
	HealthRating        string `json:"health_rating"`
	GrowthRating        string `json:"growth_rating"`

	// Score is the overall fundamental score in [-1, 1].
	Score   float64  `json:"score"`
	Overall string   `json:"overall"`
	Notes   []string `json:"notes,omitempty"`
}

// Stage fetches and rates fundamental ratios.
type Stage struct {
	client  *httputil.Client
	baseURL string
	apiKey  string
	logger  *logger.Logger
}

// New creates the fundamentals stage.
func New(cfg *config.Config, client *httputil.Client, log *logger.Logger) *Stage {
	return &Stage{
		client:  client,
		baseURL: cfg.MarketData.BaseURL,
		apiKey:  cfg.MarketData.APIKey,
		logger:  log,
	}
}

// Execute implements contracts.StageExecutor.
func (s *Stage) Execute(ctx context.Context, symbol contracts.Symbol, _ map[string]contracts.StageInput) (contracts.StageResult, error) {
	endpoint := fmt.Sprintf("%s/v1/fundamentals?symbol=%s", s.baseURL, url.QueryEscape(symbol.String()))
	if s.apiKey != "" {
		endpoint += "&apikey=" + url.QueryEscape(s.apiKey)
	}

	var ratios Ratios
	if err := s.client.GetJSON(ctx, endpoint, &ratios); err != nil {
		return contracts.StageResult{}, fmt.Errorf("fetch fundamentals: %w", err)
	}

	payload := rate(symbol, ratios)

	// A payload where most categories could not be rated is partial data.
	unknown := 0
	for _, r := range []string{payload.ValuationRating, payload.ProfitabilityRating, payload.HealthRating, payload.GrowthRating} {
		if r == RatingUnknown {
			unknown++
		}
	}
	if unknown == 4 {
		return contracts.StageResult{}, fmt.Errorf("gateway reported no fundamental ratios for %s", symbol)
	}
	if unknown > 0 {
		return contracts.DegradedResult(contracts.StageFundamentals, payload,
			fmt.Sprintf("%d of 4 fundamental categories missing data", unknown))
	}
	return contracts.SuccessResult(contracts.StageFundamentals, payload)
}

// rate converts raw ratios into per-category ratings and an overall score.
func rate(symbol contracts.Symbol, ratios Ratios) Payload {
	p := Payload{
		Symbol: symbol.String(),
		Ratios: ratios,
	}

	score := 0.0
	rated := 0

	p.ValuationRating, score, rated = applyRating(score, rated, rateValuation(ratios))
	p.ProfitabilityRating, score, rated = applyRating(score, rated, rateProfitability(ratios))
	p.HealthRating, score, rated = applyRating(score, rated, rateHealth(ratios))
	p.GrowthRating, score, rated = applyRating(score, rated, rateGrowth(ratios))

	if rated > 0 {
		p.Score = score / float64(rated)
	}
	switch {
	case p.Score > 0.3:
		p.Overall = RatingStrong
	case p.Score < -0.3:
		p.Overall = RatingWeak
	case rated == 0:
		p.Overall = RatingUnknown
	default:
		p.Overall = RatingFair
	}

	if ratios.PromoterHolding != nil && *ratios.PromoterHolding < 30 {
		p.Notes = append(p.Notes, "low promoter holding")
	}
	if ratios.DividendYield != nil && *ratios.DividendYield > 3 {
		p.Notes = append(p.Notes, "high dividend yield")
	}

	return p
}

func applyRating(score float64, rated int, rating string) (string, float64, int) {
	switch rating {
	case RatingStrong:
		return rating, score + 1, rated + 1
	case RatingWeak:
		return rating, score - 1, rated + 1
	case RatingFair:
		return rating, score, rated + 1
	default:
		return rating, score, rated
	}
}

func rateValuation(r Ratios) string {
	if r.PE == nil && r.PB == nil {
		return RatingUnknown
	}
	votes := 0
	if r.PE != nil {
		switch {
		case *r.PE > 0 && *r.PE < 15:
			votes++
		case *r.PE <= 0 || *r.PE > 35:
			votes--
		}
	}
	if r.PB != nil {
		switch {
		case *r.PB > 0 && *r.PB < 2:
			votes++
		case *r.PB > 6:
			votes--
		}
	}
	return voteRating(votes)
}

func rateProfitability(r Ratios) string {
	if r.ROE == nil && r.NetMargin == nil {
		return RatingUnknown
	}
	votes := 0
	if r.ROE != nil {
		switch {
		case *r.ROE > 15:
			votes++
		case *r.ROE < 5:
			votes--
		}
	}
	if r.NetMargin != nil {
		switch {
		case *r.NetMargin > 12:
			votes++
		case *r.NetMargin < 3:
			votes--
		}
	}
	return voteRating(votes)
}

func rateHealth(r Ratios) string {
	if r.DebtToEquity == nil && r.CurrentRatio == nil {
		return RatingUnknown
	}
	votes := 0
	if r.DebtToEquity != nil {
		switch {
		case *r.DebtToEquity < 0.5:
			votes++
		case *r.DebtToEquity > 2:
			votes--
		}
	}
	if r.CurrentRatio != nil {
		switch {
		case *r.CurrentRatio > 1.5:
			votes++
		case *r.CurrentRatio < 1:
			votes--
		}
	}
	return voteRating(votes)
}

func rateGrowth(r Ratios) string {
	if r.EarningsGrowth == nil && r.RevenueGrowth == nil {
		return RatingUnknown
	}
	votes := 0
	if r.EarningsGrowth != nil {
		switch {
		case *r.EarningsGrowth > 10:
			votes++
		case *r.EarningsGrowth < 0:
			votes--
		}
	}
	if r.RevenueGrowth != nil {
		switch {
		case *r.RevenueGrowth > 10:
			votes++
		case *r.RevenueGrowth < 0:
			votes--
		}
	}
	return voteRating(votes)
}

func voteRating(votes int) string {
	switch {
	case votes > 0:
		return RatingStrong
	case votes < 0:
		return RatingWeak
	default:
		return RatingFair
	}
}

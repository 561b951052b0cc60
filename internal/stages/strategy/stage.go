// Package strategy implements the synthesis stage: it weighs the
// technical, fundamental and news payloads into a recommendation. Missing
// upstream inputs narrow the evidence and degrade the result instead of
// blocking it; the stage only fails when no analytical input survived.
package strategy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anveshkr/stockscout/internal/contracts"
	"github.com/anveshkr/stockscout/pkg/logger"
)

// Recommendation labels.
const (
	RecommendBuy  = "BUY"
	RecommendSell = "SELL"
	RecommendHold = "HOLD"
)

// Payload is the strategy stage output.
type Payload struct {
	Symbol         string   `json:"symbol"`
	Recommendation string   `json:"recommendation"`
	Score          float64  `json:"score"`      // [-1, 1]
	Confidence     float64  `json:"confidence"` // [0, 1], shrinks with missing inputs
	Horizon        string   `json:"horizon"`
	Rationale      []string `json:"rationale"`
	Risks          []string `json:"risks,omitempty"`
	Gaps           []string `json:"gaps,omitempty"`
}

// Upstream payload views: only the fields this stage weighs.

type technicalView struct {
	Score float64 `json:"score"`
	RSI   float64 `json:"rsi"`
	Trend string  `json:"trend_short"`
}

type fundamentalsView struct {
	Score   float64 `json:"score"`
	Overall string  `json:"overall"`
}

type newsView struct {
	OverallScore float64 `json:"overall_score"`
	Overall      string  `json:"overall"`
	Bullish      int     `json:"bullish"`
	Bearish      int     `json:"bearish"`
}

// Input weights: fundamentals carry the most conviction, technicals time
// the entry, news is the most transient.
const (
	weightFundamentals = 0.4
	weightTechnical    = 0.4
	weightNews         = 0.2
)

// Stage synthesizes the recommendation. Pure computation, no I/O.
type Stage struct {
	logger *logger.Logger
}

// New creates the strategy stage.
func New(log *logger.Logger) *Stage {
	return &Stage{logger: log}
}

// Execute implements contracts.StageExecutor.
func (s *Stage) Execute(_ context.Context, symbol contracts.Symbol, deps map[string]contracts.StageInput) (contracts.StageResult, error) {
	p := Payload{
		Symbol:  symbol.String(),
		Horizon: "3-6 months",
	}

	var weightedScore, usedWeight float64

	if tech, ok := decodeDep[technicalView](deps, contracts.StageTechnical); ok {
		weightedScore += tech.Score * weightTechnical
		usedWeight += weightTechnical
		p.Rationale = append(p.Rationale, fmt.Sprintf("technical picture is %s (RSI %.0f)", tech.Trend, tech.RSI))
	} else {
		p.Gaps = append(p.Gaps, "technical indicators")
	}

	if fund, ok := decodeDep[fundamentalsView](deps, contracts.StageFundamentals); ok {
		weightedScore += fund.Score * weightFundamentals
		usedWeight += weightFundamentals
		p.Rationale = append(p.Rationale, fmt.Sprintf("fundamentals rate %s", fund.Overall))
	} else {
		p.Gaps = append(p.Gaps, "fundamental ratios")
	}

	if news, ok := decodeDep[newsView](deps, contracts.StageNews); ok {
		weightedScore += news.OverallScore * weightNews
		usedWeight += weightNews
		p.Rationale = append(p.Rationale, fmt.Sprintf("news sentiment %s (%d bullish / %d bearish items)", news.Overall, news.Bullish, news.Bearish))
		if news.Overall == "bearish" {
			p.Risks = append(p.Risks, "negative news flow")
		}
	} else {
		p.Gaps = append(p.Gaps, "news sentiment")
	}

	if usedWeight == 0 {
		return contracts.StageResult{}, fmt.Errorf("no analytical inputs available for %s", symbol)
	}

	p.Score = weightedScore / usedWeight
	p.Confidence = usedWeight // full coverage sums to 1.0

	switch {
	case p.Score >= 0.25:
		p.Recommendation = RecommendBuy
	case p.Score <= -0.25:
		p.Recommendation = RecommendSell
	default:
		p.Recommendation = RecommendHold
	}

	if p.Confidence < 0.6 {
		p.Risks = append(p.Risks, "low confidence: recommendation based on incomplete inputs")
	}

	if len(p.Gaps) > 0 {
		caveats := make([]string, len(p.Gaps))
		for i, g := range p.Gaps {
			caveats[i] = "synthesized without " + g
		}
		return contracts.DegradedResult(contracts.StageStrategy, p, caveats...)
	}
	return contracts.SuccessResult(contracts.StageStrategy, p)
}

// decodeDep unmarshals an available dependency payload into the view type.
func decodeDep[T any](deps map[string]contracts.StageInput, stage string) (T, bool) {
	var view T
	in, ok := deps[stage]
	if !ok || in.Unavailable || len(in.Payload) == 0 {
		return view, false
	}
	if err := json.Unmarshal(in.Payload, &view); err != nil {
		return view, false
	}
	return view, true
}

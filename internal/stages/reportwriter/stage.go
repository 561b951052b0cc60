// Package reportwriter implements the final composition stage: a markdown
// research document assembled from whatever upstream payloads settled.
// Composition is deterministic text assembly; sections whose stage failed
// are written as explicit gaps rather than silently dropped.
package reportwriter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anveshkr/stockscout/internal/contracts"
	"github.com/anveshkr/stockscout/pkg/logger"
)

// Payload is the report stage output.
type Payload struct {
	Symbol   string `json:"symbol"`
	Markdown string `json:"markdown"`
	Sections int    `json:"sections"`
	Gaps     int    `json:"gaps"`
}

// Upstream payload views.

type marketDataView struct {
	CompanyName string  `json:"company_name"`
	Sector      string  `json:"sector"`
	Price       float64 `json:"price"`
	ChangePct   float64 `json:"change_pct"`
	Volume      int64   `json:"volume"`
	VolumeSpike bool    `json:"volume_spike"`
}

type newsViewItem struct {
	Title     string `json:"title"`
	Sentiment string `json:"sentiment"`
}

type newsView struct {
	Overall string         `json:"overall"`
	Items   []newsViewItem `json:"items"`
}

type fundamentalsView struct {
	Overall             string `json:"overall"`
	ValuationRating     string `json:"valuation_rating"`
	ProfitabilityRating string `json:"profitability_rating"`
	HealthRating        string `json:"health_rating"`
	GrowthRating        string `json:"growth_rating"`
}

type technicalView struct {
	RSI        float64 `json:"rsi"`
	TrendShort string  `json:"trend_short"`
	Support1   float64 `json:"support_1"`
	Resist1    float64 `json:"resistance_1"`
}

type strategyView struct {
	Recommendation string   `json:"recommendation"`
	Confidence     float64  `json:"confidence"`
	Horizon        string   `json:"horizon"`
	Rationale      []string `json:"rationale"`
	Risks          []string `json:"risks"`
}

// Stage composes the markdown document. Pure computation, no I/O.
type Stage struct {
	logger *logger.Logger
}

// New creates the report stage.
func New(log *logger.Logger) *Stage {
	return &Stage{logger: log}
}

// Execute implements contracts.StageExecutor.
func (s *Stage) Execute(_ context.Context, symbol contracts.Symbol, deps map[string]contracts.StageInput) (contracts.StageResult, error) {
	var b strings.Builder
	sections, gaps := 0, 0

	title := symbol.String()
	md, mdOK := decode[marketDataView](deps, contracts.StageMarketData)
	if mdOK && md.CompanyName != "" {
		title = fmt.Sprintf("%s (%s)", md.CompanyName, symbol)
	}
	fmt.Fprintf(&b, "# Research Report: %s\n\n", title)

	if mdOK {
		sections++
		fmt.Fprintf(&b, "## Market Snapshot\n\n")
		fmt.Fprintf(&b, "- Price: %.2f (%+.2f%%)\n", md.Price, md.ChangePct)
		if md.Sector != "" {
			fmt.Fprintf(&b, "- Sector: %s\n", md.Sector)
		}
		fmt.Fprintf(&b, "- Volume: %d", md.Volume)
		if md.VolumeSpike {
			b.WriteString(" (unusually high)")
		}
		b.WriteString("\n\n")
	} else {
		gaps++
		writeGap(&b, "Market Snapshot", deps, contracts.StageMarketData)
	}

	if news, ok := decode[newsView](deps, contracts.StageNews); ok {
		sections++
		fmt.Fprintf(&b, "## News & Sentiment\n\nOverall sentiment: **%s**\n\n", news.Overall)
		for i, it := range news.Items {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "- [%s] %s\n", it.Sentiment, it.Title)
		}
		b.WriteString("\n")
	} else {
		gaps++
		writeGap(&b, "News & Sentiment", deps, contracts.StageNews)
	}

	if fund, ok := decode[fundamentalsView](deps, contracts.StageFundamentals); ok {
		sections++
		fmt.Fprintf(&b, "## Fundamentals\n\nOverall: **%s**\n\n", fund.Overall)
		fmt.Fprintf(&b, "- Valuation: %s\n- Profitability: %s\n- Financial health: %s\n- Growth: %s\n\n",
			fund.ValuationRating, fund.ProfitabilityRating, fund.HealthRating, fund.GrowthRating)
	} else {
		gaps++
		writeGap(&b, "Fundamentals", deps, contracts.StageFundamentals)
	}

	if tech, ok := decode[technicalView](deps, contracts.StageTechnical); ok {
		sections++
		fmt.Fprintf(&b, "## Technicals\n\n")
		fmt.Fprintf(&b, "- Short-term trend: %s\n- RSI(14): %.1f\n- Support / resistance: %.2f / %.2f\n\n",
			tech.TrendShort, tech.RSI, tech.Support1, tech.Resist1)
	} else {
		gaps++
		writeGap(&b, "Technicals", deps, contracts.StageTechnical)
	}

	if strat, ok := decode[strategyView](deps, contracts.StageStrategy); ok {
		sections++
		fmt.Fprintf(&b, "## Strategy\n\nRecommendation: **%s** (confidence %.0f%%, horizon %s)\n\n",
			strat.Recommendation, strat.Confidence*100, strat.Horizon)
		for _, r := range strat.Rationale {
			fmt.Fprintf(&b, "- %s\n", r)
		}
		if len(strat.Risks) > 0 {
			b.WriteString("\nRisks:\n")
			for _, r := range strat.Risks {
				fmt.Fprintf(&b, "- %s\n", r)
			}
		}
		b.WriteString("\n")
	} else {
		gaps++
		writeGap(&b, "Strategy", deps, contracts.StageStrategy)
	}

	b.WriteString("---\n*For educational purposes only. Not financial advice.*\n")

	if sections == 0 {
		return contracts.StageResult{}, fmt.Errorf("no sections available to compose for %s", symbol)
	}

	payload := Payload{
		Symbol:   symbol.String(),
		Markdown: b.String(),
		Sections: sections,
		Gaps:     gaps,
	}

	if gaps > 0 {
		return contracts.DegradedResult(contracts.StageReport, payload,
			fmt.Sprintf("%d of %d sections unavailable", gaps, sections+gaps))
	}
	return contracts.SuccessResult(contracts.StageReport, payload)
}

// writeGap records a missing section with the upstream failure reason.
func writeGap(b *strings.Builder, heading string, deps map[string]contracts.StageInput, stage string) {
	reason := "unavailable"
	if in, ok := deps[stage]; ok && in.Reason != "" {
		reason = in.Reason
	}
	fmt.Fprintf(b, "## %s\n\n_Section unavailable: %s_\n\n", heading, reason)
}

// decode unmarshals an available dependency payload into the view type.
func decode[T any](deps map[string]contracts.StageInput, stage string) (T, bool) {
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

// Package technical implements the technical-indicator stage. It consumes
// the market-data stage's daily history and computes trend, momentum and
// volatility indicators plus classic pivot support/resistance levels.
package technical

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/anveshkr/stockscout/internal/contracts"
	"github.com/anveshkr/stockscout/internal/indicators"
	"github.com/anveshkr/stockscout/pkg/logger"
)

// minHistory is the minimum number of daily bars needed for the core
// indicator set (MACD needs 26 plus signal smoothing).
const minHistory = 35

// Signal is one indicator reading worth calling out.
type Signal struct {
	Indicator string `json:"indicator"`
	Signal    string `json:"signal"`
	Strength  string `json:"strength"`
}

// Payload is the technical stage output. Bounded values follow the
// indicator contracts: RSI in [0,100], Bollinger upper >= middle >= lower.
type Payload struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`

	SMA20  float64 `json:"sma_20"`
	SMA50  float64 `json:"sma_50,omitempty"`
	SMA200 float64 `json:"sma_200,omitempty"`
	EMA12  float64 `json:"ema_12"`
	EMA26  float64 `json:"ema_26"`

	RSI           float64 `json:"rsi"`
	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHistogram float64 `json:"macd_histogram"`

	BollingerUpper  float64 `json:"bollinger_upper"`
	BollingerMiddle float64 `json:"bollinger_middle"`
	BollingerLower  float64 `json:"bollinger_lower"`

	Pivot       float64 `json:"pivot"`
	Resistance1 float64 `json:"resistance_1"`
	Resistance2 float64 `json:"resistance_2"`
	Support1    float64 `json:"support_1"`
	Support2    float64 `json:"support_2"`

	TrendShort  string `json:"trend_short"`
	TrendMedium string `json:"trend_medium,omitempty"`
	TrendLong   string `json:"trend_long,omitempty"`

	Signals []Signal `json:"signals"`

	// Score summarizes the signals in [-1, 1] for the strategy stage.
	Score float64 `json:"score"`
}

// marketDataView is the slice of the market-data payload this stage reads.
type marketDataView struct {
	Price   float64 `json:"price"`
	History []struct {
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume int64   `json:"volume"`
	} `json:"history"`
}

// Stage computes the technical payload. It performs no I/O of its own.
type Stage struct {
	logger *logger.Logger
}

// New creates the technical stage.
func New(log *logger.Logger) *Stage {
	return &Stage{logger: log}
}

// Execute implements contracts.StageExecutor.
func (s *Stage) Execute(_ context.Context, symbol contracts.Symbol, deps map[string]contracts.StageInput) (contracts.StageResult, error) {
	md, ok := deps[contracts.StageMarketData]
	if !ok || md.Unavailable {
		return contracts.StageResult{}, fmt.Errorf("market data unavailable: %s", md.Reason)
	}

	var view marketDataView
	if err := json.Unmarshal(md.Payload, &view); err != nil {
		return contracts.StageResult{}, fmt.Errorf("decode market data payload: %w", err)
	}
	if len(view.History) < minHistory {
		return contracts.StageResult{}, fmt.Errorf("insufficient history: %d bars, need %d", len(view.History), minHistory)
	}

	closes := make([]float64, len(view.History))
	for i, c := range view.History {
		closes[i] = c.Close
	}
	last := view.History[len(view.History)-1]

	price := view.Price
	if price <= 0 {
		price = last.Close
	}

	p := Payload{
		Symbol: symbol.String(),
		Price:  price,
		SMA20:  indicators.SMA(closes, 20),
		EMA12:  indicators.EMA(closes, 12),
		EMA26:  indicators.EMA(closes, 26),
		RSI:    indicators.RSI(closes, 14),
	}
	if len(closes) >= 50 {
		p.SMA50 = indicators.SMA(closes, 50)
	}
	if len(closes) >= 200 {
		p.SMA200 = indicators.SMA(closes, 200)
	}

	p.MACD, p.MACDSignal, p.MACDHistogram = indicators.MACD(closes)
	p.BollingerUpper, p.BollingerMiddle, p.BollingerLower = indicators.Bollinger(closes, 20, 2)
	p.Pivot, p.Resistance1, p.Resistance2, p.Support1, p.Support2 = indicators.PivotPoints(last.High, last.Low, last.Close)

	p.TrendShort = trend(price, p.SMA20)
	if p.SMA50 > 0 {
		p.TrendMedium = trend(price, p.SMA50)
	}
	if p.SMA200 > 0 {
		p.TrendLong = trend(price, p.SMA200)
	}

	p.Signals, p.Score = deriveSignals(p)

	var caveats []string
	if len(closes) < 200 {
		caveats = append(caveats, "long-term trend unavailable: less than 200 bars of history")
	}
	if len(caveats) > 0 {
		return contracts.DegradedResult(contracts.StageTechnical, p, caveats...)
	}
	return contracts.SuccessResult(contracts.StageTechnical, p)
}

func trend(price, ma float64) string {
	if price > ma {
		return "bullish"
	}
	return "bearish"
}

// deriveSignals translates indicator readings into callouts and a
// composite score, following the usual threshold conventions.
func deriveSignals(p Payload) ([]Signal, float64) {
	signals := make([]Signal, 0, 4)
	score := 0.0
	weights := 0.0

	switch {
	case p.RSI < 30:
		signals = append(signals, Signal{"RSI", "oversold, potential buy", "strong"})
		score += 1
		weights++
	case p.RSI > 70:
		signals = append(signals, Signal{"RSI", "overbought, potential sell", "strong"})
		score -= 1
		weights++
	case p.RSI < 40:
		signals = append(signals, Signal{"RSI", "approaching oversold", "moderate"})
		score += 0.5
		weights++
	case p.RSI > 60:
		signals = append(signals, Signal{"RSI", "approaching overbought", "moderate"})
		score -= 0.5
		weights++
	default:
		weights++
	}

	if p.MACD > p.MACDSignal {
		signals = append(signals, Signal{"MACD", "bullish crossover", "strong"})
		score += 1
	} else if p.MACD < p.MACDSignal {
		signals = append(signals, Signal{"MACD", "bearish crossover", "strong"})
		score -= 1
	}
	weights++

	if p.BollingerLower > 0 && p.Price <= p.BollingerLower {
		signals = append(signals, Signal{"Bollinger", "at lower band, potential reversal", "moderate"})
		score += 0.5
	} else if p.BollingerUpper > 0 && p.Price >= p.BollingerUpper {
		signals = append(signals, Signal{"Bollinger", "at upper band, potential pullback", "moderate"})
		score -= 0.5
	}
	weights++

	if p.SMA50 > 0 {
		if p.Price > p.SMA20 && p.SMA20 > p.SMA50 {
			signals = append(signals, Signal{"Trend", "price above rising averages", "strong"})
			score += 1
		} else if p.Price < p.SMA20 && p.SMA20 < p.SMA50 {
			signals = append(signals, Signal{"Trend", "price below falling averages", "strong"})
			score -= 1
		}
		weights++
	}

	if weights == 0 {
		return signals, 0
	}
	return signals, math.Max(-1, math.Min(1, score/weights))
}

// Package marketdata implements the mandatory root stage: price, volume
// and company data for the symbol, fetched from a configurable market-data
// gateway. No other stage runs if this one fails.
package marketdata

import (
	"context"
	"fmt"
	"net/url"

	"github.com/anveshkr/stockscout/internal/contracts"
	"github.com/anveshkr/stockscout/pkg/config"
	"github.com/anveshkr/stockscout/pkg/httputil"
	"github.com/anveshkr/stockscout/pkg/logger"
)

// Candle is one daily OHLCV bar.
type Candle struct {
	Date   string  `json:"date"` // YYYY-MM-DD
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// Valid reports whether the bar satisfies high >= open/close >= low.
func (c Candle) Valid() bool {
	return c.High >= c.Open && c.High >= c.Close &&
		c.Low <= c.Open && c.Low <= c.Close &&
		c.High >= c.Low && c.Low > 0
}

// Payload is the market-data stage output consumed by every other stage.
type Payload struct {
	Symbol      string  `json:"symbol"`
	CompanyName string  `json:"company_name"`
	Sector      string  `json:"sector,omitempty"`
	Industry    string  `json:"industry,omitempty"`
	MarketCap   float64 `json:"market_cap,omitempty"`

	Price     float64 `json:"price"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	PrevClose float64 `json:"prev_close"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`

	Volume      int64 `json:"volume"`
	AvgVolume   int64 `json:"avg_volume,omitempty"`
	VolumeSpike bool  `json:"volume_spike,omitempty"`

	FiftyTwoWeekHigh float64 `json:"fifty_two_week_high,omitempty"`
	FiftyTwoWeekLow  float64 `json:"fifty_two_week_low,omitempty"`

	// History is daily bars, oldest first.
	History []Candle `json:"history,omitempty"`

	Notes []string `json:"notes,omitempty"`
}

// quoteResponse is the gateway's quote shape.
type quoteResponse struct {
	Symbol           string  `json:"symbol"`
	CompanyName      string  `json:"company_name"`
	Sector           string  `json:"sector"`
	Industry         string  `json:"industry"`
	MarketCap        float64 `json:"market_cap"`
	Price            float64 `json:"price"`
	Open             float64 `json:"open"`
	High             float64 `json:"high"`
	Low              float64 `json:"low"`
	PrevClose        float64 `json:"prev_close"`
	Volume           int64   `json:"volume"`
	AvgVolume        int64   `json:"avg_volume"`
	FiftyTwoWeekHigh float64 `json:"fifty_two_week_high"`
	FiftyTwoWeekLow  float64 `json:"fifty_two_week_low"`
}

// historyResponse is the gateway's daily-history shape.
type historyResponse struct {
	Symbol  string   `json:"symbol"`
	Candles []Candle `json:"candles"`
}

// Stage fetches quote and history from the market-data gateway.
type Stage struct {
	client  *httputil.Client
	baseURL string
	apiKey  string
	logger  *logger.Logger
}

// New creates the market-data stage.
func New(cfg *config.Config, client *httputil.Client, log *logger.Logger) *Stage {
	return &Stage{
		client:  client,
		baseURL: cfg.MarketData.BaseURL,
		apiKey:  cfg.MarketData.APIKey,
		logger:  log,
	}
}

// Execute implements contracts.StageExecutor. The quote is required; a
// missing or partially invalid history degrades the result instead of
// failing it.
func (s *Stage) Execute(ctx context.Context, symbol contracts.Symbol, _ map[string]contracts.StageInput) (contracts.StageResult, error) {
	var quote quoteResponse
	if err := s.client.GetJSON(ctx, s.endpoint("/v1/quote", symbol), &quote); err != nil {
		return contracts.StageResult{}, fmt.Errorf("fetch quote: %w", err)
	}
	if quote.Price <= 0 {
		return contracts.StageResult{}, fmt.Errorf("gateway returned no usable price for %s", symbol)
	}

	payload := Payload{
		Symbol:           symbol.String(),
		CompanyName:      quote.CompanyName,
		Sector:           quote.Sector,
		Industry:         quote.Industry,
		MarketCap:        quote.MarketCap,
		Price:            quote.Price,
		Open:             quote.Open,
		High:             quote.High,
		Low:              quote.Low,
		PrevClose:        quote.PrevClose,
		Volume:           quote.Volume,
		AvgVolume:        quote.AvgVolume,
		FiftyTwoWeekHigh: quote.FiftyTwoWeekHigh,
		FiftyTwoWeekLow:  quote.FiftyTwoWeekLow,
	}
	if quote.PrevClose > 0 {
		payload.Change = quote.Price - quote.PrevClose
		payload.ChangePct = payload.Change / quote.PrevClose * 100
	}
	if quote.AvgVolume > 0 && quote.Volume > 2*quote.AvgVolume {
		payload.VolumeSpike = true
		payload.Notes = append(payload.Notes, fmt.Sprintf("volume %.1fx above average", float64(quote.Volume)/float64(quote.AvgVolume)))
	}

	var caveats []string

	var hist historyResponse
	if err := s.client.GetJSON(ctx, s.endpoint("/v1/history", symbol)+"&range=1y", &hist); err != nil {
		s.logger.WithError(err).WithField("symbol", symbol.String()).Warn("History fetch failed")
		caveats = append(caveats, "historical price data unavailable")
	} else {
		kept, dropped := filterCandles(hist.Candles)
		payload.History = kept
		if dropped > 0 {
			caveats = append(caveats, fmt.Sprintf("dropped %d malformed history bars", dropped))
		}
		if len(kept) == 0 {
			caveats = append(caveats, "historical price data unavailable")
		}
	}

	if len(caveats) > 0 {
		return contracts.DegradedResult(contracts.StageMarketData, payload, caveats...)
	}
	return contracts.SuccessResult(contracts.StageMarketData, payload)
}

// filterCandles drops bars violating the OHLC ordering contract.
func filterCandles(candles []Candle) ([]Candle, int) {
	kept := make([]Candle, 0, len(candles))
	dropped := 0
	for _, c := range candles {
		if c.Valid() {
			kept = append(kept, c)
		} else {
			dropped++
		}
	}
	return kept, dropped
}

func (s *Stage) endpoint(path string, symbol contracts.Symbol) string {
	u := fmt.Sprintf("%s%s?symbol=%s", s.baseURL, path, url.QueryEscape(symbol.String()))
	if s.apiKey != "" {
		u += "&apikey=" + url.QueryEscape(s.apiKey)
	}
	return u
}

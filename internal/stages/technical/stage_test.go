package technical

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/anveshkr/stockscout/internal/contracts"
	"github.com/anveshkr/stockscout/pkg/config"
	"github.com/anveshkr/stockscout/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&config.Config{LogLevel: "error", LogFormat: "json"})
}

// historyDep builds a market-data input with n daily bars whose closes
// rise by step per bar from start.
func historyDep(start, step float64, n int) map[string]contracts.StageInput {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`{"price": %f, "history": [`, start+step*float64(n-1)))
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		c := start + step*float64(i)
		sb.WriteString(fmt.Sprintf(`{"open":%f,"high":%f,"low":%f,"close":%f,"volume":100000}`, c-1, c+2, c-2, c))
	}
	sb.WriteString("]}")
	return map[string]contracts.StageInput{
		contracts.StageMarketData: {Payload: []byte(sb.String())},
	}
}

func TestStage_MarketDataUnavailableFails(t *testing.T) {
	stage := New(testLogger())
	deps := map[string]contracts.StageInput{
		contracts.StageMarketData: {Unavailable: true, Reason: "gateway down"},
	}

	_, err := stage.Execute(context.Background(), "NSE:TCS", deps)
	if err == nil {
		t.Fatal("Execute() must fail without market data")
	}
}

func TestStage_InsufficientHistoryFails(t *testing.T) {
	stage := New(testLogger())

	_, err := stage.Execute(context.Background(), "NSE:TCS", historyDep(100, 1, 20))
	if err == nil {
		t.Fatal("Execute() must fail with fewer than 35 bars")
	}
}

func TestStage_ShortHistoryDegrades(t *testing.T) {
	stage := New(testLogger())

	res, err := stage.Execute(context.Background(), "NSE:TCS", historyDep(100, 0.5, 60))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Status != contracts.StatusDegraded {
		t.Fatalf("Execute() status = %s, want degraded below 200 bars", res.Status)
	}
	if len(res.Caveats) != 1 {
		t.Fatalf("caveats = %v, want the missing long-term trend caveat", res.Caveats)
	}

	var payload Payload
	if err := json.Unmarshal(res.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.TrendLong != "" {
		t.Errorf("trend_long = %q, want empty below 200 bars", payload.TrendLong)
	}
}

func TestStage_FullHistorySucceeds(t *testing.T) {
	stage := New(testLogger())

	res, err := stage.Execute(context.Background(), "NSE:TCS", historyDep(100, 0.5, 220))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Status != contracts.StatusSuccess {
		t.Fatalf("Execute() status = %s, want success (caveats: %v)", res.Status, res.Caveats)
	}

	var p Payload
	if err := json.Unmarshal(res.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	if p.RSI < 0 || p.RSI > 100 {
		t.Errorf("rsi = %v, out of [0, 100]", p.RSI)
	}
	if !(p.BollingerUpper >= p.BollingerMiddle && p.BollingerMiddle >= p.BollingerLower) {
		t.Errorf("bollinger bands out of order: %v %v %v", p.BollingerUpper, p.BollingerMiddle, p.BollingerLower)
	}
	if p.SMA200 == 0 {
		t.Error("sma_200 must be computed with 220 bars")
	}
	if p.TrendShort != "bullish" || p.TrendLong != "bullish" {
		t.Errorf("trends = %q/%q, want bullish for a rising series", p.TrendShort, p.TrendLong)
	}
	if p.MACD < p.MACDSignal {
		t.Errorf("macd %v below signal %v for a steadily rising series", p.MACD, p.MACDSignal)
	}
	if p.MACD <= 0 {
		t.Errorf("macd = %v, want positive for a steadily rising series", p.MACD)
	}
	if p.Score < -1 || p.Score > 1 {
		t.Errorf("score = %v, out of [-1, 1]", p.Score)
	}
	if len(p.Signals) == 0 {
		t.Error("a rising series must produce at least one signal")
	}
}

func TestStage_MalformedPayloadFails(t *testing.T) {
	stage := New(testLogger())
	deps := map[string]contracts.StageInput{
		contracts.StageMarketData: {Payload: []byte(`{"history": "nope"`)},
	}

	_, err := stage.Execute(context.Background(), "NSE:TCS", deps)
	if err == nil {
		t.Fatal("Execute() must fail on an undecodable payload")
	}
}

func TestDeriveSignals_Bounds(t *testing.T) {
	tests := []struct {
		name string
		p    Payload
	}{
		{
			name: "oversold near lower band",
			p:    Payload{Price: 95, RSI: 25, MACD: 1, MACDSignal: 0.5, BollingerUpper: 110, BollingerMiddle: 100, BollingerLower: 96, SMA20: 99, SMA50: 98},
		},
		{
			name: "overbought near upper band",
			p:    Payload{Price: 112, RSI: 78, MACD: -1, MACDSignal: -0.5, BollingerUpper: 110, BollingerMiddle: 100, BollingerLower: 90, SMA20: 105, SMA50: 108},
		},
		{
			name: "neutral",
			p:    Payload{Price: 100, RSI: 50, BollingerUpper: 110, BollingerMiddle: 100, BollingerLower: 90},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, score := deriveSignals(tt.p)
			if score < -1 || score > 1 {
				t.Errorf("deriveSignals() score = %v, out of [-1, 1]", score)
			}
		})
	}
}

package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anveshkr/stockscout/internal/contracts"
	"github.com/anveshkr/stockscout/pkg/config"
	"github.com/anveshkr/stockscout/pkg/httputil"
	"github.com/anveshkr/stockscout/pkg/logger"
)

func newTestStage(t *testing.T, quote, history http.HandlerFunc) (*Stage, func()) {
	t.Helper()

	mux := http.NewServeMux()
	register := func(path string, h http.HandlerFunc) {
		if h == nil {
			h = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}
		}
		mux.HandleFunc(path, h)
	}
	register("/v1/quote", quote)
	register("/v1/history", history)

	srv := httptest.NewServer(mux)

	cfg := &config.Config{
		LogLevel:  "error",
		LogFormat: "json",
		MarketData: config.MarketDataConfig{
			BaseURL: srv.URL,
		},
		Pipeline: config.PipelineConfig{
			ExternalCallsRate: 1000,
			ExternalCallBurst: 1000,
		},
	}
	log := logger.New(cfg)
	return New(cfg, httputil.New(cfg, log), log), srv.Close
}

func quoteJSON(price, prevClose float64, volume, avgVolume int64) string {
	return fmt.Sprintf(`{
		"symbol": "NSE:TCS",
		"company_name": "Tata Consultancy Services",
		"sector": "Information Technology",
		"price": %f,
		"prev_close": %f,
		"volume": %d,
		"avg_volume": %d
	}`, price, prevClose, volume, avgVolume)
}

func historyJSON(candles string) string {
	return fmt.Sprintf(`{"symbol": "NSE:TCS", "candles": [%s]}`, candles)
}

func TestStage_Success(t *testing.T) {
	quote := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "NSE:TCS" {
			t.Errorf("quote called with symbol %q", r.URL.Query().Get("symbol"))
		}
		fmt.Fprint(w, quoteJSON(3500, 3450, 100000, 90000))
	}
	history := func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, historyJSON(`
			{"date":"2026-08-19","open":3400,"high":3460,"low":3390,"close":3450,"volume":95000},
			{"date":"2026-08-20","open":3450,"high":3510,"low":3440,"close":3500,"volume":100000}
		`))
	}

	stage, cleanup := newTestStage(t, quote, history)
	defer cleanup()

	res, err := stage.Execute(context.Background(), "NSE:TCS", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Status != contracts.StatusSuccess {
		t.Fatalf("Execute() status = %s, want success (caveats: %v)", res.Status, res.Caveats)
	}

	var payload Payload
	if err := json.Unmarshal(res.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Price != 3500 {
		t.Errorf("price = %v, want 3500", payload.Price)
	}
	if payload.Change != 50 {
		t.Errorf("change = %v, want 50", payload.Change)
	}
	if len(payload.History) != 2 {
		t.Errorf("history bars = %d, want 2", len(payload.History))
	}
	if payload.VolumeSpike {
		t.Error("volume 100000 vs avg 90000 is not a spike")
	}
}

func TestStage_VolumeSpikeNote(t *testing.T) {
	quote := func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, quoteJSON(3500, 3450, 250000, 100000))
	}
	history := func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, historyJSON(`{"date":"2026-08-20","open":3450,"high":3510,"low":3440,"close":3500,"volume":250000}`))
	}

	stage, cleanup := newTestStage(t, quote, history)
	defer cleanup()

	res, err := stage.Execute(context.Background(), "NSE:TCS", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var payload Payload
	if err := json.Unmarshal(res.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if !payload.VolumeSpike {
		t.Error("volume at 2.5x average must flag a spike")
	}
	if len(payload.Notes) == 0 {
		t.Error("a volume spike must be called out in the notes")
	}
}

func TestStage_QuoteFailureFails(t *testing.T) {
	stage, cleanup := newTestStage(t, nil, nil)
	defer cleanup()

	_, err := stage.Execute(context.Background(), "NSE:TCS", nil)
	if err == nil {
		t.Fatal("Execute() must fail when the quote endpoint is down")
	}
}

func TestStage_NoUsablePriceFails(t *testing.T) {
	quote := func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, quoteJSON(0, 0, 0, 0))
	}

	stage, cleanup := newTestStage(t, quote, nil)
	defer cleanup()

	_, err := stage.Execute(context.Background(), "NSE:TCS", nil)
	if err == nil {
		t.Fatal("Execute() must fail on a zero price")
	}
}

func TestStage_HistoryFailureDegrades(t *testing.T) {
	quote := func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, quoteJSON(3500, 3450, 100000, 90000))
	}

	stage, cleanup := newTestStage(t, quote, nil)
	defer cleanup()

	res, err := stage.Execute(context.Background(), "NSE:TCS", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Status != contracts.StatusDegraded {
		t.Fatalf("Execute() status = %s, want degraded when history is unavailable", res.Status)
	}
	if len(res.Caveats) == 0 {
		t.Fatal("degraded result must explain the missing history")
	}
}

func TestStage_MalformedBarsDropped(t *testing.T) {
	quote := func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, quoteJSON(3500, 3450, 100000, 90000))
	}
	history := func(w http.ResponseWriter, r *http.Request) {
		// Second bar violates high >= close, third has a non-positive low.
		fmt.Fprint(w, historyJSON(`
			{"date":"2026-08-18","open":3400,"high":3460,"low":3390,"close":3450,"volume":95000},
			{"date":"2026-08-19","open":3450,"high":3410,"low":3400,"close":3500,"volume":90000},
			{"date":"2026-08-20","open":3450,"high":3510,"low":0,"close":3500,"volume":100000}
		`))
	}

	stage, cleanup := newTestStage(t, quote, history)
	defer cleanup()

	res, err := stage.Execute(context.Background(), "NSE:TCS", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Status != contracts.StatusDegraded {
		t.Fatalf("Execute() status = %s, want degraded after dropping bars", res.Status)
	}

	var payload Payload
	if err := json.Unmarshal(res.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(payload.History) != 1 {
		t.Errorf("kept %d bars, want 1 valid bar", len(payload.History))
	}
}

func TestCandle_Valid(t *testing.T) {
	tests := []struct {
		name   string
		candle Candle
		want   bool
	}{
		{
			name:   "well formed",
			candle: Candle{Open: 100, High: 110, Low: 95, Close: 105},
			want:   true,
		},
		{
			name:   "high below close",
			candle: Candle{Open: 100, High: 101, Low: 95, Close: 105},
			want:   false,
		},
		{
			name:   "low above open",
			candle: Candle{Open: 100, High: 110, Low: 102, Close: 105},
			want:   false,
		},
		{
			name:   "non-positive low",
			candle: Candle{Open: 100, High: 110, Low: 0, Close: 105},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.candle.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

package contracts

import (
	"fmt"
	"strings"
)

// DefaultExchange is assumed when a caller passes a bare ticker.
const DefaultExchange = "NSE"

// Symbol is a normalized, exchange-qualified security identifier,
// e.g. "NSE:TCS". A Symbol is immutable once a run starts; every stage
// within one run operates on exactly one Symbol.
type Symbol string

// ParseSymbol normalizes raw user input into a Symbol.
// Bare tickers are qualified with DefaultExchange.
func ParseSymbol(raw string) (Symbol, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("empty symbol")
	}

	exchange := DefaultExchange
	ticker := s
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		exchange = s[:idx]
		ticker = s[idx+1:]
	}

	if exchange == "" || ticker == "" {
		return "", fmt.Errorf("malformed symbol %q", raw)
	}
	for _, r := range ticker {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '.' && r != '-' && r != '&' {
			return "", fmt.Errorf("symbol %q contains invalid character %q", raw, r)
		}
	}

	return Symbol(exchange + ":" + ticker), nil
}

// Exchange returns the exchange part of the symbol.
func (s Symbol) Exchange() string {
	if idx := strings.IndexByte(string(s), ':'); idx >= 0 {
		return string(s)[:idx]
	}
	return ""
}

// Ticker returns the bare ticker without the exchange qualifier.
func (s Symbol) Ticker() string {
	if idx := strings.IndexByte(string(s), ':'); idx >= 0 {
		return string(s)[idx+1:]
	}
	return string(s)
}

func (s Symbol) String() string {
	return string(s)
}

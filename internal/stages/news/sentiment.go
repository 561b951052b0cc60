package news

import "strings"

// Lexicon sentiment scoring over headline and summary text. Crude but
// deterministic; the strategy stage treats the aggregate as one signal
// among several, never as a verdict on its own.

var positiveWords = []string{
	"surge", "rally", "gain", "jump", "soar", "beat", "upgrade", "buy",
	"outperform", "record", "profit", "growth", "strong", "wins", "win",
	"contract", "order", "expansion", "dividend", "bonus", "bullish",
	"positive", "recovery", "approval", "milestone",
}

var negativeWords = []string{
	"fall", "drop", "plunge", "slump", "crash", "miss", "downgrade", "sell",
	"underperform", "loss", "decline", "weak", "fraud", "probe", "penalty",
	"lawsuit", "default", "bearish", "negative", "layoff", "recall",
	"warning", "cuts", "resign",
}

// scoreText returns a sentiment score in [-1, 1] and its label.
func scoreText(text string) (float64, string) {
	lower := strings.ToLower(text)

	hits := 0
	score := 0
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			score++
			hits++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			score--
			hits++
		}
	}

	if hits == 0 {
		return 0, SentimentNeutral
	}

	normalized := float64(score) / float64(hits)
	switch {
	case normalized > 0.2:
		return normalized, SentimentBullish
	case normalized < -0.2:
		return normalized, SentimentBearish
	default:
		return normalized, SentimentNeutral
	}
}

// Overall sentiment labels.
const (
	SentimentBullish = "bullish"
	SentimentBearish = "bearish"
	SentimentNeutral = "neutral"
)

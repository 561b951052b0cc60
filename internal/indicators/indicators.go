// Package indicators computes the technical indicators the technical stage
// reports. All functions take a series of closing prices ordered oldest
// first and return the most recent indicator value. Outputs are bounded
// where the indicator defines bounds: RSI stays within [0, 100] and
// Bollinger bands satisfy upper >= middle >= lower.
package indicators

import "math"

// SMA returns the simple moving average of the last period values, or 0
// when the series is too short.
func SMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}

	var sum float64
	for _, v := range closes[len(closes)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// EMA returns the exponential moving average of the series, seeded with
// the SMA of the first period values.
func EMA(closes []float64, period int) float64 {
	series := emaSeries(closes, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// emaSeries returns the EMA value at every point from the seed onward.
func emaSeries(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period {
		return nil
	}

	var seed float64
	for _, v := range closes[:period] {
		seed += v
	}
	seed /= float64(period)

	multiplier := 2.0 / (float64(period) + 1.0)
	out := make([]float64, 0, len(closes)-period+1)
	ema := seed
	out = append(out, ema)
	for _, v := range closes[period:] {
		ema = (v-ema)*multiplier + ema
		out = append(out, ema)
	}
	return out
}

// RSI returns the Relative Strength Index over the given period using
// Wilder's smoothing. A series with no losses returns 100, no gains 0,
// and a too-short series returns the neutral 50.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 50
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}

	rs := avgGain / avgLoss
	rsi := 100 - 100/(1+rs)
	return math.Max(0, math.Min(100, rsi))
}

// MACD returns the MACD line (EMA12 - EMA26), the signal line (EMA9 of the
// MACD series) and the histogram (line - signal).
func MACD(closes []float64) (line, signal, histogram float64) {
	if len(closes) < 26 {
		return 0, 0, 0
	}

	ema12 := emaSeries(closes, 12)
	ema26 := emaSeries(closes, 26)

	// Align the two series on their common tail.
	n := len(ema26)
	macdSeries := make([]float64, n)
	offset := len(ema12) - n
	for i := 0; i < n; i++ {
		macdSeries[i] = ema12[i+offset] - ema26[i]
	}

	line = macdSeries[n-1]
	if n >= 9 {
		signal = EMA(macdSeries, 9)
	} else {
		signal = line
	}
	return line, signal, line - signal
}

// Bollinger returns the Bollinger bands over the given period with k
// standard deviations. The returned bands always satisfy
// upper >= middle >= lower.
func Bollinger(closes []float64, period int, k float64) (upper, middle, lower float64) {
	if period <= 0 || len(closes) < period {
		return 0, 0, 0
	}

	middle = SMA(closes, period)

	var variance float64
	for _, v := range closes[len(closes)-period:] {
		d := v - middle
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(period))

	band := math.Abs(k) * stddev
	return middle + band, middle, middle - band
}

// PivotPoints returns the classic floor-trader pivot with two resistance
// and two support levels derived from the previous period's range.
func PivotPoints(high, low, close float64) (pivot, r1, r2, s1, s2 float64) {
	pivot = (high + low + close) / 3
	r1 = 2*pivot - low
	s1 = 2*pivot - high
	r2 = pivot + (high - low)
	s2 = pivot - (high - low)
	return pivot, r1, r2, s1, s2
}

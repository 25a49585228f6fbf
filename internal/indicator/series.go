// Package indicator computes technical indicator series over candle data.
//
// All series functions take the full retained history and return one value
// per input index; positions without enough history are undefined.
// Recomputation is deliberately full-history rather than incremental — it
// trades CPU for immunity to drift and sits behind the Recomputer
// interface so an incremental variant can be substituted later.
package indicator

import "tradesignals/internal/model"

// EMA returns the exponential moving average with the given period.
// The first defined value, at index period-1, is the arithmetic mean of
// the first period inputs; later values follow
// ema[i] = v[i]*k + ema[i-1]*(1-k) with k = 2/(period+1).
func EMA(values []float64, period int) []model.Float {
	out := make([]model.Float, len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	k := 2.0 / float64(period+1)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	prev := sum / float64(period)
	out[period-1] = model.Defined(prev)

	for i := period; i < len(values); i++ {
		prev = values[i]*k + prev*(1-k)
		out[i] = model.Defined(prev)
	}
	return out
}

// VWMA returns the volume weighted moving average over a sliding window:
// Σ(close·volume) / Σ(volume) across the trailing period-wide window.
// Undefined until the window fills, and wherever the volume sum is zero.
func VWMA(closes, volumes []float64, period int) []model.Float {
	out := make([]model.Float, len(closes))
	if period <= 0 || len(closes) < period || len(volumes) < period {
		return out
	}

	for i := period - 1; i < len(closes); i++ {
		var weighted, volSum float64
		for j := i - period + 1; j <= i; j++ {
			weighted += closes[j] * volumes[j]
			volSum += volumes[j]
		}
		if volSum > 0 {
			out[i] = model.Defined(weighted / volSum)
		}
	}
	return out
}

// MACD returns the MACD line (EMA12 − EMA26) and its signal line.
// The signal is a 9-period EMA computed over the compacted (gap-free)
// sequence of defined MACD values, remapped onto the original index
// starting at the first defined MACD position.
func MACD(closes []float64) (line, signal []model.Float) {
	line = make([]model.Float, len(closes))
	signal = make([]model.Float, len(closes))
	if len(closes) < 26 {
		return line, signal
	}

	ema12 := EMA(closes, 12)
	ema26 := EMA(closes, 26)

	compact := make([]float64, 0, len(closes))
	firstDefined := -1
	for i := range closes {
		if ema12[i].OK && ema26[i].OK {
			line[i] = model.Defined(ema12[i].V - ema26[i].V)
			if firstDefined < 0 {
				firstDefined = i
			}
			compact = append(compact, line[i].V)
		}
	}
	if len(compact) < 9 {
		return line, signal
	}

	signalCompact := EMA(compact, 9)
	for i, v := range signalCompact {
		if v.OK && firstDefined+i < len(signal) {
			signal[firstDefined+i] = v
		}
	}
	return line, signal
}

// ROC returns the rate of change as a percentage:
// (v[i] − v[i−period]) / v[i−period] · 100. Undefined with fewer than
// period preceding rows or a zero divisor.
func ROC(values []float64, period int) []model.Float {
	out := make([]model.Float, len(values))
	if period <= 0 || len(values) < period+1 {
		return out
	}
	for i := period; i < len(values); i++ {
		past := values[i-period]
		if past == 0 {
			continue
		}
		out[i] = model.Defined((values[i] - past) / past * 100)
	}
	return out
}

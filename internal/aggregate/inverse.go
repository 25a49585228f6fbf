package aggregate

import "tradesignals/internal/model"

// Inverse derives the reciprocal price series from regular candles.
// The reciprocal is monotonically decreasing, so high and low swap:
// high' = 1/low, low' = 1/high. Volume is unchanged. Candles with any
// non-positive price are dropped — the reciprocal is meaningless there.
func Inverse(candles []model.Candle) []model.Candle {
	out := make([]model.Candle, 0, len(candles))
	for _, c := range candles {
		if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
			continue
		}
		out = append(out, model.Candle{
			Symbol: c.Symbol,
			TS:     c.TS,
			Open:   1 / c.Open,
			High:   1 / c.Low,
			Low:    1 / c.High,
			Close:  1 / c.Close,
			Volume: c.Volume,
		})
	}
	return out
}

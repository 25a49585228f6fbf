package model

// Float is a defined-or-not indicator value. Undefined means the row had
// insufficient history for the indicator, which is normal early in a
// series, never an error.
type Float struct {
	V  float64
	OK bool
}

// Defined wraps v as a defined value.
func Defined(v float64) Float { return Float{V: v, OK: true} }

// Undefined returns the zero (undefined) value.
func Undefined() Float { return Float{} }

// IndicatorRow holds the seven indicator columns attached to a candle.
type IndicatorRow struct {
	EMA7       Float
	VWMA17     Float
	EMA12      Float
	EMA26      Float
	MACDLine   Float
	MACDSignal Float
	ROC8       Float
}

// Usable reports whether every field is defined. Only usable rows may
// drive a position transition; partial rows suppress evaluation.
func (r IndicatorRow) Usable() bool {
	return r.EMA7.OK && r.VWMA17.OK && r.EMA12.OK && r.EMA26.OK &&
		r.MACDLine.OK && r.MACDSignal.OK && r.ROC8.OK
}

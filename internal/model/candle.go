// Package model defines the core data types of the signal pipeline:
// candles, indicator rows, position records, and the port interfaces
// that decouple the engines from concrete storage and collaborators.
package model

import (
	"fmt"
	"time"
)

// Timeframe is a candle duration in minutes.
type Timeframe int

const (
	TF1m  Timeframe = 1
	TF5m  Timeframe = 5
	TF10m Timeframe = 10
	TF15m Timeframe = 15
	TF30m Timeframe = 30
)

// TargetTimeframes are the aggregation targets built from the 1m series.
var TargetTimeframes = []Timeframe{TF5m, TF10m, TF15m, TF30m}

// Duration returns the timeframe as a time.Duration.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf) * time.Minute
}

// Millis returns the timeframe length in milliseconds.
func (tf Timeframe) Millis() int64 {
	return int64(tf) * 60_000
}

// String returns the compact form used in filenames and state keys, e.g. "15m".
func (tf Timeframe) String() string {
	return fmt.Sprintf("%dm", int(tf))
}

// ParseTimeframe parses the compact form ("5m", "30m").
func ParseTimeframe(s string) (Timeframe, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%dm", &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", s)
	}
	return Timeframe(n), nil
}

// DatasetKind distinguishes the literal price series from its reciprocal.
type DatasetKind string

const (
	KindRegular DatasetKind = "regular"
	KindInverse DatasetKind = "inverse"
)

// Candle is one OHLCV bar. TS is the bucket start in Unix milliseconds,
// aligned to the timeframe boundary of the store it lives in.
type Candle struct {
	Symbol string  `json:"symbol"`
	TS     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Time returns the bucket start as a UTC time.
func (c *Candle) Time() time.Time {
	return time.UnixMilli(c.TS).UTC()
}

// Row is a stored candle together with its indicator columns.
type Row struct {
	Candle
	Ind IndicatorRow
}

// Quote is a latest-session snapshot from the market data provider.
type Quote struct {
	Symbol string  `json:"symbol"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	TS     int64   `json:"ts"`
}

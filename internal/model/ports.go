package model

import "context"

// ── Storage Port Interfaces ──
// These decouple the engines from concrete storage implementations so the
// pipeline can be exercised against in-memory fakes in tests.

// CandleStore is an append-only, re-readable ordered table per
// (symbol, timeframe, dataset-kind).
type CandleStore interface {
	// Load reads every stored row in ascending TS order.
	// A store that has never been written returns (nil, nil).
	Load(symbol string, tf Timeframe, kind DatasetKind) ([]Row, error)

	// Append writes new candles (with empty indicator columns) after the
	// existing rows. Candles must already be in ascending TS order.
	Append(symbol string, tf Timeframe, kind DatasetKind, candles []Candle) error

	// Rewrite replaces the whole table, used when indicator columns are
	// recalculated. The write is all-or-nothing.
	Rewrite(symbol string, tf Timeframe, kind DatasetKind, rows []Row) error

	// LastTimestamp returns the TS of the last stored row.
	// ok is false when the store is empty or absent.
	LastTimestamp(symbol string, tf Timeframe, kind DatasetKind) (ts int64, ok bool, err error)
}

// StateStore persists the position book across process restarts.
type StateStore interface {
	// Load reads the persisted book. A store that has never been written
	// returns (nil, nil); callers start from a fresh default book.
	Load() (*PositionBook, error)

	// Save persists the book all-or-nothing.
	Save(book *PositionBook) error
}

// MarketData is the upstream quote provider. It handles its own
// authentication and retry; the pipeline treats any error as "no new data
// this cycle".
type MarketData interface {
	// FetchCandles returns candles in [startMs, endMs] at the given
	// minute frequency, in ascending TS order.
	FetchCandles(ctx context.Context, symbol string, startMs, endMs int64, freqMinutes int) ([]Candle, error)

	// FetchQuote returns the latest session snapshot.
	FetchQuote(ctx context.Context, symbol string) (Quote, error)
}

// Notifier delivers fired signals. Best-effort: failures are logged by the
// caller and never fail the pipeline.
type Notifier interface {
	Notify(ctx context.Context, sig Signal) error
}

package indicator

import (
	"fmt"
	"log/slog"

	"tradesignals/internal/model"
)

// Periods of the shipped indicator set.
const (
	PeriodEMAFast    = 7
	PeriodVWMA       = 17
	PeriodMACDFast   = 12
	PeriodMACDSlow   = 26
	PeriodROC        = 8
	PeriodMACDSmooth = 9
)

// Recomputer recalculates a store's indicator columns. Implementations may
// be full-history (the default) or incremental; the position state machine
// does not care which.
type Recomputer interface {
	Recompute(symbol string, tf model.Timeframe, kind model.DatasetKind) error
}

// Engine is the full-history Recomputer: it reloads the entire series,
// recomputes all seven columns together, and rewrites the store in place.
type Engine struct {
	store model.CandleStore
	log   *slog.Logger
}

// NewEngine creates a full-history indicator engine over the store.
func NewEngine(store model.CandleStore, log *slog.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// Recompute recalculates every indicator column for (symbol, tf, kind) and
// overwrites the store. Insufficient history yields undefined values, not
// an error; an empty store is a failure (nothing to compute over).
func (e *Engine) Recompute(symbol string, tf model.Timeframe, kind model.DatasetKind) error {
	rows, err := e.store.Load(symbol, tf, kind)
	if err != nil {
		return fmt.Errorf("indicator: load: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("indicator: no %s %s data for %s", kind, tf, symbol)
	}

	closes := make([]float64, len(rows))
	volumes := make([]float64, len(rows))
	for i := range rows {
		closes[i] = rows[i].Close
		volumes[i] = rows[i].Volume
	}

	ema7 := EMA(closes, PeriodEMAFast)
	ema12 := EMA(closes, PeriodMACDFast)
	ema26 := EMA(closes, PeriodMACDSlow)
	vwma17 := VWMA(closes, volumes, PeriodVWMA)
	macdLine, macdSignal := MACD(closes)
	roc8 := ROC(closes, PeriodROC)

	defined := 0
	for i := range rows {
		rows[i].Ind = model.IndicatorRow{
			EMA7:       ema7[i],
			VWMA17:     vwma17[i],
			EMA12:      ema12[i],
			EMA26:      ema26[i],
			MACDLine:   macdLine[i],
			MACDSignal: macdSignal[i],
			ROC8:       roc8[i],
		}
		if rows[i].Ind.Usable() {
			defined++
		}
	}

	if err := e.store.Rewrite(symbol, tf, kind, rows); err != nil {
		return fmt.Errorf("indicator: rewrite: %w", err)
	}
	e.log.Info("recomputed indicators",
		slog.String("symbol", symbol),
		slog.String("timeframe", tf.String()),
		slog.String("kind", string(kind)),
		slog.Int("rows", len(rows)),
		slog.Int("usable", defined))
	return nil
}

// LatestUsable returns the most recent row whose indicator fields are all
// defined, scanning from the end. ok is false when no row qualifies.
func LatestUsable(rows []model.Row) (model.Row, bool) {
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Ind.Usable() {
			return rows[i], true
		}
	}
	return model.Row{}, false
}

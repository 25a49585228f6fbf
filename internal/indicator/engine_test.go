package indicator

import (
	"io"
	"log/slog"
	"testing"

	"tradesignals/internal/model"
)

type memStore struct {
	tables map[string][]model.Row
}

func newMemStore() *memStore {
	return &memStore{tables: make(map[string][]model.Row)}
}

func key(symbol string, tf model.Timeframe, kind model.DatasetKind) string {
	return symbol + "/" + tf.String() + "/" + string(kind)
}

func (m *memStore) Load(symbol string, tf model.Timeframe, kind model.DatasetKind) ([]model.Row, error) {
	return m.tables[key(symbol, tf, kind)], nil
}

func (m *memStore) Append(symbol string, tf model.Timeframe, kind model.DatasetKind, candles []model.Candle) error {
	k := key(symbol, tf, kind)
	for _, c := range candles {
		m.tables[k] = append(m.tables[k], model.Row{Candle: c})
	}
	return nil
}

func (m *memStore) Rewrite(symbol string, tf model.Timeframe, kind model.DatasetKind, rows []model.Row) error {
	m.tables[key(symbol, tf, kind)] = rows
	return nil
}

func (m *memStore) LastTimestamp(symbol string, tf model.Timeframe, kind model.DatasetKind) (int64, bool, error) {
	rows := m.tables[key(symbol, tf, kind)]
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[len(rows)-1].TS, true, nil
}

func seed(store *memStore, n int) {
	candles := make([]model.Candle, n)
	for i := range candles {
		candles[i] = model.Candle{
			Symbol: "SPY",
			TS:     int64(i) * 300_000,
			Open:   100, High: 101, Low: 99,
			Close:  100 + float64(i%5),
			Volume: 1000,
		}
	}
	store.Append("SPY", model.TF5m, model.KindRegular, candles)
}

func TestRecomputeFillsAllColumns(t *testing.T) {
	store := newMemStore()
	seed(store, 60)

	e := NewEngine(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := e.Recompute("SPY", model.TF5m, model.KindRegular); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	rows, _ := store.Load("SPY", model.TF5m, model.KindRegular)
	last := rows[len(rows)-1]
	if !last.Ind.Usable() {
		t.Fatalf("expected last row usable, got %+v", last.Ind)
	}
	// The slowest window (MACD signal at 26+9-1 rows) gates usability.
	if rows[32].Ind.Usable() {
		t.Error("row 32 should not be usable yet")
	}
	if !rows[33].Ind.Usable() {
		t.Error("row 33 should be the first usable row")
	}
}

func TestRecomputeInsufficientHistoryIsNotAnError(t *testing.T) {
	store := newMemStore()
	seed(store, 10)

	e := NewEngine(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := e.Recompute("SPY", model.TF5m, model.KindRegular); err != nil {
		t.Fatalf("short history must not error: %v", err)
	}

	rows, _ := store.Load("SPY", model.TF5m, model.KindRegular)
	if _, ok := LatestUsable(rows); ok {
		t.Error("no row should be usable with 10 candles")
	}
	// EMA7 is already defined even though the row as a whole is not usable.
	if !rows[6].Ind.EMA7.OK {
		t.Error("ema7 should be defined from index 6")
	}
}

func TestRecomputeEmptyStoreFails(t *testing.T) {
	e := NewEngine(newMemStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := e.Recompute("SPY", model.TF5m, model.KindRegular); err == nil {
		t.Fatal("expected error on empty store")
	}
}

func TestLatestUsableSkipsTrailingGaps(t *testing.T) {
	rows := []model.Row{
		{Candle: model.Candle{TS: 1}, Ind: fullRow(1)},
		{Candle: model.Candle{TS: 2}, Ind: fullRow(2)},
		{Candle: model.Candle{TS: 3}}, // undefined tail
	}
	got, ok := LatestUsable(rows)
	if !ok || got.TS != 2 {
		t.Fatalf("expected row ts=2, got ok=%v ts=%d", ok, got.TS)
	}
}

func fullRow(v float64) model.IndicatorRow {
	f := model.Defined(v)
	return model.IndicatorRow{
		EMA7: f, VWMA17: f, EMA12: f, EMA26: f,
		MACDLine: f, MACDSignal: f, ROC8: f,
	}
}

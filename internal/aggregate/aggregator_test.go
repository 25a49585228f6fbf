package aggregate

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"tradesignals/internal/markethours"
	"tradesignals/internal/model"
)

// memStore is an in-memory CandleStore for tests.
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// et builds a timestamp on a known Monday session (2026-08-24).
func et(hour, minute int) time.Time {
	return time.Date(2026, 8, 24, hour, minute, 0, 0, markethours.Eastern)
}

func minuteCandle(ts time.Time, open, high, low, close, volume float64) model.Candle {
	return model.Candle{
		Symbol: "SPY", TS: ts.UnixMilli(),
		Open: open, High: high, Low: low, Close: close, Volume: volume,
	}
}

func newTestEngine(store model.CandleStore, now time.Time) *Engine {
	e := New(store, testLogger())
	e.now = func() time.Time { return now }
	return e
}

func TestAggregateMergesOHLCV(t *testing.T) {
	store := newMemStore()
	store.Append("SPY", model.TF1m, model.KindRegular, []model.Candle{
		minuteCandle(et(9, 30), 10, 11, 9.5, 10.5, 100),
		minuteCandle(et(9, 31), 10.5, 12, 10, 11, 110),
		minuteCandle(et(9, 32), 11, 11.5, 9, 10, 120),
	})

	e := newTestEngine(store, et(9, 40))
	n, err := e.Aggregate("SPY", model.TF5m, model.KindRegular)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 candle written, got %d", n)
	}

	rows, _ := store.Load("SPY", model.TF5m, model.KindRegular)
	if len(rows) != 1 {
		t.Fatalf("expected 1 stored candle, got %d", len(rows))
	}
	c := rows[0].Candle
	if c.TS != et(9, 30).UnixMilli() {
		t.Errorf("expected bucket start 9:30, got %s", c.Time())
	}
	if c.Open != 10 {
		t.Errorf("expected open=10, got %v", c.Open)
	}
	if c.High != 12 {
		t.Errorf("expected high=12, got %v", c.High)
	}
	if c.Low != 9 {
		t.Errorf("expected low=9, got %v", c.Low)
	}
	if c.Close != 10 {
		t.Errorf("expected close=10, got %v", c.Close)
	}
	if c.Volume != 330 {
		t.Errorf("expected volume=330, got %v", c.Volume)
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.Append("SPY", model.TF1m, model.KindRegular, []model.Candle{
		minuteCandle(et(9, 30), 10, 11, 9, 10, 100),
		minuteCandle(et(9, 34), 10, 11, 9, 10, 100),
	})

	e := newTestEngine(store, et(10, 0))
	if n, err := e.Aggregate("SPY", model.TF5m, model.KindRegular); err != nil || n != 1 {
		t.Fatalf("first pass: n=%d err=%v", n, err)
	}
	if n, err := e.Aggregate("SPY", model.TF5m, model.KindRegular); err != nil || n != 0 {
		t.Fatalf("second pass should write nothing: n=%d err=%v", n, err)
	}

	rows, _ := store.Load("SPY", model.TF5m, model.KindRegular)
	if len(rows) != 1 {
		t.Fatalf("expected 1 candle after re-run, got %d", len(rows))
	}
}

func TestAggregateSkipsIncompleteBucket(t *testing.T) {
	store := newMemStore()
	store.Append("SPY", model.TF1m, model.KindRegular, []model.Candle{
		minuteCandle(et(9, 30), 10, 11, 9, 10, 100),
		minuteCandle(et(9, 31), 10, 11, 9, 10, 100),
	})

	// Mid-bucket: the 9:30 period is not over yet.
	e := newTestEngine(store, et(9, 33))
	n, err := e.Aggregate("SPY", model.TF5m, model.KindRegular)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if n != 0 {
		t.Fatalf("incomplete bucket must not be written, got %d", n)
	}

	// Next cycle, past the boundary, it lands.
	e.now = func() time.Time { return et(9, 36) }
	if n, _ := e.Aggregate("SPY", model.TF5m, model.KindRegular); n != 1 {
		t.Fatalf("expected completed bucket to be written, got %d", n)
	}
}

func TestAggregateFinalizesShortBucketAfterClose(t *testing.T) {
	store := newMemStore()
	store.Append("SPY", model.TF1m, model.KindRegular, []model.Candle{
		minuteCandle(et(15, 58), 10, 11, 9, 10, 100),
		minuteCandle(et(15, 59), 10, 12, 9, 11, 100),
	})

	// Before close the 15:30 bucket is still open.
	e := newTestEngine(store, et(15, 59))
	if n, _ := e.Aggregate("SPY", model.TF30m, model.KindRegular); n != 0 {
		t.Fatalf("bucket should still be forming before close, got %d", n)
	}

	// At 16:00 the session is over; the short bucket is final.
	e.now = func() time.Time { return et(16, 0) }
	n, err := e.Aggregate("SPY", model.TF30m, model.KindRegular)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected short final bucket to be written, got %d", n)
	}
	rows, _ := store.Load("SPY", model.TF30m, model.KindRegular)
	if rows[0].TS != et(15, 30).UnixMilli() {
		t.Errorf("expected bucket start 15:30, got %s", rows[0].Time())
	}
}

func TestAggregateEmptySource(t *testing.T) {
	e := newTestEngine(newMemStore(), et(10, 0))
	n, err := e.Aggregate("SPY", model.TF5m, model.KindRegular)
	if err != nil {
		t.Fatalf("empty source must not error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 candles, got %d", n)
	}
}

func TestAggregateRejectsOneMinuteTarget(t *testing.T) {
	e := newTestEngine(newMemStore(), et(10, 0))
	if _, err := e.Aggregate("SPY", model.TF1m, model.KindRegular); err == nil {
		t.Fatal("expected error for 1m target")
	}
}

func TestBucketStartAlignment(t *testing.T) {
	cases := []struct {
		at   time.Time
		tf   model.Timeframe
		want time.Time
	}{
		{et(9, 33), model.TF5m, et(9, 30)},
		{et(9, 35), model.TF5m, et(9, 35)},
		{et(9, 47), model.TF10m, et(9, 40)},
		{et(10, 14), model.TF15m, et(10, 0)},
		{et(15, 59), model.TF30m, et(15, 30)},
	}
	for _, tc := range cases {
		got := BucketStart(tc.at.UnixMilli(), tc.tf)
		if got != tc.want.UnixMilli() {
			t.Errorf("BucketStart(%s, %s) = %s, want %s",
				tc.at, tc.tf, time.UnixMilli(got).In(markethours.Eastern), tc.want)
		}
	}
}

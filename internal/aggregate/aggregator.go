// Package aggregate rolls 1-minute candles up into coarser timeframes.
// Buckets are aligned to absolute clock boundaries (minute mod N); the
// engine resumes from the target store's last written candle and never
// reprocesses a closed-out period.
package aggregate

import (
	"fmt"
	"log/slog"
	"time"

	"tradesignals/internal/markethours"
	"tradesignals/internal/model"
)

// Engine aggregates a 1-minute candle store into target timeframes.
type Engine struct {
	store model.CandleStore
	log   *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates an aggregation engine over the given candle store.
func New(store model.CandleStore, log *slog.Logger) *Engine {
	return &Engine{store: store, log: log, now: time.Now}
}

// BucketStart floors a millisecond timestamp to its timeframe boundary.
// Valid for timeframes dividing 60 minutes in any whole-hour-offset zone.
func BucketStart(tsMs int64, tf model.Timeframe) int64 {
	return tsMs - tsMs%tf.Millis()
}

// Aggregate rolls new 1-minute candles of the given dataset kind into the
// target timeframe store and returns the number of candles written.
// Re-invocation with no new source data is a no-op.
func (e *Engine) Aggregate(symbol string, target model.Timeframe, kind model.DatasetKind) (int, error) {
	if target <= model.TF1m {
		return 0, fmt.Errorf("aggregate: unsupported target timeframe %s", target)
	}

	source, err := e.store.Load(symbol, model.TF1m, kind)
	if err != nil {
		return 0, fmt.Errorf("aggregate: load 1m source: %w", err)
	}
	if len(source) == 0 {
		return 0, nil // nothing fetched yet; not an error
	}

	lastTS, ok, err := e.store.LastTimestamp(symbol, target, kind)
	if err != nil {
		return 0, fmt.Errorf("aggregate: target cursor: %w", err)
	}
	// Resume after the last fully written period.
	var cursor int64
	if ok {
		cursor = lastTS + target.Millis()
	}

	candles := e.build(source, target, cursor)
	if len(candles) == 0 {
		return 0, nil
	}
	if err := e.store.Append(symbol, target, kind, candles); err != nil {
		return 0, fmt.Errorf("aggregate: append: %w", err)
	}
	e.log.Info("aggregated candles",
		slog.String("symbol", symbol),
		slog.String("timeframe", target.String()),
		slog.String("kind", string(kind)),
		slog.Int("count", len(candles)))
	return len(candles), nil
}

// build buckets source candles at or after cursor and merges each bucket
// into one target candle. The most recent bucket is skipped while its
// period end is still in the future, unless the session has already
// closed — then even a short final bucket is finalized.
func (e *Engine) build(source []model.Row, target model.Timeframe, cursor int64) []model.Candle {
	now := e.now()
	nowMs := now.UnixMilli()
	sessionClosed := !now.Before(markethours.SessionClose(now))

	var out []model.Candle
	var cur *model.Candle

	flush := func() {
		if cur == nil {
			return
		}
		periodEnd := cur.TS + target.Millis()
		if periodEnd > nowMs && !sessionClosed {
			cur = nil // incomplete period, try again next cycle
			return
		}
		out = append(out, *cur)
		cur = nil
	}

	for i := range source {
		c := &source[i].Candle
		if c.TS < cursor {
			continue
		}
		bucket := BucketStart(c.TS, target)
		if cur != nil && bucket != cur.TS {
			flush()
		}
		if cur == nil {
			cur = &model.Candle{
				Symbol: c.Symbol,
				TS:     bucket,
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: c.Volume,
			}
			continue
		}
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	flush()
	return out
}

// AggregateAll rolls every target timeframe for both dataset kinds and
// returns the total number of candles written. The first error aborts.
func (e *Engine) AggregateAll(symbol string, targets []model.Timeframe) (int, error) {
	total := 0
	for _, tf := range targets {
		for _, kind := range []model.DatasetKind{model.KindRegular, model.KindInverse} {
			n, err := e.Aggregate(symbol, tf, kind)
			if err != nil {
				return total, err
			}
			total += n
		}
	}
	return total, nil
}

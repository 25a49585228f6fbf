// Package pipeline wires the stages together: ingest 1m candles from the
// market data provider, roll them up, recompute indicators, and step the
// position state machine. One Cycle call is one complete pass for a single
// timeframe; the scheduler (or the one-shot binary) decides when to call it.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradesignals/internal/aggregate"
	"tradesignals/internal/indicator"
	"tradesignals/internal/markethours"
	"tradesignals/internal/metrics"
	"tradesignals/internal/model"
	"tradesignals/internal/position"
)

// Pipeline runs the fetch-aggregate-compute-evaluate sequence for one symbol.
type Pipeline struct {
	symbol  string
	store   model.CandleStore
	market  model.MarketData
	agg     *aggregate.Engine
	ind     indicator.Recomputer
	tracker *position.Tracker
	log     *slog.Logger

	// Optional collaborators, set after construction.
	Metrics   *metrics.Metrics
	OnCandles func(ctx context.Context, tf model.Timeframe, kind model.DatasetKind, candles []model.Candle)

	now func() time.Time
}

// New assembles a pipeline from its stages.
func New(symbol string, store model.CandleStore, market model.MarketData,
	agg *aggregate.Engine, ind indicator.Recomputer, tracker *position.Tracker,
	log *slog.Logger) *Pipeline {
	return &Pipeline{
		symbol:  symbol,
		store:   store,
		market:  market,
		agg:     agg,
		ind:     ind,
		tracker: tracker,
		log:     log,
		now:     time.Now,
	}
}

// Cycle runs one scheduled pass for tf: pull new 1m candles, aggregate both
// dataset kinds, recompute indicators, and evaluate both sides against the
// latest usable row. A fetch failure means "no new data this cycle", not a
// failed cycle: the remaining stages still run against the stored candles,
// so a transition that is already due fires even during an upstream outage.
func (p *Pipeline) Cycle(ctx context.Context, tf model.Timeframe) error {
	start := p.now()

	p.ingestBestEffort(ctx)
	if err := p.buildTimeframe(ctx, tf); err != nil {
		if p.Metrics != nil {
			p.Metrics.CycleErrors.WithLabelValues(tf.String()).Inc()
		}
		return err
	}
	if err := p.evaluate(ctx, tf); err != nil {
		if p.Metrics != nil {
			p.Metrics.CycleErrors.WithLabelValues(tf.String()).Inc()
		}
		return err
	}

	if p.Metrics != nil {
		p.Metrics.CyclesTotal.WithLabelValues(tf.String()).Inc()
		p.Metrics.CycleDur.Observe(p.now().Sub(start).Seconds())
	}
	return nil
}

// Bootstrap backfills tf from the previous trading day's open and replays
// the state machine deterministically over the rebuilt history. Replay
// notifications are suppressed; the state file ends up exactly where a
// continuous run over the same candles would have left it.
func (p *Pipeline) Bootstrap(ctx context.Context, tf model.Timeframe) error {
	p.ingestBestEffort(ctx)
	if err := p.buildTimeframe(ctx, tf); err != nil {
		return err
	}

	for _, side := range model.Sides {
		rows, err := p.store.Load(p.symbol, tf, side.Kind())
		if err != nil {
			return fmt.Errorf("pipeline: load %s %s: %w", tf, side.Kind(), err)
		}
		if _, err := p.tracker.Replay(ctx, tf, side, rows, false); err != nil {
			return err
		}
	}
	return nil
}

// AnalysisOnly rebuilds tf and logs the latest condition evaluation for
// both sides without stepping the state machine.
func (p *Pipeline) AnalysisOnly(ctx context.Context, tf model.Timeframe) error {
	p.ingestBestEffort(ctx)
	if err := p.buildTimeframe(ctx, tf); err != nil {
		return err
	}

	for _, side := range model.Sides {
		rows, err := p.store.Load(p.symbol, tf, side.Kind())
		if err != nil {
			return fmt.Errorf("pipeline: load %s %s: %w", tf, side.Kind(), err)
		}
		row, ok := indicator.LatestUsable(rows)
		if !ok {
			p.log.Info("analysis: no usable row yet",
				slog.String("timeframe", tf.String()), slog.String("side", string(side)))
			continue
		}
		cond := position.Evaluate(row.Ind)
		p.log.Info("analysis",
			slog.String("symbol", p.symbol),
			slog.String("timeframe", tf.String()),
			slog.String("side", string(side)),
			slog.Float64("close", row.Close),
			slog.Int("conditions_met", cond.Met),
			slog.String("conditions", cond.Summary))
	}
	return nil
}

// ingestBestEffort runs ingest and downgrades any failure to a warning.
// The pass continues with whatever candles are already on disk.
func (p *Pipeline) ingestBestEffort(ctx context.Context) {
	if _, err := p.ingest(ctx); err != nil {
		p.log.Warn("ingest failed, continuing with stored candles",
			slog.String("symbol", p.symbol),
			slog.Any("error", err))
	}
}

// ingest pulls 1m candles newer than the last stored one and appends them
// to both the regular and the reciprocal 1m stores. Returns the number of
// new candles written.
func (p *Pipeline) ingest(ctx context.Context) (int, error) {
	now := p.now()
	lastTS, ok, err := p.store.LastTimestamp(p.symbol, model.TF1m, model.KindRegular)
	if err != nil {
		return 0, fmt.Errorf("pipeline: 1m cursor: %w", err)
	}

	var startMs int64
	if ok {
		startMs = lastTS + model.TF1m.Millis()
	} else {
		// Cold start: the previous trading day's open gives enough history
		// to seed a 26-period EMA on every timeframe.
		startMs = markethours.PrevTradingDayOpen(now).UnixMilli()
	}
	endMs := now.UnixMilli()
	if startMs > endMs {
		return 0, nil
	}

	fetchStart := p.now()
	candles, err := p.market.FetchCandles(ctx, p.symbol, startMs, endMs, int(model.TF1m))
	if p.Metrics != nil {
		p.Metrics.FetchDur.Observe(p.now().Sub(fetchStart).Seconds())
	}
	if err != nil {
		if p.Metrics != nil {
			p.Metrics.FetchErrors.Inc()
		}
		return 0, fmt.Errorf("pipeline: fetch 1m: %w", err)
	}

	// Providers round range boundaries; keep only genuinely new candles.
	fresh := candles[:0]
	for _, c := range candles {
		if !ok || c.TS > lastTS {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	if err := p.store.Append(p.symbol, model.TF1m, model.KindRegular, fresh); err != nil {
		return 0, fmt.Errorf("pipeline: append 1m: %w", err)
	}
	inv := aggregate.Inverse(fresh)
	if err := p.store.Append(p.symbol, model.TF1m, model.KindInverse, inv); err != nil {
		return 0, fmt.Errorf("pipeline: append 1m inverse: %w", err)
	}

	if p.Metrics != nil {
		p.Metrics.CandlesIngested.Add(float64(len(fresh)))
	}
	p.log.Info("ingested candles",
		slog.String("symbol", p.symbol),
		slog.Int("count", len(fresh)))
	return len(fresh), nil
}

// buildTimeframe aggregates tf for both dataset kinds and recomputes their
// indicator columns.
func (p *Pipeline) buildTimeframe(ctx context.Context, tf model.Timeframe) error {
	for _, kind := range []model.DatasetKind{model.KindRegular, model.KindInverse} {
		n, err := p.agg.Aggregate(p.symbol, tf, kind)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		if p.Metrics != nil {
			p.Metrics.CandlesBuilt.WithLabelValues(tf.String(), string(kind)).Add(float64(n))
		}

		indStart := p.now()
		if err := p.ind.Recompute(p.symbol, tf, kind); err != nil {
			return err
		}
		if p.Metrics != nil {
			p.Metrics.IndicatorDur.Observe(p.now().Sub(indStart).Seconds())
		}

		if p.OnCandles != nil {
			rows, err := p.store.Load(p.symbol, tf, kind)
			if err == nil && len(rows) >= n {
				tail := make([]model.Candle, 0, n)
				for _, r := range rows[len(rows)-n:] {
					tail = append(tail, r.Candle)
				}
				p.OnCandles(ctx, tf, kind, tail)
			}
		}
	}
	return nil
}

// evaluate steps both sides of tf against their latest usable rows.
func (p *Pipeline) evaluate(ctx context.Context, tf model.Timeframe) error {
	for _, side := range model.Sides {
		rows, err := p.store.Load(p.symbol, tf, side.Kind())
		if err != nil {
			return fmt.Errorf("pipeline: load %s %s: %w", tf, side.Kind(), err)
		}
		res, err := p.tracker.EvaluateLatest(ctx, tf, side, rows)
		if err != nil {
			return err
		}
		if p.Metrics != nil && res.Sig != nil {
			p.Metrics.SignalsTotal.WithLabelValues(tf.String(), string(side), string(res.Action)).Inc()
		}
	}
	p.updatePositionGauges(tf)
	return nil
}

func (p *Pipeline) updatePositionGauges(tf model.Timeframe) {
	if p.Metrics == nil {
		return
	}
	for _, side := range model.Sides {
		rec := p.tracker.Book().Get(tf, side)
		open := 0.0
		if rec.State == model.StateOpened {
			open = 1
		}
		p.Metrics.OpenPos.WithLabelValues(tf.String(), string(side)).Set(open)
		p.Metrics.TotalPnL.WithLabelValues(tf.String(), string(side)).Set(rec.TotalPnL)
	}
}

// Package position implements the per-timeframe, per-side position state
// machine. It consumes indicator rows, applies the 3-condition transition
// table, persists every transition to the state store, and emits signals.
//
// The tracker is the sole writer of the position book. Safety across
// invocations comes from the orchestrator never running two workers
// against the same (symbol, timeframe) key, not from internal locking.
package position

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tradesignals/internal/model"
)

// Journal receives every fired signal for audit. Satisfied by
// store/journal; nil disables journaling.
type Journal interface {
	Record(sig model.Signal) error
}

// Conditions is the evaluated 3-condition set for one indicator row.
type Conditions struct {
	EMA     bool // ema7 > vwma17
	MACD    bool // macdLine > macdSignal
	ROC     bool // roc8 > 0
	Met     int
	Summary string
}

// Evaluate scores an indicator row against the three entry conditions.
// The row must be usable; callers check first.
func Evaluate(r model.IndicatorRow) Conditions {
	c := Conditions{
		EMA:  r.EMA7.V > r.VWMA17.V,
		MACD: r.MACDLine.V > r.MACDSignal.V,
		ROC:  r.ROC8.V > 0,
	}
	for _, b := range []bool{c.EMA, c.MACD, c.ROC} {
		if b {
			c.Met++
		}
	}
	c.Summary = fmt.Sprintf("ema7>vwma17=%t (%.2f/%.2f), macd>signal=%t (%.4f/%.4f), roc8>0=%t (%.2f%%)",
		c.EMA, r.EMA7.V, r.VWMA17.V,
		c.MACD, r.MACDLine.V, r.MACDSignal.V,
		c.ROC, r.ROC8.V)
	return c
}

// Result is the outcome of a single state machine step.
type Result struct {
	Action     model.Action
	Price      float64
	Conditions Conditions
	PnL        *model.PnL
	Sig        *model.Signal // non-nil iff Action is OPEN or CLOSE
}

// Tracker drives the state machine for one symbol across all timeframes
// and both sides.
type Tracker struct {
	symbol string
	store  model.StateStore
	book   *model.PositionBook
	log    *slog.Logger

	// Optional collaborators, set after construction.
	Notifier model.Notifier
	Journal  Journal
	OnSignal func(sig model.Signal) // metrics hook

	now func() time.Time
}

// NewTracker loads the persisted book (or starts a fresh one covering tfs)
// and returns a tracker for symbol.
func NewTracker(symbol string, store model.StateStore, tfs []model.Timeframe, log *slog.Logger) (*Tracker, error) {
	book, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("position: load state: %w", err)
	}
	if book == nil {
		log.Info("no persisted position state, starting fresh", slog.String("symbol", symbol))
		book = model.NewPositionBook(tfs)
	} else {
		// Records for newly configured timeframes default to CLOSED.
		for _, tf := range tfs {
			for _, side := range model.Sides {
				book.Get(tf, side)
			}
		}
	}
	return &Tracker{
		symbol: symbol,
		store:  store,
		book:   book,
		log:    log,
		now:    time.Now,
	}, nil
}

// Book exposes the in-memory position book for status reporting.
func (t *Tracker) Book() *model.PositionBook { return t.book }

// Step applies one transition-table step for (tf, side) against row.
// An unusable row is a no-op returning NONE. Every transition is persisted
// all-or-nothing before it is reported; a failed save rolls the in-memory
// record back and returns the error.
func (t *Tracker) Step(tf model.Timeframe, side model.Side, row model.Row) (Result, error) {
	res := Result{Action: model.ActionNone}
	if !row.Ind.Usable() {
		return res, nil
	}

	cond := Evaluate(row.Ind)
	res.Conditions = cond
	rec := t.book.Get(tf, side)
	price := row.Close

	switch {
	case rec.State == model.StateClosed && cond.Met == 3:
		// A closed record must never carry an opening price; a hit here
		// is a logic error, not a race, since writers are serialized.
		if rec.OpeningPrice.OK {
			t.log.Error("refusing to open: closed record has an opening price",
				slog.String("timeframe", tf.String()), slog.String("side", string(side)))
			return res, nil
		}
		prev := *rec
		rec.State = model.StateOpened
		rec.OpeningPrice = model.Defined(price)
		if err := t.store.Save(t.book); err != nil {
			*rec = prev
			return res, fmt.Errorf("position: persist open: %w", err)
		}
		res.Action = model.ActionOpen
		res.Price = price
		t.log.Info("position opened",
			slog.String("symbol", t.symbol),
			slog.String("timeframe", tf.String()),
			slog.String("side", string(side)),
			slog.Float64("price", price))

	case rec.State == model.StateOpened && cond.Met <= 1:
		// An opened record without an opening price means the state file
		// was corrupted; closing it would book the full close price as
		// profit and divide by zero for the percent.
		if !rec.OpeningPrice.OK {
			t.log.Error("refusing to close: opened record has no opening price",
				slog.String("timeframe", tf.String()), slog.String("side", string(side)))
			return res, nil
		}
		opening := rec.OpeningPrice.V
		pnl := price - opening
		prev := *rec
		rec.State = model.StateClosed
		rec.OpeningPrice = model.Undefined()
		rec.TotalPnL += pnl
		if err := t.store.Save(t.book); err != nil {
			*rec = prev
			return res, fmt.Errorf("position: persist close: %w", err)
		}
		res.Action = model.ActionClose
		res.Price = price
		res.PnL = &model.PnL{
			OpeningPrice: opening,
			ClosingPrice: price,
			Dollar:       pnl,
			Percent:      pnl / opening * 100,
			Total:        rec.TotalPnL,
		}
		t.log.Info("position closed",
			slog.String("symbol", t.symbol),
			slog.String("timeframe", tf.String()),
			slog.String("side", string(side)),
			slog.Float64("price", price),
			slog.Float64("pnl", pnl),
			slog.Float64("total_pnl", rec.TotalPnL))

	default:
		// OPENED with 2/3 is the hysteresis band: one failing condition
		// does not close. Everything else holds state too.
		return res, nil
	}

	sig := model.Signal{
		Symbol:        t.symbol,
		Timeframe:     tf,
		Side:          side,
		Action:        res.Action,
		Price:         res.Price,
		ConditionsMet: cond.Met,
		Summary:       cond.Summary,
		PnL:           res.PnL,
		At:            t.now().UTC(),
	}
	res.Sig = &sig

	if t.Journal != nil {
		if err := t.Journal.Record(sig); err != nil {
			t.log.Warn("signal journal write failed", slog.Any("error", err))
		}
	}
	if t.OnSignal != nil {
		t.OnSignal(sig)
	}
	return res, nil
}

// EvaluateLatest runs one live step for (tf, side) against the most recent
// usable row in rows, sending a notification on any transition.
func (t *Tracker) EvaluateLatest(ctx context.Context, tf model.Timeframe, side model.Side, rows []model.Row) (Result, error) {
	row, ok := latestUsable(rows)
	if !ok {
		return Result{Action: model.ActionNone}, nil
	}
	res, err := t.Step(tf, side, row)
	if err != nil {
		return res, err
	}
	if res.Sig != nil {
		t.notify(ctx, *res.Sig)
	}
	return res, nil
}

// ResetTimeframe returns both sides of tf to {CLOSED, none, 0} and
// persists the reset. Replay starts from here.
func (t *Tracker) ResetTimeframe(tf model.Timeframe) error {
	prev := make(map[model.Side]model.PositionRecord, 2)
	for _, side := range model.Sides {
		rec := t.book.Get(tf, side)
		prev[side] = *rec
		*rec = model.PositionRecord{State: model.StateClosed}
	}
	if err := t.store.Save(t.book); err != nil {
		for _, side := range model.Sides {
			*t.book.Get(tf, side) = prev[side]
		}
		return fmt.Errorf("position: persist reset: %w", err)
	}
	return nil
}

// StatusSummary returns the compact per-timeframe form, e.g. "L:C/S:O".
func (t *Tracker) StatusSummary() map[string]string {
	out := make(map[string]string, len(t.book.Records))
	for tf, sides := range t.book.Records {
		long, short := "C", "C"
		if r := sides[model.SideLong]; r != nil && r.State == model.StateOpened {
			long = "O"
		}
		if r := sides[model.SideShort]; r != nil && r.State == model.StateOpened {
			short = "O"
		}
		out[tf.String()] = "L:" + long + "/S:" + short
	}
	return out
}

// StatusDetail returns the expanded per-timeframe form, e.g.
// "LONG OPENED @ 412.37 (total +5.25) / SHORT CLOSED (total +0.00)".
func (t *Tracker) StatusDetail() map[string]string {
	out := make(map[string]string, len(t.book.Records))
	for tf, sides := range t.book.Records {
		parts := make([]string, 0, len(model.Sides))
		for _, side := range model.Sides {
			rec := sides[side]
			if rec == nil {
				rec = &model.PositionRecord{State: model.StateClosed}
			}
			if rec.State == model.StateOpened && rec.OpeningPrice.OK {
				parts = append(parts, fmt.Sprintf("%s %s @ %.2f (total %+.2f)",
					side, rec.State, rec.OpeningPrice.V, rec.TotalPnL))
			} else {
				parts = append(parts, fmt.Sprintf("%s %s (total %+.2f)",
					side, rec.State, rec.TotalPnL))
			}
		}
		out[tf.String()] = strings.Join(parts, " / ")
	}
	return out
}

func (t *Tracker) notify(ctx context.Context, sig model.Signal) {
	if t.Notifier == nil {
		return
	}
	if err := t.Notifier.Notify(ctx, sig); err != nil {
		// Best-effort by contract: log and move on.
		t.log.Warn("notification failed",
			slog.String("timeframe", sig.Timeframe.String()),
			slog.String("side", string(sig.Side)),
			slog.String("action", string(sig.Action)),
			slog.Any("error", err))
	}
}

func latestUsable(rows []model.Row) (model.Row, bool) {
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Ind.Usable() {
			return rows[i], true
		}
	}
	return model.Row{}, false
}

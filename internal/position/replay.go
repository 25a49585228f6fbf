package position

import (
	"context"
	"fmt"
	"log/slog"

	"tradesignals/internal/model"
)

// ReplayStats summarizes one historical replay run.
type ReplayStats struct {
	Rows   int // usable rows walked
	Opens  int
	Closes int
}

// Replay resets (tf, side) and re-runs the state machine over rows in
// ascending order, persisting after every transition exactly as a live run
// would. Notifications are suppressed unless notify is true; journal and
// metrics hooks still fire. The resulting record is a deterministic
// function of the rows alone.
func (t *Tracker) Replay(ctx context.Context, tf model.Timeframe, side model.Side, rows []model.Row, notify bool) (ReplayStats, error) {
	var stats ReplayStats

	rec := t.book.Get(tf, side)
	prev := *rec
	*rec = model.PositionRecord{State: model.StateClosed}
	if err := t.store.Save(t.book); err != nil {
		*rec = prev
		return stats, fmt.Errorf("position: persist replay reset: %w", err)
	}

	for i := range rows {
		if !rows[i].Ind.Usable() {
			continue
		}
		stats.Rows++
		res, err := t.Step(tf, side, rows[i])
		if err != nil {
			return stats, fmt.Errorf("position: replay row %d: %w", i, err)
		}
		switch res.Action {
		case model.ActionOpen:
			stats.Opens++
		case model.ActionClose:
			stats.Closes++
		default:
			continue
		}
		if notify && res.Sig != nil {
			t.notify(ctx, *res.Sig)
		}
	}

	t.log.Info("replay complete",
		slog.String("symbol", t.symbol),
		slog.String("timeframe", tf.String()),
		slog.String("side", string(side)),
		slog.Int("rows", stats.Rows),
		slog.Int("opens", stats.Opens),
		slog.Int("closes", stats.Closes),
		slog.Float64("total_pnl", rec.TotalPnL))
	return stats, nil
}

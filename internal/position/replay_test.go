package position

import (
	"context"
	"testing"

	"tradesignals/internal/model"
)

func replayRows() []model.Row {
	return []model.Row{
		{Candle: model.Candle{Close: 98}}, // unusable, skipped
		row(99, false, false, false),
		row(100, true, true, true),   // open @100
		row(104, true, true, false),  // hold (hysteresis)
		row(110, true, false, false), // close @110, +10
		row(111, true, true, true),   // open @111
	}
}

func TestReplayWalksHistory(t *testing.T) {
	tr, _ := newTestTracker(t)

	stats, err := tr.Replay(context.Background(), model.TF5m, model.SideLong, replayRows(), false)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if stats.Rows != 5 {
		t.Errorf("expected 5 usable rows, got %d", stats.Rows)
	}
	if stats.Opens != 2 || stats.Closes != 1 {
		t.Errorf("expected 2 opens / 1 close, got %d/%d", stats.Opens, stats.Closes)
	}

	rec := tr.Book().Get(model.TF5m, model.SideLong)
	if rec.State != model.StateOpened {
		t.Errorf("expected OPENED at end of replay, got %s", rec.State)
	}
	if !rec.OpeningPrice.OK || rec.OpeningPrice.V != 111 {
		t.Errorf("expected opening price 111, got %+v", rec.OpeningPrice)
	}
	if rec.TotalPnL != 10 {
		t.Errorf("expected total pnl 10, got %v", rec.TotalPnL)
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	tr, _ := newTestTracker(t)
	rows := replayRows()

	first, err := tr.Replay(context.Background(), model.TF5m, model.SideLong, rows, false)
	if err != nil {
		t.Fatalf("first replay: %v", err)
	}
	second, err := tr.Replay(context.Background(), model.TF5m, model.SideLong, rows, false)
	if err != nil {
		t.Fatalf("second replay: %v", err)
	}
	if first != second {
		t.Errorf("replay stats diverged: %+v vs %+v", first, second)
	}

	rec := tr.Book().Get(model.TF5m, model.SideLong)
	if rec.TotalPnL != 10 {
		t.Errorf("re-replay must reset accumulated pnl, got %v", rec.TotalPnL)
	}
}

func TestReplayResetsPriorState(t *testing.T) {
	tr, _ := newTestTracker(t)

	// Leave a stale open position with accumulated pnl behind.
	if _, err := tr.Step(model.TF5m, model.SideLong, row(50, true, true, true)); err != nil {
		t.Fatal(err)
	}

	if _, err := tr.Replay(context.Background(), model.TF5m, model.SideLong, []model.Row{
		row(100, false, false, false),
	}, false); err != nil {
		t.Fatalf("replay: %v", err)
	}
	rec := tr.Book().Get(model.TF5m, model.SideLong)
	if rec.State != model.StateClosed || rec.OpeningPrice.OK || rec.TotalPnL != 0 {
		t.Errorf("replay must start from a clean record, got %+v", rec)
	}
}

func TestReplaySuppressesNotifications(t *testing.T) {
	tr, _ := newTestTracker(t)
	notes := &recordingNotifier{}
	jnl := &countingJournal{}
	tr.Notifier = notes
	tr.Journal = jnl

	if _, err := tr.Replay(context.Background(), model.TF5m, model.SideLong, replayRows(), false); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(notes.sigs) != 0 {
		t.Errorf("replay must not notify by default, got %d", len(notes.sigs))
	}
	if jnl.n != 3 {
		t.Errorf("journal still records replayed transitions, got %d", jnl.n)
	}
}

func TestReplayCanNotifyWhenAsked(t *testing.T) {
	tr, _ := newTestTracker(t)
	notes := &recordingNotifier{}
	tr.Notifier = notes

	if _, err := tr.Replay(context.Background(), model.TF5m, model.SideLong, replayRows(), true); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(notes.sigs) != 3 {
		t.Errorf("expected 3 notifications with notify=true, got %d", len(notes.sigs))
	}
}

func TestResetTimeframe(t *testing.T) {
	tr, store := newTestTracker(t)
	if _, err := tr.Step(model.TF5m, model.SideLong, row(100, true, true, true)); err != nil {
		t.Fatal(err)
	}

	if err := tr.ResetTimeframe(model.TF5m); err != nil {
		t.Fatalf("reset: %v", err)
	}
	for _, side := range model.Sides {
		rec := tr.Book().Get(model.TF5m, side)
		if rec.State != model.StateClosed || rec.OpeningPrice.OK || rec.TotalPnL != 0 {
			t.Errorf("%s record not reset: %+v", side, rec)
		}
	}
	if store.saves < 2 {
		t.Errorf("reset must persist, saves=%d", store.saves)
	}
}

package journal

import (
	"path/filepath"
	"testing"
	"time"

	"tradesignals/internal/model"
)

func TestRecordAndRecent(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "signals.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer j.Close()

	open := model.Signal{
		Symbol: "SPY", Timeframe: model.TF5m, Side: model.SideLong,
		Action: model.ActionOpen, Price: 100, ConditionsMet: 3,
		Summary: "all three", At: time.Now().UTC(),
	}
	closeSig := model.Signal{
		Symbol: "SPY", Timeframe: model.TF5m, Side: model.SideLong,
		Action: model.ActionClose, Price: 105, ConditionsMet: 1,
		PnL: &model.PnL{Dollar: 5, Total: 5},
		At:  time.Now().UTC(),
	}

	if err := j.Record(open); err != nil {
		t.Fatalf("record open: %v", err)
	}
	if err := j.Record(closeSig); err != nil {
		t.Fatalf("record close: %v", err)
	}

	recent, err := j.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(recent))
	}
	// Newest first.
	if recent[0].Action != "CLOSE" || recent[1].Action != "OPEN" {
		t.Errorf("unexpected order: %s, %s", recent[0].Action, recent[1].Action)
	}
	if recent[0].PnL != 5 || recent[0].TotalPnL != 5 {
		t.Errorf("close pnl not stored: %+v", recent[0])
	}
	if recent[1].PnL != 0 {
		t.Errorf("open row must have zero pnl, got %v", recent[1].PnL)
	}
	if recent[0].Timeframe != "5m" || recent[0].Side != "LONG" {
		t.Errorf("key columns corrupted: %+v", recent[0])
	}
}

func TestRecentLimit(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "signals.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer j.Close()

	for i := 0; i < 5; i++ {
		if err := j.Record(model.Signal{
			Symbol: "SPY", Timeframe: model.TF15m, Side: model.SideShort,
			Action: model.ActionOpen, Price: float64(100 + i), At: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	recent, err := j.Recent(3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(recent))
	}
	if recent[0].Price != 104 {
		t.Errorf("expected newest price 104, got %v", recent[0].Price)
	}
}

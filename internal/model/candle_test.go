package model

import "testing"

func TestTimeframeStringRoundTrip(t *testing.T) {
	for _, tf := range []Timeframe{TF1m, TF5m, TF10m, TF15m, TF30m} {
		got, err := ParseTimeframe(tf.String())
		if err != nil {
			t.Fatalf("parse %q: %v", tf.String(), err)
		}
		if got != tf {
			t.Errorf("round trip %s -> %s", tf, got)
		}
	}
}

func TestParseTimeframeRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "m", "0m", "-5m", "abc"} {
		if _, err := ParseTimeframe(s); err == nil {
			t.Errorf("expected error for %q", s)
		}
	}
}

func TestSideKind(t *testing.T) {
	if SideLong.Kind() != KindRegular {
		t.Error("long side must read the regular dataset")
	}
	if SideShort.Kind() != KindInverse {
		t.Error("short side must read the inverse dataset")
	}
}

func TestIndicatorRowUsable(t *testing.T) {
	full := IndicatorRow{
		EMA7: Defined(1), VWMA17: Defined(1), EMA12: Defined(1), EMA26: Defined(1),
		MACDLine: Defined(1), MACDSignal: Defined(1), ROC8: Defined(1),
	}
	if !full.Usable() {
		t.Error("fully defined row must be usable")
	}
	partial := full
	partial.MACDSignal = Undefined()
	if partial.Usable() {
		t.Error("one undefined column makes the row unusable")
	}
}

func TestBookGetCreatesClosedDefault(t *testing.T) {
	b := NewPositionBook(nil)
	rec := b.Get(TF10m, SideShort)
	if rec.State != StateClosed || rec.OpeningPrice.OK || rec.TotalPnL != 0 {
		t.Errorf("unexpected default record %+v", rec)
	}
	if rec != b.Get(TF10m, SideShort) {
		t.Error("Get must return the same record on repeat access")
	}
}

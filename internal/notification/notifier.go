// Package notification delivers fired signals to the outside world: email,
// webhook, or just the log. Delivery is best-effort; the state machine has
// already committed by the time a notifier runs.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"tradesignals/internal/model"
)

// LogNotifier writes signals to the structured log. It is the default when
// no delivery channel is configured.
type LogNotifier struct {
	Log *slog.Logger
}

func (n *LogNotifier) Notify(_ context.Context, sig model.Signal) error {
	attrs := []any{
		slog.String("symbol", sig.Symbol),
		slog.String("timeframe", sig.Timeframe.String()),
		slog.String("side", string(sig.Side)),
		slog.String("action", string(sig.Action)),
		slog.Float64("price", sig.Price),
		slog.String("conditions", sig.Summary),
	}
	if sig.PnL != nil {
		attrs = append(attrs,
			slog.Float64("pnl", sig.PnL.Dollar),
			slog.Float64("total_pnl", sig.PnL.Total))
	}
	n.Log.Info("signal", attrs...)
	return nil
}

// Multi fans one signal out to several notifiers. Every notifier is
// attempted; failures are collected into one error.
type Multi []model.Notifier

func (m Multi) Notify(ctx context.Context, sig model.Signal) error {
	var firstErr error
	failed := 0
	for _, n := range m {
		if err := n.Notify(ctx, sig); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("%d of %d notifiers failed: %w", failed, len(m), firstErr)
	}
	return nil
}

// subject builds the one-line signal headline shared by email and webhook.
func subject(sig model.Signal) string {
	verb := "OPENED"
	if sig.Action == model.ActionClose {
		verb = "CLOSED"
	}
	return fmt.Sprintf("%s %s %s %s @ %.2f", sig.Symbol, sig.Timeframe, sig.Side, verb, sig.Price)
}

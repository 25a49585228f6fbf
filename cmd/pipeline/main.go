// Command pipeline runs one stateless pass and exits: fetch, aggregate,
// recompute, evaluate. Durable state lives entirely in the data directory,
// so an external scheduler (cron, systemd timers) can drive it instead of
// the long-lived trader.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"tradesignals/config"
	"tradesignals/internal/aggregate"
	"tradesignals/internal/indicator"
	"tradesignals/internal/logger"
	"tradesignals/internal/model"
	"tradesignals/internal/notification"
	"tradesignals/internal/pipeline"
	"tradesignals/internal/position"
	"tradesignals/internal/store/candlecsv"
	"tradesignals/internal/store/journal"
	"tradesignals/internal/store/state"
	"tradesignals/pkg/schwab"
)

func main() {
	var (
		mode      = flag.String("mode", "scheduled", "run mode: scheduled, bootstrap, or analysis")
		symbol    = flag.String("symbol", "", "override the configured symbol")
		timeframe = flag.String("timeframe", "", "run a single timeframe (e.g. 15m); empty runs all")
	)
	flag.Parse()

	cfg := config.Load()
	if *symbol != "" {
		cfg.Symbol = *symbol
	}
	log := logger.Init("pipeline", logger.ParseLevel(cfg.LogLevel))

	tfs := cfg.ParseTimeframes()
	if len(tfs) == 0 {
		tfs = model.TargetTimeframes
	}
	if *timeframe != "" {
		tf, err := model.ParseTimeframe(*timeframe)
		if err != nil {
			log.Error("invalid -timeframe", slog.String("value", *timeframe))
			os.Exit(2)
		}
		tfs = []model.Timeframe{tf}
	}

	cfg.MustSchwab()
	market, err := schwab.New(schwab.Config{
		ClientID:     cfg.SchwabClientID,
		ClientSecret: cfg.SchwabClientSecret,
		RefreshToken: cfg.SchwabRefreshToken,
		TOTPSecret:   cfg.SchwabTOTPSecret,
	})
	if err != nil {
		log.Error("schwab client init failed", slog.Any("error", err))
		os.Exit(1)
	}

	candles, err := candlecsv.New(cfg.DataDir)
	if err != nil {
		log.Error("candle store init failed", slog.Any("error", err))
		os.Exit(1)
	}
	states, err := state.New(cfg.StatePath)
	if err != nil {
		log.Error("state store init failed", slog.Any("error", err))
		os.Exit(1)
	}
	tracker, err := position.NewTracker(cfg.Symbol, states, tfs, log)
	if err != nil {
		log.Error("position tracker init failed", slog.Any("error", err))
		os.Exit(1)
	}
	tracker.Notifier = &notification.LogNotifier{Log: log}

	if jnl, err := journal.Open(cfg.JournalPath); err == nil {
		tracker.Journal = jnl
		defer jnl.Close()
	} else {
		log.Warn("signal journal unavailable", slog.Any("error", err))
	}

	agg := aggregate.New(candles, log)
	ind := indicator.NewEngine(candles, log)
	pipe := pipeline.New(cfg.Symbol, candles, market, agg, ind, tracker, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	failed := false
	for _, tf := range tfs {
		var err error
		switch *mode {
		case "scheduled":
			err = pipe.Cycle(ctx, tf)
		case "bootstrap":
			err = pipe.Bootstrap(ctx, tf)
		case "analysis":
			err = pipe.AnalysisOnly(ctx, tf)
		default:
			log.Error("unknown -mode", slog.String("value", *mode))
			os.Exit(2)
		}
		if err != nil {
			log.Error("run failed",
				slog.String("mode", *mode),
				slog.String("timeframe", tf.String()),
				slog.Any("error", err))
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

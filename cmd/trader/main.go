// Command trader is the long-lived signal pipeline: one worker per
// timeframe fetches, aggregates, recomputes, and steps the position state
// machine just after every boundary while the market is open.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"tradesignals/config"
	"tradesignals/internal/aggregate"
	"tradesignals/internal/feed"
	"tradesignals/internal/indicator"
	"tradesignals/internal/logger"
	"tradesignals/internal/metrics"
	"tradesignals/internal/model"
	"tradesignals/internal/notification"
	"tradesignals/internal/pipeline"
	"tradesignals/internal/position"
	"tradesignals/internal/scheduler"
	"tradesignals/internal/store/candlecsv"
	"tradesignals/internal/store/journal"
	"tradesignals/internal/store/redispub"
	"tradesignals/internal/store/state"
	"tradesignals/pkg/schwab"
)

func main() {
	cfg := config.Load()
	log := logger.Init("trader", logger.ParseLevel(cfg.LogLevel))

	tfs := cfg.ParseTimeframes()
	if len(tfs) == 0 {
		tfs = model.TargetTimeframes
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
	market.SessionExpiryHook = func() {
		log.Error("schwab refresh token rejected; re-authorization required")
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

	jnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		log.Warn("signal journal unavailable", slog.Any("error", err))
	} else {
		tracker.Journal = jnl
		defer jnl.Close()
	}

	met := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	hub := feed.NewHub()

	tracker.Notifier = buildNotifier(cfg, hub, log)

	var pub *redispub.Publisher
	if cfg.RedisAddr != "" {
		pub, err = redispub.New(redispub.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Warn("redis unavailable, publishing disabled", slog.Any("error", err))
		} else {
			defer pub.Close()
		}
	}

	agg := aggregate.New(candles, log)
	ind := indicator.NewEngine(candles, log)
	pipe := pipeline.New(cfg.Symbol, candles, market, agg, ind, tracker, log)
	pipe.Metrics = met
	if pub != nil {
		pipe.OnCandles = pub.PublishCandles
		tracker.OnSignal = func(sig model.Signal) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			pub.PublishSignal(ctx, sig)
		}
	}

	srv := metrics.NewServer(cfg.MetricsAddr, health)
	srv.Handle("/ws", hub)
	srv.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bring every timeframe up to date before the workers take over; a
	// stale or missing state file is rebuilt by replay.
	for _, tf := range tfs {
		if err := pipe.Bootstrap(ctx, tf); err != nil {
			log.Error("bootstrap failed", slog.String("timeframe", tf.String()), slog.Any("error", err))
		}
	}

	sched := scheduler.New(cfg.Symbol, tfs, pipe, tracker, log)
	sched.Health = health
	sched.Met = met
	sched.Auth = market

	log.Info("trader started",
		slog.String("symbol", cfg.Symbol),
		slog.Any("timeframes", tfs),
		slog.String("metrics_addr", cfg.MetricsAddr))
	sched.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Stop(shutdownCtx)
	log.Info("trader stopped")
}

// buildNotifier assembles the delivery chain from config: the feed hub is
// always included, email and webhook only when configured.
func buildNotifier(cfg *config.Config, hub *feed.Hub, log *slog.Logger) model.Notifier {
	chain := notification.Multi{hub, &notification.LogNotifier{Log: log}}

	if cfg.SMTPHost != "" && len(cfg.Recipients()) > 0 {
		port, err := strconv.Atoi(cfg.SMTPPort)
		if err != nil {
			port = 587
		}
		chain = append(chain, &notification.EmailNotifier{
			Host: cfg.SMTPHost,
			Port: port,
			User: cfg.SMTPUsername,
			Pass: cfg.SMTPPassword,
			From: cfg.EmailFrom,
			To:   cfg.Recipients(),
		})
	}
	if cfg.WebhookURL != "" {
		chain = append(chain, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	return chain
}

// Package scheduler runs the long-lived trader loop: one worker goroutine
// per timeframe firing a pipeline cycle just after each boundary, plus a
// health worker keeping the /healthz snapshot fresh.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tradesignals/internal/markethours"
	"tradesignals/internal/metrics"
	"tradesignals/internal/model"
	"tradesignals/internal/pipeline"
	"tradesignals/internal/position"
)

const (
	// boundaryOffset delays each cycle past its timeframe boundary so the
	// provider has finished writing the last 1m candle of the period.
	boundaryOffset = 5 * time.Second

	// idlePoll is the re-check cadence outside trading hours.
	idlePoll = time.Minute

	// healthInterval is the health worker cadence.
	healthInterval = 4 * time.Minute
)

// AuthChecker reports whether the market data session is still valid.
// Satisfied by the schwab client; nil skips the check.
type AuthChecker interface {
	Authenticated(ctx context.Context) bool
}

// Scheduler owns the per-timeframe workers for one symbol.
type Scheduler struct {
	symbol  string
	tfs     []model.Timeframe
	pipe    *pipeline.Pipeline
	tracker *position.Tracker
	log     *slog.Logger

	// Optional collaborators, set after construction.
	Health *metrics.HealthStatus
	Met    *metrics.Metrics
	Auth   AuthChecker

	alive atomic.Int64
	now   func() time.Time
}

// New creates a scheduler over the configured timeframes.
func New(symbol string, tfs []model.Timeframe, pipe *pipeline.Pipeline, tracker *position.Tracker, log *slog.Logger) *Scheduler {
	return &Scheduler{
		symbol:  symbol,
		tfs:     tfs,
		pipe:    pipe,
		tracker: tracker,
		log:     log,
		now:     time.Now,
	}
}

// NextRun returns the first instant strictly after now at which a tf cycle
// should fire: a session-open-aligned tf boundary plus the fixed offset,
// inside regular hours. Outside a session it points into the next one.
func NextRun(now time.Time, tf model.Timeframe) time.Time {
	open := markethours.SessionOpen(now)
	closeAt := markethours.SessionClose(now)
	if !markethours.IsMarketDay(now) || !now.Before(closeAt.Add(boundaryOffset)) {
		open = markethours.NextOpen(now)
		closeAt = markethours.SessionClose(open)
	}

	// First boundary is one full period after open; the open itself has no
	// completed candles behind it.
	next := open.Add(tf.Duration() + boundaryOffset)
	for !next.After(now) {
		next = next.Add(tf.Duration())
	}
	if next.After(closeAt.Add(boundaryOffset)) {
		return markethours.NextOpen(closeAt).Add(tf.Duration() + boundaryOffset)
	}
	return next
}

// Run blocks until ctx is cancelled, driving one worker per timeframe and
// the health worker.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, tf := range s.tfs {
		wg.Add(1)
		go func(tf model.Timeframe) {
			defer wg.Done()
			s.worker(ctx, tf)
		}(tf)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.healthWorker(ctx)
	}()
	wg.Wait()
}

func (s *Scheduler) worker(ctx context.Context, tf model.Timeframe) {
	s.alive.Add(1)
	defer s.alive.Add(-1)
	log := s.log.With(slog.String("timeframe", tf.String()))
	log.Info("worker started")

	for {
		now := s.now()
		if !markethours.IsMarketOpen(now) {
			// Idle outside the session; wake early if the next open is
			// closer than the poll interval.
			wait := idlePoll
			if until := markethours.NextOpen(now).Sub(now); until > 0 && until < wait {
				wait = until + boundaryOffset
			}
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		next := NextRun(now, tf)
		if !sleep(ctx, next.Sub(now)) {
			return
		}
		if !markethours.IsMarketOpen(s.now()) {
			continue
		}

		if err := s.pipe.Cycle(ctx, tf); err != nil {
			log.Error("cycle failed", slog.Any("error", err))
		} else if s.Health != nil {
			s.Health.SetLastCycleTime(s.now())
		}
	}
}

// healthWorker refreshes the /healthz snapshot and logs a compact status
// line every few minutes.
func (s *Scheduler) healthWorker(ctx context.Context) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		s.checkHealth(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) checkHealth(ctx context.Context) {
	now := s.now()
	open := markethours.IsMarketOpen(now)
	authOK := true
	if s.Auth != nil {
		authOK = s.Auth.Authenticated(ctx)
	}
	positions := s.tracker.StatusSummary()
	alive := int(s.alive.Load())

	if s.Health != nil {
		s.Health.SetMarketOpen(open)
		s.Health.SetAuthValid(authOK)
		s.Health.SetWorkers(alive, len(s.tfs))
		// The health endpoint carries the expanded form; the log line below
		// keeps the compact one.
		s.Health.SetPositions(s.tracker.StatusDetail())
	}
	if s.Met != nil {
		if open {
			s.Met.MarketState.Set(1)
		} else {
			s.Met.MarketState.Set(0)
		}
	}
	s.log.Info("health check",
		slog.String("symbol", s.symbol),
		slog.Bool("market_open", open),
		slog.Bool("auth_valid", authOK),
		slog.Int("workers_alive", alive),
		slog.Any("positions", positions))
}

// sleep waits for d in short slices so ctx cancellation is honored within
// about a second. Returns false when cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	const slice = time.Second
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		if remaining > slice {
			remaining = slice
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(remaining):
		}
	}
}

// Package metrics exposes Prometheus instrumentation and the /healthz
// endpoint for the long-lived trader process.
package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal pipeline.
type Metrics struct {
	CyclesTotal     *prometheus.CounterVec // labels: tf
	CycleErrors     *prometheus.CounterVec // labels: tf
	CycleDur        prometheus.Histogram
	CandlesIngested prometheus.Counter
	CandlesBuilt    *prometheus.CounterVec // labels: tf, kind
	IndicatorDur    prometheus.Histogram

	SignalsTotal *prometheus.CounterVec // labels: tf, side, action
	OpenPos      *prometheus.GaugeVec   // labels: tf, side
	TotalPnL     *prometheus.GaugeVec   // labels: tf, side

	FetchDur    prometheus.Histogram
	FetchErrors prometheus.Counter

	MarketState prometheus.Gauge // 0=closed, 1=open
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_cycles_total",
			Help: "Pipeline cycles completed per timeframe",
		}, []string{"tf"}),
		CycleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_cycle_errors_total",
			Help: "Pipeline cycles that ended in error per timeframe",
		}, []string{"tf"}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_cycle_duration_seconds",
			Help:    "Full pipeline cycle latency (fetch to evaluate)",
			Buckets: prometheus.DefBuckets,
		}),
		CandlesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_candles_ingested_total",
			Help: "New 1m candles written from the market data provider",
		}),
		CandlesBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_candles_built_total",
			Help: "Aggregated candles written per timeframe and dataset kind",
		}, []string{"tf", "kind"}),
		IndicatorDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_indicator_recompute_duration_seconds",
			Help:    "Full-history indicator recompute latency",
			Buckets: prometheus.DefBuckets,
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_signals_total",
			Help: "Position transitions fired",
		}, []string{"tf", "side", "action"}),
		OpenPos: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trader_position_open",
			Help: "Whether the (timeframe, side) position is open (0 or 1)",
		}, []string{"tf", "side"}),
		TotalPnL: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trader_total_pnl_dollars",
			Help: "Cumulative realized P&L per (timeframe, side)",
		}, []string{"tf", "side"}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_fetch_duration_seconds",
			Help:    "Market data fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_fetch_errors_total",
			Help: "Failed market data fetches",
		}),
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
	}

	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleErrors,
		m.CycleDur,
		m.CandlesIngested,
		m.CandlesBuilt,
		m.IndicatorDur,
		m.SignalsTotal,
		m.OpenPos,
		m.TotalPnL,
		m.FetchDur,
		m.FetchErrors,
		m.MarketState,
	)

	return m
}

// HealthStatus represents the trader's health, updated by the health worker.
type HealthStatus struct {
	mu sync.RWMutex

	MarketOpen    bool      `json:"market_open"`
	AuthValid     bool      `json:"auth_valid"`
	LastCycleTime time.Time `json:"last_cycle_time"`
	WorkersAlive  int       `json:"workers_alive"`
	WorkersTotal  int       `json:"workers_total"`

	Positions map[string]string `json:"positions"` // tf -> "L:C/S:O"

	LastCheckAt time.Time `json:"last_check_at"`
	StartedAt   time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetMarketOpen(v bool) {
	h.mu.Lock()
	h.MarketOpen = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetAuthValid(v bool) {
	h.mu.Lock()
	h.AuthValid = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCycleTime(t time.Time) {
	h.mu.Lock()
	h.LastCycleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetWorkers(alive, total int) {
	h.mu.Lock()
	h.WorkersAlive = alive
	h.WorkersTotal = total
	h.mu.Unlock()
}

func (h *HealthStatus) SetPositions(p map[string]string) {
	h.mu.Lock()
	h.Positions = p
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if h.WorkersTotal > 0 && h.WorkersAlive < h.WorkersTotal {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.AuthValid {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	cycleAge := ""
	if !h.LastCycleTime.IsZero() {
		cycleAge = time.Since(h.LastCycleTime).Round(time.Second).String()
	}

	status := struct {
		Status        string            `json:"status"`
		Uptime        string            `json:"uptime"`
		MarketOpen    bool              `json:"market_open"`
		AuthValid     bool              `json:"auth_valid"`
		LastCycleTime string            `json:"last_cycle_time"`
		CycleAge      string            `json:"cycle_age"`
		WorkersAlive  int               `json:"workers_alive"`
		WorkersTotal  int               `json:"workers_total"`
		Positions     map[string]string `json:"positions"`
		LastCheckAt   string            `json:"last_check_at"`
	}{
		Status:        overallStatus,
		Uptime:        time.Since(h.StartedAt).Round(time.Second).String(),
		MarketOpen:    h.MarketOpen,
		AuthValid:     h.AuthValid,
		LastCycleTime: h.LastCycleTime.Format(time.RFC3339),
		CycleAge:      cycleAge,
		WorkersAlive:  h.WorkersAlive,
		WorkersTotal:  h.WorkersTotal,
		Positions:     h.Positions,
		LastCheckAt:   h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics, /healthz, and any extra
// handlers registered before Start.
type Server struct {
	mux  *http.ServeMux
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		mux:  mux,
		addr: addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handle registers an extra route (e.g. the signal feed websocket).
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

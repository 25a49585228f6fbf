// Package journal persists fired signals to SQLite for analysis and audit.
// The CSV and JSON stores are the source of truth; the journal is a
// queryable history on the side.
package journal

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tradesignals/internal/model"
)

// Journal is an append-only signal log backed by SQLite.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (or creates) the journal database.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS signals (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol         TEXT NOT NULL,
		timeframe      TEXT NOT NULL,
		side           TEXT NOT NULL,
		action         TEXT NOT NULL,
		price          REAL NOT NULL,
		conditions_met INTEGER NOT NULL,
		summary        TEXT,
		pnl            REAL,
		total_pnl      REAL,
		fired_at       DATETIME NOT NULL,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol, timeframe);
	CREATE INDEX IF NOT EXISTS idx_signals_fired_at ON signals(fired_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened signal journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// Record persists one fired signal.
func (j *Journal) Record(sig model.Signal) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var pnl, totalPnL sql.NullFloat64
	if sig.PnL != nil {
		pnl = sql.NullFloat64{Float64: sig.PnL.Dollar, Valid: true}
		totalPnL = sql.NullFloat64{Float64: sig.PnL.Total, Valid: true}
	}

	_, err := j.db.Exec(
		`INSERT INTO signals (symbol, timeframe, side, action, price, conditions_met, summary, pnl, total_pnl, fired_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.Symbol,
		sig.Timeframe.String(),
		string(sig.Side),
		string(sig.Action),
		sig.Price,
		sig.ConditionsMet,
		sig.Summary,
		pnl,
		totalPnL,
		sig.At.Format(time.RFC3339),
	)
	return err
}

// SignalRecord represents a row from the signals table.
type SignalRecord struct {
	ID            int64   `json:"id"`
	Symbol        string  `json:"symbol"`
	Timeframe     string  `json:"timeframe"`
	Side          string  `json:"side"`
	Action        string  `json:"action"`
	Price         float64 `json:"price"`
	ConditionsMet int     `json:"conditions_met"`
	Summary       string  `json:"summary"`
	PnL           float64 `json:"pnl"`
	TotalPnL      float64 `json:"total_pnl"`
	FiredAt       string  `json:"fired_at"`
}

// Recent returns the last N signals, newest first.
func (j *Journal) Recent(limit int) ([]SignalRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, symbol, timeframe, side, action, price, conditions_met, summary, pnl, total_pnl, fired_at
		 FROM signals ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SignalRecord
	for rows.Next() {
		var r SignalRecord
		var summary sql.NullString
		var pnl, totalPnL sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Timeframe, &r.Side, &r.Action,
			&r.Price, &r.ConditionsMet, &summary, &pnl, &totalPnL, &r.FiredAt); err != nil {
			continue
		}
		r.Summary = summary.String
		r.PnL = pnl.Float64
		r.TotalPnL = totalPnL.Float64
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

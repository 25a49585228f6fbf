// Package candlecsv implements the on-disk Candle Store: one CSV table per
// (symbol, timeframe, dataset-kind), ordered by timestamp, with the seven
// indicator columns alongside the OHLCV data. New raw rows are appended;
// indicator recalculation rewrites the whole file atomically.
package candlecsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"tradesignals/internal/markethours"
	"tradesignals/internal/model"
)

var header = []string{
	"timestamp", "datetime", "open", "high", "low", "close", "volume",
	"ema_7", "vwma_17", "ema_12", "ema_26", "macd_line", "macd_signal", "roc_8",
}

// Store reads and writes candle CSV files under a data directory.
type Store struct {
	dir string
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("candlecsv: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the CSV path for (symbol, timeframe, kind), e.g.
// "data/SPY_15m.csv" or "data/SPY_15m_INVERSE.csv".
func (s *Store) Path(symbol string, tf model.Timeframe, kind model.DatasetKind) string {
	name := fmt.Sprintf("%s_%s.csv", symbol, tf)
	if kind == model.KindInverse {
		name = fmt.Sprintf("%s_%s_INVERSE.csv", symbol, tf)
	}
	return filepath.Join(s.dir, name)
}

// Load reads every row in stored order. A file that does not exist yet
// returns (nil, nil).
func (s *Store) Load(symbol string, tf model.Timeframe, kind model.DatasetKind) ([]model.Row, error) {
	f, err := os.Open(s.Path(symbol, tf, kind))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("candlecsv: open: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("candlecsv: read %s: %w", s.Path(symbol, tf, kind), err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	rows := make([]model.Row, 0, len(records)-1)
	for _, rec := range records[1:] { // skip header
		row, err := parseRow(symbol, rec)
		if err != nil {
			return nil, fmt.Errorf("candlecsv: %s: %w", s.Path(symbol, tf, kind), err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Append writes new candles after the existing rows, with empty indicator
// columns. The file (and header) is created on first use.
func (s *Store) Append(symbol string, tf model.Timeframe, kind model.DatasetKind, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	path := s.Path(symbol, tf, kind)

	// An empty file still needs the header; a crash can leave one behind.
	fresh := true
	if fi, err := os.Stat(path); err == nil {
		fresh = fi.Size() == 0
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("candlecsv: stat: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("candlecsv: append open: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("candlecsv: write header: %w", err)
		}
	}
	for i := range candles {
		if err := w.Write(formatRow(model.Row{Candle: candles[i]})); err != nil {
			return fmt.Errorf("candlecsv: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("candlecsv: flush: %w", err)
	}
	return nil
}

// Rewrite replaces the whole table. The new content is written to a temp
// file and renamed into place so a crash never leaves a partial file.
func (s *Store) Rewrite(symbol string, tf model.Timeframe, kind model.DatasetKind, rows []model.Row) error {
	path := s.Path(symbol, tf, kind)

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("candlecsv: temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("candlecsv: write header: %w", err)
	}
	for i := range rows {
		if err := w.Write(formatRow(rows[i])); err != nil {
			tmp.Close()
			return fmt.Errorf("candlecsv: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("candlecsv: flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("candlecsv: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("candlecsv: rename: %w", err)
	}
	return nil
}

// LastTimestamp returns the TS of the last stored row; ok is false for an
// empty or absent store.
func (s *Store) LastTimestamp(symbol string, tf model.Timeframe, kind model.DatasetKind) (int64, bool, error) {
	rows, err := s.Load(symbol, tf, kind)
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[len(rows)-1].TS, true, nil
}

func formatRow(row model.Row) []string {
	c := &row.Candle
	return []string{
		strconv.FormatInt(c.TS, 10),
		time.UnixMilli(c.TS).In(markethours.Eastern).Format(time.RFC3339),
		formatFloat(c.Open),
		formatFloat(c.High),
		formatFloat(c.Low),
		formatFloat(c.Close),
		formatFloat(c.Volume),
		formatOpt(row.Ind.EMA7),
		formatOpt(row.Ind.VWMA17),
		formatOpt(row.Ind.EMA12),
		formatOpt(row.Ind.EMA26),
		formatOpt(row.Ind.MACDLine),
		formatOpt(row.Ind.MACDSignal),
		formatOpt(row.Ind.ROC8),
	}
}

func parseRow(symbol string, rec []string) (model.Row, error) {
	ts, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return model.Row{}, fmt.Errorf("bad timestamp %q: %w", rec[0], err)
	}
	var row model.Row
	row.Symbol = symbol
	row.TS = ts
	// rec[1] is the display datetime, derived from the timestamp on write.
	if row.Open, err = strconv.ParseFloat(rec[2], 64); err != nil {
		return model.Row{}, fmt.Errorf("bad open %q: %w", rec[2], err)
	}
	if row.High, err = strconv.ParseFloat(rec[3], 64); err != nil {
		return model.Row{}, fmt.Errorf("bad high %q: %w", rec[3], err)
	}
	if row.Low, err = strconv.ParseFloat(rec[4], 64); err != nil {
		return model.Row{}, fmt.Errorf("bad low %q: %w", rec[4], err)
	}
	if row.Close, err = strconv.ParseFloat(rec[5], 64); err != nil {
		return model.Row{}, fmt.Errorf("bad close %q: %w", rec[5], err)
	}
	if row.Volume, err = strconv.ParseFloat(rec[6], 64); err != nil {
		return model.Row{}, fmt.Errorf("bad volume %q: %w", rec[6], err)
	}
	row.Ind = model.IndicatorRow{
		EMA7:       parseOpt(rec[7]),
		VWMA17:     parseOpt(rec[8]),
		EMA12:      parseOpt(rec[9]),
		EMA26:      parseOpt(rec[10]),
		MACDLine:   parseOpt(rec[11]),
		MACDSignal: parseOpt(rec[12]),
		ROC8:       parseOpt(rec[13]),
	}
	return row, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// formatOpt renders an undefined indicator value as an empty cell.
func formatOpt(v model.Float) string {
	if !v.OK {
		return ""
	}
	return formatFloat(v.V)
}

func parseOpt(s string) model.Float {
	if s == "" {
		return model.Undefined()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return model.Undefined()
	}
	return model.Defined(v)
}

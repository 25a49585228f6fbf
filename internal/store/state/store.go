// Package state implements the Position State Store: a single JSON
// document holding every (timeframe, side) record, written all-or-nothing
// so a crash can never leave a half-updated state on disk.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"tradesignals/internal/model"
)

// document is the on-disk shape, keyed timeframe → side.
type document struct {
	PositionStates map[string]map[string]model.PositionState `json:"position_states"`
	OpeningPrices  map[string]map[string]*float64            `json:"opening_prices"`
	TotalPnL       map[string]map[string]float64             `json:"total_pnl"`
	LastUpdated    time.Time                                 `json:"last_updated"`
}

// Store persists a position book as a JSON file.
type Store struct {
	path string
}

// New creates a Store at path, creating parent directories if needed.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("state: mkdir %s: %w", dir, err)
		}
	}
	return &Store{path: path}, nil
}

// Load reads the persisted book. Returns (nil, nil) when the file has
// never been written.
func (s *Store) Load() (*model.PositionBook, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("state: read %s: %w", s.path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("state: parse %s: %w", s.path, err)
	}

	book := &model.PositionBook{
		Records:     make(map[model.Timeframe]map[model.Side]*model.PositionRecord),
		LastUpdated: doc.LastUpdated,
	}
	for tfKey, sides := range doc.PositionStates {
		tf, err := model.ParseTimeframe(tfKey)
		if err != nil {
			return nil, fmt.Errorf("state: %s: %w", s.path, err)
		}
		for sideKey, st := range sides {
			rec := book.Get(tf, model.Side(sideKey))
			rec.State = st
			if p := doc.OpeningPrices[tfKey][sideKey]; p != nil {
				rec.OpeningPrice = model.Defined(*p)
			}
			rec.TotalPnL = doc.TotalPnL[tfKey][sideKey]
		}
	}
	return book, nil
}

// Save persists the book. The document is written to a temp file and
// renamed into place.
func (s *Store) Save(book *model.PositionBook) error {
	doc := document{
		PositionStates: make(map[string]map[string]model.PositionState, len(book.Records)),
		OpeningPrices:  make(map[string]map[string]*float64, len(book.Records)),
		TotalPnL:       make(map[string]map[string]float64, len(book.Records)),
		LastUpdated:    time.Now().UTC(),
	}
	for tf, sides := range book.Records {
		key := tf.String()
		doc.PositionStates[key] = make(map[string]model.PositionState, len(sides))
		doc.OpeningPrices[key] = make(map[string]*float64, len(sides))
		doc.TotalPnL[key] = make(map[string]float64, len(sides))
		for side, rec := range sides {
			doc.PositionStates[key][string(side)] = rec.State
			if rec.OpeningPrice.OK {
				v := rec.OpeningPrice.V
				doc.OpeningPrices[key][string(side)] = &v
			} else {
				doc.OpeningPrices[key][string(side)] = nil
			}
			doc.TotalPnL[key][string(side)] = rec.TotalPnL
		}
	}

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("state: temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("state: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("state: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("state: rename: %w", err)
	}
	return nil
}

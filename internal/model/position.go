package model

import "time"

// Side identifies the position direction. LONG is driven by indicators on
// the regular dataset, SHORT by indicators on the inverse dataset.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Sides in evaluation order.
var Sides = []Side{SideLong, SideShort}

// Kind returns the dataset kind that drives this side.
func (s Side) Kind() DatasetKind {
	if s == SideShort {
		return KindInverse
	}
	return KindRegular
}

// PositionState is the state of one (timeframe, side) record.
type PositionState string

const (
	StateClosed PositionState = "CLOSED"
	StateOpened PositionState = "OPENED"
)

// PositionRecord tracks one (timeframe, side) position.
// OpeningPrice is defined iff State is OPENED. TotalPnL is the cumulative
// realized P&L and only changes on a CLOSE transition.
type PositionRecord struct {
	State        PositionState
	OpeningPrice Float
	TotalPnL     float64
}

// PositionBook holds every (timeframe, side) record. It is plain data;
// the position tracker is its sole writer.
type PositionBook struct {
	Records     map[Timeframe]map[Side]*PositionRecord
	LastUpdated time.Time
}

// NewPositionBook returns a book with CLOSED zero-P&L records for every
// given timeframe and both sides.
func NewPositionBook(tfs []Timeframe) *PositionBook {
	b := &PositionBook{Records: make(map[Timeframe]map[Side]*PositionRecord, len(tfs))}
	for _, tf := range tfs {
		for _, side := range Sides {
			b.Get(tf, side)
		}
	}
	return b
}

// Get returns the record for (tf, side), creating a CLOSED default if the
// book has never seen the key.
func (b *PositionBook) Get(tf Timeframe, side Side) *PositionRecord {
	if b.Records == nil {
		b.Records = make(map[Timeframe]map[Side]*PositionRecord)
	}
	m, ok := b.Records[tf]
	if !ok {
		m = make(map[Side]*PositionRecord, 2)
		b.Records[tf] = m
	}
	rec, ok := m[side]
	if !ok {
		rec = &PositionRecord{State: StateClosed}
		m[side] = rec
	}
	return rec
}

// Timeframes returns the timeframes present in the book.
func (b *PositionBook) Timeframes() []Timeframe {
	tfs := make([]Timeframe, 0, len(b.Records))
	for tf := range b.Records {
		tfs = append(tfs, tf)
	}
	return tfs
}

// Action is the outcome of one state machine evaluation.
type Action string

const (
	ActionNone  Action = "NONE"
	ActionOpen  Action = "OPEN"
	ActionClose Action = "CLOSE"
)

// PnL describes the realized result of a CLOSE transition.
type PnL struct {
	OpeningPrice float64 `json:"opening_price"`
	ClosingPrice float64 `json:"closing_price"`
	Dollar       float64 `json:"pnl_dollar"`
	Percent      float64 `json:"pnl_percent"`
	Total        float64 `json:"total_pnl"`
}

// Signal is an emitted open/close transition.
type Signal struct {
	Symbol        string    `json:"symbol"`
	Timeframe     Timeframe `json:"timeframe"`
	Side          Side      `json:"side"`
	Action        Action    `json:"action"`
	Price         float64   `json:"price"`
	ConditionsMet int       `json:"conditions_met"`
	Summary       string    `json:"summary"`
	PnL           *PnL      `json:"pnl,omitempty"`
	At            time.Time `json:"at"`
}

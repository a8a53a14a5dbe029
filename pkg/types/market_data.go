package types

import "time"

// Tick is one normalized market data update for an instrument.
// Ticks are immutable once emitted by a feed.
type Tick struct {
	Symbol    string
	Timestamp time.Time
	Bid       float64
	Ask       float64
	Last      float64
	Volume    float64
}

// Mid returns the midpoint between the best bid and best ask.
func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2.0
}

// Spread returns the bid/ask spread.
func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// Mark returns the price used for mark-to-market valuation.
// The last trade price is preferred; the midpoint is the fallback
// for instruments that have quoted but not traded yet.
func (t Tick) Mark() float64 {
	if t.Last > 0 {
		return t.Last
	}
	return t.Mid()
}

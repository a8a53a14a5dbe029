package types

import "time"

// Side represents buy or sell side (string-based for API compatibility)
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Sign returns +1 for buys and -1 for sells, the direction the
// position moves when a fill on this side is applied.
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1.0
	}
	return 1.0
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PriceType represents the price constraint of an order
type PriceType string

const (
	PriceTypeMarket PriceType = "Market"
	PriceTypeLimit  PriceType = "Limit"
)

// OrderIntent is a proposed trade before risk validation.
// An intent is never mutated after creation; it is either approved
// (becoming a pending order) or rejected with a reason.
type OrderIntent struct {
	ID         string
	Symbol     string
	Side       Side
	Quantity   float64
	PriceType  PriceType
	LimitPrice float64 // set only when PriceType is PriceTypeLimit
	SignalID   string  // originating signal reference
	CreatedAt  time.Time
}

// Notional returns the intent's notional value. Limit intents are
// valued at their limit price, market intents at the supplied mark.
func (i OrderIntent) Notional(mark float64) float64 {
	if i.PriceType == PriceTypeLimit {
		return i.Quantity * i.LimitPrice
	}
	return i.Quantity * mark
}

// SignedQuantity returns the position delta this intent would produce
// if fully filled.
func (i OrderIntent) SignedQuantity() float64 {
	return i.Side.Sign() * i.Quantity
}

// Fill is a confirmation that some or all of an order's quantity
// executed at a price. FillID is the venue's unique fill identifier
// and is the deduplication key everywhere a fill is applied.
type Fill struct {
	FillID    string    `json:"fill_id"`
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

package venue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/levanduc-dev/tick-trader/internal/logger"
	"github.com/levanduc-dev/tick-trader/pkg/types"
)

// SimVenue is a deterministic in-process execution venue for paper
// trading and tests. Market orders fill immediately against the last
// quote; limit orders rest and fill in full when a quote crosses the
// limit price. Quotes are advanced by feeding ticks via UpdateQuote.
type SimVenue struct {
	log *logger.Logger

	mutex   sync.Mutex
	quotes  map[string]types.Tick
	resting map[string]SubmitRequest // venue order id -> order
	emitted []types.Fill
	seq     int

	holdAcks   bool
	rejectNext string

	fills     chan types.Fill
	closeOnce sync.Once
	isClosed  bool
}

// NewSimVenue creates an empty simulated venue
func NewSimVenue(log *logger.Logger) *SimVenue {
	return &SimVenue{
		log:     log.Component("sim_venue"),
		quotes:  make(map[string]types.Tick),
		resting: make(map[string]SubmitRequest),
		fills:   make(chan types.Fill, 128),
	}
}

// Name identifies the venue
func (v *SimVenue) Name() string {
	return "sim"
}

// Submit acknowledges immediately. Market orders fill against the
// current quote before the ack returns; limit orders rest.
func (v *SimVenue) Submit(ctx context.Context, req SubmitRequest) (Ack, error) {
	v.mutex.Lock()

	if v.holdAcks {
		v.mutex.Unlock()
		// Simulate a venue that never answers: park until the caller
		// gives up, which exercises the ack-timeout path.
		<-ctx.Done()
		return Ack{}, ctx.Err()
	}

	if v.rejectNext != "" {
		reason := v.rejectNext
		v.rejectNext = ""
		v.mutex.Unlock()
		return Ack{
			ClientOrderID: req.ClientOrderID,
			Accepted:      false,
			Reason:        reason,
			Timestamp:     time.Now(),
		}, nil
	}

	if req.Quantity <= 0 {
		v.mutex.Unlock()
		return Ack{
			ClientOrderID: req.ClientOrderID,
			Accepted:      false,
			Reason:        "non-positive quantity",
			Timestamp:     time.Now(),
		}, nil
	}

	v.seq++
	venueOrderID := fmt.Sprintf("SIM-%06d", v.seq)

	switch req.PriceType {
	case types.PriceTypeMarket:
		quote, ok := v.quotes[req.Symbol]
		if !ok {
			v.mutex.Unlock()
			return Ack{
				ClientOrderID: req.ClientOrderID,
				Accepted:      false,
				Reason:        "no quote for symbol",
				Timestamp:     time.Now(),
			}, nil
		}
		price := quote.Ask
		if req.Side == types.SideSell {
			price = quote.Bid
		}
		v.emitFillLocked(venueOrderID, req, req.Quantity, price, quote.Timestamp)
	case types.PriceTypeLimit:
		v.resting[venueOrderID] = req
	default:
		v.mutex.Unlock()
		return Ack{
			ClientOrderID: req.ClientOrderID,
			Accepted:      false,
			Reason:        "unsupported price type",
			Timestamp:     time.Now(),
		}, nil
	}

	v.mutex.Unlock()
	return Ack{
		ClientOrderID: req.ClientOrderID,
		VenueOrderID:  venueOrderID,
		Accepted:      true,
		Timestamp:     time.Now(),
	}, nil
}

// Cancel withdraws a resting limit order
func (v *SimVenue) Cancel(ctx context.Context, venueOrderID string) error {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	if _, ok := v.resting[venueOrderID]; !ok {
		return fmt.Errorf("order %s is not resting", venueOrderID)
	}
	delete(v.resting, venueOrderID)
	return nil
}

// UpdateQuote advances the simulated market with a new tick. Resting
// limit orders whose price is crossed fill in full at the limit price.
func (v *SimVenue) UpdateQuote(tick types.Tick) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.quotes[tick.Symbol] = tick

	for id, order := range v.resting {
		if order.Symbol != tick.Symbol {
			continue
		}
		crossed := (order.Side == types.SideBuy && tick.Ask <= order.LimitPrice) ||
			(order.Side == types.SideSell && tick.Bid >= order.LimitPrice)
		if crossed {
			delete(v.resting, id)
			v.emitFillLocked(id, order, order.Quantity, order.LimitPrice, tick.Timestamp)
		}
	}
}

func (v *SimVenue) emitFillLocked(venueOrderID string, req SubmitRequest, qty, price float64, ts time.Time) {
	fill := types.Fill{
		FillID:    uuid.NewString(),
		OrderID:   venueOrderID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  qty,
		Price:     price,
		Timestamp: ts,
	}
	v.emitted = append(v.emitted, fill)
	v.deliverLocked(fill)
	v.log.Trade("filled %s %s %.8f @ %.8f", req.Side, req.Symbol, qty, price)
}

func (v *SimVenue) deliverLocked(fill types.Fill) {
	if v.isClosed {
		return
	}
	select {
	case v.fills <- fill:
	default:
		v.log.Warning("fill channel full, dropping notification %s", fill.FillID)
	}
}

// RestingCount returns the number of resting limit orders
func (v *SimVenue) RestingCount() int {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return len(v.resting)
}

// RedeliverLastFill re-sends the most recent fill notification with
// the same fill id, simulating the at-least-once delivery of a real
// venue's fill stream.
func (v *SimVenue) RedeliverLastFill() {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	if len(v.emitted) == 0 {
		return
	}
	v.deliverLocked(v.emitted[len(v.emitted)-1])
}

// HoldAcks makes subsequent submissions hang until their context
// expires, for exercising ack-timeout escalation.
func (v *SimVenue) HoldAcks(hold bool) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.holdAcks = hold
}

// RejectNext makes the next submission come back rejected
func (v *SimVenue) RejectNext(reason string) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.rejectNext = reason
}

// Fills returns the fill notification channel
func (v *SimVenue) Fills() <-chan types.Fill {
	return v.fills
}

// Close shuts the venue down and closes the fill channel
func (v *SimVenue) Close() error {
	v.closeOnce.Do(func() {
		v.mutex.Lock()
		v.isClosed = true
		v.mutex.Unlock()
		close(v.fills)
	})
	return nil
}

package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/levanduc-dev/tick-trader/internal/errors"
	"github.com/levanduc-dev/tick-trader/internal/logger"
	"github.com/levanduc-dev/tick-trader/internal/monitoring"
	"github.com/levanduc-dev/tick-trader/internal/venue"
	"github.com/levanduc-dev/tick-trader/pkg/types"
)

// Status is the lifecycle state of an order request
type Status string

const (
	StatusPending         Status = "pending"
	StatusAcknowledged    Status = "acknowledged"
	StatusPartiallyFilled Status = "partially_filled"
	StatusFilled          Status = "filled"
	StatusCancelled       Status = "cancelled"
	StatusRejected        Status = "rejected"
)

// Terminal reports whether no further transitions are allowed from s
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// OrderRequest is the router's record of one submitted order. The
// router owns these exclusively; accessors hand out copies.
type OrderRequest struct {
	ClientOrderID string
	VenueOrderID  string
	Intent        types.OrderIntent
	Status        Status
	FilledQty     float64
	AvgFillPrice  float64
	Reason        string
	SubmittedAt   time.Time
	UpdatedAt     time.Time
}

// Remaining returns the unfilled quantity
func (o *OrderRequest) Remaining() float64 {
	return o.Intent.Quantity - o.FilledQty
}

// FillSink receives deduplicated fills for position accounting
type FillSink interface {
	ApplyFill(fill types.Fill) error
}

const fillQuantityTolerance = 1e-9

// Router carries approved order intents to the execution venue and
// tracks each resulting order through its lifecycle. It is the single
// consumer of the venue's fill stream: every fill is deduplicated by
// its venue-assigned id and forwarded to the sink exactly once.
//
// A fill that cannot be attributed to a tracked order, or that would
// overfill one, puts the router into degraded mode: submissions are
// refused while cancellations stay available, so exposure can only
// shrink until an operator intervenes.
type Router struct {
	venue      venue.Venue
	sink       FillSink
	log        *logger.Logger
	ackTimeout time.Duration

	mutex          sync.Mutex
	orders         map[string]*OrderRequest // client order id -> request
	byVenueID      map[string]string        // venue order id -> client order id
	seenFills      map[string]struct{}
	unmatched      map[string][]types.Fill // fills awaiting their venue order id mapping
	inFlight       int                     // submissions awaiting acknowledgment
	degraded       bool
	degradedReason string

	wg sync.WaitGroup
}

// NewRouter creates a router consuming the venue's fill stream. The
// consumer goroutine exits when the venue closes its fill channel.
func NewRouter(v venue.Venue, sink FillSink, ackTimeout time.Duration, log *logger.Logger) *Router {
	r := &Router{
		venue:      v,
		sink:       sink,
		log:        log.Component("router"),
		ackTimeout: ackTimeout,
		orders:     make(map[string]*OrderRequest),
		byVenueID:  make(map[string]string),
		seenFills:  make(map[string]struct{}),
		unmatched:  make(map[string][]types.Fill),
	}

	r.wg.Add(1)
	go r.consumeFills()
	return r
}

// Submit dispatches an approved intent to the venue and waits for the
// acknowledgment, bounded by the configured ack timeout.
//
// An ack timeout leaves the order pending and returns an
// AckTimeoutError: the venue may or may not hold the order, so the
// router never resubmits on its own. A venue rejection moves the order
// to rejected and returns a VenueRejectionError.
func (r *Router) Submit(ctx context.Context, intent types.OrderIntent) (OrderRequest, error) {
	r.mutex.Lock()
	if r.degraded {
		reason := r.degradedReason
		r.mutex.Unlock()
		return OrderRequest{}, fmt.Errorf("%w: %s", apperrors.ErrDispatchHalted, reason)
	}
	if _, exists := r.orders[intent.ID]; exists {
		r.mutex.Unlock()
		return OrderRequest{}, fmt.Errorf("intent %s was already submitted", intent.ID)
	}

	order := &OrderRequest{
		ClientOrderID: intent.ID,
		Intent:        intent,
		Status:        StatusPending,
		SubmittedAt:   time.Now(),
		UpdatedAt:     time.Now(),
	}
	r.orders[intent.ID] = order
	r.inFlight++
	r.mutex.Unlock()

	submitCtx, cancel := context.WithTimeout(ctx, r.ackTimeout)
	defer cancel()

	ack, err := r.venue.Submit(submitCtx, venue.SubmitRequest{
		ClientOrderID: intent.ID,
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		Quantity:      intent.Quantity,
		PriceType:     intent.PriceType,
		LimitPrice:    intent.LimitPrice,
	})

	r.mutex.Lock()
	defer func() {
		r.inFlight--
		r.resolveUnmatchedLocked()
		r.mutex.Unlock()
	}()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Unknown state: the order stays pending and the caller
			// escalates. Resubmitting here could double the exposure.
			elapsed := time.Since(order.SubmittedAt)
			r.log.Error("no acknowledgment for order %s after %v", intent.ID, elapsed)
			return r.copyLocked(order), &apperrors.AckTimeoutError{
				OrderID: intent.ID,
				Elapsed: elapsed,
			}
		}
		order.Status = StatusRejected
		order.Reason = err.Error()
		order.UpdatedAt = time.Now()
		return r.copyLocked(order), fmt.Errorf("order %s submission failed: %w", intent.ID, err)
	}

	if !ack.Accepted {
		order.Status = StatusRejected
		order.Reason = ack.Reason
		order.UpdatedAt = time.Now()
		r.log.Warning("venue rejected order %s: %s", intent.ID, ack.Reason)
		return r.copyLocked(order), &apperrors.VenueRejectionError{
			OrderID: intent.ID,
			Reason:  ack.Reason,
		}
	}

	order.VenueOrderID = ack.VenueOrderID
	r.byVenueID[ack.VenueOrderID] = intent.ID
	order.Status = StatusAcknowledged
	order.UpdatedAt = time.Now()
	r.log.Info("order %s acknowledged as %s", intent.ID, ack.VenueOrderID)

	// Fills can outrun the acknowledgment; apply any that were stashed
	// while the venue order id was still unknown.
	for _, fill := range r.unmatched[ack.VenueOrderID] {
		r.applyFillLocked(order, fill)
	}
	delete(r.unmatched, ack.VenueOrderID)

	return r.copyLocked(order), nil
}

// Cancel withdraws a live order. Orders in a terminal state cannot be
// cancelled; attempting it returns ErrInvalidStateTransition.
// Cancellation stays available in degraded mode.
func (r *Router) Cancel(ctx context.Context, clientOrderID string) error {
	r.mutex.Lock()
	order, ok := r.orders[clientOrderID]
	if !ok {
		r.mutex.Unlock()
		return fmt.Errorf("order %s: %w", clientOrderID, apperrors.ErrUnknownOrder)
	}
	if order.Status.Terminal() {
		r.mutex.Unlock()
		return fmt.Errorf("cancel %s in state %s: %w",
			clientOrderID, order.Status, apperrors.ErrInvalidStateTransition)
	}
	venueOrderID := order.VenueOrderID
	r.mutex.Unlock()

	if venueOrderID != "" {
		if err := r.venue.Cancel(ctx, venueOrderID); err != nil {
			return fmt.Errorf("failed to cancel order %s: %w", clientOrderID, err)
		}
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	// A fill may have completed the order while the cancel was in
	// flight; the terminal state it reached first wins.
	if order.Status.Terminal() {
		return nil
	}
	order.Status = StatusCancelled
	order.UpdatedAt = time.Now()
	r.log.Info("order %s cancelled", clientOrderID)
	return nil
}

func (r *Router) consumeFills() {
	defer r.wg.Done()
	for fill := range r.venue.Fills() {
		r.onFill(fill)
	}
}

func (r *Router) onFill(fill types.Fill) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	clientOrderID, ok := r.byVenueID[fill.OrderID]
	if !ok {
		if r.inFlight > 0 {
			// A submission is still awaiting its ack; this fill may
			// belong to it and will be matched once the ack lands.
			r.unmatched[fill.OrderID] = append(r.unmatched[fill.OrderID], fill)
			return
		}
		r.enterDegradedLocked(&apperrors.LedgerInconsistencyError{
			FillID:  fill.FillID,
			OrderID: fill.OrderID,
			Reason:  "fill for unknown order",
		})
		return
	}
	r.applyFillLocked(r.orders[clientOrderID], fill)
}

// resolveUnmatchedLocked is called when a submission settles. With no
// acks outstanding, stashed fills can no longer find an owner: they
// reference orders this router never placed.
func (r *Router) resolveUnmatchedLocked() {
	if r.inFlight > 0 || len(r.unmatched) == 0 {
		return
	}
	for venueOrderID, fills := range r.unmatched {
		r.enterDegradedLocked(&apperrors.LedgerInconsistencyError{
			FillID:  fills[0].FillID,
			OrderID: venueOrderID,
			Reason:  "fill for unknown order",
		})
	}
	r.unmatched = make(map[string][]types.Fill)
}

func (r *Router) applyFillLocked(order *OrderRequest, fill types.Fill) {
	if _, seen := r.seenFills[fill.FillID]; seen {
		r.log.Debug("duplicate fill %s dropped", fill.FillID)
		return
	}

	if fill.Quantity > order.Remaining()+fillQuantityTolerance {
		r.enterDegradedLocked(&apperrors.LedgerInconsistencyError{
			FillID:  fill.FillID,
			OrderID: fill.OrderID,
			Reason: fmt.Sprintf("fill quantity %.8f exceeds remaining %.8f",
				fill.Quantity, order.Remaining()),
		})
		return
	}

	if err := r.sink.ApplyFill(fill); err != nil {
		r.enterDegradedLocked(&apperrors.LedgerInconsistencyError{
			FillID:  fill.FillID,
			OrderID: fill.OrderID,
			Reason:  fmt.Sprintf("ledger refused fill: %v", err),
		})
		return
	}
	r.seenFills[fill.FillID] = struct{}{}
	monitoring.RecordFill(fill.Symbol, string(fill.Side), fill.Price*fill.Quantity)

	order.AvgFillPrice = (order.AvgFillPrice*order.FilledQty + fill.Price*fill.Quantity) /
		(order.FilledQty + fill.Quantity)
	order.FilledQty += fill.Quantity
	order.UpdatedAt = time.Now()

	// A late fill can still arrive for a cancelled order; the position
	// accounting above stands, but the terminal status does not change.
	if !order.Status.Terminal() {
		if order.Remaining() <= fillQuantityTolerance {
			order.Status = StatusFilled
		} else {
			order.Status = StatusPartiallyFilled
		}
	}

	r.log.Trade("fill %s: %s %s %.8f @ %.8f (order %s now %s)",
		fill.FillID, fill.Side, fill.Symbol, fill.Quantity, fill.Price,
		order.ClientOrderID, order.Status)
}

func (r *Router) enterDegradedLocked(cause error) {
	r.log.Error("entering degraded mode: %v", cause)
	if !r.degraded {
		r.degraded = true
		r.degradedReason = cause.Error()
	}
}

// Degraded reports whether the router refuses new submissions
func (r *Router) Degraded() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.degraded
}

// Order returns a copy of the tracked request for a client order id
func (r *Router) Order(clientOrderID string) (OrderRequest, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	order, ok := r.orders[clientOrderID]
	if !ok {
		return OrderRequest{}, false
	}
	return r.copyLocked(order), true
}

// OpenOrders returns copies of all orders not yet in a terminal state
func (r *Router) OpenOrders() []OrderRequest {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var open []OrderRequest
	for _, order := range r.orders {
		if !order.Status.Terminal() {
			open = append(open, r.copyLocked(order))
		}
	}
	return open
}

func (r *Router) copyLocked(order *OrderRequest) OrderRequest {
	return *order
}

// Wait blocks until the fill consumer has drained the venue's closed
// fill channel. Call after closing the venue.
func (r *Router) Wait() {
	r.wg.Wait()
}

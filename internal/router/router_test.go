package router

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/levanduc-dev/tick-trader/internal/errors"
	"github.com/levanduc-dev/tick-trader/internal/ledger"
	"github.com/levanduc-dev/tick-trader/internal/logger"
	"github.com/levanduc-dev/tick-trader/internal/venue"
	"github.com/levanduc-dev/tick-trader/pkg/types"
)

func marketIntent(side types.Side, qty float64) types.OrderIntent {
	return types.OrderIntent{
		ID:        uuid.NewString(),
		Symbol:    "BTCUSDT",
		Side:      side,
		Quantity:  qty,
		PriceType: types.PriceTypeMarket,
		CreatedAt: time.Now(),
	}
}

func limitIntent(side types.Side, qty, price float64) types.OrderIntent {
	intent := marketIntent(side, qty)
	intent.PriceType = types.PriceTypeLimit
	intent.LimitPrice = price
	return intent
}

func newSimSetup(t *testing.T) (*venue.SimVenue, *ledger.Ledger, *Router) {
	t.Helper()
	v := venue.NewSimVenue(logger.NewNop())
	l := ledger.NewLedger(100000, nil)
	r := NewRouter(v, l, time.Second, logger.NewNop())
	t.Cleanup(func() {
		v.Close()
		r.Wait()
	})
	return v, l, r
}

func awaitStatus(t *testing.T, r *Router, clientOrderID string, want Status) OrderRequest {
	t.Helper()
	var got OrderRequest
	require.Eventually(t, func() bool {
		order, ok := r.Order(clientOrderID)
		if !ok {
			return false
		}
		got = order
		return order.Status == want
	}, time.Second, 5*time.Millisecond, "order never reached %s", want)
	return got
}

func TestRouter_MarketOrderFillsAndUpdatesLedger(t *testing.T) {
	v, l, r := newSimSetup(t)
	v.UpdateQuote(types.Tick{Symbol: "BTCUSDT", Timestamp: time.Now(), Bid: 99.5, Ask: 100.5})

	intent := marketIntent(types.SideBuy, 10)
	order, err := r.Submit(context.Background(), intent)
	require.NoError(t, err)
	assert.NotEmpty(t, order.VenueOrderID)

	filled := awaitStatus(t, r, intent.ID, StatusFilled)
	assert.Equal(t, 10.0, filled.FilledQty)
	assert.Equal(t, 100.5, filled.AvgFillPrice)

	pos := l.Snapshot().Position("BTCUSDT")
	assert.InDelta(t, 10.0, pos.Quantity.InexactFloat64(), 1e-9)
}

func TestRouter_LimitOrderAcknowledgedThenFilledOnCross(t *testing.T) {
	v, _, r := newSimSetup(t)
	v.UpdateQuote(types.Tick{Symbol: "BTCUSDT", Timestamp: time.Now(), Bid: 99.5, Ask: 100.5})

	intent := limitIntent(types.SideBuy, 10, 98.0)
	order, err := r.Submit(context.Background(), intent)
	require.NoError(t, err)
	assert.Equal(t, StatusAcknowledged, order.Status)
	assert.Len(t, r.OpenOrders(), 1)

	v.UpdateQuote(types.Tick{Symbol: "BTCUSDT", Timestamp: time.Now(), Bid: 97.0, Ask: 97.5})
	filled := awaitStatus(t, r, intent.ID, StatusFilled)
	assert.Equal(t, 98.0, filled.AvgFillPrice)
	assert.Empty(t, r.OpenOrders())
}

func TestRouter_VenueRejectionIsTerminal(t *testing.T) {
	v, _, r := newSimSetup(t)
	v.RejectNext("insufficient margin")

	intent := limitIntent(types.SideBuy, 10, 98.0)
	order, err := r.Submit(context.Background(), intent)

	var rejection *apperrors.VenueRejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "insufficient margin", rejection.Reason)
	assert.Equal(t, StatusRejected, order.Status)

	// Terminal: the rejection cannot be cancelled away
	err = r.Cancel(context.Background(), intent.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)
}

func TestRouter_AckTimeoutEscalatesWithoutRetry(t *testing.T) {
	v := venue.NewSimVenue(logger.NewNop())
	l := ledger.NewLedger(100000, nil)
	r := NewRouter(v, l, 30*time.Millisecond, logger.NewNop())
	t.Cleanup(func() {
		v.Close()
		r.Wait()
	})

	v.HoldAcks(true)
	intent := limitIntent(types.SideBuy, 10, 98.0)
	order, err := r.Submit(context.Background(), intent)

	var timeout *apperrors.AckTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, intent.ID, timeout.OrderID)

	// The order state is unknown, not failed: it stays pending
	assert.Equal(t, StatusPending, order.Status)
	assert.Equal(t, 0, v.RestingCount())
}

func TestRouter_CancelLifecycle(t *testing.T) {
	_, _, r := newSimSetup(t)

	intent := limitIntent(types.SideBuy, 10, 98.0)
	_, err := r.Submit(context.Background(), intent)
	require.NoError(t, err)

	require.NoError(t, r.Cancel(context.Background(), intent.ID))
	order, ok := r.Order(intent.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, order.Status)

	// Cancelled is terminal
	err = r.Cancel(context.Background(), intent.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)

	// Unknown client order ids are reported as such
	err = r.Cancel(context.Background(), "no-such-order")
	assert.ErrorIs(t, err, apperrors.ErrUnknownOrder)
}

func TestRouter_DuplicateFillAppliedOnce(t *testing.T) {
	v, l, r := newSimSetup(t)
	v.UpdateQuote(types.Tick{Symbol: "BTCUSDT", Timestamp: time.Now(), Bid: 99.5, Ask: 100.5})

	intent := marketIntent(types.SideBuy, 10)
	_, err := r.Submit(context.Background(), intent)
	require.NoError(t, err)
	awaitStatus(t, r, intent.ID, StatusFilled)

	v.RedeliverLastFill()
	time.Sleep(30 * time.Millisecond)

	order, _ := r.Order(intent.ID)
	assert.Equal(t, 10.0, order.FilledQty)
	pos := l.Snapshot().Position("BTCUSDT")
	assert.InDelta(t, 10.0, pos.Quantity.InexactFloat64(), 1e-9)
	assert.False(t, r.Degraded())
}

// fillsCounterValue reads the applied-fill counter for one label pair
// from the default registry.
func fillsCounterValue(t *testing.T, symbol, side string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "trader_fills_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, label := range m.GetLabel() {
				if (label.GetName() == "symbol" && label.GetValue() == symbol) ||
					(label.GetName() == "side" && label.GetValue() == side) {
					matched++
				}
			}
			if matched == 2 {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestRouter_AppliedFillIsCounted(t *testing.T) {
	v, _, r := newSimSetup(t)
	v.UpdateQuote(types.Tick{Symbol: "BTCUSDT", Timestamp: time.Now(), Bid: 99.5, Ask: 100.5})

	before := fillsCounterValue(t, "BTCUSDT", "Buy")

	intent := marketIntent(types.SideBuy, 10)
	_, err := r.Submit(context.Background(), intent)
	require.NoError(t, err)
	awaitStatus(t, r, intent.ID, StatusFilled)

	assert.Equal(t, before+1, fillsCounterValue(t, "BTCUSDT", "Buy"))

	// A redelivered fill is deduplicated before it reaches the counter
	v.RedeliverLastFill()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before+1, fillsCounterValue(t, "BTCUSDT", "Buy"))
}

func TestRouter_DuplicateIntentSubmissionRefused(t *testing.T) {
	_, _, r := newSimSetup(t)

	intent := limitIntent(types.SideBuy, 10, 98.0)
	_, err := r.Submit(context.Background(), intent)
	require.NoError(t, err)

	_, err = r.Submit(context.Background(), intent)
	assert.ErrorContains(t, err, "already submitted")
}

// stubVenue lets tests inject arbitrary fill notifications
type stubVenue struct {
	mutex sync.Mutex
	seq   int
	fills chan types.Fill
	once  sync.Once
}

func newStubVenue() *stubVenue {
	return &stubVenue{fills: make(chan types.Fill, 16)}
}

func (s *stubVenue) Name() string { return "stub" }

func (s *stubVenue) Submit(ctx context.Context, req venue.SubmitRequest) (venue.Ack, error) {
	s.mutex.Lock()
	s.seq++
	id := s.seq
	s.mutex.Unlock()
	return venue.Ack{
		ClientOrderID: req.ClientOrderID,
		VenueOrderID:  fmt.Sprintf("STUB-%d", id),
		Accepted:      true,
		Timestamp:     time.Now(),
	}, nil
}

func (s *stubVenue) Cancel(ctx context.Context, venueOrderID string) error { return nil }

func (s *stubVenue) Fills() <-chan types.Fill { return s.fills }

func (s *stubVenue) Close() error {
	s.once.Do(func() { close(s.fills) })
	return nil
}

func (s *stubVenue) inject(fill types.Fill) {
	s.fills <- fill
}

func TestRouter_UnknownFillEntersDegradedMode(t *testing.T) {
	v := newStubVenue()
	l := ledger.NewLedger(100000, nil)
	r := NewRouter(v, l, time.Second, logger.NewNop())
	t.Cleanup(func() {
		v.Close()
		r.Wait()
	})

	v.inject(types.Fill{
		FillID: "phantom-1", OrderID: "never-placed", Symbol: "BTCUSDT",
		Side: types.SideBuy, Quantity: 5, Price: 100, Timestamp: time.Now(),
	})

	require.Eventually(t, r.Degraded, time.Second, 5*time.Millisecond)

	// Degraded mode refuses new orders but still allows cancels
	_, err := r.Submit(context.Background(), marketIntent(types.SideBuy, 1))
	assert.ErrorIs(t, err, apperrors.ErrDispatchHalted)

	// And the phantom fill never reached the ledger
	assert.True(t, l.Snapshot().Position("BTCUSDT").Quantity.IsZero())
}

func TestRouter_OverfillEntersDegradedMode(t *testing.T) {
	v := newStubVenue()
	l := ledger.NewLedger(100000, nil)
	r := NewRouter(v, l, time.Second, logger.NewNop())
	t.Cleanup(func() {
		v.Close()
		r.Wait()
	})

	intent := limitIntent(types.SideBuy, 10, 100)
	order, err := r.Submit(context.Background(), intent)
	require.NoError(t, err)

	v.inject(types.Fill{
		FillID: "f1", OrderID: order.VenueOrderID, Symbol: "BTCUSDT",
		Side: types.SideBuy, Quantity: 25, Price: 100, Timestamp: time.Now(),
	})

	require.Eventually(t, r.Degraded, time.Second, 5*time.Millisecond)
	got, _ := r.Order(intent.ID)
	assert.Equal(t, 0.0, got.FilledQty)
}

func TestRouter_PartialFillsAccumulateAveragePrice(t *testing.T) {
	v := newStubVenue()
	l := ledger.NewLedger(100000, nil)
	r := NewRouter(v, l, time.Second, logger.NewNop())
	t.Cleanup(func() {
		v.Close()
		r.Wait()
	})

	intent := limitIntent(types.SideBuy, 10, 110)
	order, err := r.Submit(context.Background(), intent)
	require.NoError(t, err)

	v.inject(types.Fill{
		FillID: "f1", OrderID: order.VenueOrderID, Symbol: "BTCUSDT",
		Side: types.SideBuy, Quantity: 4, Price: 100, Timestamp: time.Now(),
	})
	partial := awaitStatus(t, r, intent.ID, StatusPartiallyFilled)
	assert.Equal(t, 4.0, partial.FilledQty)
	assert.InDelta(t, 100.0, partial.AvgFillPrice, 1e-9)
	assert.InDelta(t, 6.0, partial.Remaining(), 1e-9)

	v.inject(types.Fill{
		FillID: "f2", OrderID: order.VenueOrderID, Symbol: "BTCUSDT",
		Side: types.SideBuy, Quantity: 6, Price: 110, Timestamp: time.Now(),
	})
	filled := awaitStatus(t, r, intent.ID, StatusFilled)
	assert.InDelta(t, 106.0, filled.AvgFillPrice, 1e-9)

	pos := l.Snapshot().Position("BTCUSDT")
	assert.InDelta(t, 10.0, pos.Quantity.InexactFloat64(), 1e-9)
	assert.InDelta(t, 106.0, pos.AvgCost.InexactFloat64(), 1e-9)
}

package venue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levanduc-dev/tick-trader/internal/logger"
	"github.com/levanduc-dev/tick-trader/pkg/types"
)

func quote(symbol string, bid, ask float64) types.Tick {
	return types.Tick{
		Symbol:    symbol,
		Timestamp: time.Now(),
		Bid:       bid,
		Ask:       ask,
		Last:      (bid + ask) / 2,
	}
}

func submitReq(side types.Side, qty float64, priceType types.PriceType, limit float64) SubmitRequest {
	return SubmitRequest{
		ClientOrderID: "client-1",
		Symbol:        "BTCUSDT",
		Side:          side,
		Quantity:      qty,
		PriceType:     priceType,
		LimitPrice:    limit,
	}
}

func TestSimVenue_MarketOrderFillsImmediately(t *testing.T) {
	v := NewSimVenue(logger.NewNop())
	defer v.Close()
	v.UpdateQuote(quote("BTCUSDT", 99.5, 100.5))

	ack, err := v.Submit(context.Background(), submitReq(types.SideBuy, 10, types.PriceTypeMarket, 0))
	require.NoError(t, err)
	require.True(t, ack.Accepted)
	assert.NotEmpty(t, ack.VenueOrderID)

	fill := <-v.Fills()
	assert.Equal(t, ack.VenueOrderID, fill.OrderID)
	assert.Equal(t, 10.0, fill.Quantity)
	assert.Equal(t, 100.5, fill.Price) // market buy lifts the ask
}

func TestSimVenue_MarketSellHitsBid(t *testing.T) {
	v := NewSimVenue(logger.NewNop())
	defer v.Close()
	v.UpdateQuote(quote("BTCUSDT", 99.5, 100.5))

	ack, err := v.Submit(context.Background(), submitReq(types.SideSell, 5, types.PriceTypeMarket, 0))
	require.NoError(t, err)
	require.True(t, ack.Accepted)

	fill := <-v.Fills()
	assert.Equal(t, 99.5, fill.Price)
}

func TestSimVenue_MarketOrderWithoutQuoteIsRejected(t *testing.T) {
	v := NewSimVenue(logger.NewNop())
	defer v.Close()

	ack, err := v.Submit(context.Background(), submitReq(types.SideBuy, 10, types.PriceTypeMarket, 0))
	require.NoError(t, err)
	assert.False(t, ack.Accepted)
	assert.Contains(t, ack.Reason, "no quote")
}

func TestSimVenue_LimitOrderRestsUntilCrossed(t *testing.T) {
	v := NewSimVenue(logger.NewNop())
	defer v.Close()
	v.UpdateQuote(quote("BTCUSDT", 99.5, 100.5))

	// Buy limit below the ask: rests
	ack, err := v.Submit(context.Background(), submitReq(types.SideBuy, 10, types.PriceTypeLimit, 98.0))
	require.NoError(t, err)
	require.True(t, ack.Accepted)
	assert.Equal(t, 1, v.RestingCount())

	select {
	case <-v.Fills():
		t.Fatal("limit order must not fill before being crossed")
	case <-time.After(20 * time.Millisecond):
	}

	// Ask drops through the limit
	v.UpdateQuote(quote("BTCUSDT", 97.0, 97.5))
	fill := <-v.Fills()
	assert.Equal(t, 98.0, fill.Price)
	assert.Equal(t, 0, v.RestingCount())
}

func TestSimVenue_SellLimitFillsWhenBidRises(t *testing.T) {
	v := NewSimVenue(logger.NewNop())
	defer v.Close()
	v.UpdateQuote(quote("BTCUSDT", 99.5, 100.5))

	ack, err := v.Submit(context.Background(), submitReq(types.SideSell, 10, types.PriceTypeLimit, 102.0))
	require.NoError(t, err)
	require.True(t, ack.Accepted)

	v.UpdateQuote(quote("BTCUSDT", 102.5, 103.0))
	fill := <-v.Fills()
	assert.Equal(t, 102.0, fill.Price)
}

func TestSimVenue_CancelRestingOrder(t *testing.T) {
	v := NewSimVenue(logger.NewNop())
	defer v.Close()

	ack, err := v.Submit(context.Background(), submitReq(types.SideBuy, 10, types.PriceTypeLimit, 98.0))
	require.NoError(t, err)
	require.True(t, ack.Accepted)

	require.NoError(t, v.Cancel(context.Background(), ack.VenueOrderID))
	assert.Equal(t, 0, v.RestingCount())

	// Cancelling again fails: the order is gone
	assert.Error(t, v.Cancel(context.Background(), ack.VenueOrderID))
}

func TestSimVenue_RejectNext(t *testing.T) {
	v := NewSimVenue(logger.NewNop())
	defer v.Close()
	v.RejectNext("insufficient margin")

	ack, err := v.Submit(context.Background(), submitReq(types.SideBuy, 10, types.PriceTypeLimit, 98.0))
	require.NoError(t, err)
	assert.False(t, ack.Accepted)
	assert.Equal(t, "insufficient margin", ack.Reason)
}

func TestSimVenue_HoldAcksBlocksUntilDeadline(t *testing.T) {
	v := NewSimVenue(logger.NewNop())
	defer v.Close()
	v.HoldAcks(true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := v.Submit(ctx, submitReq(types.SideBuy, 10, types.PriceTypeLimit, 98.0))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimVenue_RedeliverLastFillRepeatsFillID(t *testing.T) {
	v := NewSimVenue(logger.NewNop())
	defer v.Close()
	v.UpdateQuote(quote("BTCUSDT", 99.5, 100.5))

	_, err := v.Submit(context.Background(), submitReq(types.SideBuy, 10, types.PriceTypeMarket, 0))
	require.NoError(t, err)

	first := <-v.Fills()
	v.RedeliverLastFill()
	second := <-v.Fills()

	assert.Equal(t, first.FillID, second.FillID)
}

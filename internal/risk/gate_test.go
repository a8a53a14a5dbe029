package risk

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levanduc-dev/tick-trader/internal/ledger"
	"github.com/levanduc-dev/tick-trader/pkg/types"
)

func testLimits() Limits {
	return Limits{
		MaxPositionPerInstrument: 500,
		MaxOrderNotional:         100000,
		LossFloor:                -1000,
		RateLimitWindow:          time.Minute,
		RateLimitCount:           3,
	}
}

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

func snapshotWith(t *testing.T, fills []types.Fill, mark float64) ledger.Snapshot {
	t.Helper()
	l := ledger.NewLedger(100000, nil)
	for _, f := range fills {
		require.NoError(t, l.ApplyFill(f))
	}
	l.MarkPrice("BTCUSDT", mark)
	return l.Snapshot()
}

func flatSnapshot(t *testing.T, mark float64) ledger.Snapshot {
	return snapshotWith(t, nil, mark)
}

func TestGate_ApprovesWithinAllLimits(t *testing.T) {
	g := NewGate(testLimits())

	decision := g.Evaluate(limitIntent(types.SideBuy, 100, 50), flatSnapshot(t, 50))
	assert.True(t, decision.Approved)
	assert.Empty(t, decision.Reason)
}

func TestGate_RejectsPositionLimitBreach(t *testing.T) {
	g := NewGate(testLimits())

	decision := g.Evaluate(limitIntent(types.SideBuy, 501, 50), flatSnapshot(t, 50))
	require.False(t, decision.Approved)
	assert.Equal(t, RejectPositionLimit, decision.Reason)
}

func TestGate_PositionLimitConsidersExistingExposure(t *testing.T) {
	g := NewGate(testLimits())
	snap := snapshotWith(t, []types.Fill{{
		FillID: "f1", OrderID: "o1", Symbol: "BTCUSDT",
		Side: types.SideBuy, Quantity: 450, Price: 50, Timestamp: time.Now(),
	}}, 50)

	// 450 held + 100 proposed = 550 > 500
	decision := g.Evaluate(limitIntent(types.SideBuy, 100, 50), snap)
	require.False(t, decision.Approved)
	assert.Equal(t, RejectPositionLimit, decision.Reason)

	// Selling from the long is fine
	decision = g.Evaluate(limitIntent(types.SideSell, 100, 50), snap)
	assert.True(t, decision.Approved)
}

func TestGate_PositionLimitIsAbsolute(t *testing.T) {
	g := NewGate(testLimits())

	// A short breaching the absolute bound is rejected too
	decision := g.Evaluate(limitIntent(types.SideSell, 501, 50), flatSnapshot(t, 50))
	require.False(t, decision.Approved)
	assert.Equal(t, RejectPositionLimit, decision.Reason)
}

func TestGate_RejectsNotionalBreach(t *testing.T) {
	g := NewGate(testLimits())

	// 400 * 300 = 120000 > 100000
	decision := g.Evaluate(limitIntent(types.SideBuy, 400, 300), flatSnapshot(t, 300))
	require.False(t, decision.Approved)
	assert.Equal(t, RejectNotionalLimit, decision.Reason)
}

func TestGate_MarketIntentUsesMarkForNotional(t *testing.T) {
	g := NewGate(testLimits())

	decision := g.Evaluate(marketIntent(types.SideBuy, 400), flatSnapshot(t, 300))
	require.False(t, decision.Approved)
	assert.Equal(t, RejectNotionalLimit, decision.Reason)
}

func TestGate_RejectsUnpriceableMarketIntent(t *testing.T) {
	g := NewGate(testLimits())
	snap := ledger.NewLedger(100000, nil).Snapshot() // no marks at all

	decision := g.Evaluate(marketIntent(types.SideBuy, 10), snap)
	require.False(t, decision.Approved)
	assert.Equal(t, RejectUnpriceable, decision.Reason)
}

func lossFloorSnapshot(t *testing.T) ledger.Snapshot {
	// Buy 100 @ 50, mark at 35: unrealized -1500, below the -1000 floor
	return snapshotWith(t, []types.Fill{{
		FillID: "f1", OrderID: "o1", Symbol: "BTCUSDT",
		Side: types.SideBuy, Quantity: 100, Price: 50, Timestamp: time.Now(),
	}}, 35)
}

func TestGate_LossFloorRejectsRiskIncreasingIntents(t *testing.T) {
	g := NewGate(testLimits())
	snap := lossFloorSnapshot(t)

	decision := g.Evaluate(limitIntent(types.SideBuy, 10, 35), snap)
	require.False(t, decision.Approved)
	assert.Equal(t, RejectLossFloor, decision.Reason)
}

func TestGate_LossFloorAllowsFlatteningIntents(t *testing.T) {
	g := NewGate(testLimits())
	snap := lossFloorSnapshot(t)

	// Reducing the 100-long is still allowed
	decision := g.Evaluate(limitIntent(types.SideSell, 60, 35), snap)
	assert.True(t, decision.Approved)

	// Closing exactly flat is allowed
	decision = g.Evaluate(limitIntent(types.SideSell, 100, 35), snap)
	assert.True(t, decision.Approved)
}

func TestGate_LossFloorRejectsFlipBeyondFlat(t *testing.T) {
	g := NewGate(testLimits())
	snap := lossFloorSnapshot(t)

	// Selling 250 against a 100-long opens a 150-short: new risk
	decision := g.Evaluate(limitIntent(types.SideSell, 250, 35), snap)
	require.False(t, decision.Approved)
	assert.Equal(t, RejectLossFloor, decision.Reason)
}

func TestGate_RateLimitRejectsExcessApprovals(t *testing.T) {
	g := NewGate(testLimits())
	snap := flatSnapshot(t, 50)

	for i := 0; i < 3; i++ {
		decision := g.Evaluate(limitIntent(types.SideBuy, 10, 50), snap)
		require.True(t, decision.Approved, "approval %d", i+1)
	}

	decision := g.Evaluate(limitIntent(types.SideBuy, 10, 50), snap)
	require.False(t, decision.Approved)
	assert.Equal(t, RejectRateLimit, decision.Reason)
}

func TestGate_RateLimitWindowSlides(t *testing.T) {
	g := NewGate(testLimits())
	snap := flatSnapshot(t, 50)

	current := time.Now()
	g.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		require.True(t, g.Evaluate(limitIntent(types.SideBuy, 10, 50), snap).Approved)
	}
	require.False(t, g.Evaluate(limitIntent(types.SideBuy, 10, 50), snap).Approved)

	// Once the earlier approvals age out, capacity returns
	current = current.Add(61 * time.Second)
	assert.True(t, g.Evaluate(limitIntent(types.SideBuy, 10, 50), snap).Approved)
}

func TestGate_RateLimitIsPerInstrument(t *testing.T) {
	g := NewGate(testLimits())
	snap := flatSnapshot(t, 50)

	for i := 0; i < 3; i++ {
		require.True(t, g.Evaluate(limitIntent(types.SideBuy, 10, 50), snap).Approved)
	}
	require.False(t, g.Evaluate(limitIntent(types.SideBuy, 10, 50), snap).Approved)

	other := limitIntent(types.SideBuy, 10, 50)
	other.Symbol = "ETHUSDT"
	assert.True(t, g.Evaluate(other, snap).Approved)
}

func TestGate_RejectionsConsumeNoRateLimitSlot(t *testing.T) {
	g := NewGate(testLimits())
	snap := flatSnapshot(t, 50)

	// Notional rejections must not eat into the approval budget
	for i := 0; i < 10; i++ {
		decision := g.Evaluate(limitIntent(types.SideBuy, 400, 300), snap)
		require.False(t, decision.Approved)
	}

	assert.Equal(t, 0, g.throttle.Used("BTCUSDT", time.Now()))
	assert.True(t, g.Evaluate(limitIntent(types.SideBuy, 10, 50), snap).Approved)
}

func TestGate_ChecksShortCircuitInOrder(t *testing.T) {
	g := NewGate(testLimits())
	snap := lossFloorSnapshot(t)

	// Breaches both position and notional limits while below the loss
	// floor: the position limit must win, being checked first
	decision := g.Evaluate(limitIntent(types.SideBuy, 600, 300), snap)
	require.False(t, decision.Approved)
	assert.Equal(t, RejectPositionLimit, decision.Reason)
}

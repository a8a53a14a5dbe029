package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/levanduc-dev/tick-trader/internal/ledger"
	"github.com/levanduc-dev/tick-trader/pkg/types"
)

// RejectReason explains why an intent was refused
type RejectReason string

const (
	RejectPositionLimit RejectReason = "resulting position exceeds max exposure"
	RejectNotionalLimit RejectReason = "order notional exceeds limit"
	RejectLossFloor     RejectReason = "session loss floor breached"
	RejectRateLimit     RejectReason = "approval rate limit exceeded"
	RejectUnpriceable   RejectReason = "no mark price available for market intent"
)

// Decision is the outcome of evaluating an intent. A rejection is an
// expected control-flow outcome, not an error.
type Decision struct {
	Approved bool
	Reason   RejectReason
	Intent   types.OrderIntent
}

// Limits holds the configured risk boundaries for a session
type Limits struct {
	MaxPositionPerInstrument float64
	MaxOrderNotional         float64
	LossFloor                float64 // zero or negative
	RateLimitWindow          time.Duration
	RateLimitCount           int
}

// Gate validates candidate orders against position, notional, loss,
// and rate limits. Checks run in that order and short-circuit on the
// first failure. Rejections are pure; an approval records one slot in
// the per-instrument approval throttle.
//
// The gate is shared across strategy loops and safe for concurrent use.
type Gate struct {
	maxPosition decimal.Decimal
	maxNotional decimal.Decimal
	lossFloor   decimal.Decimal

	throttle *ApprovalThrottle
	now      func() time.Time
}

// NewGate creates a risk gate from the configured limits
func NewGate(limits Limits) *Gate {
	return &Gate{
		maxPosition: decimal.NewFromFloat(limits.MaxPositionPerInstrument),
		maxNotional: decimal.NewFromFloat(limits.MaxOrderNotional),
		lossFloor:   decimal.NewFromFloat(limits.LossFloor),
		throttle:    NewApprovalThrottle(limits.RateLimitWindow, limits.RateLimitCount),
		now:         time.Now,
	}
}

// Evaluate validates an intent against the given ledger snapshot. The
// snapshot must be taken after the most recent acknowledged fill; the
// ledger's serialized access guarantees that for snapshots requested
// in the same cycle.
func (g *Gate) Evaluate(intent types.OrderIntent, snap ledger.Snapshot) Decision {
	current := snap.Position(intent.Symbol).Quantity
	delta := decimal.NewFromFloat(intent.SignedQuantity())
	resulting := current.Add(delta)

	// (a) position limit
	if resulting.Abs().GreaterThan(g.maxPosition) {
		return rejected(intent, RejectPositionLimit)
	}

	// (b) notional limit
	notional, ok := g.intentNotional(intent, snap)
	if !ok {
		return rejected(intent, RejectUnpriceable)
	}
	if notional.GreaterThan(g.maxNotional) {
		return rejected(intent, RejectNotionalLimit)
	}

	// (c) loss limit: below the floor only flattening intents pass
	if snap.SessionPnL().LessThan(g.lossFloor) {
		if resulting.Abs().GreaterThanOrEqual(current.Abs()) {
			return rejected(intent, RejectLossFloor)
		}
	}

	// (d) rate limit, checked last so a throttled slot is only consumed
	// by intents that passed everything else
	if !g.throttle.TryAcquire(intent.Symbol, g.now()) {
		return rejected(intent, RejectRateLimit)
	}

	return Decision{Approved: true, Intent: intent}
}

func (g *Gate) intentNotional(intent types.OrderIntent, snap ledger.Snapshot) (decimal.Decimal, bool) {
	qty := decimal.NewFromFloat(intent.Quantity)
	if intent.PriceType == types.PriceTypeLimit {
		return qty.Mul(decimal.NewFromFloat(intent.LimitPrice)), true
	}
	mark, ok := snap.Marks[intent.Symbol]
	if !ok || mark.IsZero() {
		return decimal.Zero, false
	}
	return qty.Mul(mark), true
}

func rejected(intent types.OrderIntent, reason RejectReason) Decision {
	return Decision{Approved: false, Reason: reason, Intent: intent}
}

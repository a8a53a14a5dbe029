package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/levanduc-dev/tick-trader/pkg/types"
)

// Appender is the durable sink for confirmed fills. The ledger appends
// every fill before applying it, so a replay of the log reconstructs
// the exact pre-crash state.
type Appender interface {
	Append(fill types.Fill) error
}

// Position is a net holding in an instrument plus its average
// acquisition cost. Quantity is signed: negative means short.
type Position struct {
	Symbol   string
	Quantity decimal.Decimal
	AvgCost  decimal.Decimal
}

// Account is the cash and PnL view of the ledger
type Account struct {
	Cash          decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// Equity returns cash plus the marked value of all positions,
// which the snapshot precomputes as part of its consistent read.
type Snapshot struct {
	Positions map[string]Position
	Account   Account
	Marks     map[string]decimal.Decimal
	Equity    decimal.Decimal
	TakenAt   time.Time
}

// SessionPnL returns realized plus unrealized PnL since engine start
func (s Snapshot) SessionPnL() decimal.Decimal {
	return s.Account.RealizedPnL.Add(s.Account.UnrealizedPnL)
}

// Position returns the position for a symbol, zero-valued when flat
func (s Snapshot) Position(symbol string) Position {
	if p, ok := s.Positions[symbol]; ok {
		return p
	}
	return Position{Symbol: symbol}
}

// Ledger is the authoritative record of holdings, cash, and applied
// fills. It is shared across strategy loops and fill callbacks, so all
// access is serialized behind one mutex; a snapshot is never built
// from a partially applied fill.
type Ledger struct {
	mu sync.RWMutex

	positions map[string]*Position
	cash      decimal.Decimal
	realized  decimal.Decimal
	marks     map[string]decimal.Decimal

	appliedFills map[string]struct{}
	journal      Appender
}

// NewLedger creates a ledger with the given starting cash. The journal
// may be nil for purely in-memory use (tests, inspection replays).
func NewLedger(initialCash float64, journal Appender) *Ledger {
	return &Ledger{
		positions:    make(map[string]*Position),
		cash:         decimal.NewFromFloat(initialCash),
		marks:        make(map[string]decimal.Decimal),
		appliedFills: make(map[string]struct{}),
		journal:      journal,
	}
}

// ApplyFill atomically updates position and account state for a
// confirmed fill. Application is idempotent per fill identifier:
// replaying a fill id that was already applied is a no-op. The fill is
// journaled before any state changes, so a crash between the two
// leaves at worst a duplicate log entry, which replay ignores.
func (l *Ledger) ApplyFill(fill types.Fill) error {
	if fill.FillID == "" {
		return fmt.Errorf("fill is missing its identifier")
	}
	if fill.Quantity <= 0 {
		return fmt.Errorf("fill %s has non-positive quantity %.8f", fill.FillID, fill.Quantity)
	}
	if fill.Price <= 0 {
		return fmt.Errorf("fill %s has non-positive price %.8f", fill.FillID, fill.Price)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, seen := l.appliedFills[fill.FillID]; seen {
		return nil
	}

	if l.journal != nil {
		if err := l.journal.Append(fill); err != nil {
			return fmt.Errorf("failed to journal fill %s: %w", fill.FillID, err)
		}
	}

	l.applyLocked(fill)
	return nil
}

// Recover applies a fill during startup replay without re-journaling
// it. Duplicate fill ids in the log are ignored, so replaying any
// prefix of the log is deterministic.
func (l *Ledger) Recover(fill types.Fill) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, seen := l.appliedFills[fill.FillID]; seen {
		return
	}
	l.applyLocked(fill)
}

func (l *Ledger) applyLocked(fill types.Fill) {
	qty := decimal.NewFromFloat(fill.Quantity)
	if fill.Side == types.SideSell {
		qty = qty.Neg()
	}
	price := decimal.NewFromFloat(fill.Price)

	pos, ok := l.positions[fill.Symbol]
	if !ok {
		pos = &Position{Symbol: fill.Symbol}
		l.positions[fill.Symbol] = pos
	}

	oldQty := pos.Quantity
	newQty := oldQty.Add(qty)

	switch {
	case oldQty.IsZero():
		// Opening from flat
		pos.AvgCost = price
	case oldQty.Sign() == qty.Sign():
		// Increasing exposure: blend the average cost
		oldNotional := oldQty.Abs().Mul(pos.AvgCost)
		addNotional := qty.Abs().Mul(price)
		pos.AvgCost = oldNotional.Add(addNotional).Div(oldQty.Abs().Add(qty.Abs()))
	default:
		// Reducing or flipping: realize PnL on the closed quantity
		closed := decimal.Min(oldQty.Abs(), qty.Abs())
		direction := decimal.NewFromInt(int64(oldQty.Sign()))
		l.realized = l.realized.Add(price.Sub(pos.AvgCost).Mul(closed).Mul(direction))

		if newQty.Sign() != 0 && newQty.Sign() != oldQty.Sign() {
			// Flipped through flat: remainder opens at the fill price
			pos.AvgCost = price
		}
	}

	pos.Quantity = newQty
	if pos.Quantity.IsZero() {
		pos.AvgCost = decimal.Zero
	}

	// Cash moves opposite the position: buys spend, sells receive
	l.cash = l.cash.Sub(qty.Mul(price))

	l.appliedFills[fill.FillID] = struct{}{}
}

// MarkPrice records the latest mark price for a symbol, used for
// unrealized PnL and equity valuation.
func (l *Ledger) MarkPrice(symbol string, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.marks[symbol] = decimal.NewFromFloat(price)
}

// HasFill reports whether a fill identifier has already been applied
func (l *Ledger) HasFill(fillID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.appliedFills[fillID]
	return ok
}

// Snapshot returns a consistent read of positions and account state.
// The copy is deep: callers can hold it across cycles without racing
// later fills.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := Snapshot{
		Positions: make(map[string]Position, len(l.positions)),
		Marks:     make(map[string]decimal.Decimal, len(l.marks)),
		TakenAt:   time.Now(),
	}

	unrealized := decimal.Zero
	positionsValue := decimal.Zero
	for symbol, pos := range l.positions {
		snap.Positions[symbol] = *pos
		if mark, ok := l.marks[symbol]; ok && !pos.Quantity.IsZero() {
			unrealized = unrealized.Add(mark.Sub(pos.AvgCost).Mul(pos.Quantity))
			positionsValue = positionsValue.Add(pos.Quantity.Mul(mark))
		}
	}
	for symbol, mark := range l.marks {
		snap.Marks[symbol] = mark
	}

	snap.Account = Account{
		Cash:          l.cash,
		RealizedPnL:   l.realized,
		UnrealizedPnL: unrealized,
	}
	snap.Equity = l.cash.Add(positionsValue)
	return snap
}

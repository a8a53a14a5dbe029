package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/levanduc-dev/tick-trader/internal/ledger"
	"github.com/levanduc-dev/tick-trader/pkg/types"
)

// SessionReport bundles everything the reporters render: the ledger
// state at generation time plus the fills that produced it.
type SessionReport struct {
	GeneratedAt time.Time
	Snapshot    ledger.Snapshot
	Fills       []types.Fill
}

// NewSessionReport creates a report from a snapshot and its fill history
func NewSessionReport(snap ledger.Snapshot, fills []types.Fill) *SessionReport {
	return &SessionReport{
		GeneratedAt: time.Now(),
		Snapshot:    snap,
		Fills:       fills,
	}
}

// unrealizedFor values one position against the snapshot's mark.
// Positions without a mark report zero.
func (r *SessionReport) unrealizedFor(pos ledger.Position) decimal.Decimal {
	mark, ok := r.Snapshot.Marks[pos.Symbol]
	if !ok {
		return decimal.Zero
	}
	return mark.Sub(pos.AvgCost).Mul(pos.Quantity)
}

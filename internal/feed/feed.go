package feed

import (
	"context"
	"time"

	apperrors "github.com/levanduc-dev/tick-trader/internal/errors"
	"github.com/levanduc-dev/tick-trader/pkg/types"
)

// Feed produces a lazy, timestamp-ordered stream of ticks. The stream
// is effectively infinite and is not restartable: once Ticks closes the
// feed instance is done, and a reconnect means a fresh instance.
type Feed interface {
	// Start begins producing ticks. It returns once the feed is
	// connected; production continues until ctx is cancelled, Close is
	// called, or the upstream disconnects.
	Start(ctx context.Context) error

	// Ticks returns the tick channel. It is closed on disconnect or
	// shutdown; Err reports why.
	Ticks() <-chan types.Tick

	// Quality returns the channel of data-quality events raised for
	// dropped updates. Events are best-effort: if nobody is draining
	// the channel they are discarded rather than blocking the stream.
	Quality() <-chan *apperrors.DataQualityError

	// Err returns the terminal error after Ticks has closed, or nil
	// for a clean shutdown.
	Err() error

	// Close stops the feed and releases its connection.
	Close() error
}

// RawUpdate is an unvalidated market data update as delivered by a
// transport before normalization.
type RawUpdate struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Last      float64   `json:"last"`
	Volume    float64   `json:"volume"`
}

// Normalizer validates raw updates into ticks. It enforces the
// per-symbol monotonic timestamp assumption: an update whose timestamp
// is not strictly newer than the latest seen for its symbol is dropped.
type Normalizer struct {
	lastSeen map[string]time.Time
}

// NewNormalizer creates a normalizer with empty history
func NewNormalizer() *Normalizer {
	return &Normalizer{lastSeen: make(map[string]time.Time)}
}

// Normalize validates a raw update and converts it into a Tick. A
// DataQualityError return means the update was dropped; the stream
// itself continues.
func (n *Normalizer) Normalize(raw RawUpdate) (types.Tick, *apperrors.DataQualityError) {
	if raw.Symbol == "" {
		return types.Tick{}, apperrors.NewDataQualityError("?", "missing symbol")
	}
	if raw.Timestamp.IsZero() {
		return types.Tick{}, apperrors.NewDataQualityError(raw.Symbol, "missing timestamp")
	}
	if raw.Bid <= 0 || raw.Ask <= 0 {
		return types.Tick{}, apperrors.NewDataQualityError(raw.Symbol, "non-positive quote")
	}
	if raw.Bid > raw.Ask {
		return types.Tick{}, apperrors.NewDataQualityError(raw.Symbol, "crossed book: bid above ask")
	}
	if raw.Last < 0 || raw.Volume < 0 {
		return types.Tick{}, apperrors.NewDataQualityError(raw.Symbol, "negative last or volume")
	}
	if last, ok := n.lastSeen[raw.Symbol]; ok && !raw.Timestamp.After(last) {
		return types.Tick{}, apperrors.NewDataQualityError(raw.Symbol, "out-of-order timestamp")
	}

	n.lastSeen[raw.Symbol] = raw.Timestamp
	return types.Tick{
		Symbol:    raw.Symbol,
		Timestamp: raw.Timestamp,
		Bid:       raw.Bid,
		Ask:       raw.Ask,
		Last:      raw.Last,
		Volume:    raw.Volume,
	}, nil
}

package venue

import (
	"context"
	"time"

	"github.com/levanduc-dev/tick-trader/pkg/types"
)

// SubmitRequest is an order submission as the venue sees it. The
// client order id is assigned by the router and echoed back in the
// acknowledgment so responses can be correlated.
type SubmitRequest struct {
	ClientOrderID string
	Symbol        string
	Side          types.Side
	Quantity      float64
	PriceType     types.PriceType
	LimitPrice    float64
}

// Ack is the venue's response to a submission
type Ack struct {
	ClientOrderID string
	VenueOrderID  string
	Accepted      bool
	Reason        string // populated on rejection
	Timestamp     time.Time
}

// Venue is the execution venue collaborator. The core depends only on
// these request/response/notification shapes, never on transport
// details.
//
// Fill notifications arrive asynchronously on Fills and may be
// redelivered; consumers must deduplicate by Fill.FillID.
type Venue interface {
	// Name identifies the venue in logs and reports
	Name() string

	// Submit places an order and waits for the venue's acknowledgment,
	// bounded by ctx. A context deadline means the order state is
	// unknown; the caller must escalate rather than resubmit.
	Submit(ctx context.Context, req SubmitRequest) (Ack, error)

	// Cancel withdraws a live order by its venue order id
	Cancel(ctx context.Context, venueOrderID string) error

	// Fills returns the asynchronous fill notification channel. It is
	// closed when the venue shuts down.
	Fills() <-chan types.Fill

	// Close releases venue resources and closes the fill channel
	Close() error
}

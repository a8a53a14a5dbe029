package indicators

// Indicator is an incrementally updated technical indicator. Update
// consumes one observation and returns the new value; a full-window
// rescan is never required, so the per-tick cost is O(1) amortized.
type Indicator interface {
	// Update folds a new observation into the indicator state and
	// returns the updated value. The value is meaningless until the
	// indicator is Ready.
	Update(value float64) float64

	// Value returns the most recently computed value.
	Value() float64

	// Ready reports whether enough observations have been seen for the
	// value to be trusted.
	Ready() bool

	// GetName returns the indicator name
	GetName() string

	// GetRequiredPeriods returns the minimum number of observations
	// needed before the indicator is ready.
	GetRequiredPeriods() int

	// Reset clears the indicator state for a new period
	Reset()
}

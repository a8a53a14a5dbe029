package indicators

// EMA represents the Exponential Moving Average technical indicator
type EMA struct {
	period      int
	alpha       float64
	lastValue   float64
	seen        int
	initialized bool
}

// NewEMA creates a new EMA indicator
func NewEMA(period int) *EMA {
	if period < 1 {
		period = 1
	}
	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1), // Standard EMA alpha calculation
	}
}

// Update folds a new observation into the average
func (e *EMA) Update(value float64) float64 {
	e.seen++
	if !e.initialized {
		// Seed with the first observation
		e.lastValue = value
		e.initialized = true
		return e.lastValue
	}

	// EMA = (Value * Alpha) + (Previous EMA * (1 - Alpha))
	e.lastValue = (value * e.alpha) + (e.lastValue * (1 - e.alpha))
	return e.lastValue
}

// Value returns the last computed EMA value
func (e *EMA) Value() float64 {
	return e.lastValue
}

// Ready reports whether at least a full period of observations was seen
func (e *EMA) Ready() bool {
	return e.seen >= e.period
}

// GetName returns the indicator name
func (e *EMA) GetName() string {
	return "EMA"
}

// GetRequiredPeriods returns the minimum number of observations needed
func (e *EMA) GetRequiredPeriods() int {
	return e.period
}

// Reset clears the indicator state for a new period
func (e *EMA) Reset() {
	e.lastValue = 0
	e.seen = 0
	e.initialized = false
}

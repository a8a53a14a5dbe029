package indicators

// Momentum measures the relative price change over a fixed lookback:
// (current - oldest) / oldest. Positive values mean rising prices.
type Momentum struct {
	period int
	window []float64
	head   int
	count  int
	value  float64
}

// NewMomentum creates a new momentum indicator
func NewMomentum(period int) *Momentum {
	if period < 1 {
		period = 1
	}
	return &Momentum{
		period: period,
		window: make([]float64, period+1),
	}
}

// Update folds a new observation into the momentum window
func (m *Momentum) Update(value float64) float64 {
	size := m.period + 1
	m.window[m.head] = value
	m.head = (m.head + 1) % size
	if m.count < size {
		m.count++
	}

	oldest := m.window[m.oldestIndex()]
	if m.count < size || oldest == 0 {
		m.value = 0
		return m.value
	}

	m.value = (value - oldest) / oldest
	return m.value
}

func (m *Momentum) oldestIndex() int {
	size := m.period + 1
	if m.count < size {
		return 0
	}
	return m.head
}

// Value returns the last computed momentum
func (m *Momentum) Value() float64 {
	return m.value
}

// Ready reports whether the lookback window has filled
func (m *Momentum) Ready() bool {
	return m.count >= m.period+1
}

// GetName returns the indicator name
func (m *Momentum) GetName() string {
	return "MOMENTUM"
}

// GetRequiredPeriods returns the minimum number of observations needed
func (m *Momentum) GetRequiredPeriods() int {
	return m.period + 1
}

// Reset clears the indicator state for a new period
func (m *Momentum) Reset() {
	for i := range m.window {
		m.window[i] = 0
	}
	m.head = 0
	m.count = 0
	m.value = 0
}

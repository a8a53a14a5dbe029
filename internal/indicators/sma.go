package indicators

// SMA represents the Simple Moving Average technical indicator,
// maintained incrementally over a fixed-size ring of observations.
type SMA struct {
	period int
	window []float64
	head   int
	count  int
	sum    float64
	value  float64
}

// NewSMA creates a new incremental SMA indicator
func NewSMA(period int) *SMA {
	if period < 1 {
		period = 1
	}
	return &SMA{
		period: period,
		window: make([]float64, period),
	}
}

// Update folds a new observation into the moving average
func (s *SMA) Update(value float64) float64 {
	if s.count == s.period {
		s.sum -= s.window[s.head]
	} else {
		s.count++
	}
	s.window[s.head] = value
	s.head = (s.head + 1) % s.period
	s.sum += value

	s.value = s.sum / float64(s.count)
	return s.value
}

// Value returns the most recently computed average
func (s *SMA) Value() float64 {
	return s.value
}

// Ready reports whether the window has filled
func (s *SMA) Ready() bool {
	return s.count >= s.period
}

// GetName returns the indicator name
func (s *SMA) GetName() string {
	return "SMA"
}

// GetRequiredPeriods returns the minimum number of observations needed
func (s *SMA) GetRequiredPeriods() int {
	return s.period
}

// Reset clears the indicator state for a new period
func (s *SMA) Reset() {
	for i := range s.window {
		s.window[i] = 0
	}
	s.head = 0
	s.count = 0
	s.sum = 0
	s.value = 0
}

package signal

import (
	"time"

	apperrors "github.com/levanduc-dev/tick-trader/internal/errors"
	"github.com/levanduc-dev/tick-trader/internal/indicators"
	"github.com/levanduc-dev/tick-trader/pkg/types"
)

// Direction represents the directional stance of a signal
type Direction int

const (
	DirectionFlat Direction = iota
	DirectionLong
	DirectionShort
)

func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "LONG"
	case DirectionShort:
		return "SHORT"
	case DirectionFlat:
		return "FLAT"
	default:
		return "UNKNOWN"
	}
}

// Signal is a directional trading recommendation derived from recent
// ticks. Signals are ephemeral: produced per evaluation cycle and
// consumed once by the strategy loop.
type Signal struct {
	Symbol    string
	Timestamp time.Time
	Direction Direction
	Strength  float64 // bounded score in [-1, 1], sign matches direction
	Sources   []string
}

// Config parameterizes a signal engine
type Config struct {
	LookbackLength int     // rolling window size in ticks
	Threshold      float64 // strength magnitude required to take a stance
	Deadband       float64 // hysteresis width; stance is dropped below Threshold-Deadband

	// Normalization scales for the bounded score. Zero means default.
	DivergenceScale float64
	MomentumScale   float64
}

const (
	defaultDivergenceScale = 0.002
	defaultMomentumScale   = 0.01
)

// Engine consumes ticks for a single instrument, maintains rolling
// indicators incrementally, and emits directional signals with
// hysteresis so the stance does not flap near the threshold.
//
// Engines are not shared between instruments and are not safe for
// concurrent use; each strategy loop owns one.
type Engine struct {
	symbol string
	cfg    Config

	fast     *indicators.EMA
	slow     *indicators.SMA
	momentum *indicators.Momentum

	lastTimestamp time.Time
	stance        Direction
	sources       []string
}

// NewEngine creates a signal engine for one instrument
func NewEngine(symbol string, cfg Config) *Engine {
	if cfg.DivergenceScale == 0 {
		cfg.DivergenceScale = defaultDivergenceScale
	}
	if cfg.MomentumScale == 0 {
		cfg.MomentumScale = defaultMomentumScale
	}

	fastPeriod := cfg.LookbackLength / 2
	if fastPeriod < 2 {
		fastPeriod = 2
	}

	e := &Engine{
		symbol:   symbol,
		cfg:      cfg,
		fast:     indicators.NewEMA(fastPeriod),
		slow:     indicators.NewSMA(cfg.LookbackLength),
		momentum: indicators.NewMomentum(cfg.LookbackLength),
	}
	e.sources = []string{e.fast.GetName(), e.slow.GetName(), e.momentum.GetName()}
	return e
}

// Evaluate folds one tick into the rolling state and returns the
// resulting signal.
//
// Ticks that do not advance the instrument's timestamp are dropped
// with a DataQualityError and never touch the rolling state. Until the
// lookback window has filled, ErrInsufficientHistory is returned; the
// caller must treat that as "no signal this cycle", not a failure.
func (e *Engine) Evaluate(tick types.Tick) (Signal, error) {
	if tick.Symbol != e.symbol {
		return Signal{}, apperrors.NewDataQualityError(tick.Symbol, "tick for wrong instrument")
	}
	if !e.lastTimestamp.IsZero() && !tick.Timestamp.After(e.lastTimestamp) {
		return Signal{}, apperrors.NewDataQualityError(tick.Symbol, "out-of-order timestamp")
	}
	e.lastTimestamp = tick.Timestamp

	price := tick.Mid()
	fast := e.fast.Update(price)
	slow := e.slow.Update(price)
	mom := e.momentum.Update(price)

	if !e.slow.Ready() || !e.momentum.Ready() {
		return Signal{}, apperrors.ErrInsufficientHistory
	}

	strength := e.score(fast, slow, mom)
	e.stance = e.nextStance(strength)

	return Signal{
		Symbol:    e.symbol,
		Timestamp: tick.Timestamp,
		Direction: e.stance,
		Strength:  strength,
		Sources:   e.sources,
	}, nil
}

// score combines trend divergence and momentum into a bounded [-1, 1]
// strength. Each input saturates at its configured scale.
func (e *Engine) score(fast, slow, mom float64) float64 {
	if slow == 0 {
		return 0
	}
	divergence := (fast - slow) / slow
	return 0.5*clamp(divergence/e.cfg.DivergenceScale) + 0.5*clamp(mom/e.cfg.MomentumScale)
}

// nextStance applies hysteresis: entering a stance requires |strength|
// to reach the threshold, leaving it requires |strength| to drop below
// threshold minus deadband. In between, the previous stance holds.
func (e *Engine) nextStance(strength float64) Direction {
	enter := e.cfg.Threshold
	exit := e.cfg.Threshold - e.cfg.Deadband

	switch {
	case strength >= enter:
		return DirectionLong
	case strength <= -enter:
		return DirectionShort
	}

	switch e.stance {
	case DirectionLong:
		if strength >= exit {
			return DirectionLong
		}
	case DirectionShort:
		if strength <= -exit {
			return DirectionShort
		}
	}
	return DirectionFlat
}

// LastTimestamp returns the newest tick timestamp folded into the state
func (e *Engine) LastTimestamp() time.Time {
	return e.lastTimestamp
}

// Reset clears all rolling state for a new period
func (e *Engine) Reset() {
	e.fast.Reset()
	e.slow.Reset()
	e.momentum.Reset()
	e.lastTimestamp = time.Time{}
	e.stance = DirectionFlat
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

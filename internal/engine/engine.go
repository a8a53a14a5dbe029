package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/levanduc-dev/tick-trader/internal/errors"
	"github.com/levanduc-dev/tick-trader/internal/feed"
	"github.com/levanduc-dev/tick-trader/internal/ledger"
	"github.com/levanduc-dev/tick-trader/internal/logger"
	"github.com/levanduc-dev/tick-trader/internal/monitoring"
	"github.com/levanduc-dev/tick-trader/internal/risk"
	"github.com/levanduc-dev/tick-trader/internal/router"
	"github.com/levanduc-dev/tick-trader/internal/signal"
	"github.com/levanduc-dev/tick-trader/pkg/types"
)

// State is a strategy loop's position in its evaluation cycle,
// exposed for health reporting and tests.
type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingTick         State = "awaiting_tick"
	StateEvaluating           State = "evaluating"
	StateProposing            State = "proposing"
	StateAwaitingRiskDecision State = "awaiting_risk_decision"
	StateDispatching          State = "dispatching"
	StateShutdown             State = "shutdown"
)

// QuoteSink receives every accepted tick. The simulated venue uses
// this to advance its market so resting limit orders can fill.
type QuoteSink interface {
	UpdateQuote(tick types.Tick)
}

// Config parameterizes the strategy loops
type Config struct {
	Symbols         []string
	LookbackLength  int
	SignalThreshold float64
	Deadband        float64

	// BaseQuantity is the position size at full signal strength; the
	// actual target scales with the strength magnitude.
	BaseQuantity float64

	// PriceOffset shifts limit prices inside the spread: buys quote at
	// ask minus offset, sells at bid plus offset. Zero sends market
	// orders instead.
	PriceOffset float64
}

// Deps are the engine's collaborators, built and wired by the caller
type Deps struct {
	Feed   feed.Feed
	Gate   *risk.Gate
	Ledger *ledger.Ledger
	Router *router.Router

	// Optional
	QuoteSink QuoteSink
	Health    *monitoring.HealthChecker
}

// Proposals smaller than this fraction of the base quantity are noise
// and never leave the proposing state.
const minTradeFraction = 0.05

// Engine drives one strategy loop per configured instrument: fold the
// tick into the signal state, propose an order intent against the
// current position, pass it through the risk gate, and dispatch what
// survives. All loops run on a single goroutine consuming the feed, so
// ledger reads and writes within a cycle never interleave.
//
// Once degraded (ack timeout or a ledger inconsistency raised by the
// router) the engine stops proposing; open orders are still cancelled
// on shutdown so exposure can only shrink.
type Engine struct {
	cfg       Config
	feed      feed.Feed
	gate      *risk.Gate
	book      *ledger.Ledger
	router    *router.Router
	quoteSink QuoteSink
	health    *monitoring.HealthChecker
	log       *logger.Logger

	signals map[string]*signal.Engine

	mutex    sync.Mutex
	states   map[string]State
	degraded bool
}

// New creates an engine with one signal evaluator per instrument
func New(cfg Config, deps Deps, log *logger.Logger) *Engine {
	signals := make(map[string]*signal.Engine, len(cfg.Symbols))
	states := make(map[string]State, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		signals[symbol] = signal.NewEngine(symbol, signal.Config{
			LookbackLength: cfg.LookbackLength,
			Threshold:      cfg.SignalThreshold,
			Deadband:       cfg.Deadband,
		})
		states[symbol] = StateIdle
	}

	return &Engine{
		cfg:       cfg,
		feed:      deps.Feed,
		gate:      deps.Gate,
		book:      deps.Ledger,
		router:    deps.Router,
		quoteSink: deps.QuoteSink,
		health:    deps.Health,
		log:       log.Component("engine"),
		signals:   signals,
		states:    states,
	}
}

// Run starts the feed and processes it until ctx is cancelled or the
// feed terminates. On the way out all open orders are cancelled and
// the feed is closed. A nil return means a clean shutdown; a non-nil
// return carries the feed's terminal error.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.feed.Start(ctx); err != nil {
		return fmt.Errorf("failed to start market data feed: %w", err)
	}
	if e.health != nil {
		e.health.SetConnected(true)
	}
	e.setAllStates(StateAwaitingTick)
	e.log.Info("strategy loop running for %v", e.cfg.Symbols)

	ticks := e.feed.Ticks()
	quality := e.feed.Quality()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil

		case dq, ok := <-quality:
			if !ok {
				quality = nil
				continue
			}
			monitoring.RecordError(string(apperrors.ErrorCategoryDataQuality))
			e.log.Warning("malformed update dropped: %v", dq)

		case tick, ok := <-ticks:
			if !ok {
				err := e.feed.Err()
				e.shutdown()
				if err != nil {
					monitoring.RecordError(string(apperrors.ErrorCategoryFeed))
					if e.health != nil {
						e.health.AddError(fmt.Sprintf("market data feed terminated: %v", err))
					}
					return fmt.Errorf("market data feed terminated: %w", err)
				}
				return nil
			}
			e.handleTick(ctx, tick)
		}
	}
}

func (e *Engine) handleTick(ctx context.Context, tick types.Tick) {
	evaluator, ok := e.signals[tick.Symbol]
	if !ok {
		e.log.Warning("tick for unconfigured instrument %s dropped", tick.Symbol)
		return
	}

	mark := tick.Mark()
	monitoring.RecordTick(tick.Symbol, mark)
	if e.health != nil {
		e.health.RecordTick(mark)
	}

	e.book.MarkPrice(tick.Symbol, mark)
	if e.quoteSink != nil {
		e.quoteSink.UpdateQuote(tick)
	}

	snap := e.book.Snapshot()
	monitoring.UpdateAccount(snap.Equity.InexactFloat64(), snap.SessionPnL().InexactFloat64())

	e.setState(tick.Symbol, StateEvaluating)
	defer e.setState(tick.Symbol, StateAwaitingTick)

	sig, err := evaluator.Evaluate(tick)
	if err != nil {
		if errors.Is(err, apperrors.ErrInsufficientHistory) {
			return // still warming up the lookback window
		}
		var dq *apperrors.DataQualityError
		if errors.As(err, &dq) {
			monitoring.RecordError(string(apperrors.ErrorCategoryDataQuality))
			e.log.Warning("tick rejected by signal engine: %v", dq)
			return
		}
		e.log.Error("signal evaluation failed for %s: %v", tick.Symbol, err)
		return
	}
	monitoring.RecordSignal(sig.Symbol, sig.Direction.String(), sig.Strength)

	if e.isDegraded() {
		monitoring.SetDegraded(true)
		if e.health != nil {
			e.health.SetDegraded(true)
		}
		return
	}

	e.setState(tick.Symbol, StateProposing)
	intent, ok := e.propose(ctx, sig, tick, snap)
	if !ok {
		return
	}

	e.setState(tick.Symbol, StateAwaitingRiskDecision)
	decision := e.gate.Evaluate(intent, e.book.Snapshot())
	if !decision.Approved {
		monitoring.RecordOrderRejection(intent.Symbol, string(decision.Reason))
		e.log.Info("intent %s %s %.8f %s rejected: %s",
			intent.Side, intent.Symbol, intent.Quantity, intent.PriceType, decision.Reason)
		return
	}

	e.setState(tick.Symbol, StateDispatching)
	e.dispatch(ctx, intent)
}

// propose derives an order intent from the signal and the current
// position. The target position is the signal direction scaled by
// strength; the intent covers the gap between target and held.
func (e *Engine) propose(ctx context.Context, sig signal.Signal, tick types.Tick, snap ledger.Snapshot) (types.OrderIntent, bool) {
	if e.hasWorkingOrder(ctx, sig) {
		return types.OrderIntent{}, false
	}

	current := snap.Position(sig.Symbol).Quantity.InexactFloat64()

	var target float64
	switch sig.Direction {
	case signal.DirectionLong:
		target = e.cfg.BaseQuantity * math.Abs(sig.Strength)
	case signal.DirectionShort:
		target = -e.cfg.BaseQuantity * math.Abs(sig.Strength)
	}

	delta := target - current
	if math.Abs(delta) < e.cfg.BaseQuantity*minTradeFraction {
		return types.OrderIntent{}, false
	}

	side := types.SideBuy
	if delta < 0 {
		side = types.SideSell
	}

	intent := types.OrderIntent{
		ID:        uuid.NewString(),
		Symbol:    sig.Symbol,
		Side:      side,
		Quantity:  math.Abs(delta),
		PriceType: types.PriceTypeMarket,
		SignalID:  fmt.Sprintf("%s-%d", sig.Symbol, sig.Timestamp.UnixNano()),
		CreatedAt: time.Now(),
	}

	if e.cfg.PriceOffset > 0 {
		intent.PriceType = types.PriceTypeLimit
		if side == types.SideBuy {
			intent.LimitPrice = tick.Ask - e.cfg.PriceOffset
		} else {
			intent.LimitPrice = tick.Bid + e.cfg.PriceOffset
		}
		if intent.LimitPrice <= 0 {
			e.log.Warning("offset %.8f produces a non-positive limit price at %s quote, skipping",
				e.cfg.PriceOffset, sig.Symbol)
			return types.OrderIntent{}, false
		}
	}

	return intent, true
}

// hasWorkingOrder keeps at most one live order per instrument. An open
// order whose side contradicts the newest signal is cancelled; the
// replacement is proposed on a later cycle, against the then-current
// position.
func (e *Engine) hasWorkingOrder(ctx context.Context, sig signal.Signal) bool {
	for _, order := range e.router.OpenOrders() {
		if order.Intent.Symbol != sig.Symbol {
			continue
		}
		stale := (sig.Direction == signal.DirectionLong && order.Intent.Side == types.SideSell) ||
			(sig.Direction == signal.DirectionShort && order.Intent.Side == types.SideBuy)
		if stale {
			if err := e.router.Cancel(ctx, order.ClientOrderID); err != nil {
				e.log.Warning("failed to cancel stale order %s: %v", order.ClientOrderID, err)
			}
		}
		return true
	}
	return false
}

func (e *Engine) dispatch(ctx context.Context, intent types.OrderIntent) {
	monitoring.RecordOrderSubmitted(intent.Symbol, string(intent.Side))

	_, err := e.router.Submit(ctx, intent)
	if err == nil {
		return
	}

	var ackTimeout *apperrors.AckTimeoutError
	var rejection *apperrors.VenueRejectionError
	switch {
	case errors.As(err, &ackTimeout):
		monitoring.RecordError(string(apperrors.ErrorCategoryAckTimeout))
		e.enterDegraded(fmt.Sprintf("order %s unacknowledged after %v",
			ackTimeout.OrderID, ackTimeout.Elapsed))
	case errors.As(err, &rejection):
		monitoring.RecordError(string(apperrors.ErrorCategoryVenue))
		monitoring.RecordOrderRejection(intent.Symbol, "venue")
		e.log.Warning("venue rejected order %s: %s", rejection.OrderID, rejection.Reason)
	default:
		monitoring.RecordError(string(apperrors.ErrorCategoryVenue))
		e.log.Error("order dispatch failed: %v", err)
	}
}

// enterDegraded latches the engine into a no-new-orders state
func (e *Engine) enterDegraded(reason string) {
	e.mutex.Lock()
	already := e.degraded
	e.degraded = true
	e.mutex.Unlock()

	if !already {
		e.log.Error("entering degraded mode: %s", reason)
		monitoring.SetDegraded(true)
		if e.health != nil {
			e.health.SetDegraded(true)
		}
	}
}

func (e *Engine) isDegraded() bool {
	e.mutex.Lock()
	degraded := e.degraded
	e.mutex.Unlock()
	return degraded || e.router.Degraded()
}

// Degraded reports whether the engine has stopped proposing orders
func (e *Engine) Degraded() bool {
	return e.isDegraded()
}

// StateFor returns the loop state of one instrument
func (e *Engine) StateFor(symbol string) State {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if s, ok := e.states[symbol]; ok {
		return s
	}
	return StateIdle
}

func (e *Engine) setState(symbol string, s State) {
	e.mutex.Lock()
	e.states[symbol] = s
	e.mutex.Unlock()
}

func (e *Engine) setAllStates(s State) {
	e.mutex.Lock()
	for symbol := range e.states {
		e.states[symbol] = s
	}
	e.mutex.Unlock()
}

// shutdown cancels whatever is still working and closes the feed.
// Cancellation is bounded so a dead venue cannot stall the exit.
func (e *Engine) shutdown() {
	cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, order := range e.router.OpenOrders() {
		if err := e.router.Cancel(cancelCtx, order.ClientOrderID); err != nil {
			e.log.Warning("failed to cancel order %s during shutdown: %v",
				order.ClientOrderID, err)
		}
	}

	e.feed.Close()
	if e.health != nil {
		e.health.SetConnected(false)
	}
	e.setAllStates(StateShutdown)
	e.log.Info("strategy loop stopped")
}

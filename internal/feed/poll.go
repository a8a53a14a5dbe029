package feed

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/levanduc-dev/tick-trader/internal/errors"
	"github.com/levanduc-dev/tick-trader/internal/logger"
	"github.com/levanduc-dev/tick-trader/pkg/types"
)

// QuoteSource fetches the current quote for a symbol. Venue adapters
// implement this against their market data endpoints.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (RawUpdate, error)
}

// PollFeed produces ticks by polling a quote source at a fixed
// interval. Used for venues without a streaming market data channel.
// Consecutive fetch failures beyond the threshold terminate the feed.
type PollFeed struct {
	source   QuoteSource
	symbols  []string
	interval time.Duration
	log      *logger.Logger

	maxConsecutiveFailures int

	ticks   chan types.Tick
	quality chan *apperrors.DataQualityError

	closeOnce sync.Once
	done      chan struct{}

	errMutex sync.Mutex
	err      error
}

// NewPollFeed creates a polling feed over the given quote source
func NewPollFeed(source QuoteSource, symbols []string, interval time.Duration, log *logger.Logger) *PollFeed {
	return &PollFeed{
		source:                 source,
		symbols:                symbols,
		interval:               interval,
		log:                    log.Component("poll_feed"),
		maxConsecutiveFailures: 5,
		ticks:                  make(chan types.Tick, 64),
		quality:                make(chan *apperrors.DataQualityError, 64),
		done:                   make(chan struct{}),
	}
}

// Start launches the polling loop
func (f *PollFeed) Start(ctx context.Context) error {
	go f.pollLoop(ctx)
	return nil
}

func (f *PollFeed) pollLoop(ctx context.Context) {
	defer close(f.ticks)
	defer close(f.quality)

	normalizer := NewNormalizer()
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ticker.C:
			ok := true
			for _, symbol := range f.symbols {
				raw, err := f.source.GetQuote(ctx, symbol)
				if err != nil {
					f.log.Warning("quote fetch failed for %s: %v", symbol, err)
					ok = false
					continue
				}

				tick, qerr := normalizer.Normalize(raw)
				if qerr != nil {
					select {
					case f.quality <- qerr:
					default:
					}
					continue
				}

				select {
				case f.ticks <- tick:
				case <-ctx.Done():
					return
				case <-f.done:
					return
				}
			}

			if ok {
				failures = 0
			} else {
				failures++
				if failures >= f.maxConsecutiveFailures {
					f.setErr(apperrors.New(apperrors.ErrorCategoryFeed, "poll_feed", "poll",
						"quote source unreachable"))
					f.log.Error("feed terminated after %d consecutive poll failures", failures)
					return
				}
			}
		case <-ctx.Done():
			return
		case <-f.done:
			return
		}
	}
}

func (f *PollFeed) setErr(err error) {
	f.errMutex.Lock()
	defer f.errMutex.Unlock()
	if f.err == nil {
		f.err = err
	}
}

// Ticks returns the tick channel
func (f *PollFeed) Ticks() <-chan types.Tick {
	return f.ticks
}

// Quality returns the data-quality event channel
func (f *PollFeed) Quality() <-chan *apperrors.DataQualityError {
	return f.quality
}

// Err returns the terminal error after the tick channel closed
func (f *PollFeed) Err() error {
	f.errMutex.Lock()
	defer f.errMutex.Unlock()
	return f.err
}

// Close stops the polling loop
func (f *PollFeed) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

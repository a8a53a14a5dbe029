package feed

import (
	"context"
	"sync"

	apperrors "github.com/levanduc-dev/tick-trader/internal/errors"
	"github.com/levanduc-dev/tick-trader/pkg/types"
)

// ReplayFeed serves a fixed sequence of raw updates through the same
// normalization path as a live feed. Used for paper trading warmup and
// in tests; the stream terminates cleanly once the sequence is drained.
type ReplayFeed struct {
	updates []RawUpdate

	ticks   chan types.Tick
	quality chan *apperrors.DataQualityError

	closeOnce sync.Once
	done      chan struct{}
}

// NewReplayFeed creates a feed that will replay the given updates in order
func NewReplayFeed(updates []RawUpdate) *ReplayFeed {
	return &ReplayFeed{
		updates: updates,
		ticks:   make(chan types.Tick, len(updates)),
		quality: make(chan *apperrors.DataQualityError, len(updates)),
		done:    make(chan struct{}),
	}
}

// Start replays all updates and then closes the tick channel
func (f *ReplayFeed) Start(ctx context.Context) error {
	go func() {
		defer close(f.ticks)
		defer close(f.quality)

		normalizer := NewNormalizer()
		for _, raw := range f.updates {
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
	}()
	return nil
}

// Ticks returns the tick channel
func (f *ReplayFeed) Ticks() <-chan types.Tick {
	return f.ticks
}

// Quality returns the data-quality event channel
func (f *ReplayFeed) Quality() <-chan *apperrors.DataQualityError {
	return f.quality
}

// Err always returns nil: replay exhaustion is a clean termination
func (f *ReplayFeed) Err() error {
	return nil
}

// Close stops the replay early
func (f *ReplayFeed) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

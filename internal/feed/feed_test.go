package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levanduc-dev/tick-trader/pkg/types"
)

func validUpdate(symbol string, ts time.Time, bid, ask float64) RawUpdate {
	return RawUpdate{
		Symbol:    symbol,
		Timestamp: ts,
		Bid:       bid,
		Ask:       ask,
		Last:      (bid + ask) / 2,
		Volume:    10,
	}
}

func TestNormalizer_ValidUpdate(t *testing.T) {
	n := NewNormalizer()
	ts := time.Now()

	tick, qerr := n.Normalize(validUpdate("BTCUSDT", ts, 100.0, 100.5))
	require.Nil(t, qerr)

	assert.Equal(t, "BTCUSDT", tick.Symbol)
	assert.Equal(t, ts, tick.Timestamp)
	assert.Equal(t, 100.0, tick.Bid)
	assert.Equal(t, 100.5, tick.Ask)
}

func TestNormalizer_RejectsMalformed(t *testing.T) {
	ts := time.Now()
	cases := []struct {
		name string
		raw  RawUpdate
	}{
		{"missing symbol", validUpdate("", ts, 100, 101)},
		{"missing timestamp", validUpdate("BTCUSDT", time.Time{}, 100, 101)},
		{"zero bid", validUpdate("BTCUSDT", ts, 0, 101)},
		{"negative ask", RawUpdate{Symbol: "BTCUSDT", Timestamp: ts, Bid: 100, Ask: -1}},
		{"crossed book", validUpdate("BTCUSDT", ts, 101, 100)},
		{"negative volume", RawUpdate{Symbol: "BTCUSDT", Timestamp: ts, Bid: 100, Ask: 101, Volume: -5}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := NewNormalizer()
			_, qerr := n.Normalize(tc.raw)
			assert.NotNil(t, qerr)
		})
	}
}

func TestNormalizer_DropsOutOfOrderTicks(t *testing.T) {
	n := NewNormalizer()
	ts := time.Now()

	_, qerr := n.Normalize(validUpdate("BTCUSDT", ts, 100, 101))
	require.Nil(t, qerr)

	// Same timestamp is not strictly newer
	_, qerr = n.Normalize(validUpdate("BTCUSDT", ts, 100, 101))
	require.NotNil(t, qerr)
	assert.Contains(t, qerr.Error(), "out-of-order")

	// Older timestamp
	_, qerr = n.Normalize(validUpdate("BTCUSDT", ts.Add(-time.Second), 100, 101))
	assert.NotNil(t, qerr)

	// Newer timestamp passes again
	_, qerr = n.Normalize(validUpdate("BTCUSDT", ts.Add(time.Second), 100, 101))
	assert.Nil(t, qerr)
}

func TestNormalizer_MonotonicityIsPerSymbol(t *testing.T) {
	n := NewNormalizer()
	ts := time.Now()

	_, qerr := n.Normalize(validUpdate("BTCUSDT", ts, 100, 101))
	require.Nil(t, qerr)

	// An older timestamp on a different symbol is fine
	_, qerr = n.Normalize(validUpdate("ETHUSDT", ts.Add(-time.Minute), 50, 51))
	assert.Nil(t, qerr)
}

func TestReplayFeed_EmitsInOrderAndTerminates(t *testing.T) {
	base := time.Now()
	updates := []RawUpdate{
		validUpdate("BTCUSDT", base, 100, 101),
		validUpdate("BTCUSDT", base.Add(time.Second), 102, 103),
		validUpdate("BTCUSDT", base.Add(2*time.Second), 104, 105),
	}

	f := NewReplayFeed(updates)
	require.NoError(t, f.Start(context.Background()))

	var got []types.Tick
	for tick := range f.Ticks() {
		got = append(got, tick)
	}

	require.Len(t, got, 3)
	assert.Equal(t, 100.0, got[0].Bid)
	assert.Equal(t, 104.0, got[2].Bid)
	assert.NoError(t, f.Err())
}

func TestReplayFeed_DropsBadUpdatesAndRaisesQuality(t *testing.T) {
	base := time.Now()
	updates := []RawUpdate{
		validUpdate("BTCUSDT", base, 100, 101),
		validUpdate("BTCUSDT", base, 102, 103), // duplicate timestamp, dropped
		validUpdate("BTCUSDT", base.Add(time.Second), 104, 105),
	}

	f := NewReplayFeed(updates)
	require.NoError(t, f.Start(context.Background()))

	var got []types.Tick
	for tick := range f.Ticks() {
		got = append(got, tick)
	}
	require.Len(t, got, 2)

	var events int
	for range f.Quality() {
		events++
	}
	assert.Equal(t, 1, events)
}

package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levanduc-dev/tick-trader/internal/ledger"
	"github.com/levanduc-dev/tick-trader/pkg/types"
)

func testFill(id string, side types.Side, qty, price float64) types.Fill {
	return types.Fill{
		FillID:    id,
		OrderID:   "order-" + id,
		Symbol:    "BTCUSDT",
		Side:      side,
		Quantity:  qty,
		Price:     price,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestJournal_AppendReplayRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fills.jsonl")

	j, err := Open(path)
	require.NoError(t, err)

	written := []types.Fill{
		testFill("f1", types.SideBuy, 100, 50),
		testFill("f2", types.SideSell, 40, 55),
		testFill("f3", types.SideBuy, 10, 52),
	}
	for _, f := range written {
		require.NoError(t, j.Append(f))
	}
	require.NoError(t, j.Close())

	var replayed []types.Fill
	count, err := Replay(path, func(f types.Fill) error {
		replayed = append(replayed, f)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 3, count)
	require.Len(t, replayed, 3)
	for i := range written {
		assert.Equal(t, written[i].FillID, replayed[i].FillID)
		assert.Equal(t, written[i].Side, replayed[i].Side)
		assert.Equal(t, written[i].Quantity, replayed[i].Quantity)
		assert.Equal(t, written[i].Price, replayed[i].Price)
	}
}

func TestJournal_ReplayMissingFileIsEmpty(t *testing.T) {
	count, err := Replay(filepath.Join(t.TempDir(), "nope.jsonl"), func(types.Fill) error {
		t.Fatal("callback must not run")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestJournal_ReplayToleratesTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fills.jsonl")

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(testFill("f1", types.SideBuy, 100, 50)))
	require.NoError(t, j.Close())

	// Simulate a crash mid-append: a half-written final record
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"fill_id":"f2","sy`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	count, err := Replay(path, func(types.Fill) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestJournal_ReplayRejectsMidFileCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fills.jsonl")

	require.NoError(t, os.WriteFile(path, []byte("not json\n{\"fill_id\":\"f1\"}\n"), 0o644))

	_, err := Replay(path, func(types.Fill) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt journal record")
}

func TestJournal_AppendAfterCloseFails(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "fills.jsonl"))
	require.NoError(t, err)
	require.NoError(t, j.Close())

	assert.Error(t, j.Append(testFill("f1", types.SideBuy, 1, 1)))
}

func TestJournal_RestartReproducesLedgerState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fills.jsonl")

	j, err := Open(path)
	require.NoError(t, err)

	live := ledger.NewLedger(100000, j)
	require.NoError(t, live.ApplyFill(testFill("f1", types.SideBuy, 100, 50)))
	require.NoError(t, live.ApplyFill(testFill("f2", types.SideSell, 60, 58)))
	require.NoError(t, live.ApplyFill(testFill("f3", types.SideSell, 40, 45)))
	require.NoError(t, j.Close())

	// Restart: rebuild a fresh ledger from the journal alone
	recovered := ledger.NewLedger(100000, nil)
	count, err := Replay(path, func(f types.Fill) error {
		recovered.Recover(f)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	a, b := live.Snapshot(), recovered.Snapshot()
	assert.True(t, a.Position("BTCUSDT").Quantity.Equal(b.Position("BTCUSDT").Quantity))
	assert.True(t, a.Position("BTCUSDT").AvgCost.Equal(b.Position("BTCUSDT").AvgCost))
	assert.True(t, a.Account.Cash.Equal(b.Account.Cash))
	assert.True(t, a.Account.RealizedPnL.Equal(b.Account.RealizedPnL))
	assert.True(t, a.Account.RealizedPnL.Equal(decimal.NewFromInt(280)), "got %s", a.Account.RealizedPnL)
}

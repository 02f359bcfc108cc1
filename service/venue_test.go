package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"lyra/domain/fixed"
	"lyra/domain/orderbook"
)

func TestJournalReplayRebuildsBook(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Instruments: []Instrument{{
			Symbol:   testSymbol,
			TickSize: val(t, "0.01"),
			LotSize:  val(t, "0.0001"),
		}},
		JournalDir: dir,
		QueueDepth: 64,
	}

	gate := newTestGate(t)
	v1, err := New(cfg, gate, Deps{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	v1.Start(ctx)

	sell, err := submit(t, v1, "alice", orderbook.Sell, orderbook.Limit, "100.00", "10")
	require.NoError(t, err)
	buy, err := submit(t, v1, "bob", orderbook.Buy, orderbook.Limit, "100.00", "4")
	require.NoError(t, err)
	require.Equal(t, val(t, "4"), buy.FilledQty)

	doomed, err := submit(t, v1, "bob", orderbook.Buy, orderbook.Limit, "99.00", "2")
	require.NoError(t, err)
	require.NoError(t, v1.CancelOrder(context.Background(), doomed.OrderID))

	cancel()
	require.NoError(t, v1.Close())

	// Fresh process: new gate, same journals.
	gate2 := newTestGate(t)
	v2, err := New(cfg, gate2, Deps{})
	require.NoError(t, err)
	require.NoError(t, v2.Replay())

	ctx2, cancel2 := context.WithCancel(context.Background())
	t.Cleanup(func() { _ = v2.Close() })
	t.Cleanup(cancel2)
	v2.Start(ctx2)

	// The resting remainder survived; the cancelled bid did not.
	depth, err := v2.Depth(context.Background(), testSymbol, 10)
	require.NoError(t, err)
	require.Len(t, depth.Asks, 1)
	require.Equal(t, val(t, "100.00"), depth.Asks[0].Price)
	require.Equal(t, val(t, "6"), depth.Asks[0].Qty)
	require.Empty(t, depth.Bids)

	// Risk state rebuilt from the journal.
	require.Equal(t, val(t, "600"), gate2.Exposure("alice"))
	require.Equal(t, fixed.Value(0), gate2.Exposure("bob"))

	// New ids continue past everything the journal issued.
	res, err := submit(t, v2, "bob", orderbook.Buy, orderbook.Limit, "100.00", "6")
	require.NoError(t, err)
	require.Greater(t, res.OrderID, doomed.OrderID)
	require.Equal(t, val(t, "6"), res.FilledQty)

	// The replayed remainder was just fully filled, so its id is gone
	// from the rebuilt routing table.
	require.ErrorIs(t, v2.CancelOrder(context.Background(), sell.OrderID), ErrOrderNotFound)
}

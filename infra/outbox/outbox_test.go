package outbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func open(t *testing.T) *Outbox {
	t.Helper()
	o, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func TestPutNewIsIdempotent(t *testing.T) {
	o := open(t)

	require.NoError(t, o.PutNew("BTC-USD-1", []byte("payload")))
	require.NoError(t, o.UpdateState("BTC-USD-1", StateCommitted, 2))

	// Replay re-derives the same trade; the committed state survives.
	require.NoError(t, o.PutNew("BTC-USD-1", []byte("payload")))

	e, err := o.Get("BTC-USD-1")
	require.NoError(t, err)
	require.Equal(t, StateCommitted, e.State)
	require.Equal(t, uint32(2), e.Retries)
}

func TestScanPending(t *testing.T) {
	o := open(t)

	require.NoError(t, o.PutNew("BTC-USD-1", []byte("a")))
	require.NoError(t, o.PutNew("BTC-USD-2", []byte("b")))
	require.NoError(t, o.PutNew("BTC-USD-3", []byte("c")))
	require.NoError(t, o.UpdateState("BTC-USD-2", StateCommitted, 1))

	var keys []string
	require.NoError(t, o.ScanPending(func(e *Entry) error {
		keys = append(keys, e.Key)
		return nil
	}))
	require.Equal(t, []string{"BTC-USD-1", "BTC-USD-3"}, keys)

	n, err := o.PendingCount()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestGetMissing(t *testing.T) {
	o := open(t)
	_, err := o.Get("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPayloadSurvivesStateChanges(t *testing.T) {
	o := open(t)
	require.NoError(t, o.PutNew("ETH-USD-9", []byte{0x01, 0x02, 0x03}))
	require.NoError(t, o.UpdateState("ETH-USD-9", StateSent, 1))

	e, err := o.Get("ETH-USD-9")
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, e.Payload)
	require.Equal(t, StateSent, e.State)
	require.NotZero(t, e.LastAttempt)
}

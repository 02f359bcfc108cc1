// Package outbox is the durable handoff between matching and
// settlement: every emitted trade is written here before any attempt to
// reach the ledger, keyed by trade id with a small state machine. The
// dispatcher drains it; dedup across retries and restarts falls out of
// the key.
package outbox

import (
	"encoding/binary"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateCommitted
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateCommitted:
		return "COMMITTED"
	case StateFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Entry is one outbox record.
//
// encoding: [state:1][retries:4][lastAttempt:8][payload]
type Entry struct {
	Key         string
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

var ErrNotFound = errors.New("outbox: entry not found")

func encodeEntry(e *Entry) []byte {
	buf := make([]byte, 13+len(e.Payload))
	buf[0] = byte(e.State)
	binary.BigEndian.PutUint32(buf[1:5], e.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(e.LastAttempt))
	copy(buf[13:], e.Payload)
	return buf
}

func decodeEntry(key string, b []byte) (*Entry, error) {
	if len(b) < 13 {
		return nil, errors.New("outbox: invalid entry length")
	}
	payload := make([]byte, len(b)-13)
	copy(payload, b[13:])
	return &Entry{
		Key:         key,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     payload,
	}, nil
}

type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // durability is the whole point
	})
	if err != nil {
		return nil, errors.Wrap(err, "outbox: open")
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

func keyFor(tradeKey string) []byte {
	return append([]byte("trade/"), tradeKey...)
}

// PutNew inserts a trade in state NEW. Idempotent: a key that already
// exists (journal replay re-deriving the same trade) is left untouched,
// whatever state it reached.
func (o *Outbox) PutNew(tradeKey string, payload []byte) error {
	key := keyFor(tradeKey)

	_, closer, err := o.db.Get(key)
	if err == nil {
		_ = closer.Close()
		return nil
	}
	if err != pebble.ErrNotFound {
		return errors.Wrap(err, "outbox: get")
	}

	e := &Entry{State: StateNew, Payload: payload}
	return errors.Wrap(o.db.Set(key, encodeEntry(e), pebble.Sync), "outbox: put")
}

// UpdateState moves an entry through the state machine, preserving its
// payload.
func (o *Outbox) UpdateState(tradeKey string, state State, retries uint32) error {
	e, err := o.Get(tradeKey)
	if err != nil {
		return err
	}
	e.State = state
	e.Retries = retries
	e.LastAttempt = time.Now().UnixNano()
	return errors.Wrap(o.db.Set(keyFor(tradeKey), encodeEntry(e), pebble.Sync), "outbox: update")
}

// Get returns the entry for a trade key.
func (o *Outbox) Get(tradeKey string) (*Entry, error) {
	val, closer, err := o.db.Get(keyFor(tradeKey))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "outbox: get")
	}
	defer closer.Close()
	return decodeEntry(tradeKey, val)
}

// Delete removes a settled entry during cleanup.
func (o *Outbox) Delete(tradeKey string) error {
	return o.db.Delete(keyFor(tradeKey), pebble.Sync)
}

// ScanPending visits every NEW and SENT entry in key order.
func (o *Outbox) ScanPending(fn func(*Entry) error) error {
	return o.scan(func(e *Entry) error {
		if e.State != StateNew && e.State != StateSent {
			return nil
		}
		return fn(e)
	})
}

// PendingCount is the settlement backlog, exported as a gauge.
func (o *Outbox) PendingCount() (int, error) {
	n := 0
	err := o.ScanPending(func(*Entry) error { n++; return nil })
	return n, err
}

func (o *Outbox) scan(fn func(*Entry) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("trade/"),
		UpperBound: []byte("trade/\xff"),
	})
	if err != nil {
		return errors.Wrap(err, "outbox: iter")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key()[len("trade/"):])
		e, err := decodeEntry(key, iter.Value())
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return iter.Error()
}

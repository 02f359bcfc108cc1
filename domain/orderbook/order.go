package orderbook

import (
	"runtime"
	"sync/atomic"

	"lyra/domain/fixed"
)

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// OrderType is a closed variant: an order is either a limit order with
// a price, or a market order without one. Dispatch happens once, at
// validation time.
type OrderType uint8

const (
	Limit OrderType = iota
	Market
)

// Status is the lifecycle word arbitrating the match/cancel race. All
// transitions out of Active go through a single compare-and-swap, so a
// resting order is consumed by exactly one of the two paths.
type Status uint32

const (
	Active Status = iota
	// Filling marks an order the matching loop is mutating right now.
	// Cancellation waits it out rather than observing a torn quantity.
	Filling
	Filled
	Cancelled
)

type Order struct {
	ID      uint64
	Account string
	Symbol  string
	Side    Side
	Type    OrderType

	// Price is the limit price; zero for market orders.
	Price fixed.Value
	// RiskPrice is the per-unit price reserved against the account,
	// released as the order fills or dies.
	RiskPrice fixed.Value

	Qty fixed.Value

	// Seq is the submission sequence number: the time-priority
	// tie-break inside a price level.
	Seq uint64

	// remaining is written only by the owning engine, but read by
	// snapshot goroutines; the atomic store is the release that
	// publishes each quantity mutation.
	remaining   atomic.Int64
	status      atomic.Uint32
	retireEpoch uint64
}

// Remaining is the unfilled quantity. Strictly non-increasing while
// resting; zero means fully filled.
func (o *Order) Remaining() fixed.Value {
	return fixed.Value(o.remaining.Load())
}

// SetRemaining initializes the open quantity. Owning engine only.
func (o *Order) SetRemaining(v fixed.Value) {
	o.remaining.Store(int64(v))
}

func (o *Order) reduceRemaining(by fixed.Value) {
	o.remaining.Add(-int64(by))
}

// MarkFilled finishes a taker that never rested in the book.
func (o *Order) MarkFilled() {
	o.status.Store(uint32(Filled))
}

func (o *Order) Status() Status { return Status(o.status.Load()) }

// Cancel atomically moves the order out of the book's reach. It returns
// false if the matching loop already consumed the order. A transient
// Filling state is waited out so the quantity fields are never observed
// mid-mutation.
func (o *Order) Cancel() bool {
	for {
		switch Status(o.status.Load()) {
		case Active:
			if o.status.CompareAndSwap(uint32(Active), uint32(Cancelled)) {
				return true
			}
		case Filling:
			runtime.Gosched()
		default:
			return false
		}
	}
}

// beginFill claims the order for the matching loop. Exactly one of
// beginFill and Cancel succeeds on a live order.
func (o *Order) beginFill() bool {
	return o.status.CompareAndSwap(uint32(Active), uint32(Filling))
}

// endFill publishes the mutated quantities. The release store pairs
// with the acquire load in Status, so "order visible" implies
// "quantity current".
func (o *Order) endFill(full bool) {
	if full {
		o.status.Store(uint32(Filled))
	} else {
		o.status.Store(uint32(Active))
	}
}

// Reset zeroes the order for pool reuse. Field by field: the struct
// holds atomics, so a wholesale copy would be wrong.
func (o *Order) Reset() {
	o.ID = 0
	o.Account = ""
	o.Symbol = ""
	o.Side = Buy
	o.Type = Limit
	o.Price = 0
	o.RiskPrice = 0
	o.Qty = 0
	o.Seq = 0
	o.remaining.Store(0)
	o.status.Store(uint32(Active))
	o.retireEpoch = 0
}

// Implement memory.Reclaimable.
func (o *Order) RetireEpoch() uint64     { return o.retireEpoch }
func (o *Order) SetRetireEpoch(v uint64) { o.retireEpoch = v }

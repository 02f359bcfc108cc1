package orderbook

import (
	"sync/atomic"

	"lyra/domain/fixed"
)

// slot is one cell of a price level's ring. The tag is a lap-versioned
// sequence number in the Vyukov style: a slot freed and reused on a
// later lap carries a different tag, so a reader holding a stale cursor
// can never mistake the new occupant for the old one (the ABA hazard).
//
// Tag protocol for position i on lap k (cap = ring capacity):
//
//	tag == i + k*cap     slot free, producer may claim it
//	tag == i + k*cap + 1 slot occupied, payload visible
type slot struct {
	tag atomic.Uint64
	ord atomic.Pointer[Order]
}

// PriceLevel is the FIFO of orders resting at one price. Append runs on
// the submission side, PeekFront/PopFrontIf on the matching loop, with
// cancellation arbitrated by the order's own status word rather than by
// queue surgery. Cursor reads are acquire, publication stores are
// release: an order visible through the queue always has current
// quantity fields.
type PriceLevel struct {
	Price fixed.Value

	slots []slot
	mask  uint64
	cap   uint64

	head atomic.Uint64
	_    [56]byte
	tail atomic.Uint64
	_    [56]byte

	// open counts orders at this level that are still matchable. It
	// goes down on fills and cancels; when it reaches zero the level
	// is eligible for removal from its tree.
	open atomic.Int64
}

func newPriceLevel(price fixed.Value, capacity uint64) *PriceLevel {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("orderbook: price level capacity must be a power of two")
	}
	l := &PriceLevel{
		Price: price,
		slots: make([]slot, capacity),
		mask:  capacity - 1,
		cap:   capacity,
	}
	for i := range l.slots {
		l.slots[i].tag.Store(uint64(i))
	}
	return l
}

// Append publishes o at the tail in O(1). It returns false when the
// ring is full; callers surface that as backpressure, never as a
// silent drop.
func (l *PriceLevel) Append(o *Order) bool {
	t := l.tail.Load()
	s := &l.slots[t&l.mask]
	if s.tag.Load() != t {
		return false
	}
	s.ord.Store(o)
	s.tag.Store(t + 1)
	l.tail.Store(t + 1)
	l.open.Add(1)
	return true
}

// PeekFront returns the oldest order without removing it, or nil when
// the level is empty.
func (l *PriceLevel) PeekFront() *Order {
	h := l.head.Load()
	s := &l.slots[h&l.mask]
	if s.tag.Load() != h+1 {
		return nil
	}
	o := s.ord.Load()
	if s.tag.Load() != h+1 {
		return nil
	}
	return o
}

// PopFrontIf removes the head only if pred still holds for it. The tag
// is validated around the payload read, and pred itself is where
// callers put their linearization point (a status compare-and-swap),
// so a pop and a concurrent cancel resolve to exactly one winner.
func (l *PriceLevel) PopFrontIf(pred func(*Order) bool) (*Order, bool) {
	h := l.head.Load()
	s := &l.slots[h&l.mask]
	if s.tag.Load() != h+1 {
		return nil, false
	}
	o := s.ord.Load()
	if o == nil || s.tag.Load() != h+1 {
		return nil, false
	}
	if !pred(o) {
		return nil, false
	}
	s.ord.Store(nil)
	s.tag.Store(h + l.cap)
	l.head.Store(h + 1)
	return o, true
}

// Len is the number of orders physically in the ring, including
// cancelled ones awaiting lazy removal.
func (l *PriceLevel) Len() int {
	return int(l.tail.Load() - l.head.Load())
}

// Open is the number of still-matchable orders at this level.
func (l *PriceLevel) Open() int64 { return l.open.Load() }

func (l *PriceLevel) noteClosed() { l.open.Add(-1) }

// ForEachActive visits every live order from oldest to newest. Used by
// depth snapshots under epoch protection; slots that mutate mid-walk
// fail their tag check and are skipped.
func (l *PriceLevel) ForEachActive(fn func(*Order)) {
	t := l.tail.Load()
	for i := l.head.Load(); i != t; i++ {
		s := &l.slots[i&l.mask]
		if s.tag.Load() != i+1 {
			continue
		}
		o := s.ord.Load()
		if o == nil || s.tag.Load() != i+1 {
			continue
		}
		if o.Status() == Active {
			fn(o)
		}
	}
}

package orderbook

import (
	"errors"

	"lyra/domain/fixed"
)

// ErrLevelFull means a price level's ring has no free slot. Callers
// surface it as backpressure rather than growing the ring under load.
var ErrLevelFull = errors.New("orderbook: price level full")

// Book is one instrument's order book: bids and asks as independent
// price-ordered trees of lock-free FIFO levels. Exactly one engine
// goroutine owns a Book and is the only mutator of its trees and of
// resting quantities; the lock-free pieces exist for the cancellation
// and snapshot paths that run against that owner.
type Book struct {
	Symbol string
	Bids   *RBTree
	Asks   *RBTree

	byID map[uint64]*Order

	// evict receives orders physically removed from a level after a
	// cancellation, once they are safe to hand to the retire ring.
	evict func(*Order)
}

func NewBook(symbol string, levelCap uint64) *Book {
	return &Book{
		Symbol: symbol,
		Bids:   NewRBTree(levelCap),
		Asks:   NewRBTree(levelCap),
		byID:   make(map[uint64]*Order, 1024),
	}
}

// OnEvict registers the retire hook. Must be set before first use.
func (b *Book) OnEvict(fn func(*Order)) { b.evict = fn }

func (b *Book) tree(s Side) *RBTree {
	if s == Buy {
		return b.Bids
	}
	return b.Asks
}

func (b *Book) BestBid() (fixed.Value, bool) {
	if lvl := b.Bids.MaxLevel(); lvl != nil {
		return lvl.Price, true
	}
	return 0, false
}

func (b *Book) BestAsk() (fixed.Value, bool) {
	if lvl := b.Asks.MinLevel(); lvl != nil {
		return lvl.Price, true
	}
	return 0, false
}

// BestOpposite is the price a market order would start matching at.
func (b *Book) BestOpposite(s Side) (fixed.Value, bool) {
	if s == Buy {
		return b.BestAsk()
	}
	return b.BestBid()
}

// Crossed reports best bid >= best ask. Outside an in-flight match this
// must never be true.
func (b *Book) Crossed() bool {
	bb, okB := b.BestBid()
	ba, okA := b.BestAsk()
	return okB && okA && bb >= ba
}

func (b *Book) Lookup(id uint64) (*Order, bool) {
	o, ok := b.byID[id]
	return o, ok
}

func (b *Book) OpenCount() int { return len(b.byID) }

// InsertResting places a non-fully-matched limit order at its level,
// creating the level if absent.
func (b *Book) InsertResting(o *Order) error {
	lvl := b.tree(o.Side).UpsertLevel(o.Price)
	if !lvl.Append(o) {
		return ErrLevelFull
	}
	b.byID[o.ID] = o
	return nil
}

// Remove cancels a resting order. The status compare-and-swap inside
// Order.Cancel is the arbiter: if the matching loop got there first
// this returns false and no state changes.
func (b *Book) Remove(id uint64) (*Order, bool) {
	o, ok := b.byID[id]
	if !ok {
		return nil, false
	}
	if !o.Cancel() {
		return nil, false
	}
	delete(b.byID, id)

	tree := b.tree(o.Side)
	if lvl := tree.FindLevel(o.Price); lvl != nil {
		lvl.noteClosed()
		b.drain(tree, lvl)
	}
	return o, true
}

// drain pops dead orders off the level head so best-price lookups never
// report a level with nothing matchable, then removes the level once
// physically empty. Cancelled orders in the middle of the ring stay put
// until they surface.
func (b *Book) drain(tree *RBTree, lvl *PriceLevel) {
	for {
		dead, ok := lvl.PopFrontIf(func(o *Order) bool {
			return o.Status() == Cancelled
		})
		if !ok {
			break
		}
		delete(b.byID, dead.ID)
		if b.evict != nil {
			b.evict(dead)
		}
	}
	if lvl.Len() == 0 {
		tree.DeleteLevel(lvl.Price)
	}
}

// Match walks the opposite side in price order, oldest first within a
// level, filling the taker until its quantity is exhausted or no price
// crosses. Every fill executes at the maker's price. emit is called
// once per fill with quantities already updated on both orders.
func (b *Book) Match(taker *Order, emit func(maker *Order, price, qty fixed.Value)) {
	for taker.Remaining() > 0 {
		var (
			tree *RBTree
			lvl  *PriceLevel
		)
		if taker.Side == Buy {
			tree = b.Asks
			lvl = tree.MinLevel()
		} else {
			tree = b.Bids
			lvl = tree.MaxLevel()
		}
		if lvl == nil {
			return
		}
		if taker.Type != Market {
			if taker.Side == Buy && lvl.Price > taker.Price {
				return
			}
			if taker.Side == Sell && lvl.Price < taker.Price {
				return
			}
		}

		maker := lvl.PeekFront()
		if maker == nil {
			tree.DeleteLevel(lvl.Price)
			continue
		}

		if !maker.beginFill() {
			// Lost the head to a concurrent cancel: the match is
			// abandoned and retried against the next order.
			b.drain(tree, lvl)
			continue
		}

		qty := taker.Remaining()
		if maker.Remaining() < qty {
			qty = maker.Remaining()
		}
		maker.reduceRemaining(qty)
		taker.reduceRemaining(qty)

		full := maker.Remaining() == 0
		if full {
			lvl.PopFrontIf(func(o *Order) bool { return o == maker })
			delete(b.byID, maker.ID)
			lvl.noteClosed()
		}
		maker.endFill(full)

		emit(maker, lvl.Price, qty)

		if lvl.Len() == 0 {
			tree.DeleteLevel(lvl.Price)
		}
	}
}

// WalkBids visits bid levels best-first. Snapshot use only.
func (b *Book) WalkBids(fn func(*PriceLevel) bool) {
	b.Bids.ForEachDescending(fn)
}

// WalkAsks visits ask levels best-first.
func (b *Book) WalkAsks(fn func(*PriceLevel) bool) {
	b.Asks.ForEachAscending(fn)
}

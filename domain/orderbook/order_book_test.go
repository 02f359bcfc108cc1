package orderbook

import (
	"testing"

	"lyra/domain/fixed"
)

func price(n int64) fixed.Value { return fixed.Value(n) * fixed.Unit }
func qty(n int64) fixed.Value   { return fixed.Value(n) * fixed.Unit }

func newBookOrder(id uint64, side Side, typ OrderType, p, q fixed.Value) *Order {
	o := &Order{
		ID:        id,
		Symbol:    "TEST",
		Side:      side,
		Type:      typ,
		Price:     p,
		RiskPrice: p,
		Qty:       q,
		Seq:       id,
	}
	o.SetRemaining(q)
	return o
}

type fill struct {
	makerID uint64
	price   fixed.Value
	qty     fixed.Value
}

func matchAll(b *Book, taker *Order) []fill {
	var fills []fill
	b.Match(taker, func(maker *Order, p, q fixed.Value) {
		fills = append(fills, fill{makerID: maker.ID, price: p, qty: q})
	})
	return fills
}

func TestInsertAndBestPrices(t *testing.T) {
	b := NewBook("TEST", 16)

	b.InsertResting(newBookOrder(1, Buy, Limit, price(99), qty(1)))
	b.InsertResting(newBookOrder(2, Buy, Limit, price(98), qty(1)))
	b.InsertResting(newBookOrder(3, Sell, Limit, price(101), qty(1)))
	b.InsertResting(newBookOrder(4, Sell, Limit, price(102), qty(1)))

	if bb, ok := b.BestBid(); !ok || bb != price(99) {
		t.Errorf("best bid = %v, want 99", bb)
	}
	if ba, ok := b.BestAsk(); !ok || ba != price(101) {
		t.Errorf("best ask = %v, want 101", ba)
	}
	if b.Crossed() {
		t.Error("book must not be crossed")
	}
	if b.OpenCount() != 4 {
		t.Errorf("open = %d, want 4", b.OpenCount())
	}
}

func TestMatchPartialFill(t *testing.T) {
	b := NewBook("TEST", 16)
	maker := newBookOrder(1, Sell, Limit, price(100), qty(10))
	b.InsertResting(maker)

	taker := newBookOrder(2, Buy, Limit, price(100), qty(4))
	fills := matchAll(b, taker)

	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(fills))
	}
	if fills[0].price != price(100) || fills[0].qty != qty(4) {
		t.Errorf("fill = %+v", fills[0])
	}
	if maker.Remaining() != qty(6) {
		t.Errorf("maker remaining = %v, want 6", maker.Remaining())
	}
	if taker.Remaining() != 0 {
		t.Errorf("taker remaining = %v, want 0", taker.Remaining())
	}
	if _, ok := b.Lookup(1); !ok {
		t.Error("partially filled maker must stay resting")
	}
}

func TestExecutionAtMakerPrice(t *testing.T) {
	b := NewBook("TEST", 16)
	b.InsertResting(newBookOrder(1, Sell, Limit, price(100), qty(5)))

	taker := newBookOrder(2, Buy, Limit, price(105), qty(5))
	fills := matchAll(b, taker)

	if len(fills) != 1 || fills[0].price != price(100) {
		t.Fatalf("expected one fill at maker price 100, got %+v", fills)
	}
}

func TestTimePriorityWithinLevel(t *testing.T) {
	b := NewBook("TEST", 16)
	b.InsertResting(newBookOrder(1, Sell, Limit, price(100), qty(2)))
	b.InsertResting(newBookOrder(2, Sell, Limit, price(100), qty(2)))

	fills := matchAll(b, newBookOrder(3, Buy, Limit, price(100), qty(2)))
	if len(fills) != 1 || fills[0].makerID != 1 {
		t.Fatalf("oldest order must fill first, got %+v", fills)
	}
}

func TestPricePriorityAcrossLevels(t *testing.T) {
	b := NewBook("TEST", 16)
	b.InsertResting(newBookOrder(1, Sell, Limit, price(102), qty(2)))
	b.InsertResting(newBookOrder(2, Sell, Limit, price(100), qty(2)))

	fills := matchAll(b, newBookOrder(3, Buy, Limit, price(102), qty(4)))
	if len(fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(fills))
	}
	if fills[0].makerID != 2 || fills[0].price != price(100) {
		t.Errorf("better price must match first, got %+v", fills[0])
	}
	if fills[1].makerID != 1 || fills[1].price != price(102) {
		t.Errorf("then the worse level, got %+v", fills[1])
	}
}

func TestFilledMakerLeavesBook(t *testing.T) {
	b := NewBook("TEST", 16)
	b.InsertResting(newBookOrder(1, Sell, Limit, price(100), qty(3)))

	matchAll(b, newBookOrder(2, Buy, Limit, price(100), qty(3)))

	if _, ok := b.Lookup(1); ok {
		t.Error("filled maker must leave the book")
	}
	if _, ok := b.BestAsk(); ok {
		t.Error("empty level must leave the tree")
	}
}

func TestRemoveCancelsOnce(t *testing.T) {
	b := NewBook("TEST", 16)
	b.InsertResting(newBookOrder(1, Buy, Limit, price(99), qty(1)))

	if _, ok := b.Remove(1); !ok {
		t.Fatal("first remove should succeed")
	}
	if _, ok := b.Remove(1); ok {
		t.Error("second remove must fail")
	}
	if _, ok := b.BestBid(); ok {
		t.Error("bid side should be empty after cancel")
	}
}

func TestMatchSkipsCancelledHead(t *testing.T) {
	b := NewBook("TEST", 16)
	b.InsertResting(newBookOrder(1, Sell, Limit, price(100), qty(2)))
	b.InsertResting(newBookOrder(2, Sell, Limit, price(100), qty(2)))

	if _, ok := b.Remove(1); !ok {
		t.Fatal("cancel failed")
	}

	fills := matchAll(b, newBookOrder(3, Buy, Limit, price(100), qty(2)))
	if len(fills) != 1 || fills[0].makerID != 2 {
		t.Fatalf("match must skip the cancelled head, got %+v", fills)
	}
}

func TestMarketTakerStopsOnEmptyBook(t *testing.T) {
	b := NewBook("TEST", 16)
	taker := newBookOrder(1, Buy, Market, 0, qty(5))

	fills := matchAll(b, taker)
	if len(fills) != 0 {
		t.Fatalf("no liquidity, no fills: %+v", fills)
	}
	if taker.Remaining() != qty(5) {
		t.Errorf("remaining = %v, want 5", taker.Remaining())
	}
}

func TestMarketTakerSweepsLevels(t *testing.T) {
	b := NewBook("TEST", 16)
	b.InsertResting(newBookOrder(1, Sell, Limit, price(100), qty(2)))
	b.InsertResting(newBookOrder(2, Sell, Limit, price(101), qty(2)))

	taker := newBookOrder(3, Buy, Market, 0, qty(3))
	fills := matchAll(b, taker)

	if len(fills) != 2 {
		t.Fatalf("fills = %d, want 2", len(fills))
	}
	if fills[0].price != price(100) || fills[1].price != price(101) {
		t.Errorf("market order must sweep in price order: %+v", fills)
	}
	if taker.Remaining() != 0 {
		t.Errorf("remaining = %v, want 0", taker.Remaining())
	}
}

func TestEvictHookReceivesCancelled(t *testing.T) {
	b := NewBook("TEST", 16)
	var evicted []uint64
	b.OnEvict(func(o *Order) { evicted = append(evicted, o.ID) })

	b.InsertResting(newBookOrder(1, Sell, Limit, price(100), qty(1)))
	if _, ok := b.Remove(1); !ok {
		t.Fatal("cancel failed")
	}
	if len(evicted) != 1 || evicted[0] != 1 {
		t.Errorf("evicted = %v, want [1]", evicted)
	}
}

func TestInsertRestingLevelFull(t *testing.T) {
	b := NewBook("TEST", 2)
	b.InsertResting(newBookOrder(1, Sell, Limit, price(100), qty(1)))
	b.InsertResting(newBookOrder(2, Sell, Limit, price(100), qty(1)))

	if err := b.InsertResting(newBookOrder(3, Sell, Limit, price(100), qty(1))); err != ErrLevelFull {
		t.Errorf("err = %v, want ErrLevelFull", err)
	}
}

package orderbook

import (
	"sync"
	"testing"

	"lyra/domain/fixed"
)

func newTestOrder(id uint64, side Side, qty int64) *Order {
	o := &Order{
		ID:     id,
		Side:   side,
		Symbol: "TEST",
		Price:  100 * fixed.Unit,
		Qty:    fixed.Value(qty) * fixed.Unit,
		Seq:    id,
	}
	o.SetRemaining(o.Qty)
	return o
}

func TestAppendPeekFIFO(t *testing.T) {
	lvl := newPriceLevel(100*fixed.Unit, 8)

	for i := uint64(1); i <= 3; i++ {
		if !lvl.Append(newTestOrder(i, Sell, 1)) {
			t.Fatalf("append %d failed", i)
		}
	}

	for want := uint64(1); want <= 3; want++ {
		head := lvl.PeekFront()
		if head == nil || head.ID != want {
			t.Fatalf("expected head %d, got %+v", want, head)
		}
		if _, ok := lvl.PopFrontIf(func(*Order) bool { return true }); !ok {
			t.Fatalf("pop %d failed", want)
		}
	}
	if lvl.PeekFront() != nil {
		t.Error("level should be empty")
	}
}

func TestAppendFullRing(t *testing.T) {
	lvl := newPriceLevel(100*fixed.Unit, 4)

	for i := uint64(1); i <= 4; i++ {
		if !lvl.Append(newTestOrder(i, Sell, 1)) {
			t.Fatalf("append %d should fit", i)
		}
	}
	if lvl.Append(newTestOrder(5, Sell, 1)) {
		t.Error("append into a full ring should fail")
	}
}

func TestPopFrontIfPredicate(t *testing.T) {
	lvl := newPriceLevel(100*fixed.Unit, 4)
	lvl.Append(newTestOrder(1, Sell, 1))

	if _, ok := lvl.PopFrontIf(func(*Order) bool { return false }); ok {
		t.Error("failed predicate must not remove the head")
	}
	if lvl.Len() != 1 {
		t.Errorf("len = %d, want 1", lvl.Len())
	}
	if _, ok := lvl.PopFrontIf(func(*Order) bool { return true }); !ok {
		t.Error("head should pop once the predicate holds")
	}
}

// The ring must stay FIFO across many laps, when every slot has been
// freed and reclaimed multiple times.
func TestRingWraparound(t *testing.T) {
	lvl := newPriceLevel(100*fixed.Unit, 4)

	next := uint64(1)
	for round := 0; round < 10; round++ {
		for i := 0; i < 3; i++ {
			if !lvl.Append(newTestOrder(next, Sell, 1)) {
				t.Fatalf("append %d failed on round %d", next, round)
			}
			next++
		}
		for i := 0; i < 3; i++ {
			o, ok := lvl.PopFrontIf(func(*Order) bool { return true })
			if !ok {
				t.Fatalf("pop failed on round %d", round)
			}
			if o.ID != next-3+uint64(i) {
				t.Fatalf("FIFO violated: got %d", o.ID)
			}
		}
	}
}

// A pop (through the fill path) and a cancel racing for the same order
// must resolve to exactly one winner, every time.
func TestMatchCancelRaceSingleWinner(t *testing.T) {
	for iter := 0; iter < 1000; iter++ {
		lvl := newPriceLevel(100*fixed.Unit, 4)
		o := newTestOrder(1, Sell, 1)
		lvl.Append(o)

		var wg sync.WaitGroup
		var matched, cancelled bool

		wg.Add(2)
		go func() {
			defer wg.Done()
			popped, ok := lvl.PopFrontIf(func(ord *Order) bool {
				return ord.beginFill()
			})
			if ok {
				// Cancel spins while the order is Filling; finish the
				// fill so it observes a terminal state.
				popped.endFill(true)
			}
			matched = ok
		}()
		go func() {
			defer wg.Done()
			cancelled = o.Cancel()
		}()
		wg.Wait()

		if matched == cancelled {
			t.Fatalf("iter %d: matched=%v cancelled=%v, want exactly one",
				iter, matched, cancelled)
		}
	}
}

func TestForEachActiveSkipsCancelled(t *testing.T) {
	lvl := newPriceLevel(100*fixed.Unit, 8)
	a := newTestOrder(1, Sell, 1)
	b := newTestOrder(2, Sell, 1)
	c := newTestOrder(3, Sell, 1)
	lvl.Append(a)
	lvl.Append(b)
	lvl.Append(c)

	b.Cancel()

	var seen []uint64
	lvl.ForEachActive(func(o *Order) {
		seen = append(seen, o.ID)
	})
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 3 {
		t.Errorf("seen = %v, want [1 3]", seen)
	}
}

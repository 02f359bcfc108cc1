package orderbook

import (
	"testing"

	"lyra/domain/fixed"
)

func BenchmarkInsertResting(b *testing.B) {
	book := NewBook("BENCH", 1<<20)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		o := newBookOrder(uint64(i+1), Buy, Limit, price(int64(i%100+1)), qty(1))
		if err := book.InsertResting(o); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCancel(b *testing.B) {
	book := NewBook("BENCH", 1<<20)
	for i := 0; i < b.N; i++ {
		o := newBookOrder(uint64(i+1), Buy, Limit, price(int64(i%100+1)), qty(1))
		if err := book.InsertResting(o); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		book.Remove(uint64(i + 1))
	}
}

func BenchmarkMatch(b *testing.B) {
	book := NewBook("BENCH", 1<<20)
	for i := 0; i < b.N; i++ {
		book.InsertResting(newBookOrder(uint64(i+1), Sell, Limit, price(int64(i%1024+1)), qty(1)))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		taker := newBookOrder(uint64(b.N+i+1), Buy, Market, 0, qty(1))
		book.Match(taker, func(*Order, fixed.Value, fixed.Value) {})
	}
}

package orderbook

import (
	"math/rand"
	"sort"
	"testing"

	"lyra/domain/fixed"
)

func collectAscending(tr *RBTree) []fixed.Value {
	var out []fixed.Value
	tr.ForEachAscending(func(lvl *PriceLevel) bool {
		out = append(out, lvl.Price)
		return true
	})
	return out
}

func TestUpsertReturnsSameLevel(t *testing.T) {
	tr := NewRBTree(16)
	a := tr.UpsertLevel(price(100))
	b := tr.UpsertLevel(price(100))
	if a != b {
		t.Error("upsert of an existing price must return the same level")
	}
}

func TestMinMaxAndFind(t *testing.T) {
	tr := NewRBTree(16)
	for _, p := range []int64{105, 99, 101, 97, 110} {
		tr.UpsertLevel(price(p))
	}

	if lvl := tr.MinLevel(); lvl == nil || lvl.Price != price(97) {
		t.Errorf("min = %+v, want 97", lvl)
	}
	if lvl := tr.MaxLevel(); lvl == nil || lvl.Price != price(110) {
		t.Errorf("max = %+v, want 110", lvl)
	}
	if lvl := tr.FindLevel(price(101)); lvl == nil {
		t.Error("find 101 failed")
	}
	if lvl := tr.FindLevel(price(102)); lvl != nil {
		t.Error("find 102 should miss")
	}
}

func TestTraversalOrder(t *testing.T) {
	tr := NewRBTree(16)
	for _, p := range []int64{5, 3, 8, 1, 9, 7, 2} {
		tr.UpsertLevel(price(p))
	}

	asc := collectAscending(tr)
	for i := 1; i < len(asc); i++ {
		if asc[i-1] >= asc[i] {
			t.Fatalf("ascending order violated at %d: %v", i, asc)
		}
	}

	var desc []fixed.Value
	tr.ForEachDescending(func(lvl *PriceLevel) bool {
		desc = append(desc, lvl.Price)
		return true
	})
	for i := 1; i < len(desc); i++ {
		if desc[i-1] <= desc[i] {
			t.Fatalf("descending order violated at %d: %v", i, desc)
		}
	}
}

func TestDeleteLevel(t *testing.T) {
	tr := NewRBTree(16)
	for _, p := range []int64{1, 2, 3, 4, 5} {
		tr.UpsertLevel(price(p))
	}

	tr.DeleteLevel(price(3))
	if tr.FindLevel(price(3)) != nil {
		t.Error("deleted level still findable")
	}
	got := collectAscending(tr)
	want := []fixed.Value{price(1), price(2), price(4), price(5)}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// Randomized insert/delete torture: after every batch the in-order
// traversal must equal the sorted set of live keys.
func TestRandomizedInsertDelete(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tr := NewRBTree(16)
	live := make(map[fixed.Value]bool)

	for round := 0; round < 50; round++ {
		for i := 0; i < 20; i++ {
			p := price(int64(rng.Intn(500) + 1))
			tr.UpsertLevel(p)
			live[p] = true
		}
		for p := range live {
			if rng.Intn(3) == 0 {
				tr.DeleteLevel(p)
				delete(live, p)
			}
		}

		want := make([]fixed.Value, 0, len(live))
		for p := range live {
			want = append(want, p)
		}
		sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

		got := collectAscending(tr)
		if len(got) != len(want) {
			t.Fatalf("round %d: %d levels, want %d", round, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("round %d: traversal diverges at %d", round, i)
			}
		}
	}
}

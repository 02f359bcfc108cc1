package memory

import "testing"

type testObj struct {
	id    int
	reset bool
	epoch uint64
}

func (o *testObj) Reset()                 { o.reset = true }
func (o *testObj) RetireEpoch() uint64    { return o.epoch }
func (o *testObj) SetRetireEpoch(v uint64) { o.epoch = v }

type capturePool struct {
	got []*testObj
}

func (p *capturePool) PutAny(v any) { p.got = append(p.got, v.(*testObj)) }

func TestRetireRingBasic(t *testing.T) {
	r := NewRetireRing(4)
	a := &testObj{id: 1}
	b := &testObj{id: 2}

	if !r.Enqueue(a) || !r.Enqueue(b) {
		t.Fatal("enqueue failed unexpectedly")
	}
	if r.Dequeue() != a {
		t.Error("expected first dequeue to be a")
	}
	if r.Dequeue() != b {
		t.Error("expected second dequeue to be b")
	}
	if r.Dequeue() != nil {
		t.Error("expected empty ring to return nil")
	}
}

func TestRetireRingFull(t *testing.T) {
	r := NewRetireRing(2)
	if !r.Enqueue(&testObj{}) || !r.Enqueue(&testObj{}) {
		t.Fatal("enqueue failed unexpectedly")
	}
	if r.Enqueue(&testObj{}) {
		t.Error("enqueue into a full ring must fail")
	}
	if r.Len() != 2 {
		t.Errorf("len = %d, want 2", r.Len())
	}
}

func TestReclaimWithoutReaders(t *testing.T) {
	r := NewRetireRing(8)
	pool := &capturePool{}
	obj := &testObj{id: 1}

	Retire(r, obj)
	AdvanceEpochAndReclaim(r, pool)

	if len(pool.got) != 1 || pool.got[0] != obj {
		t.Fatalf("object not reclaimed: %+v", pool.got)
	}
	if !obj.reset {
		t.Error("object must be reset before reuse")
	}
}

func TestActiveReaderBlocksReclaim(t *testing.T) {
	r := NewRetireRing(8)
	pool := &capturePool{}
	reader := NewReaderEpoch()

	reader.Enter()
	obj := &testObj{id: 1}
	Retire(r, obj)

	// The reader predates the retirement; the object must survive.
	AdvanceEpochAndReclaim(r, pool, reader)
	if len(pool.got) != 0 {
		t.Fatal("object reclaimed under an active reader")
	}
	if r.Len() != 1 {
		t.Errorf("object must stay queued, len = %d", r.Len())
	}

	reader.Exit()
	AdvanceEpochAndReclaim(r, pool, reader)
	if len(pool.got) != 1 {
		t.Fatal("object not reclaimed after the reader left")
	}
}

func TestLateReaderDoesNotBlockOlderRetirement(t *testing.T) {
	r := NewRetireRing(8)
	pool := &capturePool{}
	reader := NewReaderEpoch()

	obj := &testObj{id: 1}
	Retire(r, obj)

	// Epoch moves past the retirement, then a reader enters. It cannot
	// hold a reference to obj, so obj is reclaimable.
	GlobalEpoch.Add(1)
	reader.Enter()

	AdvanceEpochAndReclaim(r, pool, reader)
	if len(pool.got) != 1 {
		t.Fatal("retirement older than the reader must be reclaimed")
	}
}

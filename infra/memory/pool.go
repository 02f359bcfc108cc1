package memory

import "sync"

// Reclaimable is what the epoch reclaimer needs from a pooled object.
type Reclaimable interface {
	Reset()
	RetireEpoch() uint64
	SetRetireEpoch(uint64)
}

// Pool is a typed object pool over sync.Pool.
type Pool[T any] struct {
	p *sync.Pool
}

func NewPool[T any](ctor func() *T) *Pool[T] {
	return &Pool[T]{
		p: &sync.Pool{
			New: func() any { return ctor() },
		},
	}
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T)
}

func (p *Pool[T]) Put(v *T) {
	p.p.Put(v)
}

// PutAny adapts the typed pool to the erased reclamation path.
func (p *Pool[T]) PutAny(v any) {
	obj, ok := v.(*T)
	if !ok {
		panic("memory.Pool: PutAny received wrong type")
	}
	p.Put(obj)
}

// Package risk implements the pre-trade exposure gate. State is keyed
// per account; the check-and-reserve is a single compare-and-commit so
// two concurrent orders can never both pass on a stale read and jointly
// blow through a limit.
package risk

import (
	"errors"
	"sync"
	"sync/atomic"

	"lyra/domain/fixed"
)

var (
	ErrUnknownAccount = errors.New("risk: unknown account")
	ErrRejected       = errors.New("risk: exposure limit exceeded")
)

// Limits is the per-account configuration injected at activation time.
type Limits struct {
	MaxExposure fixed.Value
	MaxOrderQty fixed.Value
}

type account struct {
	limits   Limits
	exposure atomic.Int64 // fixed.Value
}

type Gate struct {
	mu       sync.RWMutex
	accounts map[string]*account
}

func NewGate() *Gate {
	return &Gate{accounts: make(map[string]*account)}
}

// Activate registers an account. Called once at onboarding; replacing
// limits for a live account keeps its current exposure.
func (g *Gate) Activate(id string, limits Limits) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if a, ok := g.accounts[id]; ok {
		a.limits = limits
		return
	}
	a := &account{limits: limits}
	g.accounts[id] = a
}

func (g *Gate) lookup(id string) (*account, bool) {
	g.mu.RLock()
	a, ok := g.accounts[id]
	g.mu.RUnlock()
	return a, ok
}

// Limits returns the configured limits for an account.
func (g *Gate) Limits(id string) (Limits, bool) {
	a, ok := g.lookup(id)
	if !ok {
		return Limits{}, false
	}
	return a.limits, true
}

// Exposure returns the account's current reserved notional.
func (g *Gate) Exposure(id string) fixed.Value {
	a, ok := g.lookup(id)
	if !ok {
		return 0
	}
	return fixed.Value(a.exposure.Load())
}

// CheckAndReserve commits notional against the account's limit in one
// atomic step and returns the updated exposure. A failed compare means
// a concurrent order moved the exposure first; the check is retried
// against the fresh value, never applied blindly.
func (g *Gate) CheckAndReserve(id string, notional fixed.Value) (fixed.Value, error) {
	a, ok := g.lookup(id)
	if !ok {
		return 0, ErrUnknownAccount
	}
	for {
		cur := fixed.Value(a.exposure.Load())
		next, err := cur.Add(notional)
		if err != nil {
			return cur, err
		}
		if next > a.limits.MaxExposure {
			return cur, ErrRejected
		}
		if a.exposure.CompareAndSwap(int64(cur), int64(next)) {
			return next, nil
		}
	}
}

// Release gives reserved exposure back on fills and cancellations.
// Clamped at zero so an over-release never goes negative.
func (g *Gate) Release(id string, notional fixed.Value) {
	a, ok := g.lookup(id)
	if !ok {
		return
	}
	for {
		cur := fixed.Value(a.exposure.Load())
		next := cur - notional
		if next < 0 {
			next = 0
		}
		if a.exposure.CompareAndSwap(int64(cur), int64(next)) {
			return
		}
	}
}

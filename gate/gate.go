// Package gate provides a one-way latch for actions that must happen at most
// once per lifetime scope (a mounted section, a tracked page).
package gate

import "go.uber.org/atomic"

// Gate starts armed and transitions to fired exactly once. There is no way to
// re-arm a gate; scopes that reset build a new one.
type Gate struct {
	fired atomic.Bool
}

// New returns an armed gate.
func New() *Gate {
	return &Gate{}
}

// Fire reports whether this call fired the gate. Only the first call on an
// armed gate returns true.
func (g *Gate) Fire() bool {
	return g.fired.CompareAndSwap(false, true)
}

// Fired reports whether the gate has already fired.
func (g *Gate) Fired() bool {
	return g.fired.Load()
}

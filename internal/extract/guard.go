package extract

import "sync/atomic"

// guard enforces one document at a time on an extractor instance.
type guard struct {
	busy atomic.Bool
}

func (g *guard) enter() error {
	if !g.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (g *guard) leave() { g.busy.Store(false) }

// Busy reports whether a document is being processed.
func (g *guard) Busy() bool { return g.busy.Load() }

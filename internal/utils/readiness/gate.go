// Package readiness provides a broadcast-once signal for components that finish
// initializing after the HTTP server starts accepting requests.
package readiness

import (
	"context"
	"sync"
)

// Gate is signalled once and never reset. Waiters block until Signal is called,
// afterwards every Wait returns immediately. Re-initialisation is not supported.
type Gate struct {
	once sync.Once
	done chan struct{}
}

func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Signal opens the gate. Calls after the first are no-ops.
func (g *Gate) Signal() {
	g.once.Do(func() {
		close(g.done)
	})
}

// Ready reports whether the gate has been signalled.
func (g *Gate) Ready() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the gate is signalled or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

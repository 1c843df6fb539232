// Package conc holds the small concurrency primitives the dispatcher is
// built on: a join counter that fails loudly instead of going negative, and
// a fixed-permit semaphore.
package conc

import (
	"context"
	"sync"

	"toolgate/internal/domain"
)

// WaitGroup blocks until a counter of outstanding units reaches zero. Unlike
// sync.WaitGroup it reports over-release as an error instead of panicking,
// so a misbehaving task cannot take the dispatcher down with it.
type WaitGroup struct {
	mu    sync.Mutex
	count int
	zero  chan struct{}
}

func NewWaitGroup() *WaitGroup {
	return &WaitGroup{}
}

// Add registers n additional units of outstanding work.
func (w *WaitGroup) Add(n int) {
	if n <= 0 {
		return
	}
	w.mu.Lock()
	w.count += n
	w.mu.Unlock()
}

// Done marks one unit complete. Calling Done more times than Add registered
// returns an error; the counter is never clamped below zero.
func (w *WaitGroup) Done() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count <= 0 {
		return domain.ErrNegativeCounter
	}
	w.count--
	if w.count == 0 && w.zero != nil {
		close(w.zero)
		w.zero = nil
	}
	return nil
}

// Wait blocks until the counter reaches zero or the context is done.
func (w *WaitGroup) Wait(ctx context.Context) error {
	w.mu.Lock()
	if w.count == 0 {
		w.mu.Unlock()
		return nil
	}
	if w.zero == nil {
		w.zero = make(chan struct{})
	}
	zero := w.zero
	w.mu.Unlock()

	select {
	case <-zero:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outstanding returns the current counter value.
func (w *WaitGroup) Outstanding() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

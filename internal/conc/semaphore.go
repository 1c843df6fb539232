package conc

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Semaphore limits the number of concurrent holders of a resource. The
// permit count is fixed at construction.
type Semaphore struct {
	weighted *semaphore.Weighted
	permits  int
}

func NewSemaphore(permits int) *Semaphore {
	if permits < 1 {
		permits = 1
	}
	return &Semaphore{
		weighted: semaphore.NewWeighted(int64(permits)),
		permits:  permits,
	}
}

// Permits returns the configured maximum number of holders.
func (s *Semaphore) Permits() int {
	return s.permits
}

// Acquire blocks until a permit is available or the context is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	return s.weighted.Acquire(ctx, 1)
}

// TryAcquire grabs a permit without blocking.
func (s *Semaphore) TryAcquire() bool {
	return s.weighted.TryAcquire(1)
}

// Release returns a permit.
func (s *Semaphore) Release() {
	s.weighted.Release(1)
}

// With runs fn while holding a permit; the permit is released even when fn
// panics.
func (s *Semaphore) With(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.Acquire(ctx); err != nil {
		return err
	}
	defer s.Release()
	return fn(ctx)
}

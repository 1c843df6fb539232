// Package dispatch runs a batch of independent invocations under a
// concurrency bound and returns one outcome per input, in input order.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"toolgate/internal/conc"
	"toolgate/internal/domain"
	"toolgate/internal/infra/telemetry"
)

// State is the lifecycle position of one dispatched task.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSuccess   State = "success"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
)

// Terminal reports whether a task can no longer change state.
func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateFailed, StateTimedOut, StateCancelled:
		return true
	default:
		return false
	}
}

// Outcome is the terminal record of one task. Index mirrors the position of
// the originating request in the input slice.
type Outcome[R any] struct {
	Index    int
	State    State
	Value    R
	Err      error
	Duration time.Duration
}

// Options configure a batch execution.
type Options struct {
	// MaxConcurrent bounds how many invocations run at once. Values below 1
	// fall back to the default.
	MaxConcurrent int

	// PerCallTimeout bounds each individual invocation and feeds the
	// aggregate deadline.
	PerCallTimeout time.Duration

	// Margin is slack added on top of the computed aggregate deadline.
	Margin time.Duration

	Logger  *zap.Logger
	Metrics telemetry.Metrics
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrent < 1 {
		o.MaxConcurrent = domain.DefaultMaxConcurrent
	}
	if o.PerCallTimeout <= 0 {
		o.PerCallTimeout = domain.DefaultCallTimeout
	}
	if o.Margin <= 0 {
		o.Margin = domain.DefaultDispatchMargin
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = telemetry.NewNoopMetrics()
	}
	return o
}

// AggregateTimeout is the deadline for a whole batch: enough budget for every
// task to use its full per-call timeout across the available permits, plus
// slack for scheduling.
func AggregateTimeout(count, maxConcurrent int, perCall, margin time.Duration) time.Duration {
	if count < 1 {
		count = 1
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	rounds := (count + maxConcurrent - 1) / maxConcurrent
	return perCall*time.Duration(rounds) + margin
}

// ExecuteAll runs invoke once per request with at most MaxConcurrent running
// simultaneously and returns exactly len(requests) outcomes in request order.
// A failing task yields a Failed outcome at its index and leaves its siblings
// untouched. Tasks still unfinished when the aggregate deadline fires are
// recorded as TimedOut; the function always returns a full result set.
func ExecuteAll[T, R any](ctx context.Context, requests []T, invoke func(ctx context.Context, index int, request T) (R, error), opts Options) []Outcome[R] {
	opts = opts.withDefaults()

	outcomes := make([]Outcome[R], len(requests))
	for i := range outcomes {
		outcomes[i] = Outcome[R]{Index: i, State: StatePending}
	}
	if len(requests) == 0 {
		return outcomes
	}

	aggregate := AggregateTimeout(len(requests), opts.MaxConcurrent, opts.PerCallTimeout, opts.Margin)
	batchCtx, cancel := context.WithTimeout(ctx, aggregate)
	defer cancel()

	var mu sync.Mutex
	setState := func(index int, state State) bool {
		mu.Lock()
		defer mu.Unlock()
		if outcomes[index].State.Terminal() {
			return false
		}
		outcomes[index].State = state
		return true
	}

	sem := conc.NewSemaphore(opts.MaxConcurrent)
	wg := conc.NewWaitGroup()
	wg.Add(len(requests))

	var inFlight atomic.Int64

	for i := range requests {
		go func(index int, request T) {
			defer func() {
				_ = wg.Done()
			}()
			if err := sem.Acquire(batchCtx); err != nil {
				return
			}
			defer sem.Release()

			if !setState(index, StateRunning) {
				return
			}
			opts.Metrics.SetInFlight(int(inFlight.Add(1)))
			started := time.Now()
			value, err := runOne(batchCtx, opts.PerCallTimeout, index, request, invoke)
			elapsed := time.Since(started)
			opts.Metrics.SetInFlight(int(inFlight.Add(-1)))

			mu.Lock()
			if !outcomes[index].State.Terminal() {
				outcomes[index].Duration = elapsed
				if err != nil {
					outcomes[index].State = StateFailed
					outcomes[index].Err = err
				} else {
					outcomes[index].State = StateSuccess
					outcomes[index].Value = value
				}
			}
			mu.Unlock()
		}(i, requests[i])
	}

	waitErr := wg.Wait(batchCtx)

	mu.Lock()
	defer mu.Unlock()
	for i := range outcomes {
		if outcomes[i].State.Terminal() {
			continue
		}
		if waitErr != nil && ctx.Err() != nil {
			outcomes[i].State = StateCancelled
			outcomes[i].Err = ctx.Err()
		} else {
			outcomes[i].State = StateTimedOut
			outcomes[i].Err = context.DeadlineExceeded
		}
	}
	if waitErr != nil {
		opts.Logger.Warn("batch deadline reached with unfinished tasks",
			telemetry.EventField(telemetry.EventDispatchTimeout),
			zap.Int("tasks", len(requests)),
			zap.Duration("aggregate_timeout", aggregate),
		)
	}
	return outcomes
}

// runOne applies the per-call timeout and converts a panic inside invoke into
// an ordinary error so one bad task cannot take the batch down.
func runOne[T, R any](ctx context.Context, timeout time.Duration, index int, request T, invoke func(ctx context.Context, index int, request T) (R, error)) (value R, err error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = domain.E(domain.CodeInternal, "dispatch.invoke", fmt.Sprintf("panic: %v", r), nil)
		}
	}()
	return invoke(callCtx, index, request)
}

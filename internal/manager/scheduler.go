// internal/manager/scheduler.go
package manager

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handle controls one scheduled execution or periodic schedule.
type Handle struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	next    time.Time
	running bool
	runs    int
}

func newHandle(parent context.Context) *Handle {
	ctx, cancel := context.WithCancel(parent)
	return &Handle{ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// Cancel stops future runs and signals a running one to abort.
func (h *Handle) Cancel() { h.cancel() }

// Done is closed once no further run will start and the current one has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Wait() { <-h.done }

func (h *Handle) Cancelled() bool { return h.ctx.Err() != nil }

// Delay returns the time until the next run. It is zero while running or when finished.
func (h *Handle) Delay() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running || h.next.IsZero() {
		return 0
	}
	if d := time.Until(h.next); d > 0 {
		return d
	}
	return 0
}

// Runs returns the number of completed executions.
func (h *Handle) Runs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs
}

func (h *Handle) setNext(t time.Time) {
	h.mu.Lock()
	h.next = t
	h.mu.Unlock()
}

// scheduler runs tasks on a bounded set of worker slots.
type scheduler struct {
	ctx    context.Context
	slots  chan struct{}
	logger zerolog.Logger
	wg     sync.WaitGroup
}

func newScheduler(ctx context.Context, workers int, logger zerolog.Logger) *scheduler {
	if workers < 1 {
		workers = 1
	}
	return &scheduler{
		ctx:    ctx,
		slots:  make(chan struct{}, workers),
		logger: logger,
	}
}

// once runs fn a single time as soon as a worker slot is free.
func (s *scheduler) once(fn func(ctx context.Context)) *Handle {
	h := newHandle(s.ctx)
	h.setNext(time.Now())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(h.done)
		s.run(h, fn)
	}()
	return h
}

// fixedDelay runs fn after initial, then again period after each run completes.
func (s *scheduler) fixedDelay(initial, period time.Duration, fn func(ctx context.Context)) *Handle {
	h := newHandle(s.ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(h.done)

		wait := initial
		for {
			h.setNext(time.Now().Add(wait))
			if !sleep(h.ctx, wait) {
				return
			}
			if !s.run(h, fn) {
				return
			}
			wait = period
		}
	}()
	return h
}

// run executes fn on a worker slot. It returns false if the handle was cancelled first.
func (s *scheduler) run(h *Handle, fn func(ctx context.Context)) bool {
	select {
	case s.slots <- struct{}{}:
	case <-h.ctx.Done():
		return false
	}
	defer func() { <-s.slots }()

	if h.ctx.Err() != nil {
		return false
	}

	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	s.invoke(h, fn)

	h.mu.Lock()
	h.running = false
	h.runs++
	h.mu.Unlock()
	return true
}

// invoke calls fn and contains any panic so the schedule keeps running.
func (s *scheduler) invoke(h *Handle, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("scheduled task panicked")
		}
	}()
	fn(h.ctx)
}

// InUse returns the number of busy worker slots.
func (s *scheduler) InUse() int { return len(s.slots) }

func (s *scheduler) wait() { s.wg.Wait() }

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

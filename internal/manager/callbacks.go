// internal/manager/callbacks.go
package manager

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
)

// callbackExecutor runs user callbacks on its own workers with an unbounded FIFO queue,
// so slow callbacks never hold scheduler slots.
type callbackExecutor struct {
	logger zerolog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	active int
	closed bool

	wg sync.WaitGroup
}

func newCallbackExecutor(workers int, logger zerolog.Logger) *callbackExecutor {
	if workers < 1 {
		workers = 1
	}
	e := &callbackExecutor{logger: logger}
	e.cond = sync.NewCond(&e.mu)

	e.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go e.worker()
	}
	return e
}

// Submit queues fn. It returns false once the executor is closed.
func (e *callbackExecutor) Submit(fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.queue = append(e.queue, fn)
	e.cond.Signal()
	return true
}

// Depth returns the number of queued callbacks.
func (e *callbackExecutor) Depth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Active returns the number of callbacks currently running.
func (e *callbackExecutor) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Close drops queued callbacks and waits for running ones.
func (e *callbackExecutor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	dropped := len(e.queue)
	e.queue = nil
	e.cond.Broadcast()
	e.mu.Unlock()

	if dropped > 0 {
		e.logger.Debug().Int("dropped", dropped).Msg("callback executor closed with queued callbacks")
	}
	e.wg.Wait()
}

func (e *callbackExecutor) worker() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.closed {
			e.mu.Unlock()
			return
		}
		fn := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.active++
		e.mu.Unlock()

		e.call(fn)

		e.mu.Lock()
		e.active--
		e.mu.Unlock()
	}
}

func (e *callbackExecutor) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("callback panicked")
		}
	}()
	fn()
}

// internal/manager/internals_test.go
package manager

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ---- scheduler ----

func TestScheduler_FixedDelayAndCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newScheduler(ctx, 2, zerolog.Nop())

	var runs atomic.Int32
	h := s.fixedDelay(0, 2*time.Millisecond, func(context.Context) { runs.Add(1) })

	waitFor(t, "runs", func() bool { return runs.Load() >= 3 })
	h.Cancel()
	h.Wait()

	n := runs.Load()
	time.Sleep(10 * time.Millisecond)
	if runs.Load() != n {
		t.Fatalf("ran after cancel")
	}
	if !h.Cancelled() {
		t.Fatalf("handle must report cancelled")
	}
	s.wait()
}

func TestScheduler_BoundedWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newScheduler(ctx, 2, zerolog.Nop())

	var cur, peak atomic.Int32
	var handles []*Handle
	for i := 0; i < 6; i++ {
		handles = append(handles, s.once(func(context.Context) {
			n := cur.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(3 * time.Millisecond)
			cur.Add(-1)
		}))
	}
	for _, h := range handles {
		h.Wait()
	}
	if p := peak.Load(); p > 2 {
		t.Fatalf("peak concurrency %d exceeds workers", p)
	}
}

func TestScheduler_PanicDoesNotKillSchedule(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newScheduler(ctx, 1, zerolog.Nop())

	var runs atomic.Int32
	h := s.fixedDelay(0, time.Millisecond, func(context.Context) {
		if runs.Add(1) == 1 {
			panic("boom")
		}
	})
	waitFor(t, "run after panic", func() bool { return runs.Load() >= 2 })
	h.Cancel()
	h.Wait()
}

func TestHandle_Delay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newScheduler(ctx, 1, zerolog.Nop())

	h := s.fixedDelay(time.Hour, time.Hour, func(context.Context) {})
	waitFor(t, "next run scheduled", func() bool { return h.Delay() > 0 })
	if d := h.Delay(); d > time.Hour {
		t.Fatalf("delay=%s", d)
	}
	h.Cancel()
	h.Wait()
}

// ---- callback executor ----

func TestCallbackExecutor_FIFOAndDepth(t *testing.T) {
	e := newCallbackExecutor(1, zerolog.Nop())
	defer e.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	e.Submit(func() { close(started); <-release })
	<-started

	var mu sync.Mutex
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		e.Submit(func() { mu.Lock(); order = append(order, i); mu.Unlock() })
	}
	if d := e.Depth(); d != 3 {
		t.Fatalf("depth=%d", d)
	}
	if a := e.Active(); a != 1 {
		t.Fatalf("active=%d", a)
	}

	close(release)
	waitFor(t, "queue drained", func() bool { mu.Lock(); defer mu.Unlock(); return len(order) == 3 })
	for i, v := range order {
		if v != i {
			t.Fatalf("order=%v", order)
		}
	}
}

func TestCallbackExecutor_SubmitAfterClose(t *testing.T) {
	e := newCallbackExecutor(2, zerolog.Nop())
	e.Close()
	if e.Submit(func() {}) {
		t.Fatalf("Submit after Close must fail")
	}
}

// ---- stopwatch ----

func TestStopWatch_AccumulatesAcrossSuspend(t *testing.T) {
	var w StopWatch
	w.Start()
	time.Sleep(5 * time.Millisecond)
	w.Suspend()
	first := w.Elapsed()

	time.Sleep(10 * time.Millisecond)
	if w.Elapsed() != first {
		t.Fatalf("suspended watch kept counting")
	}

	w.Start()
	time.Sleep(5 * time.Millisecond)
	w.Suspend()
	if w.Elapsed() < first+5*time.Millisecond {
		t.Fatalf("resume lost time: first=%s total=%s", first, w.Elapsed())
	}
}

func TestTimings_FoldAfterCallbacks(t *testing.T) {
	ts := NewTimings()
	tm := ts.Start(newOperationID())

	tm.hold() // pending callback
	tm.Finish()
	if s := ts.Snapshot(); s.Operations != 0 || s.InFlight != 1 {
		t.Fatalf("operation folded before its callback: %+v", s)
	}

	tm.release()
	if s := ts.Snapshot(); s.Operations != 1 || s.InFlight != 0 {
		t.Fatalf("snapshot=%+v", s)
	}
}

func TestNewOperationID(t *testing.T) {
	a, b := newOperationID(), newOperationID()
	if len(a) != 16 || a == b {
		t.Fatalf("ids=%q %q", a, b)
	}
}

// ---- monitor ----

func TestMonitor_WarnsOncePerInterval(t *testing.T) {
	out := &syncBuffer{}
	logger := zerolog.New(out).Level(zerolog.DebugLevel)
	m := New(logger, Options{CallbackWorkers: 1, QueueWarnThreshold: 2, MonitorInterval: time.Hour, Dialer: (&fakeDevice{}).dial})
	defer m.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	m.callbacks.Submit(func() { close(started); <-release })
	<-started
	m.callbacks.Submit(func() {})
	m.callbacks.Submit(func() {})

	now := time.Now()
	m.monitor.report(now)
	m.monitor.report(now.Add(time.Minute))
	close(release)

	if n := strings.Count(out.String(), "callback queue is growing"); n != 1 {
		t.Fatalf("expected one warning, got %d:\n%s", n, out.String())
	}
}

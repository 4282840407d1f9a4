// internal/manager/stopwatch.go
package manager

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Phase is one timed part of an operation.
type Phase int

const (
	PhaseTotal Phase = iota
	PhaseConnection
	PhaseTransaction
	PhaseCallback
	numPhases
)

func (p Phase) String() string {
	switch p {
	case PhaseTotal:
		return "total"
	case PhaseConnection:
		return "connection"
	case PhaseTransaction:
		return "transaction"
	case PhaseCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// StopWatch accumulates elapsed time across Start/Suspend cycles.
type StopWatch struct {
	mu      sync.Mutex
	started time.Time
	elapsed time.Duration
}

// Start starts or resumes the watch. Starting a running watch is a no-op.
func (w *StopWatch) Start() {
	w.mu.Lock()
	if w.started.IsZero() {
		w.started = time.Now()
	}
	w.mu.Unlock()
}

// Suspend stops the watch, keeping the accumulated time.
func (w *StopWatch) Suspend() {
	w.mu.Lock()
	if !w.started.IsZero() {
		w.elapsed += time.Since(w.started)
		w.started = time.Time{}
	}
	w.mu.Unlock()
}

// Elapsed includes the current run if the watch is running.
func (w *StopWatch) Elapsed() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	d := w.elapsed
	if !w.started.IsZero() {
		d += time.Since(w.started)
	}
	return d
}

// OperationTimer times the phases of one operation.
// It is folded into the aggregate once the operation and all of its callbacks are done.
type OperationTimer struct {
	ID string

	watches [numPhases]StopWatch
	pending atomic.Int32
	owner   *Timings
}

func (t *OperationTimer) Phase(p Phase) *StopWatch { return &t.watches[p] }

func (t *OperationTimer) hold() { t.pending.Add(1) }

func (t *OperationTimer) release() {
	if t.pending.Add(-1) == 0 {
		t.owner.fold(t)
	}
}

// TimingStats is an aggregate over completed operations.
type TimingStats struct {
	Operations int64
	InFlight   int

	// Averages per completed operation.
	Total       time.Duration
	Connection  time.Duration
	Transaction time.Duration
	Callback    time.Duration
}

// Timings tracks in-flight operation timers and aggregates completed ones.
type Timings struct {
	mu       sync.Mutex
	inflight map[string]*OperationTimer
	sums     [numPhases]time.Duration
	count    int64
}

func NewTimings() *Timings {
	return &Timings{inflight: make(map[string]*OperationTimer)}
}

// Start begins timing a new operation. The caller must call Finish exactly once.
func (ts *Timings) Start(id string) *OperationTimer {
	t := &OperationTimer{ID: id, owner: ts}
	t.hold()
	t.Phase(PhaseTotal).Start()

	ts.mu.Lock()
	ts.inflight[id] = t
	ts.mu.Unlock()
	return t
}

// Finish ends the operation's own phases. Callback time may still be added.
func (t *OperationTimer) Finish() {
	t.Phase(PhaseTotal).Suspend()
	t.Phase(PhaseConnection).Suspend()
	t.Phase(PhaseTransaction).Suspend()
	t.release()
}

func (ts *Timings) fold(t *OperationTimer) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.inflight, t.ID)
	for p := Phase(0); p < numPhases; p++ {
		ts.sums[p] += t.watches[p].Elapsed()
	}
	ts.count++
}

func (ts *Timings) Snapshot() TimingStats {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	s := TimingStats{Operations: ts.count, InFlight: len(ts.inflight)}
	if ts.count == 0 {
		return s
	}
	n := time.Duration(ts.count)
	s.Total = ts.sums[PhaseTotal] / n
	s.Connection = ts.sums[PhaseConnection] / n
	s.Transaction = ts.sums[PhaseTransaction] / n
	s.Callback = ts.sums[PhaseCallback] / n
	return s
}

// newOperationID returns a random 8-byte hex id.
func newOperationID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

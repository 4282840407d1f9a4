// internal/manager/manager.go
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-transport/internal/endpoint"
	"github.com/tamzrod/modbus-transport/internal/pool"
	"github.com/tamzrod/modbus-transport/internal/transaction"
	"github.com/tamzrod/modbus-transport/internal/transport"
)

var (
	ErrInvalidMaxTries = errors.New("manager: max tries must be positive")
	ErrInvalidPeriod   = errors.New("manager: poll period must be positive")
	ErrNotActive       = errors.New("manager: not active")
	ErrNilTask         = errors.New("manager: nil task")
)

// Options tunes the manager's workers and monitoring.
type Options struct {
	SchedulerWorkers   int
	CallbackWorkers    int
	MonitorInterval    time.Duration
	QueueWarnThreshold int

	// Dialer replaces the goburrow-backed dialer. Nil uses transport.Dial.
	Dialer transport.DialFunc
}

func DefaultOptions() Options {
	return Options{
		SchedulerWorkers:   5,
		CallbackWorkers:    5,
		MonitorInterval:    10 * time.Second,
		QueueWarnThreshold: 500,
	}
}

// Listener is notified when an endpoint's pool configuration changes.
type Listener interface {
	OnEndpointPoolConfigurationSet(ep endpoint.Endpoint, cfg *endpoint.PoolConfig)
}

// Manager executes Modbus reads and writes over pooled connections.
// Requests to one endpoint never overlap on the wire.
type Manager struct {
	logger zerolog.Logger
	opts   Options

	factory   *transport.Factory
	pool      *pool.Pool[endpoint.Endpoint, *transport.Conn]
	sched     *scheduler
	callbacks *callbackExecutor
	monitor   *monitor
	timings   *Timings

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	polls  map[*PollTask]*registration

	lmu       sync.RWMutex
	listeners []Listener
}

type registration struct {
	task   *PollTask
	period time.Duration
	handle *Handle
}

// PollState describes a registered poll for monitoring.
type PollState struct {
	Task      *PollTask
	Period    time.Duration
	Delay     time.Duration
	Cancelled bool
	Done      bool
	Runs      int
}

// New starts a manager. Zero option values fall back to DefaultOptions.
func New(logger zerolog.Logger, opts Options) *Manager {
	def := DefaultOptions()
	if opts.SchedulerWorkers <= 0 {
		opts.SchedulerWorkers = def.SchedulerWorkers
	}
	if opts.CallbackWorkers <= 0 {
		opts.CallbackWorkers = def.CallbackWorkers
	}
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = def.MonitorInterval
	}
	if opts.QueueWarnThreshold <= 0 {
		opts.QueueWarnThreshold = def.QueueWarnThreshold
	}

	logger = logger.With().Str("component", "modbus-manager").Logger()

	var fopts []transport.Option
	if opts.Dialer != nil {
		fopts = append(fopts, transport.WithDialer(opts.Dialer))
	}
	factory := transport.NewFactory(logger, fopts...)

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:  logger,
		opts:    opts,
		factory: factory,
		timings: NewTimings(),
		ctx:     ctx,
		cancel:  cancel,
		polls:   make(map[*PollTask]*registration),
	}
	m.pool = pool.New[endpoint.Endpoint, *transport.Conn](factory, pool.Options{
		OnSwallowedError: func(err error) {
			m.logger.Warn().Err(err).Msg("pool error")
		},
	})
	m.sched = newScheduler(ctx, opts.SchedulerWorkers, logger)
	m.callbacks = newCallbackExecutor(opts.CallbackWorkers, logger)
	m.monitor = newMonitor(m, opts.MonitorInterval, opts.QueueWarnThreshold, logger)

	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		m.monitor.run(ctx)
	}()

	logger.Debug().
		Int("scheduler_workers", opts.SchedulerWorkers).
		Int("callback_workers", opts.CallbackWorkers).
		Msg("manager started")
	return m
}

// Close cancels every poll, waits for running operations and closes idle connections.
// Queued callbacks are dropped.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for task, reg := range m.polls {
		reg.handle.Cancel()
		delete(m.polls, task)
	}
	m.mu.Unlock()

	m.cancel()
	m.sched.wait()
	m.callbacks.Close()
	m.pool.Close()
	m.bg.Wait()

	m.logger.Debug().Msg("manager stopped")
}

// ---- one-off operations ----

// SubmitRead schedules a single read.
func (m *Manager) SubmitRead(task *PollTask) (*Handle, error) {
	if task == nil {
		return nil, ErrNilTask
	}
	if err := validateTask(task.Endpoint, task.Request, task.MaxTries); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrNotActive
	}
	op := readOp{task}
	return m.sched.once(func(ctx context.Context) { m.execute(ctx, op, nil) }), nil
}

// SubmitWrite schedules a single write.
func (m *Manager) SubmitWrite(task *WriteTask) (*Handle, error) {
	if task == nil {
		return nil, ErrNilTask
	}
	if err := validateTask(task.Endpoint, task.Request, task.MaxTries); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrNotActive
	}
	op := writeOp{task}
	return m.sched.once(func(ctx context.Context) { m.execute(ctx, op, nil) }), nil
}

func validateTask(ep endpoint.Endpoint, bp transaction.Blueprint, maxTries int) error {
	if maxTries <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxTries, maxTries)
	}
	if err := ep.Validate(); err != nil {
		return err
	}
	if _, err := transaction.BuildRequest(bp); err != nil {
		return err
	}
	return nil
}

// ---- regular polls ----

// RegisterPoll runs task every period, starting after initialDelay.
// Registering an already registered task replaces its schedule.
func (m *Manager) RegisterPoll(task *PollTask, period, initialDelay time.Duration) error {
	if task == nil {
		return ErrNilTask
	}
	if err := validateTask(task.Endpoint, task.Request, task.MaxTries); err != nil {
		return err
	}
	if period <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidPeriod, period)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotActive
	}

	if old, ok := m.polls[task]; ok {
		m.logger.Debug().Str("task", task.String()).Msg("poll task already registered, replacing")
		m.unregisterLocked(old)
	}

	reg := &registration{task: task, period: period}
	op := readOp{task}
	reg.handle = m.sched.fixedDelay(initialDelay, period, func(ctx context.Context) {
		m.execute(ctx, op, reg)
	})
	m.polls[task] = reg

	m.logger.Debug().
		Str("task", task.String()).
		Dur("period", period).
		Dur("initial_delay", initialDelay).
		Msg("poll task registered")
	return nil
}

// UnregisterPoll stops task. It returns false if the task was not registered.
// A run in progress stops without delivering callbacks.
func (m *Manager) UnregisterPoll(task *PollTask) bool {
	if task == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.polls[task]
	if !ok {
		m.logger.Warn().Str("task", task.String()).Msg("poll task not registered, nothing to unregister")
		return false
	}
	m.unregisterLocked(reg)
	m.logger.Debug().Str("task", task.String()).Msg("poll task unregistered")
	return true
}

func (m *Manager) unregisterLocked(reg *registration) {
	ep := reg.task.Endpoint
	delete(m.polls, reg.task)

	m.factory.DisconnectOnReturn(ep, time.Now())
	reg.handle.Cancel()
	m.pool.Clear(ep)
}

func (m *Manager) isCurrent(reg *registration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls[reg.task] == reg
}

// RegisteredPolls returns a snapshot of the registered tasks.
func (m *Manager) RegisteredPolls() []*PollTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*PollTask, 0, len(m.polls))
	for t := range m.polls {
		out = append(out, t)
	}
	return out
}

func (m *Manager) pollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.polls)
}

func (m *Manager) pollStates() []PollState {
	m.mu.Lock()
	regs := make([]*registration, 0, len(m.polls))
	for _, r := range m.polls {
		regs = append(regs, r)
	}
	m.mu.Unlock()

	out := make([]PollState, 0, len(regs))
	for _, r := range regs {
		done := false
		select {
		case <-r.handle.Done():
			done = true
		default:
		}
		out = append(out, PollState{
			Task:      r.task,
			Period:    r.period,
			Delay:     r.handle.Delay(),
			Cancelled: r.handle.Cancelled(),
			Done:      done,
			Runs:      r.handle.Runs(),
		})
	}
	return out
}

// ---- pool configuration ----

// SetPoolConfig overrides the pool configuration of ep. Nil restores the default for its kind.
func (m *Manager) SetPoolConfig(ep endpoint.Endpoint, cfg *endpoint.PoolConfig) {
	m.factory.SetPoolConfig(ep, cfg)

	m.lmu.RLock()
	ls := append([]Listener(nil), m.listeners...)
	m.lmu.RUnlock()

	for _, l := range ls {
		l.OnEndpointPoolConfigurationSet(ep, cfg)
	}
}

// PoolConfig returns the effective pool configuration of ep.
func (m *Manager) PoolConfig(ep endpoint.Endpoint) endpoint.PoolConfig {
	return m.factory.PoolConfig(ep)
}

func (m *Manager) AddListener(l Listener) {
	m.lmu.Lock()
	m.listeners = append(m.listeners, l)
	m.lmu.Unlock()
}

// RemoveListener removes l, compared by identity.
func (m *Manager) RemoveListener(l Listener) {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	for i, x := range m.listeners {
		if x == l {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

// TimingStats returns aggregated operation timings.
func (m *Manager) TimingStats() TimingStats { return m.timings.Snapshot() }

// CallbackQueueDepth returns the number of callbacks waiting for a worker.
func (m *Manager) CallbackQueueDepth() int { return m.callbacks.Depth() }

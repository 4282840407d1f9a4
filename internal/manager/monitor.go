// internal/manager/monitor.go
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// monitor periodically logs scheduler and callback queue state.
// It also runs opportunistically at the start of each operation, rate-limited to one report per interval.
type monitor struct {
	m         *Manager
	interval  time.Duration
	threshold int
	logger    zerolog.Logger

	mu         sync.Mutex
	lastReport time.Time
}

func newMonitor(m *Manager, interval time.Duration, threshold int, logger zerolog.Logger) *monitor {
	return &monitor{
		m:         m,
		interval:  interval,
		threshold: threshold,
		logger:    logger.With().Str("component", "queue-monitor").Logger(),
	}
}

func (mon *monitor) run(ctx context.Context) {
	if mon.interval <= 0 {
		return
	}
	ticker := time.NewTicker(mon.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			mon.report(now)
		}
	}
}

// report logs the current state unless a report was made within the last interval.
func (mon *monitor) report(now time.Time) {
	mon.mu.Lock()
	if !mon.lastReport.IsZero() && now.Sub(mon.lastReport) < mon.interval {
		mon.mu.Unlock()
		return
	}
	mon.lastReport = now
	mon.mu.Unlock()

	if mon.logger.GetLevel() <= zerolog.TraceLevel {
		for _, p := range mon.m.pollStates() {
			mon.logger.Trace().
				Str("endpoint", p.Task.Endpoint.String()).
				Str("request", p.Task.Request.String()).
				Dur("delay", p.Delay).
				Bool("cancelled", p.Cancelled).
				Bool("done", p.Done).
				Int("runs", p.Runs).
				Msg("poll task")
		}
	}

	depth := mon.m.callbacks.Depth()
	ts := mon.m.timings.Snapshot()

	mon.logger.Debug().
		Int("polls", mon.m.pollCount()).
		Int("scheduler_busy", mon.m.sched.InUse()).
		Int("callback_queue", depth).
		Int("callback_active", mon.m.callbacks.Active()).
		Int64("operations", ts.Operations).
		Int("in_flight", ts.InFlight).
		Dur("avg_total", ts.Total).
		Dur("avg_connection", ts.Connection).
		Dur("avg_transaction", ts.Transaction).
		Dur("avg_callback", ts.Callback).
		Msg("queue state")

	if mon.threshold > 0 && depth >= mon.threshold {
		mon.logger.Warn().
			Int("callback_queue", depth).
			Int("threshold", mon.threshold).
			Msg("callback queue is growing, callbacks may be too slow")
	}
}

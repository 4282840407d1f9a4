// internal/manager/executor.go
package manager

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-transport/internal/transaction"
	"github.com/tamzrod/modbus-transport/internal/transport"
)

// execute runs one operation with retries.
// reg is non-nil for registered polls; a run whose registration was replaced or removed aborts silently.
//
// At most one error callback is delivered per execution:
// either ConnectionUnavailable when a borrow fails, or the last error once tries are exhausted.
func (m *Manager) execute(ctx context.Context, op operation, reg *registration) {
	m.monitor.report(time.Now())

	timer := m.timings.Start(newOperationID())
	defer timer.Finish()

	ep := op.endpoint()
	log := m.logger.With().
		Str("op", timer.ID).
		Str("endpoint", ep.String()).
		Logger()

	req, err := transaction.BuildRequest(op.blueprint())
	if err != nil {
		// validated on submit; only reachable if the task was mutated afterwards
		log.Error().Err(err).Str("task", op.String()).Msg("invalid request")
		m.dispatch(timer, op.failure(err))
		return
	}

	timer.Phase(PhaseConnection).Start()
	conn, ok := m.borrow(ctx, op, timer, log)
	timer.Phase(PhaseConnection).Suspend()
	if !ok {
		return
	}
	defer func() {
		if conn != nil {
			m.giveBack(conn, log)
		}
	}()

	cfg := m.factory.PoolConfig(ep)
	maxTries := op.maxTries()

	var (
		lastErr error
		lastTry time.Time
	)
	for try := 0; try < maxTries; {
		if reg != nil && !m.isCurrent(reg) {
			log.Debug().Str("task", op.String()).Msg("poll task unregistered, aborting")
			return
		}
		if ctx.Err() != nil {
			log.Debug().Str("task", op.String()).Msg("operation cancelled, aborting")
			return
		}
		if conn == nil {
			log.Warn().Str("task", op.String()).Msg("no connection, aborting")
			return
		}

		if _, err := transport.WaitAtLeast(ctx, lastTry, cfg.InterTransactionDelay); err != nil {
			log.Debug().Str("task", op.String()).Msg("cancelled while waiting between tries")
			m.discard(conn, log)
			conn = nil
			return
		}

		try++
		willRetry := try < maxTries

		timer.Phase(PhaseTransaction).Start()
		deliver, err := op.try(conn, req)
		timer.Phase(PhaseTransaction).Suspend()
		lastTry = time.Now()

		if err == nil {
			lastErr = nil
			log.Trace().Int("try", try).Str("task", op.String()).Msg("transaction ok")
			m.dispatch(timer, deliver)
			break
		}

		kind := transaction.Classify(err)
		lastErr = &transaction.Error{Kind: kind, Endpoint: ep.String(), Err: err}

		ev := log.Error()
		if willRetry {
			ev = log.Warn()
		}
		ev.Err(err).
			Str("kind", kind.String()).
			Int("try", try).
			Int("max_tries", maxTries).
			Bool("will_retry", willRetry).
			Uint64("conn", conn.ID()).
			Str("task", op.String()).
			Msg("transaction failed")

		if kind.ResetsConnection() {
			m.discard(conn, log)
			conn = nil
			if willRetry {
				timer.Phase(PhaseConnection).Start()
				conn, ok = m.borrow(ctx, op, timer, log)
				timer.Phase(PhaseConnection).Suspend()
				if !ok {
					return
				}
			}
		}
	}

	if lastErr != nil {
		m.dispatch(timer, op.failure(lastErr))
	}
}

// borrow returns a connected session for the operation's endpoint.
// On failure it delivers a ConnectionUnavailable error, unless the operation was cancelled.
func (m *Manager) borrow(ctx context.Context, op operation, timer *OperationTimer, log zerolog.Logger) (*transport.Conn, bool) {
	ep := op.endpoint()

	conn, err := m.pool.Borrow(ctx, ep)
	if err == nil && !conn.IsConnected() {
		m.giveBack(conn, log)
		err = transport.ErrNotConnected
	}
	if err == nil {
		return conn, true
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		log.Debug().Err(err).Str("task", op.String()).Msg("borrow interrupted")
		return nil, false
	}

	log.Warn().Err(err).Str("task", op.String()).Msg("could not connect, aborting request")
	m.dispatch(timer, op.failure(&transaction.Error{
		Kind:     transaction.KindConnectionUnavailable,
		Endpoint: ep.String(),
		Err:      err,
	}))
	return nil, false
}

func (m *Manager) giveBack(conn *transport.Conn, log zerolog.Logger) {
	if err := m.pool.Return(conn.Endpoint(), conn); err != nil {
		log.Warn().Err(err).Uint64("conn", conn.ID()).Msg("return connection failed")
	}
}

func (m *Manager) discard(conn *transport.Conn, log zerolog.Logger) {
	conn.MarkBroken()
	if err := m.pool.Invalidate(conn.Endpoint(), conn); err != nil {
		log.Warn().Err(err).Uint64("conn", conn.ID()).Msg("invalidate connection failed")
	}
}

// dispatch hands a delivery to the callback workers. The callback is timed as part of the operation.
func (m *Manager) dispatch(timer *OperationTimer, fn func()) {
	if fn == nil {
		return
	}
	timer.hold()
	ok := m.callbacks.Submit(func() {
		sw := timer.Phase(PhaseCallback)
		sw.Start()
		defer func() {
			sw.Suspend()
			timer.release()
		}()
		fn()
	})
	if !ok {
		timer.release()
	}
}

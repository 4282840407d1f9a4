// internal/transport/factory.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/tamzrod/modbus-transport/internal/endpoint"
)

// ErrNotConnected is returned when a connection could not be established within its budget.
var ErrNotConnected = errors.New("transport: not connected")

// Factory creates, activates and retires connections per endpoint.
// It implements pool.Factory[endpoint.Endpoint, *Conn].
type Factory struct {
	logger zerolog.Logger
	dial   DialFunc

	mu               sync.Mutex
	configs          map[endpoint.Endpoint]endpoint.PoolConfig
	lastActivate     map[endpoint.Endpoint]time.Time
	lastPassivate    map[endpoint.Endpoint]time.Time
	lastConnect      map[endpoint.Endpoint]time.Time
	disconnectBefore map[endpoint.Endpoint]time.Time
	breakers         map[endpoint.Endpoint]*gobreaker.CircuitBreaker
}

type Option func(*Factory)

// WithDialer replaces the goburrow-backed dialer.
func WithDialer(d DialFunc) Option {
	return func(f *Factory) { f.dial = d }
}

func NewFactory(logger zerolog.Logger, opts ...Option) *Factory {
	f := &Factory{
		logger:           logger.With().Str("component", "connection-factory").Logger(),
		dial:             Dial,
		configs:          make(map[endpoint.Endpoint]endpoint.PoolConfig),
		lastActivate:     make(map[endpoint.Endpoint]time.Time),
		lastPassivate:    make(map[endpoint.Endpoint]time.Time),
		lastConnect:      make(map[endpoint.Endpoint]time.Time),
		disconnectBefore: make(map[endpoint.Endpoint]time.Time),
		breakers:         make(map[endpoint.Endpoint]*gobreaker.CircuitBreaker),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// ---- configuration ----

// SetPoolConfig overrides the configuration of ep. Nil restores the kind default.
func (f *Factory) SetPoolConfig(ep endpoint.Endpoint, cfg *endpoint.PoolConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.breakers, ep)
	if cfg == nil {
		delete(f.configs, ep)
		return
	}
	f.configs[ep] = *cfg
}

// PoolConfig returns the effective configuration: explicit override, else kind default.
func (f *Factory) PoolConfig(ep endpoint.Endpoint) endpoint.PoolConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.poolConfigLocked(ep)
}

func (f *Factory) poolConfigLocked(ep endpoint.Endpoint) endpoint.PoolConfig {
	if c, ok := f.configs[ep]; ok {
		return c
	}
	return endpoint.DefaultPoolConfig(ep.Kind)
}

// DisconnectOnReturn closes, on their next return, connections of ep opened before t.
func (f *Factory) DisconnectOnReturn(ep endpoint.Endpoint, t time.Time) {
	f.mu.Lock()
	f.disconnectBefore[ep] = t
	f.mu.Unlock()
}

// ---- pool.Factory ----

// Create builds a connection and connects it within the endpoint's connect budget.
func (f *Factory) Create(ctx context.Context, ep endpoint.Endpoint) (*Conn, error) {
	c, err := f.dial(ep)
	if err != nil {
		return nil, err
	}
	if err := f.connect(ctx, ep, c); err != nil {
		_ = c.Close()
		return nil, err
	}
	f.logger.Debug().Str("endpoint", ep.String()).Uint64("conn", c.ID()).Msg("connection created")
	return c, nil
}

// Activate enforces the inter-transaction delay and reconnects idle sessions that were closed on return.
func (f *Factory) Activate(ctx context.Context, ep endpoint.Endpoint, c *Conn) error {
	f.mu.Lock()
	cfg := f.poolConfigLocked(ep)
	last := latest(f.lastActivate[ep], f.lastPassivate[ep])
	f.mu.Unlock()

	slept, err := WaitAtLeast(ctx, last, cfg.InterTransactionDelay)
	if err != nil {
		return err
	}
	if slept > 0 {
		f.logger.Trace().Str("endpoint", ep.String()).Dur("slept", slept).Msg("waited before activation")
	}

	if err := f.connect(ctx, ep, c); err != nil {
		return err
	}

	f.mu.Lock()
	f.lastActivate[ep] = time.Now()
	f.mu.Unlock()
	return nil
}

// Validate reports whether a returned connection may be kept idle.
func (f *Factory) Validate(_ endpoint.Endpoint, c *Conn) bool {
	return c != nil && c.IsConnected()
}

// Passivate disconnects a returned connection according to ReconnectAfter
// and any pending DisconnectOnReturn request.
func (f *Factory) Passivate(ep endpoint.Endpoint, c *Conn) error {
	now := time.Now()

	f.mu.Lock()
	cfg := f.poolConfigLocked(ep)
	before := f.disconnectBefore[ep]
	f.lastPassivate[ep] = now
	f.mu.Unlock()

	if !c.IsConnected() {
		return nil
	}

	connectedAt := c.ConnectedAt()
	forced := !before.IsZero() && connectedAt.Before(before)
	if !forced && !cfg.ShouldDisconnect(connectedAt, now) {
		return nil
	}

	f.logger.Trace().
		Str("endpoint", ep.String()).
		Uint64("conn", c.ID()).
		Bool("forced", forced).
		Msg("disconnecting on return")
	return c.Close()
}

func (f *Factory) Destroy(ep endpoint.Endpoint, c *Conn) error {
	f.logger.Trace().Str("endpoint", ep.String()).Uint64("conn", c.ID()).Msg("destroying connection")
	return c.Close()
}

// ---- connect ----

func (f *Factory) connect(ctx context.Context, ep endpoint.Endpoint, c *Conn) error {
	if c.IsConnected() {
		return nil
	}

	f.mu.Lock()
	cfg := f.poolConfigLocked(ep)
	cb := f.breakerLocked(ep, cfg)
	f.mu.Unlock()

	tries := cfg.ConnectMaxTries
	if tries < 1 {
		tries = 1
	}

	var lastErr error
	for try := 1; try <= tries; try++ {
		f.mu.Lock()
		last := f.lastConnect[ep]
		f.mu.Unlock()

		if _, err := WaitAtLeast(ctx, last, cfg.InterConnectDelay); err != nil {
			return err
		}

		err := f.connectOnce(c, cfg, cb)

		f.mu.Lock()
		f.lastConnect[ep] = time.Now()
		f.mu.Unlock()

		if err == nil {
			return nil
		}
		lastErr = err

		f.logger.Warn().
			Err(err).
			Str("endpoint", ep.String()).
			Int("try", try).
			Int("max_tries", tries).
			Msg("connect failed")

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
	}

	return fmt.Errorf("%w: %s: %v", ErrNotConnected, ep, lastErr)
}

func (f *Factory) connectOnce(c *Conn, cfg endpoint.PoolConfig, cb *gobreaker.CircuitBreaker) error {
	if cb == nil {
		return c.Connect(cfg.ConnectTimeout)
	}
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, c.Connect(cfg.ConnectTimeout)
	})
	return err
}

func (f *Factory) breakerLocked(ep endpoint.Endpoint, cfg endpoint.PoolConfig) *gobreaker.CircuitBreaker {
	if cfg.Breaker == nil {
		return nil
	}
	if cb, ok := f.breakers[ep]; ok {
		return cb
	}

	bc := *cfg.Breaker
	if bc.MaxFailures == 0 {
		bc.MaxFailures = 5
	}
	if bc.HalfOpenRequests == 0 {
		bc.HalfOpenRequests = 1
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        ep.String(),
		MaxRequests: bc.HalfOpenRequests,
		Timeout:     bc.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Info().
				Str("endpoint", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("connect breaker state changed")
		},
	})
	f.breakers[ep] = cb
	return cb
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

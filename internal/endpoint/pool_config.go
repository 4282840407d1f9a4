// internal/endpoint/pool_config.go
package endpoint

import "time"

// NeverReconnect disables forced disconnects between borrows.
const NeverReconnect time.Duration = -1

// PoolConfig holds the per-endpoint connection tunables.
type PoolConfig struct {
	// Minimum gap between two transactions on the endpoint.
	InterTransactionDelay time.Duration

	// Gap between connect attempts.
	InterConnectDelay time.Duration

	ConnectMaxTries int
	ConnectTimeout  time.Duration

	// ReconnectAfter: NeverReconnect keeps the session open,
	// 0 disconnects on every return, >0 disconnects once the session is older.
	ReconnectAfter time.Duration

	// Breaker guards connection establishment. Nil disables it.
	Breaker *BreakerConfig
}

// BreakerConfig maps onto gobreaker settings.
type BreakerConfig struct {
	// Consecutive connect failures that open the breaker.
	MaxFailures uint32

	// Time spent open before probing again.
	OpenTimeout time.Duration

	// Probes allowed while half-open.
	HalfOpenRequests uint32
}

// defaultConnectMaxTries follows the usual Modbus master library default.
const defaultConnectMaxTries = 3

var defaults = map[Kind]PoolConfig{
	KindTCP: {
		InterTransactionDelay: 60 * time.Millisecond,
		ConnectMaxTries:       defaultConnectMaxTries,
		ConnectTimeout:        10 * time.Second,
		ReconnectAfter:        0,
	},
	KindUDP: {
		InterTransactionDelay: 60 * time.Millisecond,
		ConnectMaxTries:       defaultConnectMaxTries,
		ConnectTimeout:        10 * time.Second,
		ReconnectAfter:        0,
	},
	KindSerial: {
		InterTransactionDelay: 35 * time.Millisecond,
		ConnectMaxTries:       defaultConnectMaxTries,
		ConnectTimeout:        10 * time.Second,
		ReconnectAfter:        NeverReconnect,
	},
}

// DefaultPoolConfig returns the configuration used when none is set for an endpoint of kind k.
func DefaultPoolConfig(k Kind) PoolConfig {
	if c, ok := defaults[k]; ok {
		return c
	}
	return defaults[KindTCP]
}

// ShouldDisconnect reports whether a session connected at connectedAt
// must be closed when it is returned at now.
func (c PoolConfig) ShouldDisconnect(connectedAt, now time.Time) bool {
	switch {
	case c.ReconnectAfter < 0:
		return false
	case c.ReconnectAfter == 0:
		return true
	default:
		return now.Sub(connectedAt) > c.ReconnectAfter
	}
}

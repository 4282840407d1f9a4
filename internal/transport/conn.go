// internal/transport/conn.go
package transport

import (
	"sync/atomic"
	"time"

	"github.com/goburrow/modbus"

	"github.com/tamzrod/modbus-transport/internal/endpoint"
)

var connSeq atomic.Uint64

// Link is the transport-specific half of a connection.
type Link struct {
	Client  modbus.Client
	Connect func(timeout time.Duration) error
	Close   func() error

	// SetUnit selects the unit id used by the next request.
	SetUnit func(unitID uint8)
}

// Conn is one transport session bound to an endpoint.
// It is owned by a single borrower at a time and is not safe for concurrent requests.
type Conn struct {
	id   uint64
	ep   endpoint.Endpoint
	link Link

	connected   atomic.Bool
	connectedAt atomic.Int64
}

// NewConn wraps a link into a pooled connection. The connection starts disconnected.
func NewConn(ep endpoint.Endpoint, l Link) *Conn {
	return &Conn{
		id:   connSeq.Add(1),
		ep:   ep,
		link: l,
	}
}

func (c *Conn) ID() uint64                  { return c.id }
func (c *Conn) Endpoint() endpoint.Endpoint { return c.ep }
func (c *Conn) IsConnected() bool           { return c.connected.Load() }

// ConnectedAt returns the time of the last successful connect.
func (c *Conn) ConnectedAt() time.Time {
	ns := c.connectedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Connect opens the session if it is not open yet.
func (c *Conn) Connect(timeout time.Duration) error {
	if c.connected.Load() {
		return nil
	}
	if c.link.Connect != nil {
		if err := c.link.Connect(timeout); err != nil {
			return err
		}
	}
	c.connectedAt.Store(time.Now().UnixNano())
	c.connected.Store(true)
	return nil
}

// Close closes the session. Closing a closed connection is a no-op.
func (c *Conn) Close() error {
	if !c.connected.Swap(false) {
		return nil
	}
	if c.link.Close == nil {
		return nil
	}
	return c.link.Close()
}

// MarkBroken flags the session as unusable after a transport failure.
func (c *Conn) MarkBroken() {
	_ = c.Close()
}

// Client implements transaction.Session.
func (c *Conn) Client(unitID uint8) modbus.Client {
	if c.link.SetUnit != nil {
		c.link.SetUnit(unitID)
	}
	return c.link.Client
}

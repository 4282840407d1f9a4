// internal/transport/udp.go
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	mbapHeaderSize = 7
	maxADUSize     = 260
)

var errUDPNotConnected = errors.New("modbus udp: not connected")

// udpTransporter sends MBAP-framed requests as single datagrams.
type udpTransporter struct {
	address string
	timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

func (t *udpTransporter) Connect(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.Dial("udp", t.address)
	if err != nil {
		return err
	}
	t.conn = conn
	return nil
}

func (t *udpTransporter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// Send implements modbus.Transporter.
func (t *udpTransporter) Send(aduRequest []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil, errUDPNotConnected
	}

	var deadline time.Time
	if t.timeout > 0 {
		deadline = time.Now().Add(t.timeout)
	}
	if err := t.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	if _, err := t.conn.Write(aduRequest); err != nil {
		return nil, err
	}

	buf := make([]byte, maxADUSize)
	n, err := t.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	if n < mbapHeaderSize+1 {
		return nil, fmt.Errorf("modbus udp: short datagram (%d bytes)", n)
	}

	// length counts the unit id and the pdu
	length := int(binary.BigEndian.Uint16(buf[4:]))
	if length == 0 || mbapHeaderSize-1+length != n {
		return nil, fmt.Errorf("modbus udp: length in header %d does not match datagram size %d", length, n)
	}
	return buf[:n], nil
}

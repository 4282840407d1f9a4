// internal/transport/dial.go
package transport

import (
	"fmt"
	"time"

	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"

	"github.com/tamzrod/modbus-transport/internal/endpoint"
)

const defaultUDPTimeout = 10 * time.Second

// DialFunc builds an unconnected connection for an endpoint.
type DialFunc func(ep endpoint.Endpoint) (*Conn, error)

// Dial is the default DialFunc backed by goburrow handlers.
func Dial(ep endpoint.Endpoint) (*Conn, error) {
	switch ep.Kind {
	case endpoint.KindTCP:
		return newTCPConn(ep), nil
	case endpoint.KindUDP:
		return newUDPConn(ep), nil
	case endpoint.KindSerial:
		return newSerialConn(ep), nil
	default:
		return nil, fmt.Errorf("transport: unsupported endpoint kind %s", ep.Kind)
	}
}

func newTCPConn(ep endpoint.Endpoint) *Conn {
	h := modbus.NewTCPClientHandler(ep.HostPort())
	// The pool owns the session lifetime.
	h.IdleTimeout = 0
	if ep.ReceiveTimeout > 0 {
		h.Timeout = ep.ReceiveTimeout
	}

	return NewConn(ep, Link{
		Client: modbus.NewClient2(verifyingPackager{Packager: h}, h),
		Connect: func(timeout time.Duration) error {
			recv := h.Timeout
			if timeout > 0 {
				h.Timeout = timeout
			}
			err := h.Connect()
			h.Timeout = recv
			return err
		},
		Close:   h.Close,
		SetUnit: func(u uint8) { h.SlaveId = u },
	})
}

func newUDPConn(ep endpoint.Endpoint) *Conn {
	// MBAP framing is shared with TCP; only the packager half of the handler is used.
	pk := modbus.NewTCPClientHandler(ep.HostPort())

	tr := &udpTransporter{address: ep.HostPort(), timeout: defaultUDPTimeout}
	if ep.ReceiveTimeout > 0 {
		tr.timeout = ep.ReceiveTimeout
	}

	return NewConn(ep, Link{
		Client:  modbus.NewClient2(verifyingPackager{Packager: pk}, tr),
		Connect: tr.Connect,
		Close:   tr.Close,
		SetUnit: func(u uint8) { pk.SlaveId = u },
	})
}

func serialConfig(ep endpoint.Endpoint, timeout time.Duration) serial.Config {
	cfg := serial.Config{
		Address:  ep.Address,
		BaudRate: ep.BaudRate,
		DataBits: ep.DataBits,
		StopBits: ep.StopBits,
		Parity:   ep.Parity,
		Timeout:  timeout,
	}
	if ep.ReceiveTimeout > 0 {
		cfg.Timeout = ep.ReceiveTimeout
	}
	if ep.RS485 {
		cfg.RS485 = serial.RS485Config{
			Enabled:           true,
			RtsHighDuringSend: true,
		}
	}
	return cfg
}

func newSerialConn(ep endpoint.Endpoint) *Conn {
	if ep.Encoding == endpoint.EncodingASCII {
		h := modbus.NewASCIIClientHandler(ep.Address)
		h.Config = serialConfig(ep, h.Timeout)
		h.IdleTimeout = 0

		return NewConn(ep, Link{
			Client:  modbus.NewClient2(verifyingPackager{Packager: h, headless: true}, h),
			Connect: func(time.Duration) error { return h.Connect() },
			Close:   h.Close,
			SetUnit: func(u uint8) { h.SlaveId = u },
		})
	}

	h := modbus.NewRTUClientHandler(ep.Address)
	h.Config = serialConfig(ep, h.Timeout)
	h.IdleTimeout = 0

	return NewConn(ep, Link{
		Client:  modbus.NewClient2(verifyingPackager{Packager: h, headless: true}, h),
		Connect: func(time.Duration) error { return h.Connect() },
		Close:   h.Close,
		SetUnit: func(u uint8) { h.SlaveId = u },
	})
}

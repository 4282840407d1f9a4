// internal/endpoint/endpoint.go
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Kind is the transport used to reach a slave.
type Kind uint8

const (
	KindTCP Kind = iota + 1
	KindUDP
	KindSerial
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindUDP:
		return "udp"
	case KindSerial:
		return "serial"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Serial line encodings.
const (
	EncodingRTU   = "rtu"
	EncodingASCII = "ascii"
)

// DefaultPort is the registered Modbus port.
const DefaultPort = 502

// Endpoint identifies one slave device.
// It is a plain value: equal endpoints compare equal and may be used as map keys.
type Endpoint struct {
	Kind Kind

	// TCP/UDP: host. Serial: device path.
	Address string
	Port    int

	// Serial line parameters (zero for TCP/UDP).
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
	Encoding string
	RS485    bool

	// ReceiveTimeout bounds a single request/response exchange.
	// Zero means the transport library default.
	ReceiveTimeout time.Duration
}

// SerialParams are the line parameters of a serial endpoint.
type SerialParams struct {
	Port           string
	BaudRate       int
	DataBits       int
	StopBits       int
	Parity         string
	Encoding       string
	RS485          bool
	ReceiveTimeout time.Duration
}

func NewTCP(host string, port int) Endpoint {
	return Endpoint{Kind: KindTCP, Address: host, Port: port}
}

func NewUDP(host string, port int) Endpoint {
	return Endpoint{Kind: KindUDP, Address: host, Port: port}
}

// NewSerial builds a serial endpoint, filling unset line parameters with 19200 8E1 RTU.
func NewSerial(p SerialParams) Endpoint {
	ep := Endpoint{
		Kind:           KindSerial,
		Address:        p.Port,
		BaudRate:       p.BaudRate,
		DataBits:       p.DataBits,
		StopBits:       p.StopBits,
		Parity:         strings.ToUpper(p.Parity),
		Encoding:       strings.ToLower(p.Encoding),
		RS485:          p.RS485,
		ReceiveTimeout: p.ReceiveTimeout,
	}
	if ep.BaudRate == 0 {
		ep.BaudRate = 19200
	}
	if ep.DataBits == 0 {
		ep.DataBits = 8
	}
	if ep.StopBits == 0 {
		ep.StopBits = 1
	}
	if ep.Parity == "" {
		ep.Parity = "E"
	}
	if ep.Encoding == "" {
		ep.Encoding = EncodingRTU
	}
	return ep
}

// HostPort returns host:port for network endpoints.
func (e Endpoint) HostPort() string {
	return net.JoinHostPort(e.Address, strconv.Itoa(e.Port))
}

// Headless reports whether the transport carries no transaction id.
func (e Endpoint) Headless() bool {
	return e.Kind == KindSerial
}

// String renders the URL form read by Parse. Distinct endpoints render differently.
func (e Endpoint) String() string {
	var b strings.Builder
	switch e.Kind {
	case KindTCP, KindUDP:
		b.WriteString(e.Kind.String() + "://" + e.HostPort())
		if e.ReceiveTimeout > 0 {
			fmt.Fprintf(&b, "?timeout_ms=%d", e.ReceiveTimeout.Milliseconds())
		}
	case KindSerial:
		fmt.Fprintf(&b, "serial://%s?baud=%d&databits=%d&parity=%s&stopbits=%d&encoding=%s",
			e.Address, e.BaudRate, e.DataBits, e.Parity, e.StopBits, e.Encoding)
		if e.RS485 {
			b.WriteString("&rs485=true")
		}
		if e.ReceiveTimeout > 0 {
			fmt.Fprintf(&b, "&timeout_ms=%d", e.ReceiveTimeout.Milliseconds())
		}
	default:
		return "invalid endpoint"
	}
	return b.String()
}

// Validate checks that the endpoint is usable.
func (e Endpoint) Validate() error {
	switch e.Kind {
	case KindTCP, KindUDP:
		if e.Address == "" {
			return errors.New("endpoint: host required")
		}
		if e.Port <= 0 || e.Port > 65535 {
			return fmt.Errorf("endpoint: port %d out of range", e.Port)
		}
	case KindSerial:
		if e.Address == "" {
			return errors.New("endpoint: serial port required")
		}
		switch e.Parity {
		case "N", "E", "O":
		default:
			return fmt.Errorf("endpoint: invalid parity %q", e.Parity)
		}
		if e.DataBits < 5 || e.DataBits > 8 {
			return fmt.Errorf("endpoint: invalid data bits %d", e.DataBits)
		}
		if e.StopBits != 1 && e.StopBits != 2 {
			return fmt.Errorf("endpoint: invalid stop bits %d", e.StopBits)
		}
		if e.Encoding != EncodingRTU && e.Encoding != EncodingASCII {
			return fmt.Errorf("endpoint: invalid serial encoding %q", e.Encoding)
		}
	default:
		return fmt.Errorf("endpoint: unknown kind %d", e.Kind)
	}
	return nil
}

// Parse reads an endpoint from its URL form:
//
//	tcp://host:502
//	udp://host:502
//	serial:///dev/ttyUSB0?baud=9600&parity=N&encoding=rtu&rs485=true
//
// A bare host:port is treated as TCP.
func Parse(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Endpoint{}, errors.New("endpoint: empty")
	}
	if !strings.Contains(s, "://") {
		s = "tcp://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint %q: %w", s, err)
	}

	var ep Endpoint
	switch strings.ToLower(u.Scheme) {
	case "tcp", "udp":
		host := u.Hostname()
		port := DefaultPort
		if p := u.Port(); p != "" {
			port, err = strconv.Atoi(p)
			if err != nil {
				return Endpoint{}, fmt.Errorf("endpoint %q: bad port: %w", s, err)
			}
		}
		if u.Scheme == "udp" {
			ep = NewUDP(host, port)
		} else {
			ep = NewTCP(host, port)
		}

	case "serial":
		q := u.Query()
		p := SerialParams{
			Port:     u.Host + u.Path,
			Parity:   q.Get("parity"),
			Encoding: q.Get("encoding"),
		}
		for key, dst := range map[string]*int{
			"baud":     &p.BaudRate,
			"databits": &p.DataBits,
			"stopbits": &p.StopBits,
		} {
			if v := q.Get(key); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					return Endpoint{}, fmt.Errorf("endpoint %q: bad %s: %w", s, key, err)
				}
				*dst = n
			}
		}
		if v := q.Get("rs485"); v != "" {
			p.RS485, err = strconv.ParseBool(v)
			if err != nil {
				return Endpoint{}, fmt.Errorf("endpoint %q: bad rs485: %w", s, err)
			}
		}
		ep = NewSerial(p)

	default:
		return Endpoint{}, fmt.Errorf("endpoint %q: unsupported scheme %q", s, u.Scheme)
	}

	if v := u.Query().Get("timeout_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return Endpoint{}, fmt.Errorf("endpoint %q: bad timeout_ms: %w", s, err)
		}
		ep.ReceiveTimeout = time.Duration(ms) * time.Millisecond
	}

	if err := ep.Validate(); err != nil {
		return Endpoint{}, err
	}
	return ep, nil
}

// internal/transport/transport_test.go
package transport

import (
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/goburrow/modbus"

	"github.com/tamzrod/modbus-transport/internal/endpoint"
	"github.com/tamzrod/modbus-transport/internal/transaction"
)

// replyTransporter answers every request with a fixed holding-register response,
// optionally shifting the transaction id.
type replyTransporter struct {
	tidShift uint16
}

func (r *replyTransporter) Send(req []byte) ([]byte, error) {
	resp := make([]byte, 7+1+1+2)
	binary.BigEndian.PutUint16(resp[0:], binary.BigEndian.Uint16(req[0:])+r.tidShift)
	binary.BigEndian.PutUint16(resp[4:], 5)
	resp[6] = req[6]
	resp[7] = 0x03
	resp[8] = 2
	resp[9], resp[10] = 0x00, 0x2A
	return resp, nil
}

func TestVerifyingPackager_Mismatch(t *testing.T) {
	h := modbus.NewTCPClientHandler("unused:502")
	c := modbus.NewClient2(verifyingPackager{Packager: h}, &replyTransporter{tidShift: 1})

	_, err := c.ReadHoldingRegisters(0, 1)
	var mm *transaction.TransactionMismatchError
	if !errors.As(err, &mm) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if transaction.Classify(err) != transaction.KindTransactionMismatch {
		t.Fatalf("kind=%s", transaction.Classify(err))
	}
}

func TestVerifyingPackager_Match(t *testing.T) {
	h := modbus.NewTCPClientHandler("unused:502")
	c := modbus.NewClient2(verifyingPackager{Packager: h}, &replyTransporter{})

	data, err := c.ReadHoldingRegisters(0, 1)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(data) != 2 || data[1] != 0x2A {
		t.Fatalf("data=% x", data)
	}
}

func TestConn_UnitIDAndLifecycle(t *testing.T) {
	var unit uint8
	c := NewConn(testEP, Link{
		SetUnit: func(u uint8) { unit = u },
	})

	if c.IsConnected() {
		t.Fatalf("new connection must start disconnected")
	}
	if err := c.Connect(time.Second); err != nil {
		t.Fatalf("Connect err=%v", err)
	}
	if !c.IsConnected() || c.ConnectedAt().IsZero() {
		t.Fatalf("expected connected with timestamp")
	}

	c.Client(17)
	if unit != 17 {
		t.Fatalf("unit id not applied: %d", unit)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close err=%v", err)
	}
	if c.IsConnected() {
		t.Fatalf("expected disconnected")
	}

	other := NewConn(testEP, Link{})
	if other.ID() == c.ID() {
		t.Fatalf("connection ids must differ")
	}
}

func TestUDPConn_RoundTrip(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp unavailable: %v", err)
	}
	defer pc.Close()

	go func() {
		buf := make([]byte, 260)
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}
		resp, _ := (&replyTransporter{}).Send(buf[:n])
		_, _ = pc.WriteTo(resp, addr)
	}()

	port := pc.LocalAddr().(*net.UDPAddr).Port
	ep := endpoint.NewUDP("127.0.0.1", port)
	ep.ReceiveTimeout = 2 * time.Second

	c, err := Dial(ep)
	if err != nil {
		t.Fatalf("Dial err=%v", err)
	}
	if err := c.Connect(time.Second); err != nil {
		t.Fatalf("Connect err=%v", err)
	}
	defer c.Close()

	data, err := c.Client(1).ReadHoldingRegisters(0, 1)
	if err != nil {
		t.Fatalf("read err=%v", err)
	}
	if len(data) != 2 || data[1] != 0x2A {
		t.Fatalf("data=% x", data)
	}
}

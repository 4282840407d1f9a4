// internal/endpoint/endpoint_test.go
package endpoint

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Endpoint
		wantErr bool
	}{
		{name: "tcp", in: "tcp://10.0.0.5:1502", want: NewTCP("10.0.0.5", 1502)},
		{name: "bare host port", in: "10.0.0.5:502", want: NewTCP("10.0.0.5", 502)},
		{name: "default port", in: "tcp://plc", want: NewTCP("plc", DefaultPort)},
		{name: "udp", in: "udp://10.0.0.7:502", want: NewUDP("10.0.0.7", 502)},
		{
			name: "serial",
			in:   "serial:///dev/ttyUSB0?baud=9600&parity=n&encoding=ascii&rs485=true",
			want: NewSerial(SerialParams{
				Port: "/dev/ttyUSB0", BaudRate: 9600, Parity: "N", Encoding: EncodingASCII, RS485: true,
			}),
		},
		{
			name: "timeout",
			in:   "tcp://plc:502?timeout_ms=250",
			want: Endpoint{Kind: KindTCP, Address: "plc", Port: 502, ReceiveTimeout: 250 * time.Millisecond},
		},
		{name: "bad scheme", in: "http://plc:80", wantErr: true},
		{name: "bad port", in: "tcp://plc:70000", wantErr: true},
		{name: "bad parity", in: "serial:///dev/ttyS0?parity=X", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) err=%v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("Parse(%q)=%+v want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestEndpointIsMapKey(t *testing.T) {
	m := map[Endpoint]int{}
	m[NewTCP("a", 502)]++
	m[NewTCP("a", 502)]++
	m[NewUDP("a", 502)]++

	if len(m) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(m))
	}
	if m[NewTCP("a", 502)] != 2 {
		t.Fatalf("equal endpoints must share a key")
	}
}

func TestDefaultPoolConfig(t *testing.T) {
	if got := DefaultPoolConfig(KindTCP).InterTransactionDelay; got != 60*time.Millisecond {
		t.Fatalf("tcp delay=%v", got)
	}
	if got := DefaultPoolConfig(KindUDP).InterTransactionDelay; got != 60*time.Millisecond {
		t.Fatalf("udp delay=%v", got)
	}
	serial := DefaultPoolConfig(KindSerial)
	if serial.InterTransactionDelay != 35*time.Millisecond {
		t.Fatalf("serial delay=%v", serial.InterTransactionDelay)
	}
	if serial.ReconnectAfter != NeverReconnect {
		t.Fatalf("serial must never force disconnect, got %v", serial.ReconnectAfter)
	}
}

func TestShouldDisconnect(t *testing.T) {
	base := time.Unix(1000, 0)

	tests := []struct {
		name  string
		after time.Duration
		age   time.Duration
		want  bool
	}{
		{"never", NeverReconnect, time.Hour, false},
		{"every return", 0, 0, true},
		{"young", time.Minute, time.Second, false},
		{"old", time.Minute, 2 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := PoolConfig{ReconnectAfter: tt.after}
			if got := c.ShouldDisconnect(base, base.Add(tt.age)); got != tt.want {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}
}

func TestStringParseRoundTrip(t *testing.T) {
	tests := []Endpoint{
		NewTCP("10.0.0.5", 1502),
		NewUDP("plc", 502),
		{Kind: KindTCP, Address: "plc", Port: 502, ReceiveTimeout: 250 * time.Millisecond},
		NewSerial(SerialParams{Port: "/dev/ttyUSB0", BaudRate: 9600}),
		NewSerial(SerialParams{Port: "/dev/ttyUSB0", BaudRate: 9600, RS485: true}),
		NewSerial(SerialParams{Port: "/dev/ttyUSB0", BaudRate: 9600, ReceiveTimeout: time.Second}),
	}

	seen := map[string]Endpoint{}
	for _, ep := range tests {
		t.Run(ep.String(), func(t *testing.T) {
			got, err := Parse(ep.String())
			if err != nil {
				t.Fatalf("Parse(%q) err=%v", ep.String(), err)
			}
			if got != ep {
				t.Fatalf("round trip: got %+v want %+v", got, ep)
			}
		})
		if prev, ok := seen[ep.String()]; ok {
			t.Fatalf("%+v and %+v render identically", prev, ep)
		}
		seen[ep.String()] = ep
	}
}

// internal/transport/factory_test.go
package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-transport/internal/endpoint"
)

// ---- fake link ----

type fakeLink struct {
	mu        sync.Mutex
	connects  int
	closes    int
	failFirst int
}

func (l *fakeLink) dial(ep endpoint.Endpoint) (*Conn, error) {
	return NewConn(ep, Link{
		Connect: func(time.Duration) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.connects++
			if l.connects <= l.failFirst {
				return errors.New("connection refused")
			}
			return nil
		},
		Close: func() error {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.closes++
			return nil
		},
	}), nil
}

func (l *fakeLink) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connects, l.closes
}

func newTestFactory(l *fakeLink) *Factory {
	return NewFactory(zerolog.Nop(), WithDialer(l.dial))
}

var testEP = endpoint.NewTCP("127.0.0.1", 502)

// ---- tests ----

func TestFactory_PoolConfigOverrideAndReset(t *testing.T) {
	f := newTestFactory(&fakeLink{})

	def := f.PoolConfig(testEP)
	if def != endpoint.DefaultPoolConfig(endpoint.KindTCP) {
		t.Fatalf("expected tcp default, got %+v", def)
	}

	f.SetPoolConfig(testEP, &endpoint.PoolConfig{ConnectMaxTries: 5})
	if got := f.PoolConfig(testEP).ConnectMaxTries; got != 5 {
		t.Fatalf("override not applied: %d", got)
	}

	f.SetPoolConfig(testEP, nil)
	if f.PoolConfig(testEP) != def {
		t.Fatalf("nil must restore the default")
	}
}

func TestFactory_CreateRetriesConnect(t *testing.T) {
	l := &fakeLink{failFirst: 2}
	f := newTestFactory(l)
	f.SetPoolConfig(testEP, &endpoint.PoolConfig{ConnectMaxTries: 3})

	c, err := f.Create(context.Background(), testEP)
	if err != nil {
		t.Fatalf("Create err=%v", err)
	}
	if !c.IsConnected() {
		t.Fatalf("expected connected")
	}
	if n, _ := l.counts(); n != 3 {
		t.Fatalf("expected 3 connect attempts, got %d", n)
	}
}

func TestFactory_CreateGivesUp(t *testing.T) {
	l := &fakeLink{failFirst: 10}
	f := newTestFactory(l)
	f.SetPoolConfig(testEP, &endpoint.PoolConfig{ConnectMaxTries: 2})

	_, err := f.Create(context.Background(), testEP)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if n, _ := l.counts(); n != 2 {
		t.Fatalf("expected 2 connect attempts, got %d", n)
	}
}

func TestFactory_BreakerStopsConnecting(t *testing.T) {
	l := &fakeLink{failFirst: 100}
	f := newTestFactory(l)
	f.SetPoolConfig(testEP, &endpoint.PoolConfig{
		ConnectMaxTries: 10,
		Breaker:         &endpoint.BreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute},
	})

	if _, err := f.Create(context.Background(), testEP); err == nil {
		t.Fatalf("expected error")
	}
	// two real attempts trip the breaker, the third is rejected without dialing
	if n, _ := l.counts(); n != 2 {
		t.Fatalf("expected 2 connect attempts, got %d", n)
	}
}

func TestFactory_ActivateEnforcesInterTransactionDelay(t *testing.T) {
	f := newTestFactory(&fakeLink{})
	delay := 50 * time.Millisecond
	f.SetPoolConfig(testEP, &endpoint.PoolConfig{InterTransactionDelay: delay, ConnectMaxTries: 1})

	ctx := context.Background()
	c, err := f.Create(ctx, testEP)
	if err != nil {
		t.Fatalf("Create err=%v", err)
	}
	if err := f.Activate(ctx, testEP, c); err != nil {
		t.Fatalf("Activate err=%v", err)
	}

	start := time.Now()
	if err := f.Activate(ctx, testEP, c); err != nil {
		t.Fatalf("Activate err=%v", err)
	}
	if el := time.Since(start); el < delay-5*time.Millisecond {
		t.Fatalf("second activation after %v, want >= %v", el, delay)
	}
}

func TestFactory_ActivateCancelled(t *testing.T) {
	f := newTestFactory(&fakeLink{})
	f.SetPoolConfig(testEP, &endpoint.PoolConfig{InterTransactionDelay: time.Hour, ConnectMaxTries: 1})

	c, _ := f.Create(context.Background(), testEP)
	_ = f.Activate(context.Background(), testEP, c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := f.Activate(ctx, testEP, c); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestFactory_Passivate(t *testing.T) {
	tests := []struct {
		name      string
		after     time.Duration
		mark      bool
		wantClose bool
	}{
		{"every return", 0, false, true},
		{"never", endpoint.NeverReconnect, false, false},
		{"young session", time.Hour, false, false},
		{"disconnect on return", endpoint.NeverReconnect, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &fakeLink{}
			f := newTestFactory(l)
			f.SetPoolConfig(testEP, &endpoint.PoolConfig{ReconnectAfter: tt.after, ConnectMaxTries: 1})

			c, err := f.Create(context.Background(), testEP)
			if err != nil {
				t.Fatalf("Create err=%v", err)
			}
			if tt.mark {
				f.DisconnectOnReturn(testEP, time.Now().Add(time.Millisecond))
			}
			if err := f.Passivate(testEP, c); err != nil {
				t.Fatalf("Passivate err=%v", err)
			}

			if c.IsConnected() == tt.wantClose {
				t.Fatalf("connected=%v wantClose=%v", c.IsConnected(), tt.wantClose)
			}
			_, closes := l.counts()
			if (closes == 1) != tt.wantClose {
				t.Fatalf("closes=%d", closes)
			}
		})
	}
}

func TestFactory_ActivateReconnectsClosedSession(t *testing.T) {
	l := &fakeLink{}
	f := newTestFactory(l)
	f.SetPoolConfig(testEP, &endpoint.PoolConfig{ReconnectAfter: 0, ConnectMaxTries: 1})

	c, _ := f.Create(context.Background(), testEP)
	_ = f.Passivate(testEP, c)
	if c.IsConnected() {
		t.Fatalf("expected disconnect on return")
	}

	if err := f.Activate(context.Background(), testEP, c); err != nil {
		t.Fatalf("Activate err=%v", err)
	}
	if !c.IsConnected() {
		t.Fatalf("expected reconnect on activation")
	}
	if n, _ := l.counts(); n != 2 {
		t.Fatalf("connects=%d want 2", n)
	}
}

func TestFactory_Validate(t *testing.T) {
	f := newTestFactory(&fakeLink{})
	c, _ := f.Create(context.Background(), testEP)
	if !f.Validate(testEP, c) {
		t.Fatalf("connected session must validate")
	}
	c.MarkBroken()
	if f.Validate(testEP, c) {
		t.Fatalf("broken session must not validate")
	}
}

func TestWaitAtLeast(t *testing.T) {
	ctx := context.Background()

	if slept, _ := WaitAtLeast(ctx, time.Time{}, time.Second); slept != 0 {
		t.Fatalf("zero last must not sleep, slept %v", slept)
	}
	if slept, _ := WaitAtLeast(ctx, time.Now().Add(-time.Second), 10*time.Millisecond); slept != 0 {
		t.Fatalf("elapsed delay must not sleep, slept %v", slept)
	}

	slept, err := WaitAtLeast(ctx, time.Now(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if slept < 10*time.Millisecond {
		t.Fatalf("slept %v, want about 20ms", slept)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := WaitAtLeast(cctx, time.Now(), time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

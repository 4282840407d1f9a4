// internal/status/status_test.go
package status

import (
	"errors"
	"fmt"
	"testing"
)

type codedErr struct{ code uint16 }

func (e codedErr) Error() string { return fmt.Sprintf("code %d", e.code) }
func (e codedErr) Code() uint16  { return e.code }

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want uint16
	}{
		{"nil", nil, 0},
		{"plain", errors.New("boom"), 1},
		{"coded", codedErr{code: 2}, 2},
		{"wrapped", fmt.Errorf("poll: %w", codedErr{code: 0x104}), 0x104},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCode(tt.err); got != tt.want {
				t.Fatalf("ErrorCode=%d want %d", got, tt.want)
			}
		})
	}
}

func TestTracker_ErrorTickRecover(t *testing.T) {
	tr := NewTracker()
	if tr.Snapshot().Health != HealthUnknown {
		t.Fatalf("initial health=%d", tr.Snapshot().Health)
	}
	if tr.Tick() != true || tr.Snapshot().SecondsInError != 1 {
		t.Fatalf("unknown state must count seconds: %+v", tr.Snapshot())
	}

	if !tr.Observe(nil) {
		t.Fatalf("first success must change the snapshot")
	}
	if tr.Tick() {
		t.Fatalf("healthy unit must not tick")
	}

	if !tr.Observe(codedErr{code: 4}) {
		t.Fatalf("error must change the snapshot")
	}
	if tr.Observe(codedErr{code: 4}) {
		t.Fatalf("same error must not change the snapshot")
	}
	tr.Tick()
	tr.Tick()
	if s := tr.Snapshot(); s.Health != HealthError || s.LastErrorCode != 4 || s.SecondsInError != 2 {
		t.Fatalf("snapshot=%+v", s)
	}

	tr.Observe(nil)
	if s := tr.Snapshot(); s != (Snapshot{Health: HealthOK}) {
		t.Fatalf("recovery must reset: %+v", s)
	}
}

func TestTracker_SecondsSaturate(t *testing.T) {
	tr := NewTracker()
	tr.Observe(errors.New("down"))
	tr.snap.SecondsInError = 0xFFFE

	if !tr.Tick() || tr.Tick() {
		t.Fatalf("counter must stop at 65535")
	}
	if tr.Snapshot().SecondsInError != 0xFFFF {
		t.Fatalf("seconds=%d", tr.Snapshot().SecondsInError)
	}
}

func TestEncode(t *testing.T) {
	regs := Encode(Snapshot{Health: HealthError, LastErrorCode: 2, SecondsInError: 7}, EncodeName("PUMP-A"))

	if len(regs) != SlotsPerDevice {
		t.Fatalf("len=%d", len(regs))
	}
	if regs[SlotHealthCode] != HealthError || regs[SlotLastErrorCode] != 2 || regs[SlotSecondsInError] != 7 {
		t.Fatalf("live slots=%v", regs[:3])
	}
	for i := 3; i < SlotDeviceNameStart; i++ {
		if regs[i] != 0 {
			t.Fatalf("reserved slot %d=%d", i, regs[i])
		}
	}
	if regs[SlotDeviceNameStart] != uint16('P')<<8|uint16('U') || regs[SlotDeviceNameStart+2] != uint16('-')<<8|uint16('A') {
		t.Fatalf("name=%v", regs[SlotDeviceNameStart:])
	}
	if regs[SlotDeviceNameStart+3] != 0 {
		t.Fatalf("name padding must be zero")
	}
}

func TestEncodeName_TruncatesAndSanitizes(t *testing.T) {
	regs := EncodeName("ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	if regs[SlotDeviceNameSlots-1] != uint16('O')<<8|uint16('P') {
		t.Fatalf("last slot=%04x", regs[SlotDeviceNameSlots-1])
	}

	regs = EncodeName("a\x01")
	if regs[0] != uint16('a')<<8|uint16('?') {
		t.Fatalf("sanitized=%04x", regs[0])
	}
}

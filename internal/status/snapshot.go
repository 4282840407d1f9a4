// internal/status/snapshot.go
package status

import "errors"

// Snapshot is the live part of a status block.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16
}

// Tracker derives a unit's status from poll outcomes and a 1 Hz tick.
// It is owned by one goroutine.
type Tracker struct {
	snap Snapshot
}

func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{Health: HealthUnknown}}
}

func (t *Tracker) Snapshot() Snapshot { return t.snap }

// Observe applies one poll outcome and reports whether the snapshot changed.
// Recovery resets the error code and the error duration.
func (t *Tracker) Observe(err error) bool {
	prev := t.snap

	if err == nil {
		t.snap = Snapshot{Health: HealthOK}
		return t.snap != prev
	}

	t.snap.Health = HealthError
	t.snap.LastErrorCode = ErrorCode(err)

	// seconds_in_error only moves on Tick
	return t.snap != prev
}

// Tick advances seconds_in_error while the unit is not OK. The counter saturates.
func (t *Tracker) Tick() bool {
	if t.snap.Health == HealthOK || t.snap.SecondsInError == 0xFFFF {
		return false
	}
	t.snap.SecondsInError++
	return true
}

// ErrorCode extracts a code from err without assuming concrete types.
// Errors that expose no code map to 1.
func ErrorCode(err error) uint16 {
	if err == nil {
		return 0
	}

	type coderA interface{ Code() uint16 }
	type coderB interface{ ErrorCode() uint16 }

	var a coderA
	if errors.As(err, &a) {
		return a.Code()
	}
	var b coderB
	if errors.As(err, &b) {
		return b.ErrorCode()
	}
	return 1
}

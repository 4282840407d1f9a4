// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-transport/internal/manager"
	"github.com/tamzrod/modbus-transport/internal/status"
	"github.com/tamzrod/modbus-transport/internal/transaction"
)

// StatusWriter is the delivery-only contract for device status.
// It receives a snapshot and writes it verbatim.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// deviceStatusWriter keeps one status block on one target in sync.
// The first write and any write after a failure re-assert the full block;
// otherwise only changed live slots are written.
type deviceStatusWriter struct {
	plan     StatusPlan
	sub      Submitter
	logger   zerolog.Logger
	nameRegs []uint16

	mu       sync.Mutex
	needFull bool
	last     status.Snapshot
}

// fanoutStatusWriter writes the same snapshot to every target of a unit.
type fanoutStatusWriter []*deviceStatusWriter

// NewDeviceStatusWriter builds a status writer if status is enabled for the unit.
func NewDeviceStatusWriter(plan Plan, sub Submitter, logger zerolog.Logger) (StatusWriter, bool) {
	if len(plan.Status) == 0 {
		return nil, false
	}

	logger = logger.With().Str("component", "status-writer").Str("unit", plan.UnitID).Logger()

	var out fanoutStatusWriter
	for _, sp := range plan.Status {
		out = append(out, &deviceStatusWriter{
			plan:     sp,
			sub:      sub,
			logger:   logger,
			nameRegs: status.EncodeName(sp.DeviceName),
			needFull: true,
			last:     status.Snapshot{Health: status.HealthUnknown},
		})
	}
	return out, true
}

func (f fanoutStatusWriter) WriteStatus(s status.Snapshot) error {
	var errs []string
	for _, sw := range f {
		if err := sw.WriteStatus(s); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}

// WriteStatus submits the writes needed to bring the block to s.
func (sw *deviceStatusWriter) WriteStatus(s status.Snapshot) error {
	base := status.BaseAddress(sw.plan.BaseSlot)

	sw.mu.Lock()
	full := sw.needFull
	last := sw.last
	sw.mu.Unlock()

	if full {
		if err := sw.submit(base, status.Encode(s, sw.nameRegs)); err != nil {
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}
		sw.mu.Lock()
		sw.needFull = false
		sw.last = s
		sw.mu.Unlock()
		return nil
	}

	slots := []struct {
		name      string
		slot      uint16
		old, next uint16
	}{
		{"health", status.SlotHealthCode, last.Health, s.Health},
		{"last_error", status.SlotLastErrorCode, last.LastErrorCode, s.LastErrorCode},
		{"seconds_in_error", status.SlotSecondsInError, last.SecondsInError, s.SecondsInError},
	}

	var errs []string
	for _, sl := range slots {
		if sl.old == sl.next {
			continue
		}
		if err := sw.submit(base+sl.slot, []uint16{sl.next}); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d %s write failed: %v", sl.slot, sl.name, err))
		}
	}

	sw.mu.Lock()
	sw.last = s
	if len(errs) > 0 {
		sw.needFull = true
	}
	sw.mu.Unlock()

	if len(errs) > 0 {
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}
	return nil
}

func (sw *deviceStatusWriter) submit(addr uint16, regs []uint16) error {
	_, err := sw.sub.SubmitWrite(&manager.WriteTask{
		Endpoint: sw.plan.Endpoint,
		Request: transaction.WriteBlueprint{
			UnitID:       sw.plan.UnitID,
			FunctionCode: transaction.FcWriteMultipleRegisters,
			Reference:    addr,
			Registers:    regs,
		},
		MaxTries: sw.plan.MaxTries,
		Callback: manager.WriteCallbackFuncs{Error: sw.onError},
	})
	if err != nil {
		sw.markDirty()
	}
	return err
}

// onError runs on a callback worker once a submitted write has failed.
func (sw *deviceStatusWriter) onError(req transaction.WriteBlueprint, err error) {
	sw.logger.Warn().
		Err(err).
		Str("target", sw.plan.Endpoint.String()).
		Str("request", req.String()).
		Msg("status write failed, full block will be re-asserted")
	sw.markDirty()
}

func (sw *deviceStatusWriter) markDirty() {
	sw.mu.Lock()
	sw.needFull = true
	sw.mu.Unlock()
}

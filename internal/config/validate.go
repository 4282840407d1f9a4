// internal/config/validate.go
package config

import (
	"fmt"

	"github.com/tamzrod/modbus-transport/internal/endpoint"
	"github.com/tamzrod/modbus-transport/internal/status"
	"github.com/tamzrod/modbus-transport/internal/transaction"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	t := cfg.Transport

	if t.SchedulerWorkers < 0 || t.CallbackWorkers < 0 {
		return fmt.Errorf("transport: worker counts must not be negative")
	}
	if t.MonitorIntervalMs < 0 || t.QueueWarnThreshold < 0 {
		return fmt.Errorf("transport: monitor settings must not be negative")
	}

	if err := validateEndpoints(t.Endpoints); err != nil {
		return err
	}
	if err := validateUnits(t.Units); err != nil {
		return err
	}
	if err := validateStatusSlots(t.Units); err != nil {
		return err
	}
	return validateTargetGeometry(t.Units)
}

// ------------------------------------------------------------
// ENDPOINT OVERRIDES
// ------------------------------------------------------------

func validateEndpoints(eps []EndpointConfig) error {
	seen := make(map[endpoint.Endpoint]bool)

	for i, e := range eps {
		ep, err := endpoint.Parse(e.URL)
		if err != nil {
			return fmt.Errorf("endpoints[%d]: %w", i, err)
		}
		if seen[ep] {
			return fmt.Errorf("endpoints[%d]: duplicate endpoint %s", i, ep)
		}
		seen[ep] = true

		for name, v := range map[string]*int{
			"inter_transaction_delay_ms": e.InterTransactionDelayMs,
			"inter_connect_delay_ms":     e.InterConnectDelayMs,
			"connect_timeout_ms":         e.ConnectTimeoutMs,
		} {
			if v != nil && *v < 0 {
				return fmt.Errorf("endpoint %s: %s must not be negative", ep, name)
			}
		}
		if e.ConnectMaxTries != nil && *e.ConnectMaxTries < 1 {
			return fmt.Errorf("endpoint %s: connect_max_tries must be >= 1", ep)
		}
		if e.ReconnectAfterMs != nil && *e.ReconnectAfterMs < -1 {
			return fmt.Errorf("endpoint %s: reconnect_after_ms must be -1, 0 or positive", ep)
		}
		if e.Breaker != nil && e.Breaker.OpenTimeoutMs < 0 {
			return fmt.Errorf("endpoint %s: breaker.open_timeout_ms must not be negative", ep)
		}
	}
	return nil
}

// ------------------------------------------------------------
// UNITS
// ------------------------------------------------------------

func validateUnits(units []UnitConfig) error {
	ids := make(map[string]bool)

	for _, u := range units {
		if u.ID == "" {
			return fmt.Errorf("unit: id required")
		}
		if ids[u.ID] {
			return fmt.Errorf("unit %q: duplicate id", u.ID)
		}
		ids[u.ID] = true

		if _, err := endpoint.Parse(u.Source.Endpoint); err != nil {
			return fmt.Errorf("unit %q: source: %w", u.ID, err)
		}

		if u.Poll.IntervalMs <= 0 {
			return fmt.Errorf("unit %q: poll.interval_ms must be > 0", u.ID)
		}
		if u.Poll.InitialDelayMs < 0 {
			return fmt.Errorf("unit %q: poll.initial_delay_ms must not be negative", u.ID)
		}
		if u.Poll.MaxTries < 0 {
			return fmt.Errorf("unit %q: poll.max_tries must not be negative", u.ID)
		}

		if len(u.Reads) == 0 {
			return fmt.Errorf("unit %q: at least one read block required", u.ID)
		}
		for i, r := range u.Reads {
			_, err := transaction.BuildRequest(transaction.ReadBlueprint{
				UnitID:       u.Source.UnitID,
				FunctionCode: transaction.FunctionCode(r.FC),
				Reference:    r.Address,
				Length:       r.Quantity,
			})
			if err != nil {
				return fmt.Errorf("unit %q: reads[%d]: %w", u.ID, i, err)
			}
		}

		// device_name sanity (ASCII only)
		for i := 0; i < len(u.Source.DeviceName); i++ {
			if u.Source.DeviceName[i] > 0x7F {
				return fmt.Errorf("unit %q: device_name must contain ASCII characters only", u.ID)
			}
		}

		for i, t := range u.Targets {
			if _, err := endpoint.Parse(t.Endpoint); err != nil {
				return fmt.Errorf("unit %q: targets[%d]: %w", u.ID, i, err)
			}
			if t.MaxTries < 0 {
				return fmt.Errorf("unit %q: targets[%d]: max_tries must not be negative", u.ID, i)
			}
			for fc := range t.Offsets {
				if fc < 1 || fc > 4 {
					return fmt.Errorf("unit %q: targets[%d]: offset for unsupported fc %d", u.ID, i, fc)
				}
			}
		}
	}
	return nil
}

// ------------------------------------------------------------
// DEVICE STATUS BLOCK VALIDATION (PER-TARGET, OPT-IN)
// ------------------------------------------------------------

func validateStatusSlots(units []UnitConfig) error {
	// key = endpoint | status_unit_id | status_slot
	statusOwner := make(map[string]string)

	for _, u := range units {
		if u.Source.StatusSlot == nil {
			continue
		}

		// status requires at least one target
		if len(u.Targets) == 0 {
			return fmt.Errorf("unit %q: status_slot is set but no targets are defined", u.ID)
		}

		slot := *u.Source.StatusSlot
		if int(slot)*status.SlotsPerDevice+status.SlotsPerDevice > 0x10000 {
			return fmt.Errorf("unit %q: status_slot %d exceeds the register space", u.ID, slot)
		}

		for _, t := range u.Targets {
			// each target must declare status_unit_id
			if t.StatusUnitID == nil {
				return fmt.Errorf(
					"unit %q: status_slot is set but target %q has no status_unit_id",
					u.ID,
					t.Endpoint,
				)
			}

			ep := canonical(t.Endpoint)
			key := fmt.Sprintf("%s|%d|%d", ep, *t.StatusUnitID, slot)

			if prev, exists := statusOwner[key]; exists {
				return fmt.Errorf(
					"status_slot collision: endpoint=%s status_unit_id=%d slot=%d used by units %q and %q",
					ep,
					*t.StatusUnitID,
					slot,
					prev,
					u.ID,
				)
			}
			statusOwner[key] = u.ID
		}
	}
	return nil
}

// ------------------------------------------------------------
// DESTINATION GEOMETRY VALIDATION
// ------------------------------------------------------------

func validateTargetGeometry(units []UnitConfig) error {
	type span struct {
		start uint32
		end   uint32
		unit  string
	}

	// key = endpoint | unit_id | destination table
	spans := make(map[string][]span)

	for _, u := range units {
		for _, t := range u.Targets {
			ep := canonical(t.Endpoint)

			for _, r := range u.Reads {
				start := uint32(OffsetForFC(t.Offsets, r.FC)) + uint32(r.Address)
				end := start + uint32(r.Quantity) - 1
				if end > 0xFFFF {
					return fmt.Errorf(
						"unit %q: target %s fc=%d range=%d-%d exceeds the address space",
						u.ID, ep, r.FC, start, end,
					)
				}

				table := DestinationTable(r.FC)
				key := fmt.Sprintf("%s|%d|%s", ep, t.UnitID, table)

				for _, s := range spans[key] {
					// overlap check (inclusive)
					if !(end < s.start || start > s.end) {
						return fmt.Errorf(
							"target overlap: endpoint=%s unit_id=%d table=%s range=%d-%d overlaps with unit=%s range=%d-%d",
							ep,
							t.UnitID,
							table,
							start,
							end,
							s.unit,
							s.start,
							s.end,
						)
					}
				}

				spans[key] = append(spans[key], span{start: start, end: end, unit: u.ID})
			}
		}
	}
	return nil
}

// DestinationTable names the target table a source read is mirrored into.
func DestinationTable(fc uint8) string {
	switch fc {
	case 1, 2:
		return "coils"
	default:
		return "holding_registers"
	}
}

// OffsetForFC returns the per-FC destination delta; a missing FC means 0.
func OffsetForFC(offsets map[int]uint16, fc uint8) uint16 {
	if offsets == nil {
		return 0
	}
	if v, ok := offsets[int(fc)]; ok {
		return v
	}
	return 0
}

func canonical(s string) string {
	ep, err := endpoint.Parse(s)
	if err != nil {
		return s
	}
	return ep.String()
}

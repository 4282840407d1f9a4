// internal/config/validate_test.go
package config

import (
	"strings"
	"testing"
)

// helper to build a unit quickly
func unit(id string, endpoint string, targetUnit uint8, fc uint8, addr, qty uint16, offset uint16) UnitConfig {
	return UnitConfig{
		ID:     id,
		Source: SourceConfig{Endpoint: "tcp://10.0.0.1:502", UnitID: 1},
		Poll:   PollConfig{IntervalMs: 1000},
		Reads: []ReadConfig{
			{
				FC:       fc,
				Address:  addr,
				Quantity: qty,
			},
		},
		Targets: []TargetConfig{
			{
				Endpoint: endpoint,
				UnitID:   targetUnit,
				Offsets: map[int]uint16{
					int(fc): offset,
				},
			},
		},
	}
}

func cfgOf(units ...UnitConfig) *Config {
	return &Config{Transport: TransportConfig{Units: units}}
}

func u16(v uint16) *uint16 { return &v }
func u8(v uint8) *uint8    { return &v }
func intp(v int) *int      { return &v }

// ---- geometry ----

func TestValidate_NoOverlapDifferentEndpoints(t *testing.T) {
	cfg := cfgOf(
		unit("u1", "tcp://ep1:502", 1, 3, 0, 10, 0),
		unit("u2", "tcp://ep2:502", 1, 3, 0, 10, 0),
	)
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_NoOverlapDifferentTargetUnit(t *testing.T) {
	cfg := cfgOf(
		unit("u1", "tcp://ep1:502", 1, 3, 0, 10, 0),
		unit("u2", "tcp://ep1:502", 2, 3, 0, 10, 0),
	)
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_NoOverlapDifferentTable(t *testing.T) {
	cfg := cfgOf(
		unit("u1", "tcp://ep1:502", 1, 1, 0, 10, 0),
		unit("u2", "tcp://ep1:502", 1, 3, 0, 10, 0),
	)
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_TouchingRangesAllowed(t *testing.T) {
	cfg := cfgOf(
		unit("u1", "tcp://ep1:502", 1, 3, 0, 10, 0),  // 0-9
		unit("u2", "tcp://ep1:502", 1, 3, 10, 10, 0), // 10-19
	)
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Overlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b UnitConfig
	}{
		{"same fc", unit("u1", "tcp://ep1:502", 1, 3, 0, 10, 0), unit("u2", "tcp://ep1:502", 1, 3, 5, 10, 0)},
		{"via offset", unit("u1", "tcp://ep1:502", 1, 3, 0, 10, 0), unit("u2", "tcp://ep1:502", 1, 3, 0, 10, 5)},
		{"input and holding share a table", unit("u1", "tcp://ep1:502", 1, 3, 0, 10, 0), unit("u2", "tcp://ep1:502", 1, 4, 0, 10, 0)},
		{"bare and url form are one endpoint", unit("u1", "ep1:502", 1, 1, 0, 10, 0), unit("u2", "tcp://ep1:502", 1, 2, 0, 10, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(cfgOf(tt.a, tt.b)); err == nil || !strings.Contains(err.Error(), "overlap") {
				t.Fatalf("expected overlap error, got %v", err)
			}
		})
	}
}

func TestValidate_RangeBeyondAddressSpace(t *testing.T) {
	cfg := cfgOf(unit("u1", "tcp://ep1:502", 1, 3, 65530, 10, 0))
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected address space error")
	}
}

// ---- units ----

func TestValidate_UnitErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(u *UnitConfig)
	}{
		{"missing id", func(u *UnitConfig) { u.ID = "" }},
		{"bad source", func(u *UnitConfig) { u.Source.Endpoint = "ftp://x" }},
		{"zero interval", func(u *UnitConfig) { u.Poll.IntervalMs = 0 }},
		{"negative max tries", func(u *UnitConfig) { u.Poll.MaxTries = -1 }},
		{"no reads", func(u *UnitConfig) { u.Reads = nil }},
		{"write fc in reads", func(u *UnitConfig) { u.Reads[0].FC = 6 }},
		{"too many registers", func(u *UnitConfig) { u.Reads[0].Quantity = 126 }},
		{"zero quantity", func(u *UnitConfig) { u.Reads[0].Quantity = 0 }},
		{"non ascii name", func(u *UnitConfig) { u.Source.DeviceName = "pümpe" }},
		{"bad target", func(u *UnitConfig) { u.Targets[0].Endpoint = "" }},
		{"offset for write fc", func(u *UnitConfig) { u.Targets[0].Offsets = map[int]uint16{16: 1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := unit("u1", "tcp://ep1:502", 1, 3, 0, 10, 0)
			tt.mutate(&u)
			if err := Validate(cfgOf(u)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestValidate_DuplicateUnitID(t *testing.T) {
	cfg := cfgOf(
		unit("u1", "tcp://ep1:502", 1, 3, 0, 10, 0),
		unit("u1", "tcp://ep2:502", 1, 3, 0, 10, 0),
	)
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

// ---- status block ----

func TestValidate_StatusSlot(t *testing.T) {
	withStatus := func(id string, slot uint16, statusUnit *uint8) UnitConfig {
		u := unit(id, "tcp://ep1:502", 1, 3, 0, 10, 0)
		if id == "u2" {
			u.Targets[0].UnitID = 2
		}
		u.Source.StatusSlot = u16(slot)
		u.Targets[0].StatusUnitID = statusUnit
		return u
	}

	tests := []struct {
		name    string
		units   []UnitConfig
		wantErr bool
	}{
		{"distinct slots", []UnitConfig{withStatus("u1", 0, u8(9)), withStatus("u2", 1, u8(9))}, false},
		{"collision", []UnitConfig{withStatus("u1", 0, u8(9)), withStatus("u2", 0, u8(9))}, true},
		{"missing status unit", []UnitConfig{withStatus("u1", 0, nil)}, true},
		{"slot out of range", []UnitConfig{withStatus("u1", 4000, u8(9))}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(cfgOf(tt.units...))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

// ---- endpoints ----

func TestValidate_EndpointOverrides(t *testing.T) {
	tests := []struct {
		name    string
		ep      EndpointConfig
		wantErr bool
	}{
		{"ok", EndpointConfig{URL: "tcp://ep1:502", ReconnectAfterMs: intp(-1)}, false},
		{"bad url", EndpointConfig{URL: "gopher://x"}, true},
		{"zero connect tries", EndpointConfig{URL: "tcp://ep1:502", ConnectMaxTries: intp(0)}, true},
		{"negative delay", EndpointConfig{URL: "tcp://ep1:502", InterTransactionDelayMs: intp(-5)}, true},
		{"reconnect below -1", EndpointConfig{URL: "tcp://ep1:502", ReconnectAfterMs: intp(-2)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Transport: TransportConfig{Endpoints: []EndpointConfig{tt.ep}}}
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_DuplicateEndpoint(t *testing.T) {
	cfg := &Config{Transport: TransportConfig{Endpoints: []EndpointConfig{
		{URL: "ep1:502"},
		{URL: "tcp://ep1:502"},
	}}}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected duplicate endpoint error")
	}
}

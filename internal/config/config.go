// internal/config/config.go
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tamzrod/modbus-transport/internal/endpoint"
)

type Config struct {
	Transport TransportConfig `yaml:"transport"`
}

type TransportConfig struct {
	SchedulerWorkers   int `yaml:"scheduler_workers"`
	CallbackWorkers    int `yaml:"callback_workers"`
	MonitorIntervalMs  int `yaml:"monitor_interval_ms"`
	QueueWarnThreshold int `yaml:"queue_warn_threshold"`

	Endpoints []EndpointConfig `yaml:"endpoints"`
	Units     []UnitConfig     `yaml:"units"`
}

// ---- ENDPOINT POOL OVERRIDES ----

// EndpointConfig overrides the pool defaults of one endpoint. Unset fields keep the default.
type EndpointConfig struct {
	URL string `yaml:"url"`

	InterTransactionDelayMs *int `yaml:"inter_transaction_delay_ms"`
	InterConnectDelayMs     *int `yaml:"inter_connect_delay_ms"`
	ConnectMaxTries         *int `yaml:"connect_max_tries"`
	ConnectTimeoutMs        *int `yaml:"connect_timeout_ms"`
	ReconnectAfterMs        *int `yaml:"reconnect_after_ms"` // -1 = never

	Breaker *BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	MaxFailures      uint32 `yaml:"max_failures"`
	OpenTimeoutMs    int    `yaml:"open_timeout_ms"`
	HalfOpenRequests uint32 `yaml:"half_open_requests"`
}

// ---- UNIT ----

type UnitConfig struct {
	ID      string         `yaml:"id"`
	Source  SourceConfig   `yaml:"source"`
	Reads   []ReadConfig   `yaml:"reads"`
	Targets []TargetConfig `yaml:"targets"`
	Poll    PollConfig     `yaml:"poll"`
}

// ---- SOURCE ----

type SourceConfig struct {
	Endpoint string `yaml:"endpoint"`
	UnitID   uint8  `yaml:"unit_id"`

	// Device status block (optional, opt-in)
	StatusSlot *uint16 `yaml:"status_slot"`
	DeviceName string  `yaml:"device_name"`
}

// ---- READ GEOMETRY ----

type ReadConfig struct {
	FC       uint8  `yaml:"fc"`
	Address  uint16 `yaml:"address"`
	Quantity uint16 `yaml:"quantity"`
}

// ---- TARGET ----

type TargetConfig struct {
	Endpoint     string         `yaml:"endpoint"`
	UnitID       uint8          `yaml:"unit_id"`        // data
	StatusUnitID *uint8         `yaml:"status_unit_id"` // status block (optional)
	Offsets      map[int]uint16 `yaml:"offsets"`        // delta map; missing FC => 0
	MaxTries     int            `yaml:"max_tries"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs     int `yaml:"interval_ms"`
	InitialDelayMs int `yaml:"initial_delay_ms"`
	MaxTries       int `yaml:"max_tries"`
}

// Load reads and decodes a YAML file. Unknown keys are rejected.
// It does not validate.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes. It does not validate.
func Parse(b []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}

// PoolConfig applies the overrides on top of base.
func (e EndpointConfig) PoolConfig(base endpoint.PoolConfig) endpoint.PoolConfig {
	out := base
	if e.InterTransactionDelayMs != nil {
		out.InterTransactionDelay = ms(*e.InterTransactionDelayMs)
	}
	if e.InterConnectDelayMs != nil {
		out.InterConnectDelay = ms(*e.InterConnectDelayMs)
	}
	if e.ConnectMaxTries != nil {
		out.ConnectMaxTries = *e.ConnectMaxTries
	}
	if e.ConnectTimeoutMs != nil {
		out.ConnectTimeout = ms(*e.ConnectTimeoutMs)
	}
	if e.ReconnectAfterMs != nil {
		if *e.ReconnectAfterMs < 0 {
			out.ReconnectAfter = endpoint.NeverReconnect
		} else {
			out.ReconnectAfter = ms(*e.ReconnectAfterMs)
		}
	}
	if e.Breaker != nil {
		out.Breaker = &endpoint.BreakerConfig{
			MaxFailures:      e.Breaker.MaxFailures,
			OpenTimeout:      ms(e.Breaker.OpenTimeoutMs),
			HalfOpenRequests: e.Breaker.HalfOpenRequests,
		}
	}
	return out
}

func (t TransportConfig) MonitorInterval() time.Duration { return ms(t.MonitorIntervalMs) }

func (p PollConfig) Interval() time.Duration     { return ms(p.IntervalMs) }
func (p PollConfig) InitialDelay() time.Duration { return ms(p.InitialDelayMs) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

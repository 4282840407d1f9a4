// internal/config/normalize.go
package config

import "github.com/tamzrod/modbus-transport/internal/status"

// Defaults applied by Normalize.
const (
	DefaultSchedulerWorkers   = 5
	DefaultCallbackWorkers    = 5
	DefaultMonitorIntervalMs  = 10000
	DefaultQueueWarnThreshold = 500
	DefaultMaxTries           = 3
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	t := &cfg.Transport

	if t.SchedulerWorkers == 0 {
		t.SchedulerWorkers = DefaultSchedulerWorkers
	}
	if t.CallbackWorkers == 0 {
		t.CallbackWorkers = DefaultCallbackWorkers
	}
	if t.MonitorIntervalMs == 0 {
		t.MonitorIntervalMs = DefaultMonitorIntervalMs
	}
	if t.QueueWarnThreshold == 0 {
		t.QueueWarnThreshold = DefaultQueueWarnThreshold
	}

	for ui := range t.Units {
		u := &t.Units[ui]

		if u.Poll.MaxTries == 0 {
			u.Poll.MaxTries = DefaultMaxTries
		}

		// targets inherit the poll retry budget
		for ti := range u.Targets {
			if u.Targets[ti].MaxTries == 0 {
				u.Targets[ti].MaxTries = u.Poll.MaxTries
			}
		}

		// Skip units that did not opt in to the status block
		if u.Source.StatusSlot == nil {
			continue
		}

		// device_name: ASCII already validated, truncate to the block capacity
		if len(u.Source.DeviceName) > status.DeviceNameMaxChars {
			u.Source.DeviceName = u.Source.DeviceName[:status.DeviceNameMaxChars]
		}
	}
}

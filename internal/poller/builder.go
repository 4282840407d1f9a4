// internal/poller/builder.go
package poller

import (
	"github.com/rs/zerolog"

	cfg "github.com/tamzrod/modbus-transport/internal/config"
	"github.com/tamzrod/modbus-transport/internal/endpoint"
)

// Build constructs a Poller for one unit.
// Assumes the config has been validated and normalized.
func Build(u cfg.UnitConfig, reg Registrar, logger zerolog.Logger) (*Poller, error) {
	src, err := endpoint.Parse(u.Source.Endpoint)
	if err != nil {
		return nil, err
	}

	reads := make([]ReadBlock, 0, len(u.Reads))
	for _, r := range u.Reads {
		reads = append(reads, ReadBlock{
			FC:       r.FC,
			Address:  r.Address,
			Quantity: r.Quantity,
		})
	}

	return New(
		Config{
			UnitID:       u.ID,
			Source:       src,
			SlaveID:      u.Source.UnitID,
			Interval:     u.Poll.Interval(),
			InitialDelay: u.Poll.InitialDelay(),
			MaxTries:     u.Poll.MaxTries,
			Reads:        reads,
		},
		reg,
		logger,
	)
}

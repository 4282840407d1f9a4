// internal/writer/builder.go
package writer

import (
	"errors"
	"fmt"

	cfg "github.com/tamzrod/modbus-transport/internal/config"
	"github.com/tamzrod/modbus-transport/internal/endpoint"
)

// BuildPlan converts one unit config into a writer Plan.
// Assumes config has already passed validation and normalization.
func BuildPlan(u cfg.UnitConfig) (Plan, error) {
	if u.ID == "" {
		return Plan{}, errors.New("writer: unit.id required")
	}

	plan := Plan{UnitID: u.ID}

	for i, t := range u.Targets {
		ep, err := endpoint.Parse(t.Endpoint)
		if err != nil {
			return Plan{}, fmt.Errorf("writer: unit %q targets[%d]: %w", u.ID, i, err)
		}

		plan.Targets = append(plan.Targets, TargetEndpoint{
			Endpoint: ep,
			UnitID:   t.UnitID,
			Offsets:  t.Offsets,
			MaxTries: t.MaxTries,
		})

		if u.Source.StatusSlot == nil || t.StatusUnitID == nil {
			continue
		}
		plan.Status = append(plan.Status, StatusPlan{
			Endpoint:   ep,
			UnitID:     *t.StatusUnitID,
			BaseSlot:   *u.Source.StatusSlot,
			DeviceName: u.Source.DeviceName,
			MaxTries:   t.MaxTries,
		})
	}

	return plan, nil
}

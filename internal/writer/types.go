// internal/writer/types.go
package writer

import (
	"github.com/tamzrod/modbus-transport/internal/endpoint"
	"github.com/tamzrod/modbus-transport/internal/manager"
	"github.com/tamzrod/modbus-transport/internal/poller"
)

// Submitter is the part of the manager the writers depend on.
type Submitter interface {
	SubmitWrite(task *manager.WriteTask) (*manager.Handle, error)
}

// TargetEndpoint is one Modbus slave receiving a copy of the unit's data.
type TargetEndpoint struct {
	Endpoint endpoint.Endpoint
	UnitID   uint8
	Offsets  map[int]uint16 // per-FC offset deltas; missing FC => 0
	MaxTries int
}

// StatusPlan places one unit's status block on one target.
type StatusPlan struct {
	Endpoint   endpoint.Endpoint
	UnitID     uint8
	BaseSlot   uint16
	DeviceName string
	MaxTries   int
}

// Plan is the fully-built write plan for one unit.
type Plan struct {
	UnitID  string
	Targets []TargetEndpoint
	Status  []StatusPlan // empty when the unit did not opt in
}

// Writer writes poll results into targets.
type Writer interface {
	Write(res poller.PollResult) error
}

// internal/poller/poller.go
package poller

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-transport/internal/endpoint"
	"github.com/tamzrod/modbus-transport/internal/manager"
	"github.com/tamzrod/modbus-transport/internal/status"
	"github.com/tamzrod/modbus-transport/internal/transaction"
)

// Registrar is the part of the manager the poller depends on.
type Registrar interface {
	RegisterPoll(task *manager.PollTask, period, initialDelay time.Duration) error
	UnregisterPoll(task *manager.PollTask) bool
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	UnitID       string
	Source       endpoint.Endpoint
	SlaveID      uint8
	Interval     time.Duration
	InitialDelay time.Duration
	MaxTries     int
	Reads        []ReadBlock
}

// Poller registers one regular poll per read block with the manager.
// Scheduling, retries and connection handling belong to the manager.
type Poller struct {
	cfg    Config
	reg    Registrar
	logger zerolog.Logger
}

// New creates a poller with immutable config.
func New(cfg Config, reg Registrar, logger zerolog.Logger) (*Poller, error) {
	if cfg.UnitID == "" {
		return nil, errors.New("poller: unit id required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cfg.MaxTries <= 0 {
		return nil, errors.New("poller: max tries must be > 0")
	}
	if len(cfg.Reads) == 0 {
		return nil, errors.New("poller: at least one read block required")
	}
	if reg == nil {
		return nil, errors.New("poller: registrar required")
	}
	return &Poller{
		cfg:    cfg,
		reg:    reg,
		logger: logger.With().Str("component", "poller").Str("unit", cfg.UnitID).Logger(),
	}, nil
}

func (p *Poller) blueprint(rb ReadBlock) transaction.ReadBlueprint {
	return transaction.ReadBlueprint{
		UnitID:       p.cfg.SlaveID,
		FunctionCode: rb.Function(),
		Reference:    rb.Address,
		Length:       rb.Quantity,
	}
}

func (p *Poller) okResult(rb ReadBlock, res transaction.ReadResult) PollResult {
	return PollResult{
		UnitID: p.cfg.UnitID,
		At:     time.Now(),
		Blocks: []BlockResult{{ReadBlock: rb, ReadResult: res}},
	}
}

func (p *Poller) errResult(err error) PollResult {
	return PollResult{
		UnitID:       p.cfg.UnitID,
		At:           time.Now(),
		RawErrorCode: status.ErrorCode(err),
		Err:          err,
	}
}

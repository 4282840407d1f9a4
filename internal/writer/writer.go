// internal/writer/writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-transport/internal/config"
	"github.com/tamzrod/modbus-transport/internal/manager"
	"github.com/tamzrod/modbus-transport/internal/poller"
	"github.com/tamzrod/modbus-transport/internal/transaction"
)

type writerImpl struct {
	plan   Plan
	sub    Submitter
	logger zerolog.Logger
}

func New(plan Plan, sub Submitter, logger zerolog.Logger) Writer {
	return &writerImpl{
		plan:   plan,
		sub:    sub,
		logger: logger.With().Str("component", "writer").Str("unit", plan.UnitID).Logger(),
	}
}

// Write submits one write per block and target. Failed polls are not mirrored.
// Only submission errors are returned; write failures are logged when they complete.
func (w *writerImpl) Write(res poller.PollResult) error {
	if res.Err != nil {
		return nil
	}

	var errs []string

	for _, tgt := range w.plan.Targets {
		for _, b := range res.Blocks {
			dstAddr := config.OffsetForFC(tgt.Offsets, b.FC) + b.Address

			bps, err := blockWrites(tgt.UnitID, dstAddr, b)
			if err != nil {
				errs = append(errs, fmt.Sprintf("writer: ep=%s unit=%d fc=%d: %v", tgt.Endpoint, tgt.UnitID, b.FC, err))
				continue
			}

			for _, bp := range bps {
				task := &manager.WriteTask{
					Endpoint: tgt.Endpoint,
					Request:  bp,
					MaxTries: tgt.MaxTries,
					Callback: manager.WriteCallbackFuncs{
						Error: w.onError(tgt),
					},
				}
				if _, err := w.sub.SubmitWrite(task); err != nil {
					errs = append(errs, fmt.Sprintf(
						"writer: ep=%s unit=%d fc=%d addr=%d err=%v",
						tgt.Endpoint, tgt.UnitID, b.FC, bp.Reference, err,
					))
				}
			}
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}

func (w *writerImpl) onError(tgt TargetEndpoint) func(transaction.WriteBlueprint, error) {
	return func(req transaction.WriteBlueprint, err error) {
		w.logger.Warn().
			Err(err).
			Str("target", tgt.Endpoint.String()).
			Str("request", req.String()).
			Msg("target write failed")
	}
}

// blockWrites maps a read block onto the target's coil or holding register table,
// split to the per-request write limits.
func blockWrites(unitID uint8, addr uint16, b poller.BlockResult) ([]transaction.WriteBlueprint, error) {
	var out []transaction.WriteBlueprint

	switch b.FC {
	case 1, 2:
		for start := 0; start < len(b.Bits); start += transaction.MaxWriteCoils {
			end := min(start+transaction.MaxWriteCoils, len(b.Bits))
			out = append(out, transaction.WriteBlueprint{
				UnitID:       unitID,
				FunctionCode: transaction.FcWriteMultipleCoils,
				Reference:    addr + uint16(start),
				Coils:        b.Bits[start:end],
			})
		}
	case 3, 4:
		for start := 0; start < len(b.Registers); start += transaction.MaxWriteRegisters {
			end := min(start+transaction.MaxWriteRegisters, len(b.Registers))
			out = append(out, transaction.WriteBlueprint{
				UnitID:       unitID,
				FunctionCode: transaction.FcWriteMultipleRegisters,
				Reference:    addr + uint16(start),
				Registers:    b.Registers[start:end],
			})
		}
	default:
		return nil, fmt.Errorf("unsupported fc %d", b.FC)
	}
	return out, nil
}

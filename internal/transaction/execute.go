// internal/transaction/execute.go
package transaction

import (
	"errors"
	"fmt"

	"github.com/goburrow/modbus"
)

// ErrEmptyResponse is returned when a read completes without data.
var ErrEmptyResponse = errors.New("modbus: empty response")

// Session is a transport session able to hand out a codec client for a unit.
// The session is exclusively owned by the caller for the duration of Execute.
type Session interface {
	Client(unitID uint8) modbus.Client
}

// Response is the raw data returned by the codec.
// For reads Data is the payload following the byte count.
type Response struct {
	FunctionCode FunctionCode
	Data         []byte
}

// Execute runs req over s.
// It fails on I/O errors, on slave exception responses and on empty read responses.
func Execute(req Request, s Session) (Response, error) {
	c := s.Client(req.UnitID)

	var (
		data []byte
		err  error
	)

	switch req.FunctionCode {
	case FcReadCoils:
		data, err = c.ReadCoils(req.Reference, req.Quantity)
	case FcReadDiscreteInputs:
		data, err = c.ReadDiscreteInputs(req.Reference, req.Quantity)
	case FcReadHoldingRegisters:
		data, err = c.ReadHoldingRegisters(req.Reference, req.Quantity)
	case FcReadInputRegisters:
		data, err = c.ReadInputRegisters(req.Reference, req.Quantity)
	case FcWriteSingleCoil:
		data, err = c.WriteSingleCoil(req.Reference, req.Value)
	case FcWriteSingleRegister:
		data, err = c.WriteSingleRegister(req.Reference, req.Value)
	case FcWriteMultipleCoils:
		data, err = c.WriteMultipleCoils(req.Reference, req.Quantity, req.Payload)
	case FcWriteMultipleRegisters:
		data, err = c.WriteMultipleRegisters(req.Reference, req.Quantity, req.Payload)
	default:
		return Response{}, argErr(req.FunctionCode, "unsupported function code")
	}
	if err != nil {
		return Response{}, err
	}

	if req.FunctionCode.IsRead() && len(data) == 0 {
		return Response{}, fmt.Errorf("%w (fc=%s)", ErrEmptyResponse, req.FunctionCode)
	}

	return Response{FunctionCode: req.FunctionCode, Data: data}, nil
}

// DecodeRead converts a read response into typed data.
// The item count is clamped to min(decoded size, requested length).
func DecodeRead(bp ReadBlueprint, resp Response) (ReadResult, error) {
	if resp.FunctionCode != bp.FunctionCode {
		return ReadResult{}, fmt.Errorf("decode: function mismatch: got=%s want=%s", resp.FunctionCode, bp.FunctionCode)
	}

	switch bp.FunctionCode {
	case FcReadCoils, FcReadDiscreteInputs:
		n := len(resp.Data) * 8
		if int(bp.Length) < n {
			n = int(bp.Length)
		}
		return ReadResult{Bits: unpackBits(resp.Data, n)}, nil

	case FcReadHoldingRegisters, FcReadInputRegisters:
		return ReadResult{Registers: unpackRegisters(resp.Data, int(bp.Length))}, nil

	default:
		return ReadResult{}, argErr(bp.FunctionCode, "not a read function code")
	}
}

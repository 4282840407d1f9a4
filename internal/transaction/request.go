// internal/transaction/request.go
package transaction

import (
	"errors"
	"fmt"
)

// ErrInvalidBlueprint is matched by every blueprint argument error.
var ErrInvalidBlueprint = errors.New("invalid blueprint")

// ArgumentError reports a blueprint whose payload does not fit its function code.
type ArgumentError struct {
	FunctionCode FunctionCode
	Reason       string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid blueprint (fc=%s): %s", e.FunctionCode, e.Reason)
}

func (e *ArgumentError) Unwrap() error { return ErrInvalidBlueprint }

// Request is a validated wire request ready for a session.
type Request struct {
	UnitID       uint8
	FunctionCode FunctionCode
	Reference    uint16
	Quantity     uint16

	// Single writes carry Value, multiple writes carry the packed Payload.
	Value   uint16
	Payload []byte
}

// BuildRequest validates bp and turns it into a wire request.
func BuildRequest(bp Blueprint) (Request, error) {
	if bp == nil {
		return Request{}, &ArgumentError{Reason: "nil blueprint"}
	}
	return bp.build()
}

func argErr(fc FunctionCode, format string, args ...any) error {
	return &ArgumentError{FunctionCode: fc, Reason: fmt.Sprintf(format, args...)}
}

func (b ReadBlueprint) build() (Request, error) {
	fc := b.FunctionCode
	if !fc.IsRead() {
		return Request{}, argErr(fc, "not a read function code")
	}
	if b.ProtocolID != 0 {
		return Request{}, argErr(fc, "unsupported protocol id %d", b.ProtocolID)
	}
	if b.Length == 0 {
		return Request{}, argErr(fc, "zero length")
	}

	limit := uint16(MaxReadRegisters)
	if fc.IsBitAccess() {
		limit = MaxReadBits
	}
	if b.Length > limit {
		return Request{}, argErr(fc, "length %d exceeds %d", b.Length, limit)
	}

	return Request{
		UnitID:       b.UnitID,
		FunctionCode: fc,
		Reference:    b.Reference,
		Quantity:     b.Length,
	}, nil
}

func (b WriteBlueprint) build() (Request, error) {
	fc := b.FunctionCode
	if !fc.IsWrite() {
		return Request{}, argErr(fc, "not a write function code")
	}
	if b.ProtocolID != 0 {
		return Request{}, argErr(fc, "unsupported protocol id %d", b.ProtocolID)
	}

	req := Request{
		UnitID:       b.UnitID,
		FunctionCode: fc,
		Reference:    b.Reference,
	}

	if fc.IsBitAccess() {
		if len(b.Registers) > 0 {
			return Request{}, argErr(fc, "register payload on a coil write")
		}
		n := len(b.Coils)
		switch {
		case n == 0:
			return Request{}, argErr(fc, "empty payload")
		case fc.isSingleWrite() && n != 1:
			return Request{}, argErr(fc, "%d values on a single-value write", n)
		case n > MaxWriteCoils:
			return Request{}, argErr(fc, "%d coils exceeds %d", n, MaxWriteCoils)
		}
		if fc.isSingleWrite() {
			req.Quantity = 1
			if b.Coils[0] {
				req.Value = 0xFF00
			}
			return req, nil
		}
		req.Quantity = uint16(n)
		req.Payload = packBits(b.Coils)
		return req, nil
	}

	if len(b.Coils) > 0 {
		return Request{}, argErr(fc, "coil payload on a register write")
	}
	n := len(b.Registers)
	switch {
	case n == 0:
		return Request{}, argErr(fc, "empty payload")
	case fc.isSingleWrite() && n != 1:
		return Request{}, argErr(fc, "%d values on a single-value write", n)
	case n > MaxWriteRegisters:
		return Request{}, argErr(fc, "%d registers exceeds %d", n, MaxWriteRegisters)
	}
	if fc.isSingleWrite() {
		req.Quantity = 1
		req.Value = b.Registers[0]
		return req, nil
	}
	req.Quantity = uint16(n)
	req.Payload = packRegisters(b.Registers)
	return req, nil
}

// internal/transaction/blueprint.go
package transaction

import "fmt"

// Blueprint is a caller-supplied description of one read or write.
// It is implemented by ReadBlueprint and WriteBlueprint only.
type Blueprint interface {
	Unit() uint8
	Function() FunctionCode
	build() (Request, error)
}

// ReadBlueprint describes a read of Length items starting at Reference.
type ReadBlueprint struct {
	UnitID       uint8
	ProtocolID   uint16
	FunctionCode FunctionCode
	Reference    uint16
	Length       uint16
}

// WriteBlueprint describes a write. Exactly one of Coils or Registers is used, matching FunctionCode.
type WriteBlueprint struct {
	UnitID       uint8
	ProtocolID   uint16
	FunctionCode FunctionCode
	Reference    uint16

	Coils     []bool
	Registers []uint16
}

func (b ReadBlueprint) Unit() uint8            { return b.UnitID }
func (b ReadBlueprint) Function() FunctionCode { return b.FunctionCode }

func (b WriteBlueprint) Unit() uint8            { return b.UnitID }
func (b WriteBlueprint) Function() FunctionCode { return b.FunctionCode }

func (b ReadBlueprint) String() string {
	return fmt.Sprintf("read{unit=%d fc=%s ref=%d len=%d}", b.UnitID, b.FunctionCode, b.Reference, b.Length)
}

func (b WriteBlueprint) String() string {
	n := len(b.Registers)
	if b.FunctionCode.IsBitAccess() {
		n = len(b.Coils)
	}
	return fmt.Sprintf("write{unit=%d fc=%s ref=%d count=%d}", b.UnitID, b.FunctionCode, b.Reference, n)
}

// ReadResult holds decoded read data.
// Bits is set for coil/discrete-input reads, Registers for register reads.
type ReadResult struct {
	Bits      []bool
	Registers []uint16
}

// Len returns the number of decoded items.
func (r ReadResult) Len() int {
	if r.Bits != nil {
		return len(r.Bits)
	}
	return len(r.Registers)
}

// WriteAck acknowledges a completed write.
type WriteAck struct {
	FunctionCode FunctionCode
}

// internal/transaction/function_code.go
package transaction

import "fmt"

// FunctionCode is a Modbus public function code.
type FunctionCode uint8

const (
	FcReadCoils              FunctionCode = 0x01 // 1-2000 coils
	FcReadDiscreteInputs     FunctionCode = 0x02 // 1-2000 inputs
	FcReadHoldingRegisters   FunctionCode = 0x03 // 1-125 registers
	FcReadInputRegisters     FunctionCode = 0x04 // 1-125 registers
	FcWriteSingleCoil        FunctionCode = 0x05
	FcWriteSingleRegister    FunctionCode = 0x06
	FcWriteMultipleCoils     FunctionCode = 0x0F // 1-1968 coils
	FcWriteMultipleRegisters FunctionCode = 0x10 // 1-123 registers
)

// Quantity limits per request.
const (
	MaxReadBits       = 2000
	MaxReadRegisters  = 125
	MaxWriteCoils     = 1968
	MaxWriteRegisters = 123
)

func (fc FunctionCode) String() string {
	switch fc {
	case FcReadCoils:
		return "Read_Coils"
	case FcReadDiscreteInputs:
		return "Read_Discrete_Inputs"
	case FcReadHoldingRegisters:
		return "Read_Holding_Registers"
	case FcReadInputRegisters:
		return "Read_Input_Registers"
	case FcWriteSingleCoil:
		return "Write_Single_Coil"
	case FcWriteSingleRegister:
		return "Write_Single_Register"
	case FcWriteMultipleCoils:
		return "Write_Multiple_Coils"
	case FcWriteMultipleRegisters:
		return "Write_Multiple_Registers"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", uint8(fc))
	}
}

func (fc FunctionCode) IsRead() bool {
	switch fc {
	case FcReadCoils, FcReadDiscreteInputs, FcReadHoldingRegisters, FcReadInputRegisters:
		return true
	default:
		return false
	}
}

func (fc FunctionCode) IsWrite() bool {
	switch fc {
	case FcWriteSingleCoil, FcWriteSingleRegister, FcWriteMultipleCoils, FcWriteMultipleRegisters:
		return true
	default:
		return false
	}
}

// IsBitAccess reports whether the code addresses coils or discrete inputs.
func (fc FunctionCode) IsBitAccess() bool {
	switch fc {
	case FcReadCoils, FcReadDiscreteInputs, FcWriteSingleCoil, FcWriteMultipleCoils:
		return true
	default:
		return false
	}
}

func (fc FunctionCode) isSingleWrite() bool {
	return fc == FcWriteSingleCoil || fc == FcWriteSingleRegister
}

// internal/poller/types.go
package poller

import (
	"fmt"
	"time"

	"github.com/tamzrod/modbus-transport/internal/transaction"
)

// ReadBlock is one read geometry on the source slave.
type ReadBlock struct {
	FC       uint8
	Address  uint16
	Quantity uint16
}

func (rb ReadBlock) Function() transaction.FunctionCode { return transaction.FunctionCode(rb.FC) }

func (rb ReadBlock) String() string {
	return fmt.Sprintf("%s@%d+%d", rb.Function(), rb.Address, rb.Quantity)
}

// BlockResult pairs a block with its decoded data.
// Bits is set for coil and discrete input blocks, Registers otherwise.
type BlockResult struct {
	ReadBlock
	transaction.ReadResult
}

// PollResult is emitted each time a read of one block completes.
type PollResult struct {
	UnitID string
	At     time.Time

	// RawErrorCode is the slave exception code for exception responses,
	// a transport error code otherwise. 0 means success.
	RawErrorCode uint16

	Blocks []BlockResult // empty on failure
	Err    error
}

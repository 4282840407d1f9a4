// internal/transaction/mismatch.go
package transaction

import (
	"encoding/binary"
	"fmt"
)

// TransactionMismatchError reports a response that does not belong to the request.
type TransactionMismatchError struct {
	Request  uint16
	Response uint16
}

func (e *TransactionMismatchError) Error() string {
	return fmt.Sprintf("modbus: transaction id mismatch: got=%d want=%d", e.Response, e.Request)
}

// CheckTransactionID compares the MBAP transaction ids of a request and response ADU.
// Headless transports (RTU/ASCII) carry no id and always pass.
func CheckTransactionID(reqADU, respADU []byte, headless bool) error {
	if headless {
		return nil
	}
	if len(reqADU) < 2 || len(respADU) < 2 {
		return fmt.Errorf("modbus: adu too short for transaction id (req=%d resp=%d)", len(reqADU), len(respADU))
	}

	want := binary.BigEndian.Uint16(reqADU)
	got := binary.BigEndian.Uint16(respADU)
	if got != want {
		return &TransactionMismatchError{Request: want, Response: got}
	}
	return nil
}

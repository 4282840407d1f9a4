// internal/transport/packager.go
package transport

import (
	"github.com/goburrow/modbus"

	"github.com/tamzrod/modbus-transport/internal/transaction"
)

// verifyingPackager checks transaction ids before the inner packager runs its own checks,
// so a desynchronised response surfaces as a typed mismatch.
type verifyingPackager struct {
	modbus.Packager
	headless bool
}

func (p verifyingPackager) Verify(aduRequest, aduResponse []byte) error {
	if err := transaction.CheckTransactionID(aduRequest, aduResponse, p.headless); err != nil {
		return err
	}
	return p.Packager.Verify(aduRequest, aduResponse)
}

// internal/transaction/errors.go
package transaction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"
)

// Kind classifies a failed operation.
type Kind uint8

const (
	KindConnectionUnavailable Kind = iota + 1
	KindIO
	KindProtocol
	KindTransactionMismatch
	KindOtherProtocol
	KindUnregistered
	KindInterrupted
)

func (k Kind) String() string {
	switch k {
	case KindConnectionUnavailable:
		return "connection_unavailable"
	case KindIO:
		return "io"
	case KindProtocol:
		return "slave_exception"
	case KindTransactionMismatch:
		return "transaction_mismatch"
	case KindOtherProtocol:
		return "other_protocol"
	case KindUnregistered:
		return "unregistered"
	case KindInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// ResetsConnection reports whether a failure of this kind discards the session.
// A slave exception leaves the session healthy.
func (k Kind) ResetsConnection() bool {
	switch k {
	case KindIO, KindTransactionMismatch, KindOtherProtocol:
		return true
	default:
		return false
	}
}

// Error is the classified error handed to error callbacks.
type Error struct {
	Kind     Kind
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Endpoint, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Endpoint, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Code exposes a numeric error code.
// Slave exceptions report their exception code; other kinds map above the exception range.
func (e *Error) Code() uint16 {
	var me *modbus.ModbusError
	if errors.As(e.Err, &me) {
		return uint16(me.ExceptionCode)
	}
	return 0x100 + uint16(e.Kind)
}

// Classify maps a raw error into a Kind. Nil returns 0.
func Classify(err error) Kind {
	if err == nil {
		return 0
	}

	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}

	var me *modbus.ModbusError
	if errors.As(err, &me) {
		return KindProtocol
	}

	var mm *TransactionMismatchError
	if errors.As(err, &mm) {
		return KindTransactionMismatch
	}

	if errors.Is(err, context.Canceled) {
		return KindInterrupted
	}

	if isIOError(err) {
		return KindIO
	}

	return KindOtherProtocol
}

func isIOError(err error) bool {
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, serial.ErrTimeout) {
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return true
	}

	var pe *os.PathError
	return errors.As(err, &pe)
}

// Wrap classifies err and attaches the endpoint. Nil stays nil.
func Wrap(endpoint string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return &Error{Kind: Classify(err), Endpoint: endpoint, Err: err}
}

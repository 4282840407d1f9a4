// internal/manager/task.go
package manager

import (
	"fmt"

	"github.com/tamzrod/modbus-transport/internal/endpoint"
	"github.com/tamzrod/modbus-transport/internal/transaction"
)

// ReadCallback receives the outcome of a read.
type ReadCallback interface {
	OnData(req transaction.ReadBlueprint, res transaction.ReadResult)
	OnError(req transaction.ReadBlueprint, err error)
}

// WriteCallback receives the outcome of a write.
type WriteCallback interface {
	OnWriteResponse(req transaction.WriteBlueprint, ack transaction.WriteAck)
	OnError(req transaction.WriteBlueprint, err error)
}

// ReadCallbackFuncs adapts plain functions to ReadCallback. Nil fields are skipped.
type ReadCallbackFuncs struct {
	Data  func(req transaction.ReadBlueprint, res transaction.ReadResult)
	Error func(req transaction.ReadBlueprint, err error)
}

func (f ReadCallbackFuncs) OnData(req transaction.ReadBlueprint, res transaction.ReadResult) {
	if f.Data != nil {
		f.Data(req, res)
	}
}

func (f ReadCallbackFuncs) OnError(req transaction.ReadBlueprint, err error) {
	if f.Error != nil {
		f.Error(req, err)
	}
}

// WriteCallbackFuncs adapts plain functions to WriteCallback. Nil fields are skipped.
type WriteCallbackFuncs struct {
	Response func(req transaction.WriteBlueprint, ack transaction.WriteAck)
	Error    func(req transaction.WriteBlueprint, err error)
}

func (f WriteCallbackFuncs) OnWriteResponse(req transaction.WriteBlueprint, ack transaction.WriteAck) {
	if f.Response != nil {
		f.Response(req, ack)
	}
}

func (f WriteCallbackFuncs) OnError(req transaction.WriteBlueprint, err error) {
	if f.Error != nil {
		f.Error(req, err)
	}
}

// PollTask is a read against one endpoint.
// Registered polls are keyed by pointer: register the same *PollTask to replace its schedule.
type PollTask struct {
	Endpoint endpoint.Endpoint
	Request  transaction.ReadBlueprint
	Callback ReadCallback
	MaxTries int
}

func (t *PollTask) String() string {
	return fmt.Sprintf("poll{%s %s max_tries=%d}", t.Endpoint, t.Request, t.MaxTries)
}

// WriteTask is a one-off write against one endpoint.
type WriteTask struct {
	Endpoint endpoint.Endpoint
	Request  transaction.WriteBlueprint
	Callback WriteCallback
	MaxTries int
}

func (t *WriteTask) String() string {
	return fmt.Sprintf("write{%s %s max_tries=%d}", t.Endpoint, t.Request, t.MaxTries)
}

// ---- operation variants ----

// operation is the read/write specific part of the retry engine.
type operation interface {
	endpoint() endpoint.Endpoint
	maxTries() int
	blueprint() transaction.Blueprint

	// try runs one wire transaction and returns the success delivery (nil without callback).
	try(s transaction.Session, req transaction.Request) (func(), error)

	// failure returns the error delivery (nil without callback).
	failure(err error) func()

	String() string
}

type readOp struct{ t *PollTask }

func (o readOp) endpoint() endpoint.Endpoint      { return o.t.Endpoint }
func (o readOp) maxTries() int                    { return o.t.MaxTries }
func (o readOp) blueprint() transaction.Blueprint { return o.t.Request }
func (o readOp) String() string                   { return o.t.String() }

func (o readOp) try(s transaction.Session, req transaction.Request) (func(), error) {
	resp, err := transaction.Execute(req, s)
	if err != nil {
		return nil, err
	}
	res, err := transaction.DecodeRead(o.t.Request, resp)
	if err != nil {
		return nil, err
	}
	cb := o.t.Callback
	if cb == nil {
		return nil, nil
	}
	bp := o.t.Request
	return func() { cb.OnData(bp, res) }, nil
}

func (o readOp) failure(err error) func() {
	cb := o.t.Callback
	if cb == nil {
		return nil
	}
	bp := o.t.Request
	return func() { cb.OnError(bp, err) }
}

type writeOp struct{ t *WriteTask }

func (o writeOp) endpoint() endpoint.Endpoint      { return o.t.Endpoint }
func (o writeOp) maxTries() int                    { return o.t.MaxTries }
func (o writeOp) blueprint() transaction.Blueprint { return o.t.Request }
func (o writeOp) String() string                   { return o.t.String() }

func (o writeOp) try(s transaction.Session, req transaction.Request) (func(), error) {
	resp, err := transaction.Execute(req, s)
	if err != nil {
		return nil, err
	}
	cb := o.t.Callback
	if cb == nil {
		return nil, nil
	}
	bp := o.t.Request
	ack := transaction.WriteAck{FunctionCode: resp.FunctionCode}
	return func() { cb.OnWriteResponse(bp, ack) }, nil
}

func (o writeOp) failure(err error) func() {
	cb := o.t.Callback
	if cb == nil {
		return nil
	}
	bp := o.t.Request
	return func() { cb.OnError(bp, err) }
}

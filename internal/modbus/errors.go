// Package modbus provides a serialised, auto-reconnecting Modbus TCP
// client tailored to the access pattern of the Alfen charger driver:
// one logical owner, bounded retries, and a hard split between
// transport failures (retry) and protocol failures (fail fast).
package modbus

import "fmt"

// ReadError is returned when a holding-register read fails after
// exhausting retries or is rejected outright by the slave.
type ReadError struct {
	Address uint16
	Count   uint16
	SlaveID byte
	Cause   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("modbus: read %d regs at %d (slave %d): %v", e.Count, e.Address, e.SlaveID, e.Cause)
}

func (e *ReadError) Unwrap() error { return e.Cause }

// WriteError is returned when a register write fails after exhausting
// retries or is rejected outright by the slave.
type WriteError struct {
	Address uint16
	SlaveID byte
	Cause   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("modbus: write at %d (slave %d): %v", e.Address, e.SlaveID, e.Cause)
}

func (e *WriteError) Unwrap() error { return e.Cause }

// RetryExhaustedError wraps the last cause after a bounded retry
// policy has used up every attempt on a transport-class failure.
type RetryExhaustedError struct {
	Operation string
	Attempts  int
	LastCause error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("modbus: %s failed after %d attempts: %v", e.Operation, e.Attempts, e.LastCause)
}

func (e *RetryExhaustedError) Unwrap() error { return e.LastCause }

// VerificationError is returned by the setpoint writer when a
// readback following a write disagrees with the written value by more
// than the configured tolerance.
type VerificationError struct {
	Register uint16
	Written  float64
	ReadBack float64
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("modbus: verification failed at register %d: wrote %.3f, read back %.3f", e.Register, e.Written, e.ReadBack)
}

// IsProtocolError reports whether cause is a Modbus exception response
// (illegal function, illegal data address, illegal data value, ...)
// as opposed to a transport failure (closed socket, timeout, refused
// connection). Protocol errors are not retried.
func IsProtocolError(cause error) bool {
	_, ok := cause.(*ProtocolError)
	return ok
}

// ProtocolError mirrors a Modbus exception response from the slave.
// goburrow/modbus surfaces these as its own unexported error type; we
// re-wrap anything matching "exception code" text into this typed
// form so callers never need to depend on the underlying library's
// error representation.
type ProtocolError struct {
	FunctionCode  byte
	ExceptionCode byte
	Cause         error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("modbus: protocol exception function=%#x code=%#x: %v", e.FunctionCode, e.ExceptionCode, e.Cause)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

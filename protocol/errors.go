package protocol

import (
	"errors"
	"fmt"
)

// ErrorClass groups failures by how the session reacts to them
type ErrorClass int

const (
	// ClassTransport covers timeouts, closed sockets and failed connects
	ClassTransport ErrorClass = iota
	// ClassProtocol covers magic id mismatches and wrong frame sizes
	ClassProtocol
	// ClassIntegrity covers CRC disagreements; never surfaced as a failure
	ClassIntegrity
	// ClassAlgorithmic covers local computation failures such as a zero ratio denominator
	ClassAlgorithmic
	// ClassConfiguration covers unsupported firmware and unknown devices
	ClassConfiguration
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransport:
		return "transport"
	case ClassProtocol:
		return "protocol"
	case ClassIntegrity:
		return "integrity"
	case ClassAlgorithmic:
		return "algorithmic"
	case ClassConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

var (
	ErrNoDeviceFound       = errors.New("no TXT controller found")
	ErrProtocolMismatch    = errors.New("protocol mismatch")
	ErrUnsupportedFirmware = errors.New("unsupported firmware version")
	ErrFrameDecode         = errors.New("frame decode error")
	ErrDeviceNotFound      = errors.New("device not found")
	ErrOffline             = errors.New("session is offline")
	ErrNotSupported        = errors.New("not supported in this mode")
	ErrClosed              = errors.New("transport closed")
)

// Error attaches a class and the failing operation to an underlying error
type Error struct {
	Class ErrorClass
	Op    string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Class, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a classified error whose message is formatted like fmt.Errorf.
// A %w verb in format keeps the wrapped error reachable through errors.Is.
func Errorf(class ErrorClass, op string, format string, args ...any) error {
	return &Error{Class: class, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err, returning nil when err is nil
func Wrap(class ErrorClass, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Class: class, Op: op, Err: err}
}

// Classify reports the class of err. Unclassified errors count as transport
// failures since they originate from the underlying connection.
func Classify(err error) ErrorClass {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	switch {
	case errors.Is(err, ErrProtocolMismatch), errors.Is(err, ErrFrameDecode):
		return ClassProtocol
	case errors.Is(err, ErrUnsupportedFirmware), errors.Is(err, ErrDeviceNotFound):
		return ClassConfiguration
	}
	return ClassTransport
}

// IsFatal reports whether err must take an exchange session offline
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch Classify(err) {
	case ClassIntegrity, ClassAlgorithmic:
		return false
	}
	return true
}

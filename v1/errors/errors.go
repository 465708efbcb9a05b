package errors

import "errors"

var (
	ErrTimeout          = errors.New("timeout")
	ErrConnectionClosed = errors.New("connection closed")
	// ErrNotConnected is returned by a store whose connection could not be
	// established or re-established.
	ErrNotConnected = errors.New("raceblock: store not connected")
	// ErrInvalidKey is returned when an empty logical key is supplied.
	ErrInvalidKey = errors.New("raceblock: a key must be provided to start a race block")
	// ErrAtomicUnsupported is returned when the atomic election mode is
	// requested on a store that cannot set a value only if absent.
	ErrAtomicUnsupported = errors.New("raceblock: store does not support atomic set-if-absent")
	ErrInvalidConfig     = errors.New("raceblock: invalid configuration")
)

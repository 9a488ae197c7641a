package ble

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled reports a transmission stopped between chunks.
	ErrCancelled = errors.New("ble: transmission cancelled")
	// ErrTransmissionFailed is matched by every *TransmissionError.
	ErrTransmissionFailed = errors.New("ble: transmission failed")
	// ErrConnectionFailed reports a failed connect or service discovery.
	ErrConnectionFailed = errors.New("ble: connection failed")
	// ErrNoWritableCharacteristic reports a device that exposes no
	// characteristic accepting writes. Reconnecting does not help.
	ErrNoWritableCharacteristic = errors.New("ble: no writable characteristic found")
	// ErrNotConnected reports a write attempted without an active link.
	ErrNotConnected = errors.New("ble: not connected")
)

// TransmissionError is a chunk write rejected by the transport.
type TransmissionError struct {
	// Index is the zero-based index of the failing chunk.
	Index int
	Err   error
}

func (e *TransmissionError) Error() string {
	return fmt.Sprintf("ble: transmission failed at chunk %d: %v", e.Index, e.Err)
}

func (e *TransmissionError) Unwrap() []error {
	return []error{ErrTransmissionFailed, e.Err}
}

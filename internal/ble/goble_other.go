//go:build !linux

package ble

import (
	"errors"
	"runtime"
)

// GoBLETransport is only available on Linux.
type GoBLETransport struct{ TinyGoTransport }

// NewGoBLETransport fails outside Linux; use the tinygo backend instead.
func NewGoBLETransport() (*GoBLETransport, error) {
	return nil, errors.New("ble: go-ble backend is not supported on " + runtime.GOOS)
}

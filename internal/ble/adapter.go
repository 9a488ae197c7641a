// Package ble manages the Bluetooth Low Energy link to a thermal receipt
// printer. It owns connection state, characteristic discovery and
// bounded auto-reconnect, and delivers command streams in ordered,
// paced chunks.
package ble

import "context"

// Property is a bit set of GATT characteristic capabilities.
type Property uint8

const (
	PropRead Property = 1 << iota
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
)

// Has reports whether every bit of q is set in p.
func (p Property) Has(q Property) bool {
	return p&q == q
}

// CharacteristicInfo describes one discovered characteristic.
type CharacteristicInfo struct {
	Service        string
	Characteristic string
	Properties     Property
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Transport abstracts the platform BLE stack. Addresses are MAC
// addresses on Linux and CoreBluetooth UUIDs on macOS.
type Transport interface {
	// Enable powers on the adapter.
	Enable() error
	// Scan reports advertising peripherals until ctx is done.
	Scan(ctx context.Context) ([]Device, error)
	// Connect establishes a link to addr.
	Connect(ctx context.Context, addr string) error
	// DiscoverServices lists every characteristic of every service on addr.
	DiscoverServices(ctx context.Context, addr string) ([]CharacteristicInfo, error)
	// WriteWithoutResponse writes data to a characteristic without waiting
	// for an acknowledgment.
	WriteWithoutResponse(addr, service, characteristic string, data []byte) error
	// WriteWithResponse writes data and waits for the peripheral's acknowledgment.
	WriteWithResponse(addr, service, characteristic string, data []byte) error
	// IsConnected reports whether the stack still holds a link to addr.
	IsConnected(addr string) bool
	// Disconnect drops the link to addr.
	Disconnect(addr string) error
}

// DisconnectNotifier is implemented by transports that observe
// peripheral-initiated disconnects as they happen.
type DisconnectNotifier interface {
	SetDisconnectHandler(func(addr string))
}

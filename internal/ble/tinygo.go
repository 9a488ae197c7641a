package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"
)

// knownWritable lists printer characteristics known to accept writes.
// tinygo/bluetooth does not expose GATT property bits, so discovery
// reports capabilities from this table, see guessProperties.
var knownWritable = map[string]Property{
	"00002af1-0000-1000-8000-00805f9b34fb": PropWrite | PropWriteWithoutResponse, // 18f0 service printers
	"49535343-8841-43f4-a8d4-ecbe34729bb3": PropWrite | PropWriteWithoutResponse, // ISSC transparent UART
	"0000ff02-0000-1000-8000-00805f9b34fb": PropWrite | PropWriteWithoutResponse,
	"0000ae01-0000-1000-8000-00805f9b34fb": PropWriteWithoutResponse,
	"0000ffe1-0000-1000-8000-00805f9b34fb": PropWrite | PropWriteWithoutResponse, // HM-10 style modules
	"bef8d6c9-9c21-4c9e-b632-bd58c1009f9f": PropWrite | PropWriteWithoutResponse,
}

// standardServices are SIG-adopted services that never carry print data.
var standardServices = map[string]bool{
	"00001800-0000-1000-8000-00805f9b34fb": true, // generic access
	"00001801-0000-1000-8000-00805f9b34fb": true, // generic attribute
	"0000180a-0000-1000-8000-00805f9b34fb": true, // device information
	"0000180f-0000-1000-8000-00805f9b34fb": true, // battery
}

// guessProperties returns the capabilities assumed for a discovered
// characteristic: the knownWritable entry when there is one, PropWrite
// for any other characteristic outside the standard services, and
// nothing inside them. Known entries sort ahead of guesses because
// selection prefers write-without-response.
func guessProperties(service, characteristic string) Property {
	if p, ok := knownWritable[strings.ToLower(characteristic)]; ok {
		return p
	}
	if standardServices[strings.ToLower(service)] {
		return 0
	}
	return PropWrite
}

// TinyGoTransport implements Transport on tinygo-org/bluetooth, which
// drives BlueZ on Linux, CoreBluetooth on macOS and WinRT on Windows.
type TinyGoTransport struct {
	adapter *bluetooth.Adapter

	// mu protects the maps and the disconnect handler.
	mu      sync.Mutex
	devices map[string]*tinygoPeer // keyed by upper-case address
	onLost  func(addr string)
	enabled bool
}

type tinygoPeer struct {
	device    bluetooth.Device
	chars     map[string]bluetooth.DeviceCharacteristic // keyed by service/characteristic
	connected bool
}

// NewTinyGoTransport creates a transport on the default adapter.
func NewTinyGoTransport() *TinyGoTransport {
	return &TinyGoTransport{
		adapter: bluetooth.DefaultAdapter,
		devices: make(map[string]*tinygoPeer),
	}
}

func addrKey(addr string) string {
	return strings.ToUpper(addr)
}

func charKey(service, characteristic string) string {
	return strings.ToLower(service) + "/" + strings.ToLower(characteristic)
}

func (t *TinyGoTransport) Enable() error {
	t.mu.Lock()
	if t.enabled {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.adapter.Enable(); err != nil {
		return err
	}

	// The stack reports peripheral-side disconnects through the
	// adapter-wide connect handler.
	t.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		key := addrKey(device.Address.String())
		t.mu.Lock()
		peer, ok := t.devices[key]
		if ok {
			peer.connected = false
		}
		cb := t.onLost
		t.mu.Unlock()
		if ok && cb != nil {
			cb(device.Address.String())
		}
	})

	t.mu.Lock()
	t.enabled = true
	t.mu.Unlock()
	return nil
}

// SetDisconnectHandler registers the callback for lost links.
func (t *TinyGoTransport) SetDisconnectHandler(cb func(addr string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLost = cb
}

func (t *TinyGoTransport) Scan(ctx context.Context) ([]Device, error) {
	var mu sync.Mutex
	var devices []Device
	seen := make(map[string]bool)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			t.adapter.StopScan()
		case <-done:
		}
	}()

	err := t.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		addr := result.Address.String()
		mu.Lock()
		defer mu.Unlock()
		if seen[addr] {
			return
		}
		seen[addr] = true
		devices = append(devices, Device{
			Name:    result.LocalName(),
			Address: addr,
			RSSI:    int(result.RSSI),
		})
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	mu.Lock()
	defer mu.Unlock()
	return devices, nil
}

func (t *TinyGoTransport) Connect(ctx context.Context, addr string) error {
	if err := t.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	var a bluetooth.Address
	a.Set(addr)

	// adapter.Connect blocks with its own timeout; ctx only bounds the wait.
	ch := make(chan connectResult, 1)
	go func() {
		device, err := t.adapter.Connect(a, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		go dropLate(ch, func(d bluetooth.Device) error { return d.Disconnect() })
		return fmt.Errorf("ble: connect to %s: %w", addr, ctx.Err())
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("ble: connect to %s: %w", addr, res.err)
		}
		t.mu.Lock()
		t.devices[addrKey(addr)] = &tinygoPeer{
			device:    res.device,
			chars:     make(map[string]bluetooth.DeviceCharacteristic),
			connected: true,
		}
		t.mu.Unlock()
		return nil
	}
}

type connectResult struct {
	device bluetooth.Device
	err    error
}

// dropLate waits for a connect the caller gave up on and disconnects the
// device if it came up anyway, so the next attempt starts from a clean
// link.
func dropLate(ch <-chan connectResult, disconnect func(bluetooth.Device) error) {
	res := <-ch
	if res.err != nil {
		return
	}
	_ = disconnect(res.device)
}

func (t *TinyGoTransport) peer(addr string) (*tinygoPeer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.devices[addrKey(addr)]
	if !ok || !p.connected {
		return nil, fmt.Errorf("ble: %s: %w", addr, ErrNotConnected)
	}
	return p, nil
}

func (t *TinyGoTransport) DiscoverServices(ctx context.Context, addr string) ([]CharacteristicInfo, error) {
	p, err := t.peer(addr)
	if err != nil {
		return nil, err
	}

	svcs, err := p.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}

	var infos []CharacteristicInfo
	found := make(map[string]bluetooth.DeviceCharacteristic)
	for _, svc := range svcs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: discover characteristics of %s: %w", svc.UUID().String(), err)
		}
		for _, c := range chars {
			sid, cid := svc.UUID().String(), c.UUID().String()
			found[charKey(sid, cid)] = c
			infos = append(infos, CharacteristicInfo{
				Service:        sid,
				Characteristic: cid,
				Properties:     guessProperties(sid, cid),
			})
		}
	}

	t.mu.Lock()
	p.chars = found
	t.mu.Unlock()
	return infos, nil
}

func (t *TinyGoTransport) characteristic(addr, service, characteristic string) (bluetooth.DeviceCharacteristic, error) {
	p, err := t.peer(addr)
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, err
	}
	t.mu.Lock()
	c, ok := p.chars[charKey(service, characteristic)]
	t.mu.Unlock()
	if !ok {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("ble: characteristic %s not discovered on %s", characteristic, addr)
	}
	return c, nil
}

func (t *TinyGoTransport) WriteWithoutResponse(addr, service, characteristic string, data []byte) error {
	c, err := t.characteristic(addr, service, characteristic)
	if err != nil {
		return err
	}
	_, err = c.WriteWithoutResponse(data)
	return err
}

func (t *TinyGoTransport) WriteWithResponse(addr, service, characteristic string, data []byte) error {
	c, err := t.characteristic(addr, service, characteristic)
	if err != nil {
		return err
	}
	_, err = c.Write(data)
	return err
}

func (t *TinyGoTransport) IsConnected(addr string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.devices[addrKey(addr)]
	return ok && p.connected
}

func (t *TinyGoTransport) Disconnect(addr string) error {
	t.mu.Lock()
	p, ok := t.devices[addrKey(addr)]
	delete(t.devices, addrKey(addr))
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return p.device.Disconnect()
}

// Compile-time checks that TinyGoTransport implements the transport interfaces.
var (
	_ Transport          = (*TinyGoTransport)(nil)
	_ DisconnectNotifier = (*TinyGoTransport)(nil)
)

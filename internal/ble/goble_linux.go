//go:build linux

package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// GoBLETransport implements Transport over the Linux HCI socket with
// go-ble/ble. Unlike TinyGoTransport it reports real GATT property bits.
type GoBLETransport struct {
	mu      sync.Mutex
	device  *linux.Device
	clients map[string]*gobleClient // keyed by upper-case address
	onLost  func(addr string)
}

type gobleClient struct {
	client goble.Client
	chars  map[string]*goble.Characteristic // keyed by service/characteristic
	lost   bool
}

// NewGoBLETransport creates a transport; the HCI device opens on Enable.
func NewGoBLETransport() (*GoBLETransport, error) {
	return &GoBLETransport{clients: make(map[string]*gobleClient)}, nil
}

func (t *GoBLETransport) Enable() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.device != nil {
		return nil
	}
	d, err := linux.NewDevice()
	if err != nil {
		return fmt.Errorf("ble: open HCI device: %w", err)
	}
	goble.SetDefaultDevice(d)
	t.device = d
	return nil
}

// SetDisconnectHandler registers the callback for lost links.
func (t *GoBLETransport) SetDisconnectHandler(cb func(addr string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLost = cb
}

func (t *GoBLETransport) Scan(ctx context.Context) ([]Device, error) {
	if err := t.Enable(); err != nil {
		return nil, err
	}
	var mu sync.Mutex
	var devices []Device
	seen := make(map[string]bool)

	err := goble.Scan(ctx, false, func(a goble.Advertisement) {
		addr := strings.ToUpper(a.Addr().String())
		mu.Lock()
		defer mu.Unlock()
		if seen[addr] {
			return
		}
		seen[addr] = true
		devices = append(devices, Device{Name: a.LocalName(), Address: addr, RSSI: a.RSSI()})
	}, nil)
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	mu.Lock()
	defer mu.Unlock()
	return devices, nil
}

func (t *GoBLETransport) Connect(ctx context.Context, addr string) error {
	if err := t.Enable(); err != nil {
		return err
	}
	client, err := goble.Dial(ctx, goble.NewAddr(addr))
	if err != nil {
		return fmt.Errorf("ble: dial %s: %w", addr, err)
	}

	c := &gobleClient{client: client, chars: make(map[string]*goble.Characteristic)}
	t.mu.Lock()
	t.clients[addrKey(addr)] = c
	t.mu.Unlock()

	go func() {
		<-client.Disconnected()
		t.mu.Lock()
		c.lost = true
		current := t.clients[addrKey(addr)] == c
		cb := t.onLost
		t.mu.Unlock()
		// A link replaced or dropped on purpose is not reported.
		if current && cb != nil {
			cb(addr)
		}
	}()
	return nil
}

func (t *GoBLETransport) client(addr string) (*gobleClient, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.clients[addrKey(addr)]
	if !ok || c.lost {
		return nil, fmt.Errorf("ble: %s: %w", addr, ErrNotConnected)
	}
	return c, nil
}

func (t *GoBLETransport) DiscoverServices(ctx context.Context, addr string) ([]CharacteristicInfo, error) {
	c, err := t.client(addr)
	if err != nil {
		return nil, err
	}
	prof, err := c.client.DiscoverProfile(true)
	if err != nil {
		return nil, fmt.Errorf("ble: discover profile: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var infos []CharacteristicInfo
	found := make(map[string]*goble.Characteristic)
	for _, s := range prof.Services {
		for _, ch := range s.Characteristics {
			sid, cid := s.UUID.String(), ch.UUID.String()
			found[charKey(sid, cid)] = ch
			infos = append(infos, CharacteristicInfo{
				Service:        sid,
				Characteristic: cid,
				Properties:     fromGoBLE(ch.Property),
			})
		}
	}

	t.mu.Lock()
	c.chars = found
	t.mu.Unlock()
	return infos, nil
}

func fromGoBLE(p goble.Property) Property {
	var out Property
	if p&goble.CharRead != 0 {
		out |= PropRead
	}
	if p&goble.CharWriteNR != 0 {
		out |= PropWriteWithoutResponse
	}
	if p&goble.CharWrite != 0 {
		out |= PropWrite
	}
	if p&goble.CharNotify != 0 {
		out |= PropNotify
	}
	if p&goble.CharIndicate != 0 {
		out |= PropIndicate
	}
	return out
}

func (t *GoBLETransport) write(addr, service, characteristic string, data []byte, noRsp bool) error {
	c, err := t.client(addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	ch, ok := c.chars[charKey(service, characteristic)]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("ble: characteristic %s not discovered on %s", characteristic, addr)
	}
	return c.client.WriteCharacteristic(ch, data, noRsp)
}

func (t *GoBLETransport) WriteWithoutResponse(addr, service, characteristic string, data []byte) error {
	return t.write(addr, service, characteristic, data, true)
}

func (t *GoBLETransport) WriteWithResponse(addr, service, characteristic string, data []byte) error {
	return t.write(addr, service, characteristic, data, false)
}

func (t *GoBLETransport) IsConnected(addr string) bool {
	_, err := t.client(addr)
	return err == nil
}

func (t *GoBLETransport) Disconnect(addr string) error {
	t.mu.Lock()
	c, ok := t.clients[addrKey(addr)]
	delete(t.clients, addrKey(addr))
	t.mu.Unlock()
	if !ok || c.lost {
		return nil
	}
	return c.client.CancelConnection()
}

// Compile-time checks that GoBLETransport implements the transport interfaces.
var (
	_ Transport          = (*GoBLETransport)(nil)
	_ DisconnectNotifier = (*GoBLETransport)(nil)
)

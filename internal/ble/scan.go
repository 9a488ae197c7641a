package ble

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// ScanForDevices scans for advertising peripherals for the given
// duration and returns them strongest signal first.
func ScanForDevices(t Transport, duration time.Duration) ([]Device, error) {
	if err := t.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	devices, err := t.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].RSSI > devices[j].RSSI
	})
	return devices, nil
}

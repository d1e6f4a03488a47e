// Package transport implements connection.Transport adapters: a real BLE
// GATT adapter over tinygo.org/x/bluetooth, and a serial passthrough
// adapter over go.bug.st/serial for bench-testing decoders against
// UART dev rigs.
package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/eucdash/wheelcore/internal/wheel/detect"
)

// BLE is a connection.Transport backed by a real BLE adapter. Grounded
// on the adapter-enable/scan/stop-scan shape shown across the pack's
// BLE tooling (broodminder-scan's adapter.Scan/StopScan pair) and the
// EnableNotifications-driven receive loop used for streaming sensor
// data (go-ble-sync-cycle's bleCharacteristic.EnableNotifications).
type BLE struct {
	adapter *bluetooth.Adapter
	log     *logrus.Entry

	mu        sync.Mutex
	device    bluetooth.Device
	writeCh   bluetooth.DeviceCharacteristic
	notifyCh  bluetooth.DeviceCharacteristic
	connected bool

	onServices   func(services detect.DiscoveredServices, deviceName string)
	onData       func(chunk []byte)
	onDisconnect func(reason error)
}

// NewBLE returns a BLE transport using the system's default adapter.
func NewBLE(log *logrus.Entry) *BLE {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &BLE{adapter: bluetooth.DefaultAdapter, log: log}
}

func (b *BLE) OnServicesDiscovered(cb func(services detect.DiscoveredServices, deviceName string)) {
	b.onServices = cb
}

func (b *BLE) OnDataReceived(cb func(chunk []byte)) {
	b.onData = cb
}

func (b *BLE) OnDisconnect(cb func(reason error)) {
	b.onDisconnect = cb
}

// StartScan enables the adapter and reports every advertisement seen;
// callers filter by name/address and call Connect themselves.
func (b *BLE) StartScan(found func(address, name string)) error {
	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	return b.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		found(result.Address.String(), result.LocalName())
	})
}

func (b *BLE) StopScan() {
	if err := b.adapter.StopScan(); err != nil {
		b.log.WithError(err).Debug("ble: stop scan")
	}
}

// Connect dials the peripheral at address, discovers every known wheel
// GATT service, and wires up notifications on whichever read/notify
// characteristic the vendor exposes.
func (b *BLE) Connect(address string) error {
	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	mac, err := bluetooth.ParseMAC(address)
	if err != nil {
		return fmt.Errorf("ble: parse address %q: %w", address, err)
	}
	addr := bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}

	device, err := b.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("ble: connect %s: %w", address, err)
	}

	b.mu.Lock()
	b.device = device
	b.connected = true
	b.mu.Unlock()

	b.adapter.SetConnectHandler(func(_ bluetooth.Device, connected bool) {
		if connected {
			return
		}
		b.mu.Lock()
		b.connected = false
		b.mu.Unlock()
		if b.onDisconnect != nil {
			b.onDisconnect(fmt.Errorf("ble: peripheral disconnected"))
		}
	})

	return b.discoverServices(device, address)
}

func (b *BLE) discoverServices(device bluetooth.Device, deviceName string) error {
	svcs, err := device.DiscoverServices(nil)
	if err != nil {
		return fmt.Errorf("ble: discover services: %w", err)
	}

	discovered := detect.DiscoveredServices{}
	var notify, write bluetooth.DeviceCharacteristic
	var haveNotify, haveWrite bool

	for _, svc := range svcs {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			continue
		}
		var uuids []string
		for _, c := range chars {
			uuidStr := c.UUID().String()
			uuids = append(uuids, uuidStr)
			if isNotifyCandidate(uuidStr) && !haveNotify {
				notify = c
				haveNotify = true
			}
			if isWriteCandidate(uuidStr) && !haveWrite {
				write = c
				haveWrite = true
			}
		}
		discovered.Services = append(discovered.Services, detect.Service{
			UUID:            svc.UUID().String(),
			Characteristics: uuids,
		})
	}

	b.mu.Lock()
	if haveNotify {
		b.notifyCh = notify
	}
	if haveWrite {
		b.writeCh = write
	} else if haveNotify {
		b.writeCh = notify
	}
	b.mu.Unlock()

	if haveNotify {
		if err := notify.EnableNotifications(func(buf []byte) {
			if b.onData != nil {
				cp := make([]byte, len(buf))
				copy(cp, buf)
				b.onData(cp)
			}
		}); err != nil {
			return fmt.Errorf("ble: enable notifications: %w", err)
		}
	}

	if b.onServices != nil {
		b.onServices(discovered, deviceName)
	}
	return nil
}

func isNotifyCandidate(uuid string) bool {
	return equalsAny(uuid, detect.CharFFE4, detect.CharNUSTx)
}

func isWriteCandidate(uuid string) bool {
	return equalsAny(uuid, detect.CharFFE9, detect.CharNUSRx)
}

func equalsAny(v string, candidates ...string) bool {
	for _, c := range candidates {
		if v == c {
			return true
		}
	}
	return false
}

func (b *BLE) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil
	}
	b.connected = false
	return b.device.Disconnect()
}

// Write sends b as a single GATT write without response.
func (b *BLE) Write(data []byte) error {
	b.mu.Lock()
	ch := b.writeCh
	b.mu.Unlock()
	_, err := ch.WriteWithoutResponse(data)
	if err != nil {
		return fmt.Errorf("ble: write: %w", err)
	}
	return nil
}

// WriteChunked splits data into chunkSize pieces with delayMs between
// writes, for InMotion V1's slow-MTU peripherals.
func (b *BLE) WriteChunked(data []byte, chunkSize int, delayMs int) error {
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := b.Write(data[i:end]); err != nil {
			return err
		}
		if end < len(data) && delayMs > 0 {
			time.Sleep(time.Duration(delayMs) * time.Millisecond)
		}
	}
	return nil
}

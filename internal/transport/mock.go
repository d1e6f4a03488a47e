package transport

import (
	"sync"

	"github.com/eucdash/wheelcore/internal/wheel/detect"
)

// Mock is an in-memory connection.Transport double for tests and
// decoder bring-up without any physical wheel or BLE stack. Writes are
// recorded for assertions; Feed injects inbound chunks as if notified
// by a peripheral.
type Mock struct {
	mu       sync.Mutex
	Written  [][]byte
	Services detect.DiscoveredServices
	Name     string

	ConnectErr error

	onServices   func(services detect.DiscoveredServices, deviceName string)
	onData       func(chunk []byte)
	onDisconnect func(reason error)
}

// NewMock returns a Mock that reports Services/Name on Connect.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) OnServicesDiscovered(cb func(services detect.DiscoveredServices, deviceName string)) {
	m.onServices = cb
}

func (m *Mock) OnDataReceived(cb func(chunk []byte)) {
	m.onData = cb
}

func (m *Mock) OnDisconnect(cb func(reason error)) {
	m.onDisconnect = cb
}

func (m *Mock) StartScan(found func(address, name string)) error { return nil }

func (m *Mock) StopScan() {}

func (m *Mock) Connect(address string) error {
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	if m.onServices != nil {
		m.onServices(m.Services, m.Name)
	}
	return nil
}

func (m *Mock) Disconnect() error {
	return nil
}

func (m *Mock) Write(b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(b))
	copy(cp, b)
	m.Written = append(m.Written, cp)
	return nil
}

func (m *Mock) WriteChunked(b []byte, chunkSize int, delayMs int) error {
	return m.Write(b)
}

// Feed delivers chunk to the registered OnDataReceived callback, as if
// the peripheral had sent a BLE notification.
func (m *Mock) Feed(chunk []byte) {
	if m.onData != nil {
		m.onData(chunk)
	}
}

// Disconnected invokes the registered OnDisconnect callback with reason.
func (m *Mock) Disconnected(reason error) {
	if m.onDisconnect != nil {
		m.onDisconnect(reason)
	}
}

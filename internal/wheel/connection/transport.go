// Package connection implements the WheelConnectionManager: the
// single-threaded reactor that wires a Transport to a decoder, publishes
// WheelState/ConnectionState, dispatches commands, and drives the
// reconnect back-off policy.
package connection

import "github.com/eucdash/wheelcore/internal/wheel/detect"

// Transport is the narrow interface the core consumes from the platform
// BLE/serial adapter. Implementations (tinygo bluetooth, go.bug.st/serial,
// or a test double) never hold core state; they only move bytes and
// report lifecycle events through the registered callbacks.
type Transport interface {
	Connect(address string) error
	Disconnect() error
	Write(b []byte) error
	// WriteChunked splits b into chunkSize pieces, sleeping delay between
	// writes. Used by InMotion V1's 20-byte/20ms chunking.
	WriteChunked(b []byte, chunkSize int, delayMs int) error

	StartScan(found func(address, name string)) error
	StopScan()

	OnServicesDiscovered(cb func(services detect.DiscoveredServices, deviceName string))
	OnDataReceived(cb func(chunk []byte))
	OnDisconnect(cb func(reason error))
}

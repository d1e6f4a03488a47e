package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/eucdash/wheelcore/internal/wheel/detect"
)

// Serial is a connection.Transport over a UART dev-board rig that
// mirrors a wheel's BLE notification stream byte-for-byte — useful for
// bringing up a new vendor decoder without the physical wheel.
// Grounded on the teacher's Speeduino provider's port-open/read-timeout
// sequence in internal/ecu/speeduino.go.
type Serial struct {
	baudRate int
	log      *logrus.Entry

	mu     sync.Mutex
	port   serial.Port
	stopCh chan struct{}

	onServices   func(services detect.DiscoveredServices, deviceName string)
	onData       func(chunk []byte)
	onDisconnect func(reason error)
}

// NewSerial returns a Serial transport at baudRate (default 115200).
func NewSerial(baudRate int, log *logrus.Entry) *Serial {
	if baudRate == 0 {
		baudRate = 115200
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Serial{baudRate: baudRate, log: log}
}

func (s *Serial) OnServicesDiscovered(cb func(services detect.DiscoveredServices, deviceName string)) {
	s.onServices = cb
}

func (s *Serial) OnDataReceived(cb func(chunk []byte)) {
	s.onData = cb
}

func (s *Serial) OnDisconnect(cb func(reason error)) {
	s.onDisconnect = cb
}

// StartScan is a no-op: a serial rig has no discovery phase, the caller
// already knows the port path and passes it straight to Connect.
func (s *Serial) StartScan(found func(address, name string)) error {
	return nil
}

func (s *Serial) StopScan() {}

// Connect opens portPath (address) and starts a reader goroutine that
// forwards every chunk read to OnDataReceived.
func (s *Serial) Connect(address string) error {
	mode := &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(address, mode)
	if err != nil {
		return fmt.Errorf("serial: open %s: %w", address, err)
	}
	if err := port.SetReadTimeout(500 * time.Millisecond); err != nil {
		port.Close()
		return fmt.Errorf("serial: set read timeout: %w", err)
	}

	s.mu.Lock()
	s.port = port
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.log.WithField("port", address).Info("serial: connected")

	go s.readLoop(port, stopCh)

	// No GATT services on a serial rig; report an empty table so
	// callers pass a WheelTypeHint to Connect instead of relying on
	// autodetection.
	if s.onServices != nil {
		s.onServices(detect.DiscoveredServices{}, address)
	}
	return nil
}

func (s *Serial) readLoop(port serial.Port, stopCh chan struct{}) {
	buf := make([]byte, 512)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		n, err := port.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				continue
			}
			s.log.WithError(err).Warn("serial: read failed")
			if s.onDisconnect != nil {
				s.onDisconnect(fmt.Errorf("serial: read failed: %w", err))
			}
			return
		}
		if n > 0 && s.onData != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.onData(chunk)
		}
	}
}

func (s *Serial) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

func (s *Serial) Write(b []byte) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()
	if port == nil {
		return fmt.Errorf("serial: not connected")
	}
	_, err := port.Write(b)
	if err != nil {
		return fmt.Errorf("serial: write: %w", err)
	}
	return nil
}

// WriteChunked splits b into chunkSize pieces with delayMs between
// writes, mirroring the BLE transport's InMotion V1 behavior.
func (s *Serial) WriteChunked(b []byte, chunkSize int, delayMs int) error {
	for i := 0; i < len(b); i += chunkSize {
		end := i + chunkSize
		if end > len(b) {
			end = len(b)
		}
		if err := s.Write(b[i:end]); err != nil {
			return err
		}
		if end < len(b) && delayMs > 0 {
			time.Sleep(time.Duration(delayMs) * time.Millisecond)
		}
	}
	return nil
}

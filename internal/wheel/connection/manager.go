package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eucdash/wheelcore/internal/wheel"
	"github.com/eucdash/wheelcore/internal/wheel/decoder"
	"github.com/eucdash/wheelcore/internal/wheel/detect"
)

const (
	// DefaultConnectTimeout bounds a single transport.Connect call.
	DefaultConnectTimeout = 30 * time.Second
	// DefaultDiscoveryTimeout bounds waiting for OnServicesDiscovered.
	DefaultDiscoveryTimeout = 15 * time.Second
	// DefaultReconnectInitialDelay is the back-off's starting point.
	DefaultReconnectInitialDelay = 2 * time.Second
	// DefaultReconnectMaxDelay caps the back-off.
	DefaultReconnectMaxDelay = 30 * time.Second
)

// NewDecoderFunc constructs the decoder to use for a connection attempt.
// hint is the WheelTypeDetector's verdict (or WheelTypeUnknown if
// detection was ambiguous, in which case callers typically hand back an
// AutoDetect instance).
type NewDecoderFunc func(hint wheel.WheelType) decoder.Decoder

// Manager is the WheelConnectionManager: it owns the transport, the
// active decoder, the observable WheelState/ConnectionState pair, the
// command queue, and the reconnect policy.
//
// Two goroutines do the actual work once a connection is up: one decodes
// inbound bytes in arrival order (dataLoop), one dispatches outbound
// commands in call order (commandLoop). Connect/Disconnect orchestration
// and reconnect back-off run on the caller's goroutine and a dedicated
// timer goroutine respectively; all of them serialize through mu so the
// decoder is never mutated concurrently.
type Manager struct {
	transport  Transport
	newDecoder NewDecoderFunc
	cfg        decoder.Config
	log        *logrus.Entry

	connectTimeout   time.Duration
	discoveryTimeout time.Duration
	backoff          *backoffPolicy

	mu               sync.Mutex
	dec              decoder.Decoder
	prior            *wheel.WheelState
	address          string
	userDisconnected bool
	connState        wheel.ConnectionState

	servicesCh chan servicesEvent
	dataCh     chan []byte
	cmdCh      chan commandRequest

	stateSubsMu sync.Mutex
	stateSubs   []chan wheel.ConnectionState
	wheelSubsMu sync.Mutex
	wheelSubs   []chan *wheel.WheelState

	reconnectCancel context.CancelFunc
	keepaliveCancel context.CancelFunc

	stopOnce sync.Once
	stopCh   chan struct{}
}

type servicesEvent struct {
	services   detect.DiscoveredServices
	deviceName string
}

type commandRequest struct {
	semantic wheel.WheelCommand
	done     chan error
}

// NewManager wires a Manager around transport, registering its callbacks.
// log may be nil, in which case logrus.StandardLogger() is used (the
// same fallback convention as the rest of the module).
func NewManager(transport Transport, newDecoder NewDecoderFunc, cfg decoder.Config, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	m := &Manager{
		transport:        transport,
		newDecoder:       newDecoder,
		cfg:              cfg,
		log:              log,
		connectTimeout:   DefaultConnectTimeout,
		discoveryTimeout: DefaultDiscoveryTimeout,
		backoff:          newBackoffPolicy(DefaultReconnectInitialDelay, DefaultReconnectMaxDelay),
		connState:        wheel.Disconnected{},
		servicesCh:       make(chan servicesEvent, 1),
		dataCh:           make(chan []byte, 64),
		cmdCh:            make(chan commandRequest, 16),
		stopCh:           make(chan struct{}),
	}

	transport.OnServicesDiscovered(func(services detect.DiscoveredServices, deviceName string) {
		// Last-writer-wins: drop any stale pending result before storing
		// this one.
		select {
		case <-m.servicesCh:
		default:
		}
		select {
		case m.servicesCh <- servicesEvent{services: services, deviceName: deviceName}:
		default:
		}
	})
	transport.OnDataReceived(func(chunk []byte) {
		select {
		case m.dataCh <- chunk:
		case <-m.stopCh:
		}
	})
	transport.OnDisconnect(func(reason error) {
		go m.handleDisconnect(reason)
	})

	go m.dataLoop()
	go m.commandLoop()
	return m
}

// WheelState returns the most recently published snapshot.
func (m *Manager) WheelState() *wheel.WheelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prior
}

// ConnectionState returns the current lifecycle state.
func (m *Manager) ConnectionState() wheel.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connState
}

// SubscribeWheelState registers an observer channel for every published
// WheelState. Buffered 8; a slow subscriber drops the oldest-pending send
// rather than blocking publication for every other observer.
func (m *Manager) SubscribeWheelState() <-chan *wheel.WheelState {
	ch := make(chan *wheel.WheelState, 8)
	m.wheelSubsMu.Lock()
	m.wheelSubs = append(m.wheelSubs, ch)
	m.wheelSubsMu.Unlock()
	return ch
}

// SubscribeConnectionState registers an observer channel for every
// ConnectionState transition.
func (m *Manager) SubscribeConnectionState() <-chan wheel.ConnectionState {
	ch := make(chan wheel.ConnectionState, 8)
	m.stateSubsMu.Lock()
	m.stateSubs = append(m.stateSubs, ch)
	m.stateSubsMu.Unlock()
	return ch
}

func (m *Manager) publishWheelState(s *wheel.WheelState) {
	m.wheelSubsMu.Lock()
	defer m.wheelSubsMu.Unlock()
	for _, ch := range m.wheelSubs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

func (m *Manager) publishConnState(s wheel.ConnectionState) {
	m.mu.Lock()
	m.connState = s
	m.mu.Unlock()

	m.log.WithField("state", fmt.Sprintf("%T", s)).Debug("connection state transition")

	m.stateSubsMu.Lock()
	defer m.stateSubsMu.Unlock()
	for _, ch := range m.stateSubs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Connect drives the full lifecycle: Connecting → DiscoveringServices →
// (init commands) → Connected. hint seeds the initial decoder (from
// WheelTypeDetector); pass WheelTypeUnknown to get an AutoDetect-capable
// newDecoder result if the caller's factory supports it.
func (m *Manager) Connect(address string, hint wheel.WheelType) error {
	m.mu.Lock()
	m.address = address
	m.userDisconnected = false
	m.dec = m.newDecoder(hint)
	m.prior = wheel.NewWheelState()
	m.mu.Unlock()

	err := m.attemptConnect(address)
	if err != nil && m.isRetryable(err) {
		m.scheduleReconnect(address)
	}
	return err
}

// isRetryable reports whether a failed attemptConnect should trigger the
// back-off reconnect loop. A bare transport rejection (wrapped here as
// TransportDisconnected) retries the same way a post-connect disconnect
// does; ConnectTimeout, ServiceDiscoveryTimeout, and PermissionDenied are
// terminal (Failed, no auto-retry).
func (m *Manager) isRetryable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == KindTransportDisconnected
	}
	return false
}

func (m *Manager) attemptConnect(address string) error {
	m.publishConnState(wheel.Connecting{Address: address})

	connDone := make(chan error, 1)
	go func() { connDone <- m.transport.Connect(address) }()

	var err error
	select {
	case raw := <-connDone:
		if raw != nil {
			err = &Error{Kind: KindTransportDisconnected, Address: address, Err: raw}
		}
	case <-time.After(m.connectTimeout):
		err = &Error{Kind: KindConnectTimeout, Address: address, Err: errors.New("connect attempt timed out")}
	}
	if err != nil {
		m.log.WithError(err).WithField("address", address).Warn("connect failed")
		m.publishConnState(wheel.Failed{Err: err, Address: address})
		return err
	}

	m.publishConnState(wheel.DiscoveringServices{Address: address})

	var sv servicesEvent
	select {
	case sv = <-m.servicesCh:
	case <-time.After(m.discoveryTimeout):
		err = &Error{Kind: KindServiceDiscoveryTimeout, Address: address, Err: errors.New("service discovery timed out")}
		m.publishConnState(wheel.Failed{Err: err, Address: address})
		return err
	}

	m.mu.Lock()
	dec := m.dec
	m.mu.Unlock()
	// The discovered UUIDs themselves are consumed by the transport
	// adapter when it subscribes to notifications; the manager only
	// needs the signal that discovery completed, plus the device name
	// for the Connected state, so it can run init commands.

	for _, cmd := range dec.InitCommands() {
		if err := m.send(cmd); err != nil {
			m.log.WithError(err).Warn("init command write failed")
		}
	}

	m.backoff.Reset()
	m.publishConnState(wheel.Connected{Address: address, WheelName: sv.deviceName})
	m.startKeepalive(dec)
	return nil
}

func (m *Manager) startKeepalive(dec decoder.Decoder) {
	cmd, interval, ok := dec.KeepaliveCommand()
	if !ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.keepaliveCancel = cancel
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.send(cmd); err != nil {
					m.log.WithError(err).Debug("keepalive write failed")
				}
			}
		}
	}()
}

// Disconnect performs a user-requested disconnect: it cancels the
// keepalive task and any in-flight reconnect back-off, then releases
// the transport.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	m.userDisconnected = true
	m.mu.Unlock()

	if m.keepaliveCancel != nil {
		m.keepaliveCancel()
	}
	if m.reconnectCancel != nil {
		m.reconnectCancel()
	}
	err := m.transport.Disconnect()
	m.publishConnState(wheel.Disconnected{})
	return err
}

// Close permanently stops the manager's internal loops. Not part of the
// spec's lifecycle; used by callers tearing down the whole process.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Manager) handleDisconnect(reason error) {
	m.mu.Lock()
	userInitiated := m.userDisconnected
	address := m.address
	m.mu.Unlock()

	if m.keepaliveCancel != nil {
		m.keepaliveCancel()
	}
	if userInitiated {
		return
	}

	connErr := &Error{Kind: KindTransportDisconnected, Address: address, Err: reason}
	m.publishConnState(wheel.ConnectionLost{Address: address, Reason: connErr})
	m.scheduleReconnect(address)
}

func (m *Manager) scheduleReconnect(address string) {
	ctx, cancel := context.WithCancel(context.Background())
	m.reconnectCancel = cancel
	delay := m.backoff.Next()
	m.log.WithField("address", address).WithField("delay", delay).Info("scheduling reconnect")

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if err := m.attemptConnect(address); err != nil {
			m.mu.Lock()
			abort := m.userDisconnected
			m.mu.Unlock()
			if !abort && m.isRetryable(err) {
				m.scheduleReconnect(address)
			}
		}
	}()
}

// dataLoop decodes inbound chunks strictly in arrival order, confining
// all decoder mutation to this one goroutine.
func (m *Manager) dataLoop() {
	for {
		select {
		case <-m.stopCh:
			return
		case chunk := <-m.dataCh:
			m.handleChunk(chunk)
		}
	}
}

func (m *Manager) handleChunk(chunk []byte) {
	m.mu.Lock()
	dec := m.dec
	prior := m.prior
	m.mu.Unlock()
	if dec == nil {
		return
	}

	dd, err := dec.Decode(chunk, prior, m.cfg)
	if err != nil {
		m.log.WithError(err).Debug("decode error")
		return
	}
	if dd == nil || !dd.HasNewData {
		return
	}

	m.mu.Lock()
	m.prior = dd.NewState
	m.mu.Unlock()

	m.publishWheelState(dd.NewState)

	for _, cmd := range dd.CommandsToSend {
		if err := m.writeRaw(cmd); err != nil {
			m.log.WithError(err).Warn("decoder-issued command write failed")
		}
	}
}

// commandLoop dispatches ExecuteCommand requests strictly in call order,
// linearizing concurrent callers.
func (m *Manager) commandLoop() {
	for {
		select {
		case <-m.stopCh:
			return
		case req := <-m.cmdCh:
			req.done <- m.send(req.semantic)
		}
	}
}

// ExecuteCommand enqueues a semantic command and blocks until its byte
// sequence has been fully written.
func (m *Manager) ExecuteCommand(semantic wheel.WheelCommand) error {
	done := make(chan error, 1)
	select {
	case m.cmdCh <- commandRequest{semantic: semantic, done: done}:
	case <-m.stopCh:
		return errors.New("connection: manager closed")
	}
	return <-done
}

// send builds semantic into its SendBytes/SendDelayed sequence and
// writes each piece in order, honoring declared delays.
func (m *Manager) send(semantic wheel.WheelCommand) error {
	m.mu.Lock()
	dec := m.dec
	m.mu.Unlock()
	if dec == nil {
		return errors.New("connection: not connected")
	}
	for _, part := range dec.BuildCommand(semantic) {
		if err := m.writeRaw(part); err != nil {
			return err
		}
	}
	return nil
}

// writeRaw performs the actual transport write for one SendBytes or
// SendDelayed piece (or a bare semantic command with no vendor encoding,
// which is a programmer error and ignored).
func (m *Manager) writeRaw(part wheel.WheelCommand) error {
	switch p := part.(type) {
	case wheel.SendBytes:
		if err := m.transport.Write(p.Payload); err != nil {
			return &Error{Kind: KindWriteFailed, Err: err}
		}
		return nil
	case wheel.SendDelayed:
		select {
		case <-time.After(time.Duration(p.DelayMs) * time.Millisecond):
		case <-m.stopCh:
			return errors.New("connection: manager closed")
		}
		if err := m.transport.Write(p.Payload); err != nil {
			return &Error{Kind: KindWriteFailed, Err: err}
		}
		return nil
	default:
		return nil
	}
}

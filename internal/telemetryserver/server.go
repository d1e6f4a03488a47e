// Package telemetryserver broadcasts WheelState/ConnectionState/alarm
// snapshots to websocket clients, the transport for any UI that wants a
// live feed without embedding the decoder itself. Grounded on the
// teacher's internal/server/server.go wsClient/broadcast/handleWS
// pattern.
package telemetryserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/eucdash/wheelcore/internal/wheel"
	"github.com/eucdash/wheelcore/internal/wheel/alarm"
)

const defaultShutdownTimeout = 5 * time.Second

// Frame is the JSON structure sent to every connected websocket client.
type Frame struct {
	WheelState      *wheel.WheelState `json:"wheelState,omitempty"`
	ConnectionState string            `json:"connectionState,omitempty"`
	Alarm           *alarm.Result     `json:"alarm,omitempty"`
	Stamp           int64             `json:"stamp"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Server coordinates broadcasting Frames to every connected client.
type Server struct {
	listenAddr string
	log        *logrus.Entry
	upgrader   websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*wsClient]struct{}
}

// New returns a Server listening on listenAddr. log may be nil.
func New(listenAddr string, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		listenAddr: listenAddr,
		log:        log,
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:    make(map[*wsClient]struct{}),
	}
}

// Run starts the HTTP server and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	srv := &http.Server{Addr: s.listenAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.log.WithField("addr", s.listenAddr).Info("telemetry server listening")
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 64)}
	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()
	s.log.WithField("clients", n).Debug("telemetry client connected")

	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			n := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			s.log.WithField("clients", n).Debug("telemetry client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends frame to every connected client, dropping it for any
// client whose send buffer is full rather than blocking the others.
func (s *Server) Broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.log.WithError(err).Warn("frame marshal failed")
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			s.log.Debug("dropping frame for slow client")
		}
	}
}

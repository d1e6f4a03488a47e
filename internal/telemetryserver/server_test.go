package telemetryserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eucdash/wheelcore/internal/wheel"
)

func TestServer_BroadcastDeliversFrameToConnectedClient(t *testing.T) {
	s := New(":0", nil)
	ts := httptest.NewServer(http.HandlerFunc(s.handleWS))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server goroutine a moment to register the client.
	time.Sleep(20 * time.Millisecond)

	state := wheel.NewWheelState()
	state.Speed = 1500
	s.Broadcast(Frame{WheelState: state, Stamp: 1})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"speed":1500`)
}

func TestServer_BroadcastToNoClientsDoesNotPanic(t *testing.T) {
	s := New(":0", nil)
	assert.NotPanics(t, func() {
		s.Broadcast(Frame{Stamp: 1})
	})
}

package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eucdash/wheelcore/internal/wheel/detect"
)

func TestMock_ConnectReportsServicesAndName(t *testing.T) {
	m := NewMock()
	m.Services = detect.DiscoveredServices{Services: []detect.Service{{UUID: detect.ServiceFFE0}}}
	m.Name = "RW-X"

	var gotServices detect.DiscoveredServices
	var gotName string
	m.OnServicesDiscovered(func(services detect.DiscoveredServices, name string) {
		gotServices = services
		gotName = name
	})

	require.NoError(t, m.Connect("AA:BB:CC:DD:EE:FF"))
	assert.Equal(t, "RW-X", gotName)
	assert.Len(t, gotServices.Services, 1)
}

func TestMock_ConnectReturnsConfiguredError(t *testing.T) {
	m := NewMock()
	m.ConnectErr = errors.New("boom")
	assert.EqualError(t, m.Connect("addr"), "boom")
}

func TestMock_WriteChunkedRecordsWrite(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.WriteChunked([]byte{1, 2, 3}, 1, 0))
	assert.Len(t, m.Written, 1)
	assert.Equal(t, []byte{1, 2, 3}, m.Written[0])
}

func TestMock_FeedDeliversChunkToDataCallback(t *testing.T) {
	m := NewMock()
	var got []byte
	m.OnDataReceived(func(chunk []byte) { got = chunk })

	m.Feed([]byte{0xAA, 0x01})
	assert.Equal(t, []byte{0xAA, 0x01}, got)
}

func TestMock_DisconnectedInvokesCallback(t *testing.T) {
	m := NewMock()
	var got error
	m.OnDisconnect(func(reason error) { got = reason })

	m.Disconnected(errors.New("link lost"))
	assert.EqualError(t, got, "link lost")
}

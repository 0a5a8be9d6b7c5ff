package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/capwatch/internal/core/domain"
)

func TestDashboard_BroadcastsEventToConnectedClient(t *testing.T) {
	d := NewDashboard()
	srv := httptest.NewServer(d.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return d.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	rssi := -42
	require.NoError(t, d.Send(domain.NewAPEvent(domain.EventAPNew, "aa:bb:cc:dd:ee:ff", &rssi)))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "aa:bb:cc:dd:ee:ff")
	assert.Contains(t, string(data), "AP-new")
}

func TestDashboard_DisconnectRemovesClient(t *testing.T) {
	d := NewDashboard()
	srv := httptest.NewServer(d.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return d.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return d.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

package websocket

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/et7000d/internal/devices"
)

type received struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startHub(t *testing.T) (*Hub, *gorilla.Conn) {
	t.Helper()

	hub := NewHub(zap.NewNop())
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, []string{"*"}, w, r)
	}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		hub.Stop()
		srv.Close()
	})

	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 5*time.Millisecond)
	return hub, conn
}

func readMessage(t *testing.T, conn *gorilla.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func snapshot(name string, online bool) devices.Snapshot {
	return devices.Snapshot{
		DeviceID:  uuid.New(),
		Name:      name,
		Online:    online,
		Timestamp: time.Now(),
		AI:        devices.Values{1.25, math.NaN()},
		AO:        devices.Values{},
		DI:        []bool{true},
		DO:        []bool{},
	}
}

func TestBroadcastSnapshot(t *testing.T) {
	hub, conn := startHub(t)

	hub.Broadcast(NewSnapshotMessage(snapshot("a", true)))
	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeDeviceSnapshot, msg.Type)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "a", data["name"])
	assert.Equal(t, []interface{}{1.25, nil}, data["ai"])

	hub.Broadcast(NewSnapshotMessage(snapshot("a", false)))
	assert.Equal(t, MessageTypeDeviceOffline, readMessage(t, conn).Type)
}

func TestSubscriptionFiltersDevices(t *testing.T) {
	hub, conn := startHub(t)

	require.NoError(t, conn.WriteJSON(SubscribeRequest{Type: MessageTypeSubscribe, Devices: []string{"b"}}))
	assert.Equal(t, MessageTypeSubscribed, readMessage(t, conn).Type)

	hub.Broadcast(NewSnapshotMessage(snapshot("a", true)))
	hub.Broadcast(NewSnapshotMessage(snapshot("b", true)))
	hub.Broadcast(NewMessage(MessageTypeSystemStatus, map[string]string{"state": "RUNNING"}))

	msg := readMessage(t, conn)
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "b", data["name"])

	assert.Equal(t, MessageTypeSystemStatus, readMessage(t, conn).Type)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://hmi.local"})

	r := httptest.NewRequest(http.MethodGet, "/ws/live", nil)
	assert.True(t, check(r))

	r.Header.Set("Origin", "http://hmi.local")
	assert.True(t, check(r))

	r.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(r))
}

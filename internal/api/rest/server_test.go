package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/et7000d/internal/api/websocket"
	"github.com/KevinKickass/et7000d/internal/auth"
	"github.com/KevinKickass/et7000d/internal/config"
	"github.com/KevinKickass/et7000d/internal/devices"
	"github.com/KevinKickass/et7000d/internal/interfaces"
	"github.com/KevinKickass/et7000d/internal/modbus"
	"github.com/KevinKickass/et7000d/internal/modbus/modbustest"
)

type stubLifecycle struct {
	cfg     *config.Config
	manager *devices.Manager
}

func (s *stubLifecycle) Config() *config.Config { return s.cfg }
func (s *stubLifecycle) DeviceManager() *devices.Manager { return s.manager }
func (s *stubLifecycle) Shutdown(ctx context.Context) error { return nil }
func (s *stubLifecycle) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{State: "RUNNING", DeviceCount: len(s.manager.ListDevices())}
}

func fakeModule() *modbustest.Fake {
	f := modbustest.New()
	f.SetHolding(559, 0x7026)
	f.SetInput(320, 6)
	f.SetInput(330, 2)
	f.SetInput(300, 2)
	f.SetInput(310, 2)
	f.SetCoils(595, true, true, false, true, true, true)
	f.SetHolding(427, 8, 8, 8, 8, 8, 8)
	f.SetHolding(459, 0x33, 0x33)
	return f
}

type testEnv struct {
	handler http.Handler
	fake    *modbustest.Fake
	device  *devices.Device
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithAuth(t, nil)
}

func newTestEnvWithAuth(t *testing.T, authService *auth.Service) *testEnv {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)

	fake := fakeModule()
	mgr := devices.NewManager(devices.Defaults{
		Port:              502,
		UnitID:            1,
		Timeout:           150 * time.Millisecond,
		PollInterval:      time.Second,
		ReconnectInterval: time.Second,
	}, func(devices.DeviceConfig) modbus.Transport { return fake }, zap.NewNop())

	d, err := mgr.AddDevice(context.Background(), devices.DeviceConfig{Name: "et7026", Address: "10.0.0.5"})
	require.NoError(t, err)

	hub := websocket.NewHub(zap.NewNop())
	srv := NewServer(cfg, &stubLifecycle{cfg: cfg, manager: mgr}, zap.NewNop(), hub, authService)
	return &testEnv{handler: srv.Handler(), fake: fake, device: d}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	return e.doAs(t, "", method, path, body)
}

func (e *testEnv) doAs(t *testing.T, token, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestListDevices(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/api/v1/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])

	list := body["devices"].([]interface{})
	dev := list[0].(map[string]interface{})
	assert.Equal(t, "et7026", dev["name"])
	assert.Equal(t, "7026", dev["type"])
	assert.Equal(t, "10.0.0.5:502", dev["address"])
	assert.Equal(t, true, dev["online"])
	assert.Equal(t, float64(6), dev["counts"].(map[string]interface{})["ai"])
}

func TestGetDeviceHidesDisabledChannels(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/api/v1/devices/"+env.device.ID().String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	ai := body["groups"].(map[string]interface{})["ai"].(map[string]interface{})
	assert.Equal(t, float64(6), ai["count"])
	channels := ai["channels"].([]interface{})
	require.Len(t, channels, 5)
	first := channels[0].(map[string]interface{})
	assert.Equal(t, "0x08", first["range_code"])
	assert.Equal(t, "V", first["units"])
	assert.Equal(t, "bipolar", first["regime"])

	w, _ = env.do(t, http.MethodGet, "/api/v1/devices/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReadGroupRendersNaNAsNull(t *testing.T) {
	env := newTestEnv(t)
	env.fake.SetInput(0, 0x4000)

	w, body := env.do(t, http.MethodGet, "/api/v1/devices/et7026/ai", nil)
	require.Equal(t, http.StatusOK, w.Code)

	values := body["values"].([]interface{})
	require.Len(t, values, 6)
	assert.InDelta(t, 5.0, values[0], 0.001)
	assert.Nil(t, values[2])

	w, _ = env.do(t, http.MethodGet, "/api/v1/devices/et7026/xx", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReadChannel(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/api/v1/devices/et7026/ai/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, body["value"])
	assert.Equal(t, false, body["enabled"])

	w, _ = env.do(t, http.MethodGet, "/api/v1/devices/et7026/ai/6", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = env.do(t, http.MethodGet, "/api/v1/devices/et7026/ai/x", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWriteChannel(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodPut, "/api/v1/devices/et7026/ao/1", payload{"value": 5.0})
	require.Equal(t, http.StatusOK, w.Code)

	w, body := env.do(t, http.MethodGet, "/api/v1/devices/et7026/ao/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5.0, body["value"])
	assert.Equal(t, "V", body["units"])

	w, _ = env.do(t, http.MethodPut, "/api/v1/devices/et7026/ai/1", payload{"value": 1.0})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = env.do(t, http.MethodPut, "/api/v1/devices/et7026/ao/1", payload{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.fake.Fail(modbustest.OpWriteSingleRegister, modbustest.AnyAddr)
	w, _ = env.do(t, http.MethodPut, "/api/v1/devices/et7026/ao/1", payload{"value": 1.0})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestWriteGroup(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodPut, "/api/v1/devices/et7026/do", payload{"values": []float64{1, 1}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.fake.Coil(0))
	assert.True(t, env.fake.Coil(1))

	w, _ = env.do(t, http.MethodPut, "/api/v1/devices/et7026/do", payload{"values": []float64{1}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestModbusPassthrough(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/api/v1/devices/et7026/modbus/read", payload{"address": 40559})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{float64(0x7026)}, body["values"])

	w, _ = env.do(t, http.MethodPost, "/api/v1/devices/et7026/modbus/write", payload{"address": 40100, "values": []int{1, 2}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint16(2), env.fake.Holding(101))

	w, _ = env.do(t, http.MethodPost, "/api/v1/devices/et7026/modbus/write", payload{"address": 30001, "values": []int{1}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/v1/devices/et7026/modbus/read", payload{"address": 25000})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconnect(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/api/v1/devices/et7026/reconnect", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["online"])

	env.fake.Fail(modbustest.OpOpen, modbustest.AnyAddr)
	w, _ = env.do(t, http.MethodPost, "/api/v1/devices/et7026/reconnect", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestSystemStatus(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/api/v1/system/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "RUNNING", body["state"])
	assert.Equal(t, float64(1), body["device_count"])
	assert.Equal(t, float64(0), body["ws_clients"])

	list, ok := body["devices"].([]interface{})
	require.True(t, ok)
	require.Len(t, list, 1)
	health := list[0].(map[string]interface{})
	assert.Equal(t, "et7026", health["name"])
	assert.Equal(t, "7026", health["type"])
	assert.Equal(t, true, health["online"])
	assert.Equal(t, float64(0), health["failures"])

	env.fake.Fail(modbustest.OpReadInputRegisters, modbustest.AnyAddr)
	w, _ = env.do(t, http.MethodGet, "/api/v1/devices/et7026/ai", nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, body = env.do(t, http.MethodGet, "/api/v1/system/status", nil)
	health = body["devices"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, float64(1), health["failures"])
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://hmi.local")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://hmi.local", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuthRoles(t *testing.T) {
	svc, err := auth.NewService(config.AuthConfig{
		Enabled:   true,
		JWTSecret: "0123456789abcdef0123456789abcdef",
		TokenTTL:  time.Hour,
	})
	require.NoError(t, err)
	env := newTestEnvWithAuth(t, svc)

	viewer, err := svc.IssueToken("hmi", auth.RoleViewer)
	require.NoError(t, err)
	operator, err := svc.IssueToken("scada", auth.RoleOperator)
	require.NoError(t, err)

	w, _ := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := env.do(t, http.MethodGet, "/api/v1/devices", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_401", body["error"].(map[string]interface{})["code"])

	w, _ = env.doAs(t, "garbage", http.MethodGet, "/api/v1/devices", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = env.doAs(t, viewer, http.MethodGet, "/api/v1/devices", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.doAs(t, viewer, http.MethodPut, "/api/v1/devices/et7026/do/0", payload{"value": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, env.fake.Coil(0))

	w, _ = env.doAs(t, operator, http.MethodPut, "/api/v1/devices/et7026/do/0", payload{"value": 1})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.fake.Coil(0))

	w, _ = env.do(t, http.MethodGet, "/api/v1/devices?access_token="+viewer, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

type payload map[string]interface{}

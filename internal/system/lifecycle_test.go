package system

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/et7000d/internal/config"
	"github.com/KevinKickass/et7000d/internal/device"
	"github.com/KevinKickass/et7000d/internal/devices"
	"github.com/KevinKickass/et7000d/internal/modbus"
	"github.com/KevinKickass/et7000d/internal/modbus/modbustest"
)

const deviceList = `
devices:
  - name: tank
    address: 10.0.0.10
  - name: pumps
    address: 10.0.0.11
    poll_interval: 50ms
`

func writeDeviceList(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(t *testing.T, deviceFile string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Server.HTTPPort = 0
	cfg.Devices.File = deviceFile
	return cfg
}

// modules answers for tank only; pumps never connects.
func modules(cfg devices.DeviceConfig) modbus.Transport {
	f := modbustest.New()
	if cfg.Name != "tank" {
		f.Fail(modbustest.OpOpen, modbustest.AnyAddr)
		return f
	}
	f.SetHolding(559, 0x7017)
	f.SetInput(320, 8)
	f.SetInput(310, 4)
	f.SetCoils(595, true, true, true, true, true, true, true, true)
	f.SetHolding(427, 8, 8, 8, 8, 8, 8, 8, 8)
	return f
}

func TestLifecycleStartAndShutdown(t *testing.T) {
	cfg := testConfig(t, writeDeviceList(t, deviceList))
	lm := NewLifecycleManager(cfg, zap.NewNop(), modules)

	require.NoError(t, lm.Start(context.Background()))
	assert.Equal(t, StateRunning, lm.State())

	status := lm.GetCurrentStatus()
	assert.Equal(t, "RUNNING", status.State)
	assert.Equal(t, 2, status.DeviceCount)
	assert.Equal(t, 1, status.ConnectedDevices)
	assert.NotEmpty(t, status.Uptime)

	tank, ok := lm.DeviceManager().Lookup("tank")
	require.True(t, ok)
	assert.Equal(t, 8, tank.Session.Count(device.AI))

	pumps, ok := lm.DeviceManager().Lookup("pumps")
	require.True(t, ok)
	assert.Equal(t, 50*time.Millisecond, pumps.Config.PollInterval)
	assert.Equal(t, cfg.Modbus.PollInterval, tank.Config.PollInterval)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, lm.Shutdown(ctx))
	assert.Equal(t, StateStopped, lm.State())

	// Second call is a no-op.
	require.NoError(t, lm.Shutdown(ctx))
}

func TestLifecycleRejectsInvalidDeviceList(t *testing.T) {
	cfg := testConfig(t, writeDeviceList(t, "devices:\n  - name: tank\n"))
	lm := NewLifecycleManager(cfg, zap.NewNop(), modules)

	err := lm.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, lm.State())
	assert.Equal(t, err, lm.LastError())

	require.NoError(t, lm.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, lm.State())
}

func TestLifecycleWithoutDeviceList(t *testing.T) {
	cfg := testConfig(t, "")
	lm := NewLifecycleManager(cfg, zap.NewNop(), modules)

	require.NoError(t, lm.Start(context.Background()))
	assert.Equal(t, 0, lm.GetCurrentStatus().DeviceCount)
	require.NoError(t, lm.Shutdown(context.Background()))
}

func TestDeviceDefaults(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Modbus.UnitID = 7

	d := DeviceDefaults(cfg)
	assert.Equal(t, uint8(7), d.UnitID)
	assert.Equal(t, cfg.Modbus.Port, d.Port)
	assert.Equal(t, cfg.Modbus.Timeout, d.Timeout)
	assert.Equal(t, cfg.Modbus.ReconnectInterval, d.ReconnectInterval)
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to SystemState
		ok       bool
	}{
		{StateInitializing, StateRunning, true},
		{StateInitializing, StateError, true},
		{StateRunning, StateStopping, true},
		{StateStopping, StateStopped, true},
		{StateError, StateStopping, true},
		{StateRunning, StateInitializing, false},
		{StateStopped, StateRunning, false},
		{SystemState(42), StateRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

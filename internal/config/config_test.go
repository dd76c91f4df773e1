package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 150*time.Millisecond, cfg.Modbus.Timeout)
	assert.Equal(t, time.Second, cfg.Modbus.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Modbus.ReconnectInterval)
	assert.Equal(t, 502, cfg.Modbus.Port)
	assert.Equal(t, 1, cfg.Modbus.UnitID)
	assert.Equal(t, "configs/devices.yaml", cfg.Devices.File)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  http_port: 9090
modbus:
  timeout: 200ms
  unit_id: 3
devices:
  file: /etc/et7000d/devices.yaml
`), 0o644))

	t.Setenv("ET7000_MODBUS_POLL_INTERVAL", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, 200*time.Millisecond, cfg.Modbus.Timeout)
	assert.Equal(t, 3, cfg.Modbus.UnitID)
	assert.Equal(t, 250*time.Millisecond, cfg.Modbus.PollInterval)
	assert.Equal(t, "/etc/et7000d/devices.yaml", cfg.Devices.File)
	assert.Equal(t, 502, cfg.Modbus.Port)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("modbus:\n  unit_id: 300\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadAuth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth:
  enabled: true
  token_ttl: 1h
  tokens:
    - name: scada
      role: operator
      hash: "$argon2id$v=19$m=16,t=1,p=1$c2FsdA$aGFzaA"
`), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "jwt_secret")

	t.Setenv("ET7000_AUTH_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	require.Len(t, cfg.Auth.Tokens, 1)
	assert.Equal(t, "scada", cfg.Auth.Tokens[0].Name)
	assert.Equal(t, "operator", cfg.Auth.Tokens[0].Role)
}

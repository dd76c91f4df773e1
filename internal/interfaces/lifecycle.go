package interfaces

import (
	"context"

	"github.com/KevinKickass/et7000d/internal/config"
	"github.com/KevinKickass/et7000d/internal/devices"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State            string `json:"state"`
	DeviceCount      int    `json:"device_count"`
	ConnectedDevices int    `json:"connected_devices"`
	Uptime           string `json:"uptime"`
}

// LifecycleManager is what the API layer needs from the running system.
type LifecycleManager interface {
	Config() *config.Config
	DeviceManager() *devices.Manager
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}

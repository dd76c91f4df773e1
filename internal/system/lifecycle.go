// Package system wires configuration, device sessions, pollers and the API
// servers into one process.
package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/et7000d/internal/api/rest"
	"github.com/KevinKickass/et7000d/internal/api/websocket"
	"github.com/KevinKickass/et7000d/internal/auth"
	"github.com/KevinKickass/et7000d/internal/config"
	"github.com/KevinKickass/et7000d/internal/devices"
	"github.com/KevinKickass/et7000d/internal/interfaces"
	"go.uber.org/zap"
)

type LifecycleManager struct {
	config        *config.Config
	deviceManager *devices.Manager
	hub           *websocket.Hub
	logger        *zap.Logger

	restServer *rest.Server

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    error
	startedAt    time.Time

	hubRunning   bool
	shutdownOnce sync.Once
}

var _ interfaces.LifecycleManager = (*LifecycleManager)(nil)

// DeviceDefaults maps the modbus section of cfg to device list defaults.
func DeviceDefaults(cfg *config.Config) devices.Defaults {
	return devices.Defaults{
		Port:              cfg.Modbus.Port,
		UnitID:            uint8(cfg.Modbus.UnitID),
		Timeout:           cfg.Modbus.Timeout,
		PollInterval:      cfg.Modbus.PollInterval,
		ReconnectInterval: cfg.Modbus.ReconnectInterval,
	}
}

// NewLifecycleManager builds the system. A nil transport dials Modbus TCP.
func NewLifecycleManager(cfg *config.Config, logger *zap.Logger, transport devices.TransportFactory) *LifecycleManager {
	return &LifecycleManager{
		config:        cfg,
		deviceManager: devices.NewManager(DeviceDefaults(cfg), transport, logger),
		hub:           websocket.NewHub(logger),
		logger:        logger,
		currentState:  StateInitializing,
	}
}

// Start loads the device list, connects every device, starts pollers and
// the API servers.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting ET-7000 gateway")

	lm.stateMu.Lock()
	lm.startedAt = time.Now()
	lm.stateMu.Unlock()

	go lm.hub.Run()
	lm.hubRunning = true

	if err := lm.loadDevices(ctx); err != nil {
		lm.setError(err)
		return err
	}

	lm.deviceManager.OnSnapshot(func(s devices.Snapshot) {
		lm.hub.Broadcast(websocket.NewSnapshotMessage(s))
	})
	lm.deviceManager.StartPollers()

	var authService *auth.Service
	if lm.config.Auth.Enabled {
		var err error
		if authService, err = auth.NewService(lm.config.Auth); err != nil {
			lm.setError(err)
			return err
		}
		lm.logger.Info("API authentication enabled", zap.Int("machine_tokens", len(lm.config.Auth.Tokens)))
	}

	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.hub, authService)
	if err := lm.restServer.Start(); err != nil {
		err = fmt.Errorf("failed to start REST API: %w", err)
		lm.setError(err)
		return err
	}

	lm.setState(StateRunning)
	lm.broadcastStatus()

	status := lm.GetCurrentStatus()
	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Int("devices", status.DeviceCount),
		zap.Int("connected", status.ConnectedDevices))

	return nil
}

func (lm *LifecycleManager) loadDevices(ctx context.Context) error {
	if lm.config.Devices.File == "" {
		lm.logger.Warn("No device list configured")
		return nil
	}

	loader, err := devices.NewLoader(DeviceDefaults(lm.config))
	if err != nil {
		return err
	}

	cfgs, err := loader.LoadFile(lm.config.Devices.File)
	if err != nil {
		return err
	}

	lm.logger.Info("Loading devices", zap.String("file", lm.config.Devices.File), zap.Int("count", len(cfgs)))
	return lm.deviceManager.LoadDevices(ctx, cfgs)
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)
		lm.broadcastStatus()

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		if lm.hubRunning {
			lm.hub.Stop()
		}
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	if timeout := lm.config.Server.ShutdownTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	// Pollers first, so no session is in use when it closes.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := lm.deviceManager.StopAll(ctx); err != nil {
			errChan <- fmt.Errorf("device manager stop failed: %w", err)
		}
	}()

	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lm.restServer.Shutdown(ctx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		return fmt.Errorf("shutdown timeout exceeded")
	}

	close(errChan)
	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	lm.logger.Info("Graceful shutdown completed")
	return nil
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Unexpected state change", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))

	lm.stateMu.Lock()
	lm.currentState = StateError
	lm.lastError = err
	lm.stateMu.Unlock()

	lm.broadcastStatus()
}

// State returns the current lifecycle state.
func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state, started := lm.currentState, lm.startedAt
	lm.stateMu.RUnlock()

	list := lm.deviceManager.ListDevices()
	connected := 0
	for _, d := range list {
		if d.Session.Online() {
			connected++
		}
	}

	status := interfaces.SystemStatus{
		State:            state.String(),
		DeviceCount:      len(list),
		ConnectedDevices: connected,
	}
	if !started.IsZero() {
		status.Uptime = time.Since(started).Round(time.Second).String()
	}
	return status
}

// LastError returns the error that put the system into StateError.
func (lm *LifecycleManager) LastError() error {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.lastError
}

func (lm *LifecycleManager) broadcastStatus() {
	if !lm.hubRunning {
		return
	}
	lm.hub.Broadcast(websocket.NewMessage(websocket.MessageTypeSystemStatus, lm.GetCurrentStatus()))
}

// DeviceManager returns the device manager
func (lm *LifecycleManager) DeviceManager() *devices.Manager {
	return lm.deviceManager
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

// Hub returns the live data hub.
func (lm *LifecycleManager) Hub() *websocket.Hub {
	return lm.hub
}

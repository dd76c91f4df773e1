package devices

import (
	"context"
	"fmt"
	"sync"

	"github.com/KevinKickass/et7000d/internal/device"
	"github.com/KevinKickass/et7000d/internal/modbus"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Device is one configured module and its session.
type Device struct {
	Config  DeviceConfig
	Session *device.Session

	poller *Poller

	snapMu   sync.RWMutex
	snapshot *Snapshot
}

// ID returns the session id.
func (d *Device) ID() uuid.UUID {
	return d.Session.ID
}

// LastSnapshot returns the most recent poll result.
func (d *Device) LastSnapshot() (Snapshot, bool) {
	d.snapMu.RLock()
	defer d.snapMu.RUnlock()
	if d.snapshot == nil {
		return Snapshot{}, false
	}
	return *d.snapshot, true
}

func (d *Device) setSnapshot(s Snapshot) {
	d.snapMu.Lock()
	d.snapshot = &s
	d.snapMu.Unlock()
}

// TransportFactory opens the transport of a configured device.
type TransportFactory func(cfg DeviceConfig) modbus.Transport

// DialTCP is the default TransportFactory.
func DialTCP(cfg DeviceConfig) modbus.Transport {
	return modbus.NewClient(cfg.Endpoint(), cfg.UnitID, cfg.Timeout)
}

type Manager struct {
	defaults  Defaults
	transport TransportFactory
	publish   func(Snapshot)

	devices map[uuid.UUID]*Device
	order   []uuid.UUID
	mu      sync.RWMutex
	logger  *zap.Logger
}

func NewManager(defaults Defaults, transport TransportFactory, logger *zap.Logger) *Manager {
	if transport == nil {
		transport = DialTCP
	}
	return &Manager{
		defaults:  defaults,
		transport: transport,
		devices:   make(map[uuid.UUID]*Device),
		logger:    logger,
	}
}

// OnSnapshot registers the receiver of every poll result. It must be set
// before pollers start.
func (m *Manager) OnSnapshot(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publish = fn
}

// AddDevice creates a session for cfg and connects it. A device that cannot
// be reached is kept offline; its poller keeps reconnecting.
func (m *Manager) AddDevice(ctx context.Context, cfg DeviceConfig) (*Device, error) {
	cfg = m.defaults.apply(cfg)

	m.mu.RLock()
	for _, d := range m.devices {
		if d.Config.Name == cfg.Name {
			m.mu.RUnlock()
			return nil, fmt.Errorf("device %q already exists", cfg.Name)
		}
		if d.Config.Endpoint() == cfg.Endpoint() {
			m.mu.RUnlock()
			return nil, fmt.Errorf("address %s is in use by %q", cfg.Endpoint(), d.Config.Name)
		}
	}
	m.mu.RUnlock()

	session := device.NewSession(cfg.Name, m.transport(cfg), m.logger)
	d := &Device{Config: cfg, Session: session}

	if err := session.Connect(ctx); err != nil {
		m.logger.Warn("Device offline at startup",
			zap.String("device", cfg.Name),
			zap.String("address", cfg.Endpoint()),
			zap.Error(err))
	}

	m.mu.Lock()
	m.devices[session.ID] = d
	m.order = append(m.order, session.ID)
	m.mu.Unlock()

	m.logger.Info("Device loaded",
		zap.String("name", cfg.Name),
		zap.String("id", session.ID.String()),
		zap.String("address", cfg.Endpoint()))

	return d, nil
}

// LoadDevices adds every entry of cfgs. It stops at the first invalid entry.
func (m *Manager) LoadDevices(ctx context.Context, cfgs []DeviceConfig) error {
	for _, cfg := range cfgs {
		if _, err := m.AddDevice(ctx, cfg); err != nil {
			return fmt.Errorf("failed to load device %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// StartPoller starts the poller of a device.
func (m *Manager) StartPoller(deviceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, exists := m.devices[deviceID]
	if !exists {
		return fmt.Errorf("device not found: %s", deviceID)
	}
	if d.poller != nil {
		return nil
	}

	d.poller = NewPoller(d, d.Config.PollInterval, m.defaults.ReconnectInterval, m.publish, m.logger)
	d.poller.Start()
	return nil
}

// StartPollers starts a poller for every device.
func (m *Manager) StartPollers() {
	for _, d := range m.ListDevices() {
		if err := m.StartPoller(d.ID()); err != nil {
			m.logger.Error("Failed to start poller", zap.String("device", d.Config.Name), zap.Error(err))
		}
	}
}

// GetDevice returns device by ID
func (m *Manager) GetDevice(deviceID uuid.UUID) (*Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, exists := m.devices[deviceID]
	return d, exists
}

// GetDeviceByName returns device by name
func (m *Manager) GetDeviceByName(name string) (*Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.devices {
		if d.Config.Name == name {
			return d, true
		}
	}

	return nil, false
}

// Lookup resolves a device by id or by name.
func (m *Manager) Lookup(key string) (*Device, bool) {
	if id, err := uuid.Parse(key); err == nil {
		if d, ok := m.GetDevice(id); ok {
			return d, true
		}
	}
	return m.GetDeviceByName(key)
}

// ListDevices returns all devices in load order.
func (m *Manager) ListDevices() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()

	devices := make([]*Device, 0, len(m.order))
	for _, id := range m.order {
		devices = append(devices, m.devices[id])
	}

	return devices
}

// StopAll stops all pollers and closes all sessions
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.devices {
		if d.poller != nil {
			d.poller.Stop()
			d.poller = nil
		}
	}

	for _, d := range m.devices {
		if err := d.Session.Close(); err != nil {
			m.logger.Error("Failed to close device",
				zap.String("device", d.Config.Name),
				zap.Error(err))
		}
	}

	return nil
}

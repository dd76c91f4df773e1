package devices

import (
	"context"
	"sync"
	"time"

	"github.com/KevinKickass/et7000d/internal/device"
	"go.uber.org/zap"
)

// offlineAfter consecutive failed transport calls make the poller treat an
// identified device as lost.
const offlineAfter = 3

// Poller reads every channel of one device at a fixed interval and
// reconnects it while it is offline.
type Poller struct {
	device            *Device
	interval          time.Duration
	reconnectInterval time.Duration
	publish           func(Snapshot)
	logger            *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex

	lastAttempt time.Time
	wasOnline   bool
}

func NewPoller(d *Device, interval, reconnectInterval time.Duration, publish func(Snapshot), logger *zap.Logger) *Poller {
	return &Poller{
		device:            d,
		interval:          interval,
		reconnectInterval: reconnectInterval,
		publish:           publish,
		logger:            logger,
		stopChan:          make(chan struct{}),
		wasOnline:         d.Session.Online(),
		lastAttempt:       time.Now(),
	}
}

// Start starts polling in the background.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.wg.Add(1)

	go p.pollLoop()

	p.logger.Info("Poller started",
		zap.String("device", p.device.Config.Name),
		zap.Duration("interval", p.interval))
}

// Stop stops polling and waits for the running cycle.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()

	p.logger.Info("Poller stopped", zap.String("device", p.device.Config.Name))
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.Poll()
		}
	}
}

// Poll runs one cycle: a reconnect attempt while offline, otherwise a full
// read of every group. The resulting snapshot is published.
func (p *Poller) Poll() {
	session := p.device.Session

	if !session.Online() || session.Failures() >= offlineAfter {
		if time.Since(p.lastAttempt) < p.reconnectInterval {
			return
		}
		p.lastAttempt = time.Now()

		ctx, cancel := context.WithTimeout(context.Background(), p.reconnectInterval)
		err := session.Reconnect(ctx)
		cancel()
		if err != nil {
			if p.wasOnline {
				p.wasOnline = false
				p.publishSnapshot(p.offlineSnapshot())
			}
			p.logger.Warn("Device offline",
				zap.String("device", p.device.Config.Name),
				zap.Error(err))
			return
		}
		p.logger.Info("Device reconnected", zap.String("device", p.device.Config.Name))
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()

	snap := Snapshot{
		DeviceID:  session.ID,
		Name:      p.device.Config.Name,
		Type:      session.TypeName(),
		Online:    true,
		Timestamp: time.Now(),
		AI:        session.ReadAll(ctx, device.AI),
		AO:        session.ReadAll(ctx, device.AO),
		DI:        session.ReadAllDigital(ctx, device.DI),
		DO:        session.ReadAllDigital(ctx, device.DO),
	}
	p.wasOnline = true
	p.publishSnapshot(snap)
}

func (p *Poller) offlineSnapshot() Snapshot {
	return Snapshot{
		DeviceID:  p.device.Session.ID,
		Name:      p.device.Config.Name,
		Type:      p.device.Session.TypeName(),
		Online:    false,
		Timestamp: time.Now(),
		AI:        Values{},
		AO:        Values{},
		DI:        []bool{},
		DO:        []bool{},
	}
}

func (p *Poller) publishSnapshot(snap Snapshot) {
	p.device.setSnapshot(snap)
	if p.publish != nil {
		p.publish(snap)
	}
}

// Package device implements one ET-7000 module session: topology discovery,
// range conversion and channel I/O over a modbus.Transport.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KevinKickass/et7000d/internal/modbus"
	"github.com/KevinKickass/et7000d/internal/ranges"
)

// Session owns one transport connection. All operations are serialised.
type Session struct {
	ID   uuid.UUID
	Name string

	transport modbus.Transport
	logger    *zap.Logger

	mu       sync.Mutex
	topo     *Topology
	failures int
}

func NewSession(name string, transport modbus.Transport, logger *zap.Logger) *Session {
	return &Session{
		ID:        uuid.New(),
		Name:      name,
		transport: transport,
		logger:    logger,
		topo:      Offline(),
	}
}

// Connect opens the transport and builds the topology. A connect failure
// leaves the session offline and returns an error wrapping ErrConnect; probe
// fallbacks are logged, not returned.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transport.Open(ctx); err != nil {
		s.topo = Offline()
		return fmt.Errorf("%w: %s: %w", ErrConnect, s.Name, err)
	}

	s.failures = 0
	topo, err := Build(ctx, s.transport)
	if err != nil {
		s.logger.Warn("Topology probe fell back to defaults",
			zap.String("device", s.Name),
			zap.Error(err))
	}
	s.topo = topo

	if !topo.Online() {
		return fmt.Errorf("%w: %s: module not identified", ErrConnect, s.Name)
	}

	s.logger.Info("Device connected",
		zap.String("device", s.Name),
		zap.String("type", topo.TypeName()),
		zap.Int("ai", topo.Count(AI)),
		zap.Int("ao", topo.Count(AO)),
		zap.Int("di", topo.Count(DI)),
		zap.Int("do", topo.Count(DO)))
	s.logUnknownRanges(topo)
	return nil
}

// Close closes the transport and drops the topology.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.topo = Offline()
	return s.transport.Close()
}

// Reconnect closes the session and connects again. Write records of the
// old topology are discarded.
func (s *Session) Reconnect(ctx context.Context) error {
	closeErr := s.Close()
	if err := s.Connect(ctx); err != nil {
		return errors.Join(err, closeErr)
	}
	return nil
}

// Snapshot returns a copy of the current topology.
func (s *Session) Snapshot() *Topology {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Topology{TypeID: s.topo.TypeID}
	for _, g := range Groups {
		snap.groups[g] = append([]Channel(nil), s.topo.groups[g]...)
	}
	return snap
}

func (s *Session) TypeID() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topo.TypeID
}

func (s *Session) TypeName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topo.TypeName()
}

// Online reports whether the module is identified and the transport open.
func (s *Session) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topo.Online() && s.transport.IsOpen()
}

// Failures returns the number of consecutive failed transport calls. The
// integration layer uses it to decide when to reconnect.
func (s *Session) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

func (s *Session) Count(g Group) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topo.Count(g)
}

func (s *Session) Units(g Group, k int) string {
	return s.channel(g, k).Range.Units
}

func (s *Session) Min(g Group, k int) float64 {
	return s.channel(g, k).Range.Min
}

func (s *Session) Max(g Group, k int) float64 {
	return s.channel(g, k).Range.Max
}

func (s *Session) RangeCode(g Group, k int) uint16 {
	return s.channel(g, k).RangeCode
}

func (s *Session) Enabled(g Group, k int) bool {
	return s.channel(g, k).Enabled
}

// channel returns a copy of channel k of g.
func (s *Session) channel(g Group, k int) Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.topo.Channel(g, k)
}

func (s *Session) logUnknownRanges(topo *Topology) {
	for _, g := range []Group{AI, AO} {
		for k, ch := range topo.Channels(g) {
			if _, known := ranges.Default[ch.RangeCode]; known {
				continue
			}
			s.logger.Warn("Channel uses passthrough conversion",
				zap.String("device", s.Name),
				zap.Stringer("group", g),
				zap.Int("channel", k),
				zap.Error(fmt.Errorf("%w: 0x%04X", ErrConfiguration, ch.RangeCode)))
		}
	}
}

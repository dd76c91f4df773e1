package device

import (
	"context"
	"math"

	"go.uber.org/zap"
)

// Reading is the result of a single-channel read. Value is NaN and OK false
// when the channel is disabled or the transport failed.
type Reading struct {
	Value   float64
	Raw     uint16
	Units   string
	Enabled bool
	OK      bool
}

// ReadAll reads every channel of g in one transport call. The result always
// has Count(g) elements; disabled channels and failed reads are NaN.
func (s *Session) ReadAll(ctx context.Context, g Group) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels := s.topo.Channels(g)
	out := make([]float64, len(channels))
	if len(channels) == 0 {
		return out
	}

	raw, err := s.readRaw(ctx, g, rawBase, uint16(len(channels)))
	if err != nil {
		s.logger.Debug("Batch read failed",
			zap.String("device", s.Name),
			zap.Stringer("group", g),
			zap.Error(err))
		for k := range channels {
			channels[k].Value = nan
			out[k] = nan
		}
		return out
	}

	for k := range channels {
		out[k] = s.update(g, &channels[k], raw[k])
	}
	return out
}

// Read reads channel k of g. Disabled channels are not read.
func (s *Session) Read(ctx context.Context, g Group, k int) Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read(ctx, g, k, s.topo.Channel(g, k))
}

// ReadChannel is Read for callers whose index was validated against an
// earlier topology. found is false, and nothing is read, when k is out of
// range of the current one (e.g. after a reconnect).
func (s *Session) ReadChannel(ctx context.Context, g Group, k int) (r Reading, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, found := s.lookup(g, k)
	if !found {
		return Reading{Value: nan}, false
	}
	return s.read(ctx, g, k, ch), true
}

func (s *Session) read(ctx context.Context, g Group, k int, ch *Channel) Reading {
	if !ch.Enabled {
		return Reading{Value: nan, Raw: ch.Raw, Units: ch.Range.Units}
	}

	raw, err := s.readRaw(ctx, g, rawBase+uint16(k), 1)
	if err != nil {
		s.logger.Debug("Read failed",
			zap.String("device", s.Name),
			zap.Stringer("group", g),
			zap.Int("channel", k),
			zap.Error(err))
		ch.Value = nan
		return Reading{Value: nan, Raw: ch.Raw, Units: ch.Range.Units, Enabled: true}
	}

	v := s.update(g, ch, raw[0])
	return Reading{Value: v, Raw: ch.Raw, Units: ch.Range.Units, Enabled: true, OK: true}
}

// ReadDigital reads DI/DO channel k. ok is false when the state is unknown.
func (s *Session) ReadDigital(ctx context.Context, g Group, k int) (state, ok bool) {
	if g.Analog() {
		return false, false
	}
	r := s.Read(ctx, g, k)
	if !r.OK {
		return false, false
	}
	return r.Raw != 0, true
}

// ReadAllDigital reads every DI/DO channel of g; unknown states are false.
func (s *Session) ReadAllDigital(ctx context.Context, g Group) []bool {
	values := s.ReadAll(ctx, g)
	out := make([]bool, len(values))
	if g.Analog() {
		return out
	}
	for k, v := range values {
		out[k] = !math.IsNaN(v) && v != 0
	}
	return out
}

// Write sets output channel k of g. AO values are converted to the nearest
// code, DO values are on when non-zero. Writes to input groups, NaN values
// and transport failures return false and leave the channel untouched.
func (s *Session) Write(ctx context.Context, g Group, k int, v float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(ctx, g, k, s.topo.Channel(g, k), v)
}

// WriteChannel is Write with the index checked against the current
// topology; found is false when k is out of range and nothing was sent.
func (s *Session) WriteChannel(ctx context.Context, g Group, k int, v float64) (written, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, found := s.lookup(g, k)
	if !found {
		return false, false
	}
	return s.write(ctx, g, k, ch, v), true
}

func (s *Session) write(ctx context.Context, g Group, k int, ch *Channel, v float64) bool {
	if !g.Writable() || math.IsNaN(v) {
		return false
	}

	addr := rawBase + uint16(k)
	switch g {
	case AO:
		code, ok := ch.Conv.Inverse(v)
		if !ok {
			return false
		}
		if err := s.transport.WriteSingleRegister(ctx, addr, code); err != nil {
			s.writeFailed(g, k, err)
			return false
		}
		ch.recordWrite(v, code)
	case DO:
		if err := s.transport.WriteSingleCoil(ctx, addr, v != 0); err != nil {
			s.writeFailed(g, k, err)
			return false
		}
	}
	s.track(nil)
	return true
}

// lookup returns channel k of g, or false when the index is out of range.
// Callers hold s.mu.
func (s *Session) lookup(g Group, k int) (*Channel, bool) {
	channels := s.topo.Channels(g)
	if k < 0 || k >= len(channels) {
		return nil, false
	}
	return &channels[k], true
}

// WriteAll sets every channel of output group g in one transport call.
// len(values) must equal Count(g).
func (s *Session) WriteAll(ctx context.Context, g Group, values []float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels := s.topo.Channels(g)
	if !g.Writable() || len(channels) == 0 || len(values) != len(channels) {
		return false
	}

	switch g {
	case AO:
		codes := make([]uint16, len(values))
		for k, v := range values {
			code, ok := channels[k].Conv.Inverse(v)
			if !ok {
				return false
			}
			codes[k] = code
		}
		if err := s.transport.WriteMultipleRegisters(ctx, rawBase, codes); err != nil {
			s.writeFailed(g, -1, err)
			return false
		}
		for k := range channels {
			channels[k].recordWrite(values[k], codes[k])
		}
	case DO:
		states := make([]bool, len(values))
		for k, v := range values {
			if math.IsNaN(v) {
				return false
			}
			states[k] = v != 0
		}
		if err := s.transport.WriteMultipleCoils(ctx, rawBase, states); err != nil {
			s.writeFailed(g, -1, err)
			return false
		}
	}
	s.track(nil)
	return true
}

// readRaw reads n raw codes of g starting at addr. Bit groups yield 0/1.
func (s *Session) readRaw(ctx context.Context, g Group, addr, n uint16) ([]uint16, error) {
	var (
		regs []uint16
		bits []bool
		err  error
	)
	switch g {
	case AI:
		regs, err = s.transport.ReadInputRegisters(ctx, addr, n)
	case AO:
		regs, err = s.transport.ReadHoldingRegisters(ctx, addr, n)
	case DI:
		bits, err = s.transport.ReadDiscreteInputs(ctx, addr, n)
	case DO:
		bits, err = s.transport.ReadCoils(ctx, addr, n)
	}
	if err == nil && bits != nil {
		regs = bitsToCodes(bits)
	}
	if err == nil && len(regs) != int(n) {
		err = sizeErr(nil, len(regs), int(n))
	}
	s.track(err)
	if err != nil {
		return nil, err
	}
	return regs, nil
}

// update converts raw into ch and returns the reported value.
func (s *Session) update(g Group, ch *Channel, raw uint16) float64 {
	ch.Raw = raw
	v := ch.Conv.Forward(raw)
	if g == AO {
		v = ch.settle(v)
	}
	if !ch.Enabled {
		v = nan
	}
	ch.Value = v
	return v
}

func (s *Session) writeFailed(g Group, k int, err error) {
	s.track(err)
	s.logger.Debug("Write failed",
		zap.String("device", s.Name),
		zap.Stringer("group", g),
		zap.Int("channel", k),
		zap.Error(err))
}

func bitsToCodes(bits []bool) []uint16 {
	out := make([]uint16, len(bits))
	for i, b := range bits {
		if b {
			out[i] = 1
		}
	}
	return out
}

// track counts consecutive failed round trips.
func (s *Session) track(err error) {
	if err != nil {
		s.failures++
		return
	}
	s.failures = 0
}

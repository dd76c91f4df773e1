package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/KevinKickass/et7000d/internal/modbus"
	"github.com/KevinKickass/et7000d/internal/ranges"
)

// Topology is the discovered layout of one connected module. It is built in
// one step by Build and replaced whole on reconnect.
type Topology struct {
	TypeID uint16
	groups [groupCount][]Channel
}

// Offline is the topology of a device that could not be identified.
func Offline() *Topology {
	return &Topology{}
}

// Online reports whether the module was identified.
func (t *Topology) Online() bool {
	return t.TypeID != 0
}

// TypeName renders the type id the way modules are labelled, e.g. "7026".
// Offline devices report "0000".
func (t *Topology) TypeName() string {
	return fmt.Sprintf("%04X", t.TypeID)
}

// Count returns the number of channels in g.
func (t *Topology) Count(g Group) int {
	if !g.valid() {
		return 0
	}
	return len(t.groups[g])
}

// Channels returns the arena of g.
func (t *Topology) Channels(g Group) []Channel {
	if !g.valid() {
		return nil
	}
	return t.groups[g]
}

// Channel returns channel k of g. An out-of-range index is a programmer
// error and panics.
func (t *Topology) Channel(g Group, k int) *Channel {
	if !g.valid() || k < 0 || k >= len(t.groups[g]) {
		panic(fmt.Sprintf("device: channel %s[%d] out of range (count %d)", g, k, t.Count(g)))
	}
	return &t.groups[g][k]
}

type registerReader func(ctx context.Context, addr, n uint16) ([]uint16, error)

// Build probes the module behind tr and returns its topology. The result is
// always usable: when the type cannot be identified the offline topology is
// returned, and a failed probe falls back to its default. The returned error
// lists every probe that fell back and wraps ErrProbe.
func Build(ctx context.Context, tr modbus.Transport) (*Topology, error) {
	var issues []error

	typeID, err := probeWithFallback(ctx, tr.ReadHoldingRegisters, regType, regTypeLegacy)
	if typeID == 0 {
		if err == nil {
			err = errors.New("type registers read zero")
		}
		return Offline(), fmt.Errorf("%w: identify: %w", ErrProbe, err)
	}

	topo := &Topology{TypeID: typeID}
	for _, g := range Groups {
		l := layouts[g]
		n, err := probeWithFallback(ctx, tr.ReadInputRegisters, l.count, l.countLegacy)
		if err != nil {
			issues = append(issues, fmt.Errorf("%s count: %w", g, err))
		}

		enabled := allEnabled(int(n))
		if g == AI && n > 0 {
			mask, err := tr.ReadCoils(ctx, coilAIMask, n)
			if err == nil && len(mask) == int(n) {
				enabled = mask
			} else {
				issues = append(issues, fmt.Errorf("ai mask: %w", sizeErr(err, len(mask), int(n))))
			}
		}

		codes := make([]uint16, n)
		if l.hasRanges && n > 0 {
			regs, err := tr.ReadHoldingRegisters(ctx, l.ranges, n)
			if err == nil && len(regs) == int(n) {
				copy(codes, regs)
			} else {
				issues = append(issues, fmt.Errorf("%s ranges: %w", g, sizeErr(err, len(regs), int(n))))
				for i := range codes {
					codes[i] = ranges.UnknownCode
				}
			}
		}

		channels := make([]Channel, n)
		for k := range channels {
			r := digitalRange
			if g.Analog() {
				r = ranges.Lookup(codes[k])
			}
			channels[k] = newChannel(codes[k], r, enabled[k])
		}
		topo.groups[g] = channels
	}

	if len(issues) > 0 {
		return topo, fmt.Errorf("%w: %w", ErrProbe, errors.Join(issues...))
	}
	return topo, nil
}

// probeWithFallback reads one register at primary and, when that read fails
// or yields zero, at legacy. A double failure yields 0.
func probeWithFallback(ctx context.Context, read registerReader, primary, legacy uint16) (uint16, error) {
	v, err := readOne(ctx, read, primary)
	if err == nil && v != 0 {
		return v, nil
	}

	lv, lerr := readOne(ctx, read, legacy)
	if lerr != nil {
		if err != nil {
			return 0, errors.Join(err, lerr)
		}
		// primary answered zero, the legacy register is simply absent
		return 0, nil
	}
	return lv, nil
}

func readOne(ctx context.Context, read registerReader, addr uint16) (uint16, error) {
	regs, err := read(ctx, addr, 1)
	if err != nil {
		return 0, fmt.Errorf("register %d: %w", addr, err)
	}
	if len(regs) != 1 {
		return 0, fmt.Errorf("register %d: %w", addr, modbus.ErrShortResponse)
	}
	return regs[0], nil
}

func allEnabled(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}

func sizeErr(err error, got, want int) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: got %d values, want %d", modbus.ErrShortResponse, got, want)
}

package device

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/et7000d/internal/modbus/modbustest"
	"github.com/KevinKickass/et7000d/internal/ranges"
)

// newFake returns a transport laid out like a module with the given counts,
// AI range 0x08 and AO range 0x33.
func newFake(typeID uint16, ai, ao, di, do int) *modbustest.Fake {
	f := modbustest.New()
	f.SetHolding(regType, typeID)
	f.SetInput(regAICount, uint16(ai))
	f.SetInput(regAOCount, uint16(ao))
	f.SetInput(regDICount, uint16(di))
	f.SetInput(regDOCount, uint16(do))
	for k := 0; k < ai; k++ {
		f.SetCoils(coilAIMask+uint16(k), true)
		f.SetHolding(regAIRanges+uint16(k), 0x08)
	}
	for k := 0; k < ao; k++ {
		f.SetHolding(regAORanges+uint16(k), 0x33)
	}
	return f
}

func connect(t *testing.T, f *modbustest.Fake) *Session {
	t.Helper()
	s := NewSession("test", f, zap.NewNop())
	require.NoError(t, s.Connect(context.Background()))
	return s
}

func TestConnectBuildsTopology(t *testing.T) {
	s := connect(t, newFake(0x7026, 6, 2, 2, 2))

	assert.True(t, s.Online())
	assert.Equal(t, uint16(0x7026), s.TypeID())
	assert.Equal(t, "7026", s.TypeName())
	assert.Equal(t, 6, s.Count(AI))
	assert.Equal(t, 2, s.Count(AO))
	assert.Equal(t, 2, s.Count(DI))
	assert.Equal(t, 2, s.Count(DO))

	assert.Equal(t, "V", s.Units(AI, 0))
	assert.Equal(t, -10.0, s.Min(AO, 1))
	assert.Equal(t, 10.0, s.Max(AO, 1))
	assert.Equal(t, uint16(0x33), s.RangeCode(AO, 1))
	assert.True(t, s.Enabled(DO, 1))
}

func TestIdentifyLegacyType(t *testing.T) {
	f := newFake(0, 6, 2, 2, 2)
	f.SetHolding(regTypeLegacy, 0x7026)

	s := connect(t, f)
	assert.Equal(t, uint16(0x7026), s.TypeID())
}

func TestLegacyCountFallback(t *testing.T) {
	f := newFake(0x7026, 0, 2, 2, 2)
	f.SetInput(regAICountLegacy, 6)
	for k := uint16(0); k < 6; k++ {
		f.SetCoils(coilAIMask+k, true)
	}

	s := connect(t, f)
	assert.Equal(t, 6, s.Count(AI))
	assert.Len(t, s.ReadAll(context.Background(), AI), 6)
}

func TestCountDoubleFailureDefaultsToZero(t *testing.T) {
	f := newFake(0x7026, 6, 2, 2, 2)
	f.Fail(modbustest.OpReadInputRegisters, regDOCount)
	f.Fail(modbustest.OpReadInputRegisters, regDOCountLegacy)

	topo, err := Build(context.Background(), mustOpen(t, f))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProbe))
	assert.True(t, topo.Online())
	assert.Equal(t, 0, topo.Count(DO))
	assert.Equal(t, 6, topo.Count(AI))
}

func TestUnidentifiedDeviceIsOffline(t *testing.T) {
	f := newFake(0, 6, 2, 2, 2)

	s := NewSession("test", f, zap.NewNop())
	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnect))
	assert.False(t, s.Online())
	for _, g := range Groups {
		assert.Equal(t, 0, s.Count(g))
	}
}

func TestConnectFailureIsOffline(t *testing.T) {
	f := newFake(0x7026, 6, 2, 2, 2)
	f.Fail(modbustest.OpOpen, modbustest.AnyAddr)

	s := NewSession("test", f, zap.NewNop())
	err := s.Connect(context.Background())
	assert.True(t, errors.Is(err, ErrConnect))
	assert.Equal(t, uint16(0), s.TypeID())
	assert.Equal(t, "0000", s.TypeName())
	assert.Empty(t, s.ReadAll(context.Background(), AI))
	assert.Equal(t, 1, f.CallCount(modbustest.OpOpen))
	assert.Zero(t, f.CallCount(modbustest.OpReadHoldingRegisters))
}

func TestMisSizedRangeReadUsesPassthrough(t *testing.T) {
	f := newFake(0x7026, 6, 2, 2, 2)
	f.Short(modbustest.OpReadHoldingRegisters, regAIRanges)

	s := connect(t, f)
	for k := 0; k < s.Count(AI); k++ {
		assert.Equal(t, ranges.UnknownCode, s.RangeCode(AI, k))
		assert.Equal(t, "?", s.Units(AI, k))
	}
	// AO ranges were unaffected
	assert.Equal(t, uint16(0x33), s.RangeCode(AO, 0))

	f.SetInput(3, 1234)
	r := s.Read(context.Background(), AI, 3)
	assert.True(t, r.OK)
	assert.InDelta(t, 1234.0, r.Value, 1e-9)
}

func TestMaskReadFailureEnablesAll(t *testing.T) {
	f := newFake(0x7026, 6, 2, 2, 2)
	f.SetCoils(coilAIMask+2, false)
	f.Fail(modbustest.OpReadCoils, coilAIMask)

	s := connect(t, f)
	for k := 0; k < 6; k++ {
		assert.True(t, s.Enabled(AI, k))
	}
}

func TestDisabledChannelsReadUnknown(t *testing.T) {
	f := newFake(0x7026, 6, 2, 2, 2)
	f.SetCoils(coilAIMask+2, false)
	f.SetInput(0, 0x1000, 0x2000, 0x7FFF, 0x3000)

	s := connect(t, f)
	ctx := context.Background()
	require.False(t, s.Enabled(AI, 2))

	values := s.ReadAll(ctx, AI)
	require.Len(t, values, 6)
	assert.True(t, math.IsNaN(values[2]))
	assert.False(t, math.IsNaN(values[1]))

	f.ResetCalls()
	r := s.Read(ctx, AI, 2)
	assert.True(t, math.IsNaN(r.Value))
	assert.False(t, r.Enabled)
	assert.False(t, r.OK)
	assert.Zero(t, f.CallCount(modbustest.OpReadInputRegisters))
}

func TestReadAllFailureKeepsLength(t *testing.T) {
	f := newFake(0x7026, 6, 2, 2, 2)
	s := connect(t, f)
	f.Fail(modbustest.OpReadInputRegisters, rawBase)
	f.Fail(modbustest.OpReadDiscreteInputs, modbustest.AnyAddr)

	values := s.ReadAll(context.Background(), AI)
	require.Len(t, values, 6)
	for _, v := range values {
		assert.True(t, math.IsNaN(v))
	}

	assert.Equal(t, []bool{false, false}, s.ReadAllDigital(context.Background(), DI))

	r := s.Read(context.Background(), AI, 0)
	assert.True(t, r.Enabled)
	assert.False(t, r.OK)
	assert.True(t, math.IsNaN(r.Value))

	// the session keeps working once the transport recovers
	f.Recover()
	assert.False(t, math.IsNaN(s.ReadAll(context.Background(), AI)[0]))
}

func TestReadShortResponseIsFailure(t *testing.T) {
	f := newFake(0x7026, 6, 2, 2, 2)
	s := connect(t, f)
	f.Short(modbustest.OpReadInputRegisters, rawBase)

	values := s.ReadAll(context.Background(), AI)
	require.Len(t, values, 6)
	assert.True(t, math.IsNaN(values[5]))
}

func TestWriteReadbackHysteresis(t *testing.T) {
	f := newFake(0x7024, 0, 4, 0, 0)
	s := connect(t, f)
	ctx := context.Background()

	require.True(t, s.Write(ctx, AO, 2, 5.0))
	code := f.Holding(2)
	assert.InDelta(t, 0x4000, int(code), 1)

	assert.Equal(t, 5.0, s.Read(ctx, AO, 2).Value)
	assert.Equal(t, 5.0, s.ReadAll(ctx, AO)[2])

	// neighbouring codes are within one quantum of 5.0
	for _, c := range []uint16{0x3FFF, 0x4000} {
		f.SetHolding(2, c)
		assert.Equal(t, 5.0, s.Read(ctx, AO, 2).Value)
	}

	f.SetHolding(2, 0x4100)
	r := s.Read(ctx, AO, 2)
	assert.NotEqual(t, 5.0, r.Value)
	assert.InDelta(t, 5.08, r.Value, 0.01)

	rec, ok := s.Snapshot().Channel(AO, 2).LastWrite()
	require.True(t, ok)
	assert.Equal(t, 5.0, rec.Value)
	assert.Equal(t, code, rec.Raw)
}

func TestHysteresisOnlyForWrittenChannel(t *testing.T) {
	f := newFake(0x7024, 0, 4, 0, 0)
	s := connect(t, f)
	ctx := context.Background()

	f.SetHolding(1, 0x4000)
	v := s.Read(ctx, AO, 1).Value
	assert.NotEqual(t, 5.0, v)
	assert.InDelta(t, 5.0, v, 0.001)
}

func TestWriteFailureLeavesStateUntouched(t *testing.T) {
	f := newFake(0x7024, 0, 4, 0, 2)
	s := connect(t, f)
	ctx := context.Background()

	f.Fail(modbustest.OpWriteSingleRegister, modbustest.AnyAddr)
	f.Fail(modbustest.OpWriteMultipleRegisters, modbustest.AnyAddr)
	f.Fail(modbustest.OpWriteSingleCoil, modbustest.AnyAddr)

	assert.False(t, s.Write(ctx, AO, 0, 1.0))
	assert.False(t, s.WriteAll(ctx, AO, []float64{1, 2, 3, 4}))
	assert.False(t, s.Write(ctx, DO, 0, 1))

	snap := s.Snapshot()
	for k := 0; k < 4; k++ {
		_, ok := snap.Channel(AO, k).LastWrite()
		assert.False(t, ok)
		assert.Zero(t, f.Holding(uint16(k)))
	}
	assert.False(t, f.Coil(0))
}

func TestWriteRejectedWithoutTransport(t *testing.T) {
	f := newFake(0x7026, 6, 2, 2, 2)
	s := connect(t, f)
	ctx := context.Background()
	f.ResetCalls()

	assert.False(t, s.Write(ctx, AI, 0, 1))
	assert.False(t, s.Write(ctx, DI, 0, 1))
	assert.False(t, s.Write(ctx, AO, 0, math.NaN()))
	assert.False(t, s.WriteAll(ctx, AO, []float64{1}))
	assert.False(t, s.WriteAll(ctx, AO, []float64{1, math.NaN()}))
	assert.False(t, s.WriteAll(ctx, DO, []float64{1, math.NaN()}))
	assert.Empty(t, f.Calls())
}

func TestWriteAll(t *testing.T) {
	f := newFake(0x7026, 6, 2, 2, 2)
	s := connect(t, f)
	ctx := context.Background()

	require.True(t, s.WriteAll(ctx, AO, []float64{0, -10}))
	assert.Equal(t, uint16(0), f.Holding(0))
	assert.Equal(t, uint16(0x8000), f.Holding(1))
	assert.Equal(t, 1, f.CallCount(modbustest.OpWriteMultipleRegisters))
	assert.Equal(t, []float64{0, -10}, s.ReadAll(ctx, AO))

	require.True(t, s.WriteAll(ctx, DO, []float64{1, 0}))
	assert.True(t, f.Coil(0))
	assert.False(t, f.Coil(1))
	assert.Equal(t, []bool{true, false}, s.ReadAllDigital(ctx, DO))
}

func TestDigitalChannels(t *testing.T) {
	f := newFake(0x7050, 0, 0, 12, 6)
	s := connect(t, f)
	ctx := context.Background()

	f.SetDiscrete(3, true)
	state, ok := s.ReadDigital(ctx, DI, 3)
	assert.True(t, ok)
	assert.True(t, state)

	r := s.Read(ctx, DI, 3)
	assert.Equal(t, 1.0, r.Value)
	assert.Equal(t, uint16(1), r.Raw)

	require.True(t, s.Write(ctx, DO, 5, 1))
	assert.True(t, f.Coil(5))
	state, ok = s.ReadDigital(ctx, DO, 5)
	assert.True(t, ok)
	assert.True(t, state)

	f.Fail(modbustest.OpReadDiscreteInputs, modbustest.AnyAddr)
	state, ok = s.ReadDigital(ctx, DI, 3)
	assert.False(t, ok)
	assert.False(t, state)
}

func TestReconnectDropsWriteRecords(t *testing.T) {
	f := newFake(0x7024, 0, 4, 0, 0)
	s := connect(t, f)
	ctx := context.Background()

	require.True(t, s.Write(ctx, AO, 2, 5.0))
	require.NoError(t, s.Reconnect(ctx))

	_, ok := s.Snapshot().Channel(AO, 2).LastWrite()
	assert.False(t, ok)
	assert.Equal(t, 2, f.CallCount(modbustest.OpOpen))
}

func TestOutOfRangeChannelPanics(t *testing.T) {
	s := connect(t, newFake(0x7026, 6, 2, 2, 2))
	ctx := context.Background()

	assert.Panics(t, func() { s.Read(ctx, AI, 6) })
	assert.Panics(t, func() { s.Write(ctx, AO, -1, 0) })
	assert.Panics(t, func() { s.Units(DO, 2) })
}

func TestChannelIOAfterClose(t *testing.T) {
	f := newFake(0x7026, 6, 2, 2, 2)
	s := connect(t, f)
	ctx := context.Background()

	require.Less(t, 3, s.Count(AI))
	require.Less(t, 1, s.Count(AO))
	require.NoError(t, s.Close())
	f.ResetCalls()

	var (
		r     Reading
		found bool
	)
	assert.NotPanics(t, func() { r, found = s.ReadChannel(ctx, AI, 3) })
	assert.False(t, found)
	assert.True(t, math.IsNaN(r.Value))

	var written bool
	assert.NotPanics(t, func() { written, found = s.WriteChannel(ctx, AO, 1, 2.5) })
	assert.False(t, found)
	assert.False(t, written)
	assert.Empty(t, f.Calls())
}

func TestCheckedChannelIO(t *testing.T) {
	f := newFake(0x7026, 6, 2, 2, 2)
	s := connect(t, f)
	ctx := context.Background()
	f.SetInput(3, 0x4000)

	r, found := s.ReadChannel(ctx, AI, 3)
	require.True(t, found)
	assert.True(t, r.OK)
	assert.Equal(t, "V", r.Units)
	assert.InDelta(t, 5.0, r.Value, 0.01)

	_, found = s.ReadChannel(ctx, AI, 6)
	assert.False(t, found)

	written, found := s.WriteChannel(ctx, AO, 1, 5.0)
	assert.True(t, found)
	assert.True(t, written)

	written, found = s.WriteChannel(ctx, AI, 0, 1.0)
	assert.True(t, found)
	assert.False(t, written)
}

func TestReadDigitalSkipsAnalogGroups(t *testing.T) {
	f := newFake(0x7026, 6, 2, 2, 2)
	s := connect(t, f)
	f.ResetCalls()

	state, ok := s.ReadDigital(context.Background(), AI, 0)
	assert.False(t, ok)
	assert.False(t, state)
	assert.Empty(t, f.Calls())
}

func mustOpen(t *testing.T, f *modbustest.Fake) *modbustest.Fake {
	t.Helper()
	require.NoError(t, f.Open(context.Background()))
	return f
}

func TestFailuresCountConsecutiveErrors(t *testing.T) {
	f := newFake(0x7026, 6, 2, 2, 2)
	s := connect(t, f)
	ctx := context.Background()

	f.Fail(modbustest.OpReadInputRegisters, modbustest.AnyAddr)
	s.ReadAll(ctx, AI)
	s.Read(ctx, AI, 1)
	assert.Equal(t, 2, s.Failures())

	f.Recover()
	s.ReadAll(ctx, AI)
	assert.Zero(t, s.Failures())
}

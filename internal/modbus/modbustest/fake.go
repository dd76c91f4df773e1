// Package modbustest provides an in-memory modbus.Transport for tests.
package modbustest

import (
	"context"
	"errors"
	"sync"

	"github.com/KevinKickass/et7000d/internal/modbus"
)

// Op names one transport primitive.
type Op string

const (
	OpOpen                   Op = "open"
	OpReadCoils              Op = "read_coils"
	OpReadDiscreteInputs     Op = "read_discrete_inputs"
	OpReadHoldingRegisters   Op = "read_holding_registers"
	OpReadInputRegisters     Op = "read_input_registers"
	OpWriteSingleCoil        Op = "write_single_coil"
	OpWriteSingleRegister    Op = "write_single_register"
	OpWriteMultipleCoils     Op = "write_multiple_coils"
	OpWriteMultipleRegisters Op = "write_multiple_registers"
)

// AnyAddr matches every address in a fault rule.
const AnyAddr = -1

// ErrInjected is returned by operations matching a Fail rule.
var ErrInjected = errors.New("modbustest: injected failure")

type fault struct {
	op    Op
	addr  int
	short bool
}

// Call records one transport invocation.
type Call struct {
	Op   Op
	Addr uint16
	N    uint16
}

// Fake keeps four register banks in memory. Unset addresses read as zero.
type Fake struct {
	mu       sync.Mutex
	open     bool
	coils    map[uint16]bool
	discrete map[uint16]bool
	holding  map[uint16]uint16
	input    map[uint16]uint16
	faults   []fault
	calls    []Call

	// HoldingWrite, when set, rewrites every value stored into a holding
	// register (e.g. to model DAC readback dither).
	HoldingWrite func(addr, value uint16) uint16
}

var _ modbus.Transport = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		coils:    make(map[uint16]bool),
		discrete: make(map[uint16]bool),
		holding:  make(map[uint16]uint16),
		input:    make(map[uint16]uint16),
	}
}

// Fail makes op at addr (or AnyAddr) return ErrInjected until Recover.
func (f *Fake) Fail(op Op, addr int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, fault{op: op, addr: addr})
}

// Short makes reads of op at addr return one value fewer than requested,
// violating the transport contract.
func (f *Fake) Short(op Op, addr int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, fault{op: op, addr: addr, short: true})
}

// Recover clears every injected fault.
func (f *Fake) Recover() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = nil
}

func (f *Fake) SetHolding(addr uint16, values ...uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, v := range values {
		f.holding[addr+uint16(i)] = v
	}
}

func (f *Fake) SetInput(addr uint16, values ...uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, v := range values {
		f.input[addr+uint16(i)] = v
	}
}

func (f *Fake) SetCoils(addr uint16, values ...bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, v := range values {
		f.coils[addr+uint16(i)] = v
	}
}

func (f *Fake) SetDiscrete(addr uint16, values ...bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, v := range values {
		f.discrete[addr+uint16(i)] = v
	}
}

func (f *Fake) Holding(addr uint16) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holding[addr]
}

func (f *Fake) Coil(addr uint16) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.coils[addr]
}

// Calls returns a copy of the recorded invocations.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount counts recorded invocations of op.
func (f *Fake) CallCount(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls forgets recorded invocations.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *Fake) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: OpOpen})
	if f.faultFor(OpOpen, 0) != nil {
		return ErrInjected
	}
	f.open = true
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

func (f *Fake) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *Fake) ReadCoils(ctx context.Context, addr, n uint16) ([]bool, error) {
	return f.readBits(OpReadCoils, f.coils, addr, n)
}

func (f *Fake) ReadDiscreteInputs(ctx context.Context, addr, n uint16) ([]bool, error) {
	return f.readBits(OpReadDiscreteInputs, f.discrete, addr, n)
}

func (f *Fake) ReadHoldingRegisters(ctx context.Context, addr, n uint16) ([]uint16, error) {
	return f.readRegisters(OpReadHoldingRegisters, f.holding, addr, n)
}

func (f *Fake) ReadInputRegisters(ctx context.Context, addr, n uint16) ([]uint16, error) {
	return f.readRegisters(OpReadInputRegisters, f.input, addr, n)
}

func (f *Fake) WriteSingleCoil(ctx context.Context, addr uint16, value bool) error {
	return f.writeCoils(OpWriteSingleCoil, addr, []bool{value})
}

func (f *Fake) WriteSingleRegister(ctx context.Context, addr, value uint16) error {
	return f.writeRegisters(OpWriteSingleRegister, addr, []uint16{value})
}

func (f *Fake) WriteMultipleCoils(ctx context.Context, addr uint16, values []bool) error {
	return f.writeCoils(OpWriteMultipleCoils, addr, values)
}

func (f *Fake) WriteMultipleRegisters(ctx context.Context, addr uint16, values []uint16) error {
	return f.writeRegisters(OpWriteMultipleRegisters, addr, values)
}

func (f *Fake) writeCoils(op Op, addr uint16, values []bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, Addr: addr, N: uint16(len(values))})
	if err := f.check(op, addr, uint16(len(values))); err != nil {
		return err
	}
	for i, v := range values {
		f.coils[addr+uint16(i)] = v
	}
	return nil
}

func (f *Fake) writeRegisters(op Op, addr uint16, values []uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, Addr: addr, N: uint16(len(values))})
	if err := f.check(op, addr, uint16(len(values))); err != nil {
		return err
	}
	for i, v := range values {
		a := addr + uint16(i)
		if f.HoldingWrite != nil {
			v = f.HoldingWrite(a, v)
		}
		f.holding[a] = v
	}
	return nil
}

func (f *Fake) readBits(op Op, bank map[uint16]bool, addr, n uint16) ([]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, Addr: addr, N: n})
	if err := f.check(op, addr, n); err != nil {
		return nil, err
	}
	out := make([]bool, f.length(op, addr, n))
	for i := range out {
		out[i] = bank[addr+uint16(i)]
	}
	return out, nil
}

func (f *Fake) readRegisters(op Op, bank map[uint16]uint16, addr, n uint16) ([]uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, Addr: addr, N: n})
	if err := f.check(op, addr, n); err != nil {
		return nil, err
	}
	out := make([]uint16, f.length(op, addr, n))
	for i := range out {
		out[i] = bank[addr+uint16(i)]
	}
	return out, nil
}

func (f *Fake) check(op Op, addr, n uint16) error {
	if !f.open {
		return modbus.ErrNotConnected
	}
	if n == 0 {
		return modbus.ErrEmptyRequest
	}
	if ft := f.faultFor(op, addr); ft != nil && !ft.short {
		return ErrInjected
	}
	return nil
}

func (f *Fake) length(op Op, addr, n uint16) int {
	if ft := f.faultFor(op, addr); ft != nil && ft.short {
		return int(n) - 1
	}
	return int(n)
}

func (f *Fake) faultFor(op Op, addr uint16) *fault {
	for i := range f.faults {
		ft := &f.faults[i]
		if ft.op == op && (ft.addr == AnyAddr || ft.addr == int(addr)) {
			return ft
		}
	}
	return nil
}

package device

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// RegisterClass is one of the four Modbus data tables.
type RegisterClass int

const (
	Coil RegisterClass = iota
	DiscreteInput
	InputRegister
	HoldingRegister
)

func (c RegisterClass) String() string {
	switch c {
	case Coil:
		return "coil"
	case DiscreteInput:
		return "discrete_input"
	case InputRegister:
		return "input_register"
	case HoldingRegister:
		return "holding_register"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Writable reports whether the class accepts writes.
func (c RegisterClass) Writable() bool {
	return c == Coil || c == HoldingRegister
}

// Address is a decoded flat Modbus address.
type Address struct {
	Class  RegisterClass
	Offset uint16
}

const (
	baseDiscrete = 10000
	baseReserved = 20000
	baseInput    = 30000
	baseHolding  = 40000
)

// DecodeAddress maps the flat address space onto register classes:
// 4xxxx holding, 3xxxx input, 1xxxx discrete, below 10000 coils.
// The 2xxxx block is not assigned and is rejected.
func DecodeAddress(addr int) (Address, error) {
	switch {
	case addr < 0:
		return Address{}, fmt.Errorf("%w: %d", ErrAddress, addr)
	case addr >= baseHolding:
		if addr-baseHolding > 0xFFFF {
			return Address{}, fmt.Errorf("%w: %d", ErrAddress, addr)
		}
		return Address{Class: HoldingRegister, Offset: uint16(addr - baseHolding)}, nil
	case addr >= baseInput:
		return Address{Class: InputRegister, Offset: uint16(addr - baseInput)}, nil
	case addr >= baseReserved:
		return Address{}, fmt.Errorf("%w: %d is in the unassigned 2xxxx block", ErrAddress, addr)
	case addr >= baseDiscrete:
		return Address{Class: DiscreteInput, Offset: uint16(addr - baseDiscrete)}, nil
	default:
		return Address{Class: Coil, Offset: uint16(addr)}, nil
	}
}

// ReadAddress reads n values at a flat address. Bits read as 0/1.
func (s *Session) ReadAddress(ctx context.Context, addr, n int) ([]uint16, error) {
	a, err := DecodeAddress(addr)
	if err != nil {
		return nil, err
	}
	if n <= 0 || int(a.Offset)+n > 0x10000 {
		return nil, fmt.Errorf("%w: %d values at %d", ErrAddress, n, addr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		regs []uint16
		bits []bool
	)
	switch a.Class {
	case Coil:
		bits, err = s.transport.ReadCoils(ctx, a.Offset, uint16(n))
	case DiscreteInput:
		bits, err = s.transport.ReadDiscreteInputs(ctx, a.Offset, uint16(n))
	case InputRegister:
		regs, err = s.transport.ReadInputRegisters(ctx, a.Offset, uint16(n))
	case HoldingRegister:
		regs, err = s.transport.ReadHoldingRegisters(ctx, a.Offset, uint16(n))
	}
	if err == nil && bits != nil {
		regs = bitsToCodes(bits)
	}
	if err == nil && len(regs) != n {
		err = sizeErr(nil, len(regs), n)
	}
	s.track(err)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %d: %w", ErrTransport, a.Class, a.Offset, err)
	}
	return regs, nil
}

// WriteAddress writes values at a flat address. One value uses the
// single-write function, more use the multiple-write function. Coils are
// set for non-zero values.
func (s *Session) WriteAddress(ctx context.Context, addr int, values []uint16) error {
	a, err := DecodeAddress(addr)
	if err != nil {
		return err
	}
	if !a.Class.Writable() {
		return fmt.Errorf("%w: %s at %d", ErrReadOnly, a.Class, addr)
	}
	if len(values) == 0 || int(a.Offset)+len(values) > 0x10000 {
		return fmt.Errorf("%w: %d values at %d", ErrAddress, len(values), addr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case a.Class == Coil && len(values) == 1:
		err = s.transport.WriteSingleCoil(ctx, a.Offset, values[0] != 0)
	case a.Class == Coil:
		states := make([]bool, len(values))
		for i, v := range values {
			states[i] = v != 0
		}
		err = s.transport.WriteMultipleCoils(ctx, a.Offset, states)
	case len(values) == 1:
		err = s.transport.WriteSingleRegister(ctx, a.Offset, values[0])
	default:
		err = s.transport.WriteMultipleRegisters(ctx, a.Offset, values)
	}
	s.track(err)
	if err != nil {
		return fmt.Errorf("%w: write %s %d: %w", ErrTransport, a.Class, a.Offset, err)
	}
	return nil
}

// ReadModbus is ReadAddress reporting failure as ok=false.
func (s *Session) ReadModbus(ctx context.Context, addr, n int) ([]uint16, bool) {
	values, err := s.ReadAddress(ctx, addr, n)
	if err != nil {
		s.logger.Debug("Modbus read failed", zap.String("device", s.Name), zap.Int("address", addr), zap.Error(err))
		return nil, false
	}
	return values, true
}

// WriteModbus is WriteAddress reporting failure as false.
func (s *Session) WriteModbus(ctx context.Context, addr int, values []uint16) bool {
	if err := s.WriteAddress(ctx, addr, values); err != nil {
		s.logger.Debug("Modbus write failed", zap.String("device", s.Name), zap.Int("address", addr), zap.Error(err))
		return false
	}
	return true
}

// Package sim emulates an ET-7000 module as an in-process Modbus TCP slave.
package sim

import "sync"

const bankSize = 0x10000

// Bank is the register image served by the simulator.
type Bank struct {
	mu       sync.RWMutex
	coils    []bool
	discrete []bool
	holding  []uint16
	input    []uint16

	// aoDither is added to every value written into the AO raw registers
	// [0, aoCount), mimicking DAC readback jitter.
	aoDither int
	aoCount  int
}

func NewBank() *Bank {
	return &Bank{
		coils:    make([]bool, bankSize),
		discrete: make([]bool, bankSize),
		holding:  make([]uint16, bankSize),
		input:    make([]uint16, bankSize),
	}
}

func (b *Bank) SetHolding(addr uint16, values ...uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.holding[addr:], values)
}

func (b *Bank) SetInput(addr uint16, values ...uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.input[addr:], values)
}

func (b *Bank) SetCoils(addr uint16, values ...bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.coils[addr:], values)
}

func (b *Bank) SetDiscrete(addr uint16, values ...bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.discrete[addr:], values)
}

func (b *Bank) Holding(addr uint16) uint16 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.holding[addr]
}

func (b *Bank) Coil(addr uint16) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.coils[addr]
}

func (b *Bank) readBits(bank []bool, addr, n uint16) ([]bool, bool) {
	if int(addr)+int(n) > bankSize {
		return nil, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]bool(nil), bank[addr:int(addr)+int(n)]...), true
}

func (b *Bank) readRegisters(bank []uint16, addr, n uint16) ([]uint16, bool) {
	if int(addr)+int(n) > bankSize {
		return nil, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]uint16(nil), bank[addr:int(addr)+int(n)]...), true
}

func (b *Bank) writeCoils(addr uint16, values []bool) bool {
	if int(addr)+len(values) > bankSize {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.coils[addr:], values)
	return true
}

func (b *Bank) writeHolding(addr uint16, values []uint16) bool {
	if int(addr)+len(values) > bankSize {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, v := range values {
		a := int(addr) + i
		if a < b.aoCount && b.aoDither != 0 {
			v = uint16(int(v) + b.aoDither)
		}
		b.holding[a] = v
	}
	return true
}

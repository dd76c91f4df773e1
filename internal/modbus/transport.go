package modbus

import "context"

// Transport is a blocking register/coil connection to one Modbus slave.
// Reads return exactly n values or an error, never a partial slice.
// Implementations are not required to be safe for concurrent use; callers
// serialise access per connection.
type Transport interface {
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	ReadCoils(ctx context.Context, addr, n uint16) ([]bool, error)
	ReadDiscreteInputs(ctx context.Context, addr, n uint16) ([]bool, error)
	ReadHoldingRegisters(ctx context.Context, addr, n uint16) ([]uint16, error)
	ReadInputRegisters(ctx context.Context, addr, n uint16) ([]uint16, error)

	WriteSingleCoil(ctx context.Context, addr uint16, value bool) error
	WriteSingleRegister(ctx context.Context, addr, value uint16) error
	WriteMultipleCoils(ctx context.Context, addr uint16, values []bool) error
	WriteMultipleRegisters(ctx context.Context, addr uint16, values []uint16) error
}

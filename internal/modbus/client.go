package modbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// Client is a Transport over Modbus TCP backed by goburrow/modbus.
type Client struct {
	address string
	unitID  uint8
	timeout time.Duration

	mu        sync.Mutex
	handler   *modbus.TCPClientHandler
	client    modbus.Client
	connected bool
}

var _ Transport = (*Client)(nil)

func NewClient(address string, unitID uint8, timeout time.Duration) *Client {
	return &Client{
		address: address,
		unitID:  unitID,
		timeout: timeout,
	}
}

// Address returns the host:port the client dials.
func (c *Client) Address() string {
	return c.address
}

// Open dials the slave.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	handler := modbus.NewTCPClientHandler(c.address)
	handler.Timeout = c.timeout
	handler.SlaveId = c.unitID
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 && d < handler.Timeout {
			handler.Timeout = d
		}
	}

	if err := handler.Connect(); err != nil {
		return fmt.Errorf("connection to %s failed: %w", c.address, err)
	}
	handler.Timeout = c.timeout

	c.handler = handler
	c.client = modbus.NewClient(handler)
	c.connected = true
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	err := c.handler.Close()
	c.connected = false
	c.handler = nil
	c.client = nil
	return err
}

func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) ReadCoils(ctx context.Context, addr, n uint16) ([]bool, error) {
	data, err := c.do(ctx, n, func(cl modbus.Client) ([]byte, error) {
		return cl.ReadCoils(addr, n)
	})
	if err != nil {
		return nil, err
	}
	return DecodeBits(data, n)
}

func (c *Client) ReadDiscreteInputs(ctx context.Context, addr, n uint16) ([]bool, error) {
	data, err := c.do(ctx, n, func(cl modbus.Client) ([]byte, error) {
		return cl.ReadDiscreteInputs(addr, n)
	})
	if err != nil {
		return nil, err
	}
	return DecodeBits(data, n)
}

func (c *Client) ReadHoldingRegisters(ctx context.Context, addr, n uint16) ([]uint16, error) {
	data, err := c.do(ctx, n, func(cl modbus.Client) ([]byte, error) {
		return cl.ReadHoldingRegisters(addr, n)
	})
	if err != nil {
		return nil, err
	}
	return DecodeRegisters(data, n)
}

func (c *Client) ReadInputRegisters(ctx context.Context, addr, n uint16) ([]uint16, error) {
	data, err := c.do(ctx, n, func(cl modbus.Client) ([]byte, error) {
		return cl.ReadInputRegisters(addr, n)
	})
	if err != nil {
		return nil, err
	}
	return DecodeRegisters(data, n)
}

func (c *Client) WriteSingleCoil(ctx context.Context, addr uint16, value bool) error {
	var v uint16
	if value {
		v = 0xFF00
	}
	_, err := c.do(ctx, 1, func(cl modbus.Client) ([]byte, error) {
		return cl.WriteSingleCoil(addr, v)
	})
	return err
}

func (c *Client) WriteSingleRegister(ctx context.Context, addr, value uint16) error {
	_, err := c.do(ctx, 1, func(cl modbus.Client) ([]byte, error) {
		return cl.WriteSingleRegister(addr, value)
	})
	return err
}

func (c *Client) WriteMultipleCoils(ctx context.Context, addr uint16, values []bool) error {
	n := uint16(len(values))
	_, err := c.do(ctx, n, func(cl modbus.Client) ([]byte, error) {
		return cl.WriteMultipleCoils(addr, n, EncodeBits(values))
	})
	return err
}

func (c *Client) WriteMultipleRegisters(ctx context.Context, addr uint16, values []uint16) error {
	n := uint16(len(values))
	_, err := c.do(ctx, n, func(cl modbus.Client) ([]byte, error) {
		return cl.WriteMultipleRegisters(addr, n, EncodeRegisters(values))
	})
	return err
}

// do runs one request/response round trip. A failure other than a Modbus
// exception drops the socket so the next request redials instead of reading
// a stale reply.
func (c *Client) do(ctx context.Context, n uint16, fn func(modbus.Client) ([]byte, error)) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, ErrNotConnected
	}
	if n == 0 {
		return nil, ErrEmptyRequest
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := fn(c.client)
	if err != nil {
		var mbErr *modbus.ModbusError
		if !errors.As(err, &mbErr) {
			_ = c.handler.Close()
		}
		return nil, err
	}
	return data, nil
}

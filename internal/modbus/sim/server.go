package sim

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/KevinKickass/et7000d/internal/modbus"
	"go.uber.org/zap"
)

const (
	maxReadBits      = 2000
	maxReadRegisters = 125
)

// Server answers Modbus TCP requests from a Bank.
type Server struct {
	bank   *Bank
	logger *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func NewServer(bank *Bank, logger *zap.Logger) *Server {
	return &Server{
		bank:   bank,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Bank returns the register image served.
func (s *Server) Bank() *Bank {
	return s.bank
}

// Listen binds address and serves connections in the background.
func (s *Server) Listen(address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)

	s.logger.Info("Simulator listening", zap.String("address", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting, drops open connections and waits for handlers.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.logger.Error("Accept failed", zap.Error(err))
			}
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		req, err := modbus.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("Dropping connection", zap.Error(err))
			}
			return
		}

		resp := s.Handle(req)
		if _, err := conn.Write(resp.Encode()); err != nil {
			s.logger.Debug("Write failed", zap.Error(err))
			return
		}
	}
}

// Handle executes one request against the bank.
func (s *Server) Handle(req *modbus.Frame) *modbus.Frame {
	switch req.FunctionCode {
	case modbus.FuncCodeReadCoils:
		return s.readBits(req, s.bank.coils)
	case modbus.FuncCodeReadDiscreteInputs:
		return s.readBits(req, s.bank.discrete)
	case modbus.FuncCodeReadHoldingRegisters:
		return s.readRegisters(req, s.bank.holding)
	case modbus.FuncCodeReadInputRegisters:
		return s.readRegisters(req, s.bank.input)
	case modbus.FuncCodeWriteSingleCoil:
		return s.writeSingleCoil(req)
	case modbus.FuncCodeWriteSingleRegister:
		return s.writeSingleRegister(req)
	case modbus.FuncCodeWriteMultipleCoils:
		return s.writeMultipleCoils(req)
	case modbus.FuncCodeWriteMultipleRegisters:
		return s.writeMultipleRegisters(req)
	default:
		return req.Exception(modbus.ExceptionIllegalFunction)
	}
}

func addrQty(data []byte) (uint16, uint16, bool) {
	if len(data) < 4 {
		return 0, 0, false
	}
	return binary.BigEndian.Uint16(data[0:2]), binary.BigEndian.Uint16(data[2:4]), true
}

func (s *Server) readBits(req *modbus.Frame, bank []bool) *modbus.Frame {
	addr, n, ok := addrQty(req.Data)
	if !ok || n == 0 || n > maxReadBits {
		return req.Exception(modbus.ExceptionIllegalDataValue)
	}
	bits, ok := s.bank.readBits(bank, addr, n)
	if !ok {
		return req.Exception(modbus.ExceptionIllegalDataAddress)
	}
	packed := modbus.EncodeBits(bits)
	return req.Reply(append([]byte{byte(len(packed))}, packed...))
}

func (s *Server) readRegisters(req *modbus.Frame, bank []uint16) *modbus.Frame {
	addr, n, ok := addrQty(req.Data)
	if !ok || n == 0 || n > maxReadRegisters {
		return req.Exception(modbus.ExceptionIllegalDataValue)
	}
	regs, ok := s.bank.readRegisters(bank, addr, n)
	if !ok {
		return req.Exception(modbus.ExceptionIllegalDataAddress)
	}
	payload := modbus.EncodeRegisters(regs)
	return req.Reply(append([]byte{byte(len(payload))}, payload...))
}

func (s *Server) writeSingleCoil(req *modbus.Frame) *modbus.Frame {
	addr, v, ok := addrQty(req.Data)
	if !ok || (v != 0xFF00 && v != 0x0000) {
		return req.Exception(modbus.ExceptionIllegalDataValue)
	}
	s.bank.writeCoils(addr, []bool{v == 0xFF00})
	return req.Reply(req.Data[:4])
}

func (s *Server) writeSingleRegister(req *modbus.Frame) *modbus.Frame {
	addr, v, ok := addrQty(req.Data)
	if !ok {
		return req.Exception(modbus.ExceptionIllegalDataValue)
	}
	s.bank.writeHolding(addr, []uint16{v})
	return req.Reply(req.Data[:4])
}

func (s *Server) writeMultipleCoils(req *modbus.Frame) *modbus.Frame {
	addr, n, ok := addrQty(req.Data)
	if !ok || n == 0 || len(req.Data) < 5 {
		return req.Exception(modbus.ExceptionIllegalDataValue)
	}
	bits, err := modbus.DecodeBits(req.Data[5:], n)
	if err != nil || int(req.Data[4]) != len(req.Data)-5 {
		return req.Exception(modbus.ExceptionIllegalDataValue)
	}
	if !s.bank.writeCoils(addr, bits) {
		return req.Exception(modbus.ExceptionIllegalDataAddress)
	}
	return req.Reply(req.Data[:4])
}

func (s *Server) writeMultipleRegisters(req *modbus.Frame) *modbus.Frame {
	addr, n, ok := addrQty(req.Data)
	if !ok || n == 0 || len(req.Data) < 5 {
		return req.Exception(modbus.ExceptionIllegalDataValue)
	}
	regs, err := modbus.DecodeRegisters(req.Data[5:], n)
	if err != nil || int(req.Data[4]) != len(req.Data)-5 {
		return req.Exception(modbus.ExceptionIllegalDataValue)
	}
	if !s.bank.writeHolding(addr, regs) {
		return req.Exception(modbus.ExceptionIllegalDataAddress)
	}
	return req.Reply(req.Data[:4])
}

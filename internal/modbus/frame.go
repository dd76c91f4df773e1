package modbus

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Frame is a Modbus TCP ADU: MBAP header (7 bytes) + function code + data.
type Frame struct {
	TransactionID uint16 // request/response correlation
	ProtocolID    uint16 // always 0x0000 for Modbus
	Length        uint16 // number of following bytes, unit id included
	UnitID        uint8
	FunctionCode  uint8
	Data          []byte
}

// Modbus function codes
const (
	FuncCodeReadCoils              = 0x01
	FuncCodeReadDiscreteInputs     = 0x02
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeReadInputRegisters     = 0x04
	FuncCodeWriteSingleCoil        = 0x05
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleCoils     = 0x0F
	FuncCodeWriteMultipleRegisters = 0x10
)

// Exception codes
const (
	ExceptionIllegalFunction    = 0x01
	ExceptionIllegalDataAddress = 0x02
	ExceptionIllegalDataValue   = 0x03
)

const (
	mbapHeaderSize = 7
	maxFrameSize   = 260
)

// Encode serialises the frame including the MBAP header.
func (f *Frame) Encode() []byte {
	f.Length = uint16(len(f.Data) + 2) // unit id + function code

	frame := make([]byte, mbapHeaderSize+1+len(f.Data))
	binary.BigEndian.PutUint16(frame[0:2], f.TransactionID)
	binary.BigEndian.PutUint16(frame[2:4], f.ProtocolID)
	binary.BigEndian.PutUint16(frame[4:6], f.Length)
	frame[6] = f.UnitID
	frame[7] = f.FunctionCode
	copy(frame[8:], f.Data)

	return frame
}

// DecodeFrame parses one complete ADU.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < mbapHeaderSize+1 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(data))
	}

	frame := &Frame{
		TransactionID: binary.BigEndian.Uint16(data[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(data[2:4]),
		Length:        binary.BigEndian.Uint16(data[4:6]),
		UnitID:        data[6],
		FunctionCode:  data[7],
	}

	if frame.ProtocolID != 0x0000 {
		return nil, fmt.Errorf("%w: 0x%04X", ErrProtocolID, frame.ProtocolID)
	}

	if len(data) > mbapHeaderSize+1 {
		frame.Data = data[mbapHeaderSize+1:]
	}

	return frame, nil
}

// ReadFrame reads one ADU from r, using the MBAP length field to find its end.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, mbapHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	length := int(binary.BigEndian.Uint16(header[4:6]))
	if length < 2 || mbapHeaderSize-1+length > maxFrameSize {
		return nil, fmt.Errorf("%w: length field %d", ErrFrameTooShort, length)
	}

	buf := make([]byte, mbapHeaderSize-1+length)
	copy(buf, header)
	if _, err := io.ReadFull(r, buf[mbapHeaderSize:]); err != nil {
		return nil, err
	}

	return DecodeFrame(buf)
}

// Reply builds the response frame for f carrying data.
func (f *Frame) Reply(data []byte) *Frame {
	return &Frame{
		TransactionID: f.TransactionID,
		UnitID:        f.UnitID,
		FunctionCode:  f.FunctionCode,
		Data:          data,
	}
}

// Exception builds the exception response for f.
func (f *Frame) Exception(code uint8) *Frame {
	return &Frame{
		TransactionID: f.TransactionID,
		UnitID:        f.UnitID,
		FunctionCode:  f.FunctionCode | 0x80,
		Data:          []byte{code},
	}
}

// IsException reports whether f is an exception response.
func (f *Frame) IsException() bool {
	return f.FunctionCode&0x80 != 0
}

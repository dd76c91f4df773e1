package modbus

import (
	"encoding/binary"
	"fmt"
)

// DecodeRegisters converts a big-endian register payload into n values.
func DecodeRegisters(data []byte, n uint16) ([]uint16, error) {
	if len(data) != int(n)*2 {
		return nil, fmt.Errorf("%w: want %d registers, got %d bytes", ErrShortResponse, n, len(data))
	}

	registers := make([]uint16, n)
	for i := range registers {
		offset := i * 2
		registers[i] = binary.BigEndian.Uint16(data[offset : offset+2])
	}
	return registers, nil
}

// EncodeRegisters is the inverse of DecodeRegisters.
func EncodeRegisters(values []uint16) []byte {
	data := make([]byte, len(values)*2)
	for i, v := range values {
		binary.BigEndian.PutUint16(data[i*2:], v)
	}
	return data
}

// DecodeBits unpacks n coil/discrete-input states, LSB first.
func DecodeBits(data []byte, n uint16) ([]bool, error) {
	if len(data) != (int(n)+7)/8 {
		return nil, fmt.Errorf("%w: want %d bits, got %d bytes", ErrShortResponse, n, len(data))
	}

	bits := make([]bool, n)
	for i := range bits {
		bits[i] = data[i/8]&(1<<uint(i%8)) != 0
	}
	return bits, nil
}

// EncodeBits packs states LSB first, as coils travel on the wire.
func EncodeBits(bits []bool) []byte {
	data := make([]byte, (len(bits)+7)/8)
	for i, v := range bits {
		if v {
			data[i/8] |= 1 << uint(i%8)
		}
	}
	return data
}

package modbus

import "errors"

var (
	ErrNotConnected  = errors.New("modbus: not connected")
	ErrShortResponse = errors.New("modbus: response length does not match requested quantity")
	ErrFrameTooShort = errors.New("modbus: frame too short")
	ErrProtocolID    = errors.New("modbus: invalid protocol id")
	ErrEmptyRequest  = errors.New("modbus: zero quantity request")
)

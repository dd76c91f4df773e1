package device

import (
	"errors"
	"math"
)

var (
	// ErrConnect: the transport could not be opened, the device is offline.
	ErrConnect = errors.New("device: connect failed")
	// ErrProbe: a discovery read failed or was mis-sized, a default was used.
	ErrProbe = errors.New("device: probe failed")
	// ErrTransport: a steady-state read or write failed.
	ErrTransport = errors.New("device: transport failure")
	// ErrConfiguration: a range code is missing from the range table.
	ErrConfiguration = errors.New("device: unknown range code")
	ErrAddress       = errors.New("device: invalid modbus address")
	ErrReadOnly      = errors.New("device: register class is read-only")
)

var nan = math.NaN()

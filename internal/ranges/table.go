// Package ranges holds the ET-7000 input/output range table and the
// register-code conversion built from it.
package ranges

import "sort"

// Range describes one configurable input/output span of a channel.
type Range struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	MinCode uint16  `json:"min_code"`
	MaxCode uint16  `json:"max_code"`
	Units   string  `json:"units"`
}

// UnknownCode is the range code assigned to channels whose range register
// could not be read.
const UnknownCode uint16 = 0xFFFF

// Passthrough is returned for codes missing from the table; it maps raw
// codes one to one.
var Passthrough = Range{Min: 0, Max: 0xFFFF, MinCode: 0, MaxCode: 0xFFFF, Units: "?"}

// Table maps ICP DAS type codes to ranges.
type Table map[uint16]Range

// Default is the range table of the ET-7000/PET-7000 series.
// Values are kept bit-exact with the module documentation.
var Default = Table{
	// voltage and current inputs
	0x00: {Min: -0.015, Max: 0.015, MinCode: 0x8000, MaxCode: 0x7FFF, Units: "V"},
	0x01: {Min: -0.05, Max: 0.05, MinCode: 0x8000, MaxCode: 0x7FFF, Units: "V"},
	0x02: {Min: -0.1, Max: 0.1, MinCode: 0x8000, MaxCode: 0x7FFF, Units: "V"},
	0x03: {Min: -0.5, Max: 0.5, MinCode: 0x8000, MaxCode: 0x7FFF, Units: "V"},
	0x04: {Min: -1.0, Max: 1.0, MinCode: 0x8000, MaxCode: 0x7FFF, Units: "V"},
	0x05: {Min: -2.5, Max: 2.5, MinCode: 0x8000, MaxCode: 0x7FFF, Units: "V"},
	0x06: {Min: -20.0e-3, Max: 20.0e-3, MinCode: 0x8000, MaxCode: 0x7FFF, Units: "A"},
	0x07: {Min: 4.0e-3, Max: 20.0e-3, MinCode: 0x0000, MaxCode: 0xFFFF, Units: "A"},
	0x08: {Min: -10.0, Max: 10.0, MinCode: 0x8000, MaxCode: 0x7FFF, Units: "V"},
	0x09: {Min: -5.0, Max: 5.0, MinCode: 0x8000, MaxCode: 0x7FFF, Units: "V"},
	0x0A: {Min: -1.0, Max: 1.0, MinCode: 0x8000, MaxCode: 0x7FFF, Units: "V"},
	0x0B: {Min: -0.5, Max: 0.5, MinCode: 0x8000, MaxCode: 0x7FFF, Units: "V"},
	0x0C: {Min: -0.15, Max: 0.15, MinCode: 0x8000, MaxCode: 0x7FFF, Units: "V"},
	0x0D: {Min: -20.0e-3, Max: 20.0e-3, MinCode: 0x8000, MaxCode: 0x7FFF, Units: "A"},

	// thermocouples J, K, T, E, R, S, B, N, C, L, M, L (DIN 43710)
	0x0E: {Min: -210.0, Max: 760.0, MinCode: 0xDCA2, MaxCode: 0x7FFF, Units: "degC"},
	0x0F: {Min: -270.0, Max: 1372.0, MinCode: 0xE6D0, MaxCode: 0x7FFF, Units: "degC"},
	0x10: {Min: -270.0, Max: 400.0, MinCode: 0xA99A, MaxCode: 0x7FFF, Units: "degC"},
	0x11: {Min: -270.0, Max: 1000.0, MinCode: 0xDD71, MaxCode: 0x7FFF, Units: "degC"},
	0x12: {Min: 0.0, Max: 1768.0, MinCode: 0x0000, MaxCode: 0x7FFF, Units: "degC"},
	0x13: {Min: 0.0, Max: 1768.0, MinCode: 0x0000, MaxCode: 0x7FFF, Units: "degC"},
	0x14: {Min: 0.0, Max: 1820.0, MinCode: 0x0000, MaxCode: 0x7FFF, Units: "degC"},
	0x15: {Min: -270.0, Max: 1300.0, MinCode: 0xE56B, MaxCode: 0x7FFF, Units: "degC"},
	0x16: {Min: 0.0, Max: 2320.0, MinCode: 0x0000, MaxCode: 0x7FFF, Units: "degC"},
	0x17: {Min: -200.0, Max: 800.0, MinCode: 0xE000, MaxCode: 0x7FFF, Units: "degC"},
	0x18: {Min: -200.0, Max: 100.0, MinCode: 0x8000, MaxCode: 0x4000, Units: "degC"},
	0x19: {Min: -200.0, Max: 900.0, MinCode: 0xE38F, MaxCode: 0x7FFF, Units: "degC"},
	0x1A: {Min: 0.0, Max: 20.0e-3, MinCode: 0x0000, MaxCode: 0xFFFF, Units: "A"},

	// RTDs
	0x20: {Min: -100.0, Max: 100.0, MinCode: 0x8000, MaxCode: 0x7FFF, Units: "degC"},
	0x21: {Min: 0.0, Max: 100.0, MinCode: 0x0000, MaxCode: 0x7FFF, Units: "degC"},
	0x22: {Min: 0.0, Max: 200.0, MinCode: 0x0000, MaxCode: 0x7FFF, Units: "degC"},
	0x23: {Min: 0.0, Max: 600.0, MinCode: 0x0000, MaxCode: 0x7FFF, Units: "degC"},
	0x24: {Min: -100.0, Max: 100.0, MinCode: 0x8000, MaxCode: 0x7FFF, Units: "degC"},
	0x25: {Min: 0.0, Max: 100.0, MinCode: 0x0000, MaxCode: 0x7FFF, Units: "degC"},
	0x26: {Min: 0.0, Max: 200.0, MinCode: 0x0000, MaxCode: 0x7FFF, Units: "degC"},
	0x27: {Min: 0.0, Max: 600.0, MinCode: 0x0000, MaxCode: 0x7FFF, Units: "degC"},
	0x28: {Min: -80.0, Max: 100.0, MinCode: 0x999A, MaxCode: 0x7FFF, Units: "degC"},
	0x29: {Min: 0.0, Max: 100.0, MinCode: 0x0000, MaxCode: 0x7FFF, Units: "degC"},
	0x2A: {Min: -200.0, Max: 600.0, MinCode: 0xD556, MaxCode: 0x7FFF, Units: "degC"},

	// outputs
	0x30: {Min: 0.0, Max: 20.0e-3, MinCode: 0x0000, MaxCode: 0xFFFF, Units: "A"},
	0x31: {Min: 4.0e-3, Max: 20.0e-3, MinCode: 0x0000, MaxCode: 0xFFFF, Units: "A"},
	0x32: {Min: 0.0, Max: 10.0, MinCode: 0x0000, MaxCode: 0xFFFF, Units: "V"},
	0x33: {Min: -10.0, Max: 10.0, MinCode: 0x8000, MaxCode: 0x7FFF, Units: "V"},
	0x34: {Min: 0.0, Max: 5.0, MinCode: 0x0000, MaxCode: 0xFFFF, Units: "V"},
	0x35: {Min: -5.0, Max: 5.0, MinCode: 0x8000, MaxCode: 0x7FFF, Units: "V"},
}

// Lookup returns the range for code. It never fails: codes missing from the
// table resolve to Passthrough.
func (t Table) Lookup(code uint16) Range {
	if r, ok := t[code]; ok {
		return r
	}
	return Passthrough
}

// Codes returns the table codes in ascending order.
func (t Table) Codes() []uint16 {
	codes := make([]uint16, 0, len(t))
	for c := range t {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Lookup resolves code through the Default table.
func Lookup(code uint16) Range {
	return Default.Lookup(code)
}

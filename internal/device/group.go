package device

import (
	"fmt"
	"strings"

	"github.com/KevinKickass/et7000d/internal/ranges"
)

// Group is one of the four channel groups of a module.
type Group int

const (
	AI Group = iota
	AO
	DI
	DO

	groupCount = 4
)

// Groups lists every group in register-map order.
var Groups = [groupCount]Group{AI, AO, DI, DO}

func (g Group) String() string {
	switch g {
	case AI:
		return "ai"
	case AO:
		return "ao"
	case DI:
		return "di"
	case DO:
		return "do"
	default:
		return fmt.Sprintf("group(%d)", int(g))
	}
}

// ParseGroup accepts "ai", "AO", ... .
func ParseGroup(s string) (Group, error) {
	switch strings.ToLower(s) {
	case "ai":
		return AI, nil
	case "ao":
		return AO, nil
	case "di":
		return DI, nil
	case "do":
		return DO, nil
	}
	return 0, fmt.Errorf("unknown channel group %q", s)
}

// Analog reports whether g carries range-coded values.
func (g Group) Analog() bool {
	return g == AI || g == AO
}

// Writable reports whether g is an output group.
func (g Group) Writable() bool {
	return g == AO || g == DO
}

func (g Group) valid() bool {
	return g >= AI && g <= DO
}

// digitalRange maps coil/discrete states 0/1 onto values 0/1.
var digitalRange = ranges.Range{Min: 0, Max: 1, MinCode: 0, MaxCode: 1}

// Channel is one element of a group's channel arena. Static fields are set by
// Build; Raw, Value and the write record change during steady state.
type Channel struct {
	Range     ranges.Range
	RangeCode uint16
	Conv      ranges.Converter
	Quantum   float64
	Enabled   bool

	Raw   uint16
	Value float64

	last *WriteRecord
}

func newChannel(code uint16, r ranges.Range, enabled bool) Channel {
	conv := ranges.NewConverter(r)
	return Channel{
		Range:     r,
		RangeCode: code,
		Conv:      conv,
		Quantum:   conv.Quantum(),
		Enabled:   enabled,
		Value:     nan,
	}
}

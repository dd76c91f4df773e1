package ranges

import (
	"fmt"
	"math"
)

// Kind selects the conversion regime of a Converter.
type Kind uint8

const (
	// KindUnknown converts everything to NaN (degenerate range).
	KindUnknown Kind = iota
	// KindLinear is the monotonic regime: value = K*code + B.
	KindLinear
	// KindBipolar is the sign-magnitude regime: codes below 0x8000 are
	// positive (KMax*code), codes from 0x8000 up are negative
	// (KMin*(0x10000-code)).
	KindBipolar
)

func (k Kind) String() string {
	switch k {
	case KindLinear:
		return "linear"
	case KindBipolar:
		return "bipolar"
	default:
		return "unknown"
	}
}

const (
	signBit  = 0x8000
	codeSpan = 0x10000
	maxCode  = 0xFFFF
)

// Converter is the code<->value transform of one channel. It is built once
// per channel from its Range and evaluated on every sample.
type Converter struct {
	Kind Kind
	// K, B are the Linear coefficients.
	K, B float64
	// KMax, KMin are the Bipolar coefficients.
	KMax, KMin float64
}

// NewConverter builds the converter for r.
func NewConverter(r Range) Converter {
	if r.Max == r.Min {
		return Converter{Kind: KindUnknown}
	}

	if r.MinCode < r.MaxCode {
		k := (r.Max - r.Min) / float64(int(r.MaxCode)-int(r.MinCode))
		return Converter{
			Kind: KindLinear,
			K:    k,
			B:    r.Min - k*float64(r.MinCode),
		}
	}

	if r.MaxCode == 0 {
		return Converter{Kind: KindUnknown}
	}
	return Converter{
		Kind: KindBipolar,
		KMax: r.Max / float64(r.MaxCode),
		KMin: r.Min / float64(codeSpan-int(r.MinCode)),
	}
}

// Forward converts a raw register code to engineering units.
func (c Converter) Forward(code uint16) float64 {
	switch c.Kind {
	case KindLinear:
		return c.K*float64(code) + c.B
	case KindBipolar:
		if code < signBit {
			return c.KMax * float64(code)
		}
		return c.KMin * float64(codeSpan-int(code))
	default:
		return math.NaN()
	}
}

// Inverse converts a value in engineering units to the nearest raw code.
// ok is false for NaN/Inf input or a degenerate converter.
func (c Converter) Inverse(v float64) (code uint16, ok bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}

	switch c.Kind {
	case KindLinear:
		if c.K == 0 {
			return 0, false
		}
		return clamp(math.Round((v-c.B)/c.K), 0, maxCode), true
	case KindBipolar:
		if v >= 0 {
			if c.KMax == 0 {
				return 0, false
			}
			return clamp(math.Round(v/c.KMax), 0, signBit-1), true
		}
		if c.KMin == 0 {
			return 0, false
		}
		m := math.Round(v / c.KMin)
		if m <= 0 {
			return 0, true
		}
		if m > signBit {
			m = signBit
		}
		return uint16(codeSpan - int(m)), true
	default:
		return 0, false
	}
}

// Quantum is the engineering-unit size of one code step.
func (c Converter) Quantum() float64 {
	return math.Abs(c.Forward(1) - c.Forward(0))
}

func (c Converter) String() string {
	switch c.Kind {
	case KindLinear:
		return fmt.Sprintf("linear{k=%g b=%g}", c.K, c.B)
	case KindBipolar:
		return fmt.Sprintf("bipolar{kmax=%g kmin=%g}", c.KMax, c.KMin)
	default:
		return "unknown"
	}
}

func clamp(v, lo, hi float64) uint16 {
	if v < lo {
		return uint16(lo)
	}
	if v > hi {
		return uint16(hi)
	}
	return uint16(v)
}

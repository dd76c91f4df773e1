package device

import "math"

// WriteRecord is the last successful write to an AO channel.
type WriteRecord struct {
	Value float64
	Raw   uint16
}

// LastWrite returns the write record of c, if any.
func (c *Channel) LastWrite() (WriteRecord, bool) {
	if c.last == nil {
		return WriteRecord{}, false
	}
	return *c.last, true
}

func (c *Channel) recordWrite(value float64, raw uint16) {
	c.last = &WriteRecord{Value: value, Raw: raw}
}

// settle hides DAC readback dither: a readback within one quantum of the
// last written value reports the written value.
func (c *Channel) settle(readback float64) float64 {
	if c.last == nil || math.IsNaN(readback) {
		return readback
	}
	if math.Abs(c.last.Value-readback) <= c.Quantum {
		return c.last.Value
	}
	return readback
}

package ads111x

import (
	"fmt"

	"ads111x-go/errcode"
)

// ConfigReg is the 16-bit configuration register. Every field always holds
// a declared variant: values come from DefaultConfigReg, the With* methods,
// or a successful ParseConfigReg.
type ConfigReg struct {
	bits uint16
}

// DefaultConfigReg is the power-on-safe setup: AIN0-AIN1, ±2.048 V,
// single-shot, 128 SPS, comparator disabled.
func DefaultConfigReg() ConfigReg {
	var r uint16
	r = statusField.with(r, StatusBusy)
	r = muxField.with(r, MuxAIN0AIN1)
	r = gainField.with(r, Gain2_048V)
	r = modeField.with(r, ModeSingle)
	r = dataRateField.with(r, Rate128SPS)
	r = compModeField.with(r, CompTraditional)
	r = compPolarityField.with(r, CompActiveLow)
	r = compLatchField.with(r, CompNonLatching)
	r = compQueueField.with(r, CompDisable)
	return ConfigReg{bits: r}
}

// FieldError reports register bits that match no variant of a field.
type FieldError struct {
	Field string
	Bits  uint16 // masked field bits
	Reg   uint16 // whole register
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s bits %#04x in register %#04x match no variant", e.Field, e.Bits, e.Reg)
}

// ParseConfigReg decodes a raw register value. Every field is checked
// eagerly; the first undecodable field is reported as a *FieldError wrapped
// in errcode.FieldDecode.
func ParseConfigReg(bits uint16) (ConfigReg, error) {
	for _, l := range layouts {
		if !l.decode(bits) {
			return ConfigReg{}, &errcode.E{
				C:   errcode.FieldDecode,
				Op:  "parse_config",
				Err: &FieldError{Field: l.name, Bits: bits & l.mask, Reg: bits},
			}
		}
	}
	return ConfigReg{bits: bits}, nil
}

// Bits returns the raw register value.
func (c ConfigReg) Bits() uint16 { return c.bits }

// Bytes returns the register in wire order (big-endian).
func (c ConfigReg) Bytes() [2]byte { return [2]byte{byte(c.bits >> 8), byte(c.bits)} }

// Whole-field replacement. Each clears exactly its mask.

func (c ConfigReg) WithStatus(s Status) ConfigReg { return ConfigReg{statusField.with(c.bits, s)} }
func (c ConfigReg) WithMux(m Mux) ConfigReg       { return ConfigReg{muxField.with(c.bits, m)} }
func (c ConfigReg) WithGain(g Gain) ConfigReg     { return ConfigReg{gainField.with(c.bits, g)} }
func (c ConfigReg) WithMode(m Mode) ConfigReg     { return ConfigReg{modeField.with(c.bits, m)} }
func (c ConfigReg) WithDataRate(r DataRate) ConfigReg {
	return ConfigReg{dataRateField.with(c.bits, r)}
}
func (c ConfigReg) WithCompMode(m CompMode) ConfigReg {
	return ConfigReg{compModeField.with(c.bits, m)}
}
func (c ConfigReg) WithCompPolarity(p CompPolarity) ConfigReg {
	return ConfigReg{compPolarityField.with(c.bits, p)}
}
func (c ConfigReg) WithCompLatch(l CompLatch) ConfigReg {
	return ConfigReg{compLatchField.with(c.bits, l)}
}
func (c ConfigReg) WithCompQueue(q CompQueue) ConfigReg {
	return ConfigReg{compQueueField.with(c.bits, q)}
}

// Field getters.

func (c ConfigReg) Status() Status             { return statusField.must(c.bits) }
func (c ConfigReg) Mux() Mux                   { return muxField.must(c.bits) }
func (c ConfigReg) Gain() Gain                 { return gainField.must(c.bits) }
func (c ConfigReg) Mode() Mode                 { return modeField.must(c.bits) }
func (c ConfigReg) DataRate() DataRate         { return dataRateField.must(c.bits) }
func (c ConfigReg) CompMode() CompMode         { return compModeField.must(c.bits) }
func (c ConfigReg) CompPolarity() CompPolarity { return compPolarityField.must(c.bits) }
func (c ConfigReg) CompLatch() CompLatch       { return compLatchField.must(c.bits) }
func (c ConfigReg) CompQueue() CompQueue       { return compQueueField.must(c.bits) }

// Fields is the structured view of a ConfigReg.
type Fields struct {
	Status       Status       `json:"status"`
	Mux          Mux          `json:"mux"`
	Gain         Gain         `json:"gain"`
	Mode         Mode         `json:"mode"`
	DataRate     DataRate     `json:"data_rate"`
	CompMode     CompMode     `json:"comp_mode"`
	CompPolarity CompPolarity `json:"comp_polarity"`
	CompLatch    CompLatch    `json:"comp_latch"`
	CompQueue    CompQueue    `json:"comp_queue"`
}

// Fields unpacks the register.
func (c ConfigReg) Fields() Fields {
	return Fields{
		Status:       c.Status(),
		Mux:          c.Mux(),
		Gain:         c.Gain(),
		Mode:         c.Mode(),
		DataRate:     c.DataRate(),
		CompMode:     c.CompMode(),
		CompPolarity: c.CompPolarity(),
		CompLatch:    c.CompLatch(),
		CompQueue:    c.CompQueue(),
	}
}

// ConfigReg packs f, rejecting undeclared variants with errcode.InvalidParams.
func (f Fields) ConfigReg() (ConfigReg, error) {
	var bad string
	switch {
	case !f.Status.Valid():
		bad = statusField.name
	case !f.Mux.Valid():
		bad = muxField.name
	case !f.Gain.Valid():
		bad = gainField.name
	case !f.Mode.Valid():
		bad = modeField.name
	case !f.DataRate.Valid():
		bad = dataRateField.name
	case !f.CompMode.Valid():
		bad = compModeField.name
	case !f.CompPolarity.Valid():
		bad = compPolarityField.name
	case !f.CompLatch.Valid():
		bad = compLatchField.name
	case !f.CompQueue.Valid():
		bad = compQueueField.name
	}
	if bad != "" {
		return ConfigReg{}, &errcode.E{C: errcode.InvalidParams, Op: "pack_config", Msg: bad}
	}
	return ConfigReg{}.
		WithStatus(f.Status).
		WithMux(f.Mux).
		WithGain(f.Gain).
		WithMode(f.Mode).
		WithDataRate(f.DataRate).
		WithCompMode(f.CompMode).
		WithCompPolarity(f.CompPolarity).
		WithCompLatch(f.CompLatch).
		WithCompQueue(f.CompQueue), nil
}

func (c ConfigReg) String() string {
	f := c.Fields()
	return fmt.Sprintf("%#04x{os=%s mux=%s pga=%s mode=%s dr=%s comp=%s/%s/%s/%s}",
		c.bits, f.Status, f.Mux, f.Gain, f.Mode, f.DataRate,
		f.CompMode, f.CompPolarity, f.CompLatch, f.CompQueue)
}

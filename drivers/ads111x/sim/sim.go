// Package sim is a host-side ADS111x simulator. Chip implements the
// tinygo drivers.I2C Tx shape and models the four registers, the
// single-shot trigger, a configurable busy period and fault injection.
package sim

import (
	"errors"
	"math"
	"sync"
)

var (
	ErrNACK     = errors.New("sim: address not acknowledged")
	ErrProtocol = errors.New("sim: malformed transaction")
)

const (
	regConversion = 0
	regConfig     = 1
	regLoThresh   = 2
	regHiThresh   = 3

	osBit = 1 << 15

	// Datasheet power-on value of the config register.
	configReset = 0x8583
)

// Full-scale volts indexed by the 3-bit PGA code; the last two codes alias
// ±0.256 V on silicon.
var pgaVolts = [8]float64{6.144, 4.096, 2.048, 1.024, 0.512, 0.256, 0.256, 0.256}

// Chip is safe for concurrent use.
type Chip struct {
	mu   sync.Mutex
	addr uint16

	config     uint16
	conversion int16
	loThresh   int16
	hiThresh   int16

	inputs   [8]float64 // volts seen by each mux setting
	fixedRaw *int16     // when set, every conversion yields this code

	busyPolls int // config reads reporting busy after each trigger
	pending   int

	failAt  int // 1-based exchange number that fails; 0 = never
	failErr error

	exchanges   int
	configReads int
	triggers    int
}

// New returns a chip answering at addr with power-on register values.
func New(addr uint16) *Chip {
	return &Chip{
		addr:     addr,
		config:   configReset,
		loThresh: -32768,
		hiThresh: 32767,
	}
}

// SetInput sets the voltage presented to a mux setting (0..7, in register
// order) and returns conversions to input-driven mode.
func (c *Chip) SetInput(mux int, volts float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs[mux&7] = volts
	c.fixedRaw = nil
}

// SetRaw makes every following conversion produce code v and loads it into
// the conversion register immediately.
func (c *Chip) SetRaw(v int16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fixedRaw = &v
	c.conversion = v
}

// SetBusyPolls sets how many config reads report busy after a trigger.
func (c *Chip) SetBusyPolls(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busyPolls = n
}

// SetConfigBits overwrites the config register, bypassing bus semantics.
func (c *Chip) SetConfigBits(v uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = v
	c.pending = 0
}

// FailOn makes exchange number n (1-based, counted from now) return err.
func (c *Chip) FailOn(n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAt = c.exchanges + n
	c.failErr = err
}

// Introspection.

func (c *Chip) Exchanges() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exchanges
}

func (c *Chip) ConfigReads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configReads
}

func (c *Chip) Triggers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggers
}

func (c *Chip) ConfigBits() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

func (c *Chip) Thresholds() (lo, hi int16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loThresh, c.hiThresh
}

// Tx implements drivers.I2C.
func (c *Chip) Tx(addr uint16, w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.exchanges++
	if c.failAt != 0 && c.exchanges == c.failAt {
		c.failAt = 0
		return c.failErr
	}
	if addr != c.addr {
		return ErrNACK
	}
	if len(w) == 0 || w[0] > regHiThresh {
		return ErrProtocol
	}
	reg := w[0]
	switch {
	case len(w) == 3 && len(r) == 0:
		return c.write(reg, uint16(w[1])<<8|uint16(w[2]))
	case len(w) == 1 && len(r) == 2:
		v := c.read(reg)
		r[0], r[1] = byte(v>>8), byte(v)
		return nil
	default:
		return ErrProtocol
	}
}

func (c *Chip) write(reg byte, v uint16) error {
	switch reg {
	case regConfig:
		c.config = v
		if v&osBit == 0 {
			c.startConversion()
		} else {
			c.pending = 0
		}
	case regLoThresh:
		c.loThresh = int16(v)
	case regHiThresh:
		c.hiThresh = int16(v)
	default:
		return ErrProtocol // conversion register is read-only
	}
	return nil
}

func (c *Chip) read(reg byte) uint16 {
	switch reg {
	case regConversion:
		return uint16(c.conversion)
	case regConfig:
		c.configReads++
		if c.pending > 0 {
			c.pending--
			return c.config &^ osBit
		}
		return c.config | osBit
	case regLoThresh:
		return uint16(c.loThresh)
	default:
		return uint16(c.hiThresh)
	}
}

func (c *Chip) startConversion() {
	c.triggers++
	c.pending = c.busyPolls
	if c.fixedRaw != nil {
		c.conversion = *c.fixedRaw
		return
	}
	mux := (c.config >> 12) & 7
	fs := pgaVolts[(c.config>>9)&7]
	code := math.Round(c.inputs[mux] / fs * 32767)
	c.conversion = int16(math.Max(-32768, math.Min(32767, code)))
}

package ads111x

import (
	"context"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"
)

// periph's i2c.Bus already has the tinygo Tx shape.
var _ drivers.I2C = i2c.Bus(nil)

// NewPeriph opens a session on a periph.io I2C bus (for example one returned
// by i2creg.Open).
func NewPeriph(bus i2c.Bus, cfg Config) (*Device, error) {
	return New(bus, cfg)
}

// Potential converts volts to a periph physical quantity.
func Potential(v float32) physic.ElectricPotential {
	return physic.ElectricPotential(float64(v) * float64(physic.Volt))
}

// ReadPotential is ReadVoltage expressed as a physic.ElectricPotential.
func (d *Device) ReadPotential(ctx context.Context) (physic.ElectricPotential, error) {
	v, err := d.ReadVoltage(ctx)
	if err != nil {
		return 0, err
	}
	return Potential(v), nil
}

// Package ads111x provides a driver for the ADS1113/4/5 16-bit I2C ADCs.
// It exposes a one-shot measurement API:
//
//	v, err := d.ReadSingle(ctx, ads111x.MuxAIN0GND) // trigger + bounded polling
//
// and a split-phase form for schedulers that own the timing:
//
//	d.Trigger(ctx)              // start a conversion (fast)
//	v, err := d.Collect(ctx)    // ErrNotReady while busy
//
// The configuration register is modelled by ConfigReg: nine masked fields,
// each restricted to its declared variants and replaced whole through the
// With* methods.
//
// Both blocking (tinygo.org/x/drivers.I2C, periph.io i2c.Bus) and
// context-aware (ContextBus) buses are supported through one code path.
//
// NOTE: the bus MUST perform a write followed by a repeated-start read when
// both w and r are provided, without releasing the bus.
package ads111x

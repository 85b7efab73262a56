package ads111x

import (
	"context"

	"tinygo.org/x/drivers"
)

// ContextBus is a bus whose exchanges may be abandoned through ctx.
// TxContext MUST perform a write followed by a repeated-start read when
// both w and r are provided, without releasing the bus.
type ContextBus interface {
	TxContext(ctx context.Context, addr uint16, w, r []byte) error
}

// BlockingBus adapts a blocking drivers.I2C to ContextBus. The context is
// checked before each exchange; an exchange in flight is not interrupted.
type BlockingBus struct {
	I2C drivers.I2C
}

func (b BlockingBus) TxContext(ctx context.Context, addr uint16, w, r []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.I2C.Tx(addr, w, r)
}

// ContextBusFunc lets a plain function serve as a ContextBus.
type ContextBusFunc func(ctx context.Context, addr uint16, w, r []byte) error

func (f ContextBusFunc) TxContext(ctx context.Context, addr uint16, w, r []byte) error {
	return f(ctx, addr, w, r)
}

// Register word operations (big-endian: HIGH then LOW).

func (d *Device) readWord(ctx context.Context, reg byte) (uint16, error) {
	d.w[0] = reg
	if err := d.bus.TxContext(ctx, d.addr, d.w[:1], d.r[:2]); err != nil {
		return 0, err
	}
	return uint16(d.r[0])<<8 | uint16(d.r[1]), nil
}

func (d *Device) writeWord(ctx context.Context, reg byte, val uint16) error {
	d.w[0] = reg
	d.w[1] = byte(val >> 8) // high
	d.w[2] = byte(val)      // low
	return d.bus.TxContext(ctx, d.addr, d.w[:3], nil)
}

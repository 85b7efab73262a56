package ads111x

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"time"

	"ads111x-go/errcode"

	"tinygo.org/x/drivers"
)

// ErrNotReady is returned by Collect while a conversion is in progress.
var ErrNotReady error = errcode.NotReady

// Config controls addressing, the initial register and the polling policy.
type Config struct {
	// Address defaults to 0x48 if zero.
	Address uint16
	// Reg is the initial configuration register. The zero value selects
	// DefaultConfigReg (0x0583); to run with the all-zero register, open the
	// session and apply it with SetConfig.
	Reg ConfigReg
	// PollInterval is the first wait between ready polls; each further wait
	// doubles up to MaxPollInterval. Default 1 ms. Negative means yield the
	// goroutine between polls without sleeping.
	PollInterval time.Duration
	// MaxPollInterval caps the backoff. Default 10 ms.
	MaxPollInterval time.Duration
	// Timeout bounds the wait for a conversion. Default 250 ms. Negative
	// disables the wall-clock bound.
	Timeout time.Duration
	// MaxPolls bounds the number of ready polls. Zero means unbounded.
	MaxPolls int
}

// DefaultConfig returns the default address, register and polling policy.
func DefaultConfig() Config {
	return Config{
		Address:         AddressDefault,
		Reg:             DefaultConfigReg(),
		PollInterval:    time.Millisecond,
		MaxPollInterval: 10 * time.Millisecond,
		Timeout:         250 * time.Millisecond,
	}
}

// Device is a session with one ADS111x. It owns its bus until Release and
// must not be used from more than one goroutine at a time.
type Device struct {
	bus  ContextBus
	addr uint16
	reg  ConfigReg

	pollInterval    time.Duration
	maxPollInterval time.Duration
	timeout         time.Duration
	maxPolls        int

	// Fixed buffers to avoid per-call heap allocations.
	w [3]byte
	r [2]byte
}

// New opens a session on a blocking bus. The address is validated; the bus
// is not touched.
func New(bus drivers.I2C, cfg Config) (*Device, error) {
	return NewContext(BlockingBus{I2C: bus}, cfg)
}

// NewContext opens a session on a context-aware bus. The address is
// validated; the bus is not touched.
func NewContext(bus ContextBus, cfg Config) (*Device, error) {
	addr := cfg.Address
	if addr == 0 {
		addr = AddressDefault
	}
	if !ValidAddress(addr) {
		return nil, &errcode.E{C: errcode.InvalidAddress, Op: "open", Msg: hex(addr)}
	}
	if cfg.Reg == (ConfigReg{}) {
		cfg.Reg = DefaultConfigReg()
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Millisecond
	}
	if cfg.MaxPollInterval <= 0 {
		cfg.MaxPollInterval = 10 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 250 * time.Millisecond
	}
	if cfg.MaxPolls < 0 {
		cfg.MaxPolls = 0
	}
	return &Device{
		bus:             bus,
		addr:            addr,
		reg:             cfg.Reg,
		pollInterval:    cfg.PollInterval,
		maxPollInterval: cfg.MaxPollInterval,
		timeout:         cfg.Timeout,
		maxPolls:        cfg.MaxPolls,
	}, nil
}

// NewAndConfigure opens a session on a blocking bus and writes cfg.Reg.
func NewAndConfigure(ctx context.Context, bus drivers.I2C, cfg Config) (*Device, error) {
	return NewContextAndConfigure(ctx, BlockingBus{I2C: bus}, cfg)
}

// NewContextAndConfigure opens a session on a context-aware bus and writes
// cfg.Reg.
func NewContextAndConfigure(ctx context.Context, bus ContextBus, cfg Config) (*Device, error) {
	d, err := NewContext(bus, cfg)
	if err != nil {
		return nil, err
	}
	if err := d.WriteConfig(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Release hands the bus back to the caller. Every later call fails with
// errcode.Released. A session opened with New returns a BlockingBus.
func (d *Device) Release() ContextBus {
	bus := d.bus
	d.bus = nil
	return bus
}

// Introspection.
func (d *Device) Address() uint16   { return d.addr }
func (d *Device) Config() ConfigReg { return d.reg }

// TriggerHint is the nominal conversion time at the cached data rate.
func (d *Device) TriggerHint() time.Duration { return d.reg.DataRate().ConversionTime() }

// ReadConfig reads the configuration register and decodes every field.
// The cached register is left as is.
func (d *Device) ReadConfig(ctx context.Context) (ConfigReg, error) {
	if err := d.live("read_config"); err != nil {
		return ConfigReg{}, err
	}
	v, err := d.readWord(ctx, regConfig)
	if err != nil {
		return ConfigReg{}, busErr("read_config", err)
	}
	return ParseConfigReg(v)
}

// WriteConfig writes the cached register.
func (d *Device) WriteConfig(ctx context.Context) error {
	if err := d.live("write_config"); err != nil {
		return err
	}
	if err := d.writeWord(ctx, regConfig, d.reg.Bits()); err != nil {
		return busErr("write_config", err)
	}
	return nil
}

// SetConfig replaces the cached register with f(current) and writes it.
func (d *Device) SetConfig(ctx context.Context, f func(ConfigReg) ConfigReg) error {
	if err := d.live("set_config"); err != nil {
		return err
	}
	d.reg = f(d.reg)
	return d.WriteConfig(ctx)
}

// ConversionReady reports whether the chip's status field reads NotBusy.
func (d *Device) ConversionReady(ctx context.Context) (bool, error) {
	reg, err := d.ReadConfig(ctx)
	if err != nil {
		return false, err
	}
	return reg.Status() == StatusNotBusy, nil
}

// Trigger optionally switches the input, marks the status Busy and writes
// the register, which starts a single-shot conversion.
func (d *Device) Trigger(ctx context.Context, mux ...Mux) error {
	if err := d.live("trigger"); err != nil {
		return err
	}
	if len(mux) > 0 {
		if !mux[0].Valid() {
			return &errcode.E{C: errcode.InvalidParams, Op: "trigger", Msg: "mux " + mux[0].String()}
		}
		d.reg = d.reg.WithMux(mux[0])
	}
	d.reg = d.reg.WithStatus(StatusBusy)
	return d.WriteConfig(ctx)
}

// Collect returns the converted voltage, or ErrNotReady while the chip is
// still busy.
func (d *Device) Collect(ctx context.Context) (float32, error) {
	ready, err := d.ConversionReady(ctx)
	if err != nil {
		return 0, err
	}
	if !ready {
		return 0, ErrNotReady
	}
	return d.ReadVoltage(ctx)
}

// ReadSingle performs a full conversion cycle: Trigger, bounded polling of
// ConversionReady, then ReadVoltage. Any failure aborts the cycle.
func (d *Device) ReadSingle(ctx context.Context, mux ...Mux) (float32, error) {
	if err := d.Trigger(ctx, mux...); err != nil {
		return 0, err
	}
	if err := d.waitReady(ctx); err != nil {
		return 0, err
	}
	return d.ReadVoltage(ctx)
}

// ReadRaw reads the signed conversion register.
func (d *Device) ReadRaw(ctx context.Context) (int16, error) {
	if err := d.live("read_raw"); err != nil {
		return 0, err
	}
	v, err := d.readWord(ctx, regConversion)
	if err != nil {
		return 0, busErr("read_raw", err)
	}
	return int16(v), nil
}

// ReadVoltage reads the conversion register and scales it by the cached
// gain.
func (d *Device) ReadVoltage(ctx context.Context) (float32, error) {
	raw, err := d.ReadRaw(ctx)
	if err != nil {
		return 0, err
	}
	return Scale(raw, d.reg.Gain()), nil
}

// WriteLowThreshold writes the comparator low threshold verbatim.
func (d *Device) WriteLowThreshold(ctx context.Context, v int16) error {
	return d.writeThreshold(ctx, "write_low_threshold", regLowThreshold, v)
}

// WriteHighThreshold writes the comparator high threshold verbatim. The
// driver does not check it against the low threshold.
func (d *Device) WriteHighThreshold(ctx context.Context, v int16) error {
	return d.writeThreshold(ctx, "write_high_threshold", regHighThreshold, v)
}

// EnableConversionReadyPin programs the thresholds so that ALERT/RDY
// signals conversion ready (high MSB set, low MSB clear). The comparator
// queue must also be enabled for the pin to drive.
func (d *Device) EnableConversionReadyPin(ctx context.Context) error {
	if err := d.WriteLowThreshold(ctx, 0); err != nil {
		return err
	}
	return d.WriteHighThreshold(ctx, -1<<15)
}

func (d *Device) writeThreshold(ctx context.Context, op string, reg byte, v int16) error {
	if err := d.live(op); err != nil {
		return err
	}
	if err := d.writeWord(ctx, reg, uint16(v)); err != nil {
		return busErr(op, err)
	}
	return nil
}

// waitReady polls until the status reads NotBusy. The first poll is
// immediate; waits then double from pollInterval up to maxPollInterval.
func (d *Device) waitReady(ctx context.Context) error {
	var deadline time.Time
	if d.timeout > 0 {
		deadline = time.Now().Add(d.timeout)
	}
	wait := d.pollInterval
	for polls := 1; ; polls++ {
		ready, err := d.ConversionReady(ctx)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		if d.maxPolls > 0 && polls >= d.maxPolls {
			return &errcode.E{C: errcode.Timeout, Op: "wait_ready", Msg: "busy after " + strconv.Itoa(polls) + " polls"}
		}
		sleep := wait
		if !deadline.IsZero() {
			left := time.Until(deadline)
			if left <= 0 {
				return &errcode.E{C: errcode.Timeout, Op: "wait_ready", Msg: "busy after " + d.timeout.String()}
			}
			sleep = min(sleep, left)
		}
		if err := pause(ctx, sleep); err != nil {
			return busErr("wait_ready", err)
		}
		wait = min(wait*2, d.maxPollInterval)
	}
}

// pause sleeps for t, or only yields when t is not positive.
func pause(ctx context.Context, t time.Duration) error {
	if t <= 0 {
		runtime.Gosched()
		return ctx.Err()
	}
	tm := time.NewTimer(t)
	defer tm.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tm.C:
		return nil
	}
}

func (d *Device) live(op string) error {
	if d.bus == nil {
		return &errcode.E{C: errcode.Released, Op: op}
	}
	return nil
}

// busErr classifies a bus failure: context errors keep their own code,
// everything else is a transport failure. The cause is kept unchanged.
func busErr(op string, err error) error {
	c := errcode.Transport
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		c = errcode.MapDriverErr(err)
	}
	return errcode.Wrap(c, op, err)
}

func hex(v uint16) string {
	return "0x" + strconv.FormatUint(uint64(v), 16)
}

package ads111x

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"ads111x-go/drivers/ads111x/sim"
	"ads111x-go/errcode"

	"periph.io/x/conn/v3/physic"
)

var errNACK = errors.New("nack")

// newSimDevice opens a session on a fresh simulated chip. Polls yield
// instead of sleeping unless mod says otherwise.
func newSimDevice(t *testing.T, mod func(*Config)) (*Device, *sim.Chip) {
	t.Helper()
	chip := sim.New(AddressDefault)
	cfg := DefaultConfig()
	cfg.PollInterval = -1
	if mod != nil {
		mod(&cfg)
	}
	d, err := New(chip, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, chip
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestNewValidatesAddressWithoutTraffic(t *testing.T) {
	for _, a := range []uint16{0b1000000, 0b1010000} {
		chip := sim.New(a)
		cfg := DefaultConfig()
		cfg.Address = a
		if _, err := New(chip, cfg); !errors.Is(err, errcode.InvalidAddress) {
			t.Fatalf("%#x: err = %v, want invalid_address", a, err)
		}
		if chip.Exchanges() != 0 {
			t.Fatalf("%#x: %d bus exchanges before validation failed", a, chip.Exchanges())
		}
	}
	for a := uint16(0x48); a <= 0x4F; a++ {
		cfg := DefaultConfig()
		cfg.Address = a
		d, err := New(sim.New(a), cfg)
		if err != nil || d.Address() != a {
			t.Fatalf("%#x: d=%v err=%v", a, d, err)
		}
	}
}

func TestNewDefaultsAddress(t *testing.T) {
	d, err := New(sim.New(AddressDefault), Config{Reg: DefaultConfigReg()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.Address() != AddressDefault {
		t.Fatalf("address = %#x", d.Address())
	}
}

func TestNewZeroRegUsesDefault(t *testing.T) {
	chip := sim.New(0x49)
	d, err := NewAndConfigure(context.Background(), chip, Config{Address: 0x49})
	if err != nil {
		t.Fatalf("NewAndConfigure: %v", err)
	}
	if d.Config() != DefaultConfigReg() || chip.ConfigBits() != 0x0583 {
		t.Fatalf("register = %v, chip %#04x", d.Config(), chip.ConfigBits())
	}
}

func TestNewAndConfigureWritesRegister(t *testing.T) {
	chip := sim.New(0x49)
	cfg := DefaultConfig()
	cfg.Address = 0x49
	cfg.Reg = cfg.Reg.WithGain(Gain4_096V).WithMode(ModeContinuous)
	d, err := NewAndConfigure(context.Background(), chip, cfg)
	if err != nil {
		t.Fatalf("NewAndConfigure: %v", err)
	}
	if chip.ConfigBits() != cfg.Reg.Bits() || d.Config() != cfg.Reg {
		t.Fatalf("chip config %#04x, want %#04x", chip.ConfigBits(), cfg.Reg.Bits())
	}
}

func TestWriteConfigWireFormat(t *testing.T) {
	var got [][]byte
	bus := ContextBusFunc(func(ctx context.Context, addr uint16, w, r []byte) error {
		if addr != AddressDefault {
			t.Fatalf("addr = %#x", addr)
		}
		got = append(got, append([]byte(nil), w...))
		return nil
	})
	d, err := NewContext(bus, DefaultConfig())
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	ctx := context.Background()
	if err := d.WriteConfig(ctx); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	if err := d.WriteLowThreshold(ctx, -2); err != nil {
		t.Fatalf("WriteLowThreshold: %v", err)
	}
	if err := d.WriteHighThreshold(ctx, 0x1234); err != nil {
		t.Fatalf("WriteHighThreshold: %v", err)
	}
	want := [][]byte{{0x01, 0x05, 0x83}, {0x02, 0xFF, 0xFE}, {0x03, 0x12, 0x34}}
	if len(got) != len(want) {
		t.Fatalf("%d transactions, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Fatalf("tx %d = % x, want % x", i, got[i], want[i])
		}
	}
}

func TestReadConfigDecodes(t *testing.T) {
	d, chip := newSimDevice(t, nil)
	chip.SetConfigBits(0x8583)
	reg, err := d.ReadConfig(context.Background())
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if reg.Status() != StatusNotBusy || reg.Gain() != Gain2_048V || reg.DataRate() != Rate128SPS {
		t.Fatalf("decoded %v", reg)
	}
	if d.Config() != DefaultConfigReg() {
		t.Fatal("ReadConfig changed the cached register")
	}
}

func TestReadConfigFieldDecodeFailure(t *testing.T) {
	d, chip := newSimDevice(t, nil)
	chip.SetConfigBits(0x8D83)
	_, err := d.ReadConfig(context.Background())
	if errcode.Of(err) != errcode.FieldDecode {
		t.Fatalf("err = %v, want field_decode", err)
	}
	if _, err := d.ConversionReady(context.Background()); !errors.Is(err, errcode.FieldDecode) {
		t.Fatalf("ConversionReady err = %v", err)
	}
}

func TestReadSinglePollsUntilReady(t *testing.T) {
	for _, n := range []int{0, 1, 2, 7} {
		d, chip := newSimDevice(t, nil)
		chip.SetBusyPolls(n)
		chip.SetRaw(16383)
		before := chip.ConfigReads()
		v, err := d.ReadSingle(context.Background())
		if err != nil {
			t.Fatalf("busy=%d: ReadSingle: %v", n, err)
		}
		if polls := chip.ConfigReads() - before; polls != n+1 {
			t.Fatalf("busy=%d: %d config polls, want %d", n, polls, n+1)
		}
		if !near(float64(v), 1.024, 1e-3) {
			t.Fatalf("busy=%d: v = %v", n, v)
		}
		if chip.Triggers() != 1 {
			t.Fatalf("busy=%d: %d triggers", n, chip.Triggers())
		}
	}
}

func TestReadSingleWithSleepingBackoff(t *testing.T) {
	d, chip := newSimDevice(t, func(c *Config) {
		c.PollInterval = 100 * time.Microsecond
		c.MaxPollInterval = 400 * time.Microsecond
	})
	chip.SetBusyPolls(4)
	chip.SetRaw(-32768)
	v, err := d.ReadSingle(context.Background())
	if err != nil {
		t.Fatalf("ReadSingle: %v", err)
	}
	if !(v < -Gain2_048V.FullScale()) {
		t.Fatalf("v = %v, want below -2.048", v)
	}
}

func TestReadSingleMuxOverride(t *testing.T) {
	d, chip := newSimDevice(t, nil)
	chip.SetInput(int(MuxAIN2GND), 1.5)
	v, err := d.ReadSingle(context.Background(), MuxAIN2GND)
	if err != nil {
		t.Fatalf("ReadSingle: %v", err)
	}
	if !near(float64(v), 1.5, 1e-3) {
		t.Fatalf("v = %v, want ~1.5", v)
	}
	if d.Config().Mux() != MuxAIN2GND || d.Config().Status() != StatusBusy {
		t.Fatalf("cached register %v", d.Config())
	}
	if _, err := d.ReadSingle(context.Background(), Mux(12)); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("bad mux err = %v", err)
	}
}

func TestReadSingleTransportFailureAborts(t *testing.T) {
	d, chip := newSimDevice(t, nil)
	chip.SetBusyPolls(3)
	before := chip.Exchanges()
	chip.FailOn(2, errNACK) // first ready poll
	_, err := d.ReadSingle(context.Background())
	if !errors.Is(err, errcode.Transport) || !errors.Is(err, errNACK) {
		t.Fatalf("err = %v, want transport wrapping nack", err)
	}
	if n := chip.Exchanges() - before; n != 2 {
		t.Fatalf("%d exchanges, want 2 (trigger + failed poll)", n)
	}
}

func TestReadSingleTriggerFailure(t *testing.T) {
	d, chip := newSimDevice(t, nil)
	chip.FailOn(1, errNACK)
	if _, err := d.ReadSingle(context.Background()); errcode.Of(err) != errcode.Transport {
		t.Fatalf("err = %v", err)
	}
	if chip.Triggers() != 0 {
		t.Fatal("conversion started despite failed write")
	}
}

func TestReadSingleMaxPolls(t *testing.T) {
	d, chip := newSimDevice(t, func(c *Config) { c.MaxPolls = 3 })
	chip.SetBusyPolls(100)
	before := chip.ConfigReads()
	_, err := d.ReadSingle(context.Background())
	if errcode.Of(err) != errcode.Timeout {
		t.Fatalf("err = %v, want timeout", err)
	}
	if n := chip.ConfigReads() - before; n != 3 {
		t.Fatalf("%d polls, want 3", n)
	}
}

func TestReadSingleWallClockTimeout(t *testing.T) {
	d, chip := newSimDevice(t, func(c *Config) {
		c.PollInterval = time.Millisecond
		c.Timeout = 5 * time.Millisecond
	})
	chip.SetBusyPolls(1 << 30)
	start := time.Now()
	_, err := d.ReadSingle(context.Background())
	if errcode.Of(err) != errcode.Timeout {
		t.Fatalf("err = %v, want timeout", err)
	}
	if el := time.Since(start); el > time.Second {
		t.Fatalf("timeout took %v", el)
	}
}

func TestReadSingleCanceledContext(t *testing.T) {
	d, chip := newSimDevice(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.ReadSingle(ctx)
	if errcode.Of(err) != errcode.Canceled || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want canceled", err)
	}
	if chip.Exchanges() != 0 {
		t.Fatalf("%d exchanges on a canceled context", chip.Exchanges())
	}
}

func TestReadSingleContextDeadlineWhilePolling(t *testing.T) {
	d, chip := newSimDevice(t, func(c *Config) {
		c.PollInterval = time.Millisecond
		c.Timeout = -1
	})
	chip.SetBusyPolls(1 << 30)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if _, err := d.ReadSingle(ctx); errcode.Of(err) != errcode.Timeout {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestTriggerCollect(t *testing.T) {
	d, chip := newSimDevice(t, nil)
	chip.SetBusyPolls(1)
	chip.SetRaw(8192)
	ctx := context.Background()
	if err := d.Trigger(ctx, MuxAIN1GND); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if _, err := d.Collect(ctx); !errors.Is(err, ErrNotReady) {
		t.Fatalf("first Collect err = %v, want not ready", err)
	}
	v, err := d.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if !near(float64(v), 0.512, 1e-3) {
		t.Fatalf("v = %v", v)
	}
	if d.TriggerHint() != Rate128SPS.ConversionTime() {
		t.Fatalf("TriggerHint = %v", d.TriggerHint())
	}
}

func TestReadVoltageUsesCachedGain(t *testing.T) {
	d, chip := newSimDevice(t, nil)
	chip.SetRaw(32767)
	ctx := context.Background()
	if err := d.SetConfig(ctx, func(c ConfigReg) ConfigReg { return c.WithGain(Gain0_256V) }); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if chip.ConfigBits() != d.Config().Bits() {
		t.Fatal("SetConfig did not write the register")
	}
	v, err := d.ReadVoltage(ctx)
	if err != nil || v != 0.256 {
		t.Fatalf("v = %v, err = %v", v, err)
	}
	raw, err := d.ReadRaw(ctx)
	if err != nil || raw != 32767 {
		t.Fatalf("raw = %d, err = %v", raw, err)
	}
}

func TestReadPotential(t *testing.T) {
	d, chip := newSimDevice(t, nil)
	chip.SetRaw(32767)
	p, err := d.ReadPotential(context.Background())
	if err != nil {
		t.Fatalf("ReadPotential: %v", err)
	}
	if diff := p - 2048*physic.MilliVolt; diff > physic.MicroVolt || diff < -physic.MicroVolt {
		t.Fatalf("potential = %s", p)
	}
}

func TestThresholdsWrittenVerbatim(t *testing.T) {
	d, chip := newSimDevice(t, nil)
	ctx := context.Background()
	// High below low is the caller's business.
	if err := d.WriteLowThreshold(ctx, 1000); err != nil {
		t.Fatalf("WriteLowThreshold: %v", err)
	}
	if err := d.WriteHighThreshold(ctx, -5); err != nil {
		t.Fatalf("WriteHighThreshold: %v", err)
	}
	if lo, hi := chip.Thresholds(); lo != 1000 || hi != -5 {
		t.Fatalf("thresholds = %d, %d", lo, hi)
	}
	if err := d.EnableConversionReadyPin(ctx); err != nil {
		t.Fatalf("EnableConversionReadyPin: %v", err)
	}
	if lo, hi := chip.Thresholds(); lo != 0 || hi != -32768 {
		t.Fatalf("ready-pin thresholds = %d, %d", lo, hi)
	}
}

func TestThresholdWriteFailure(t *testing.T) {
	d, chip := newSimDevice(t, nil)
	chip.FailOn(1, errNACK)
	err := d.WriteHighThreshold(context.Background(), 10)
	var e *errcode.E
	if !errors.As(err, &e) || e.C != errcode.Transport || e.Op != "write_high_threshold" || !errors.Is(err, errNACK) {
		t.Fatalf("err = %#v", err)
	}
}

func TestRelease(t *testing.T) {
	d, chip := newSimDevice(t, nil)
	bus := d.Release()
	bb, ok := bus.(BlockingBus)
	if !ok || bb.I2C != chip {
		t.Fatalf("Release returned %#v", bus)
	}
	ctx := context.Background()
	if _, err := d.ReadVoltage(ctx); !errors.Is(err, errcode.Released) {
		t.Fatalf("ReadVoltage after release: %v", err)
	}
	if _, err := d.ReadSingle(ctx); !errors.Is(err, errcode.Released) {
		t.Fatalf("ReadSingle after release: %v", err)
	}
	if err := d.WriteHighThreshold(ctx, 1); !errors.Is(err, errcode.Released) {
		t.Fatalf("WriteHighThreshold after release: %v", err)
	}
	if chip.Exchanges() != 0 {
		t.Fatalf("%d exchanges after release", chip.Exchanges())
	}
}

func TestContextBusFlavour(t *testing.T) {
	chip := sim.New(AddressDefault)
	chip.SetBusyPolls(2)
	chip.SetRaw(16383)
	var calls int
	bus := ContextBusFunc(func(ctx context.Context, addr uint16, w, r []byte) error {
		calls++
		if err := ctx.Err(); err != nil {
			return err
		}
		return chip.Tx(addr, w, r)
	})
	cfg := DefaultConfig()
	cfg.PollInterval = -1
	d, err := NewContextAndConfigure(context.Background(), bus, cfg)
	if err != nil {
		t.Fatalf("NewContextAndConfigure: %v", err)
	}
	chip.SetBusyPolls(2)
	calls = 0
	v, err := d.ReadSingle(context.Background())
	if err != nil || !near(float64(v), 1.024, 1e-3) {
		t.Fatalf("v = %v, err = %v", v, err)
	}
	// trigger + 3 polls + conversion read
	if calls != 5 {
		t.Fatalf("%d exchanges, want 5", calls)
	}
}

// services/hal/internal/devices/ads111x/adaptor.go
package ads111x

import (
	"context"
	"errors"
	"sync"
	"time"

	adc "ads111x-go/drivers/ads111x"
	"ads111x-go/errcode"
	"ads111x-go/services/hal/internal/halcore"
	"ads111x-go/services/hal/internal/registry"
	"ads111x-go/services/hal/internal/util"

	"periph.io/x/conn/v3/physic"
)

// Register this device type with the registry.
func init() {
	registry.RegisterBuilder("ads111x", builder{})
}

const (
	defaultSampleEvery = time.Second
	controlTimeout     = 100 * time.Millisecond
	maxSampleEveryMs   = 3_600_000
)

// Params: { "addr": 72, "mux": "ain0_gnd", "gain": "4.096V", "data_rate": 860,
// "sample_every_ms": 500, "timeout_ms": 50 }
type params struct {
	Addr          int    `json:"addr"`
	Mux           string `json:"mux"`
	Gain          string `json:"gain"`
	DataRate      int    `json:"data_rate"`
	SampleEveryMs int    `json:"sample_every_ms"`
	TimeoutMs     int    `json:"timeout_ms"`
}

func invalid(msg string) error {
	return &errcode.E{C: errcode.InvalidParams, Op: "build", Msg: msg}
}

// config resolves params on top of the driver defaults.
func (p params) config() (adc.Config, error) {
	cfg := adc.DefaultConfig()
	if p.Addr < 0 || p.Addr > 0x7F {
		return cfg, invalid("addr")
	}
	if p.Addr != 0 {
		cfg.Address = uint16(p.Addr)
	}
	if p.Mux != "" {
		m, ok := adc.ParseMux(p.Mux)
		if !ok {
			return cfg, invalid("mux " + p.Mux)
		}
		cfg.Reg = cfg.Reg.WithMux(m)
	}
	if p.Gain != "" {
		g, ok := adc.ParseGain(p.Gain)
		if !ok {
			return cfg, invalid("gain " + p.Gain)
		}
		cfg.Reg = cfg.Reg.WithGain(g)
	}
	if p.DataRate != 0 {
		r, ok := adc.DataRateFor(p.DataRate)
		if !ok {
			return cfg, invalid("data_rate")
		}
		cfg.Reg = cfg.Reg.WithDataRate(r)
	}
	cfg.Reg = cfg.Reg.WithMode(adc.ModeSingle)
	cfg.Timeout = util.Millis(p.TimeoutMs, cfg.Timeout)
	return cfg, nil
}

type builder struct{}

func (builder) Build(in registry.BuildInput) (registry.BuildOutput, error) {
	if in.BusRefType != "i2c" || in.BusRefID == "" {
		return registry.BuildOutput{}, &errcode.E{C: errcode.UnknownBus, Op: "build", Msg: "missing i2c bus"}
	}
	i2c, ok := in.Buses.ByID(in.BusRefID)
	if !ok {
		return registry.BuildOutput{}, &errcode.E{C: errcode.UnknownBus, Op: "build", Msg: in.BusRefID}
	}
	var p params
	if err := util.DecodeJSON(in.ParamsJSON, &p); err != nil {
		return registry.BuildOutput{}, &errcode.E{C: errcode.InvalidParams, Op: "build", Err: err}
	}
	cfg, err := p.config()
	if err != nil {
		return registry.BuildOutput{}, err
	}
	dev, err := adc.New(i2c, cfg)
	if err != nil {
		return registry.BuildOutput{}, err
	}
	return registry.BuildOutput{
		Adaptor:     &adaptor{id: in.DeviceID, dev: dev, timeout: cfg.Timeout},
		BusID:       in.BusRefID,
		SampleEvery: util.Millis(util.ClampInt(p.SampleEveryMs, 0, maxSampleEveryMs), defaultSampleEvery),
	}, nil
}

// adaptor exposes one ADS111x as a "voltage" capability. mu serialises
// Control against the worker's Trigger/Collect.
type adaptor struct {
	id      string
	mu      sync.Mutex
	dev     *adc.Device
	timeout time.Duration // driver ready-wait bound
}

// controlDeadline covers one conversion at the cached data rate plus the
// driver's own ready-wait bound.
func (a *adaptor) controlDeadline() time.Duration {
	return max(controlTimeout, a.dev.TriggerHint()+a.timeout)
}

func (a *adaptor) ID() string { return a.id }

func (a *adaptor) Capabilities() []halcore.CapInfo {
	a.mu.Lock()
	reg := a.dev.Config()
	a.mu.Unlock()
	return []halcore.CapInfo{
		{Kind: "voltage", Info: map[string]any{
			"unit":           "V",
			"full_scale":     reg.Gain().FullScale(),
			"mux":            reg.Mux().String(),
			"data_rate":      reg.DataRate().SamplesPerSecond(),
			"addr":           a.dev.Address(),
			"schema_version": 1,
			"driver":         "ads111x",
		}},
	}
}

func (a *adaptor) Trigger(ctx context.Context) (time.Duration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.dev.Trigger(ctx); err != nil {
		return 0, err
	}
	return a.dev.TriggerHint(), nil
}

func (a *adaptor) Collect(ctx context.Context) (halcore.Sample, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, err := a.dev.Collect(ctx)
	if err != nil {
		if errors.Is(err, adc.ErrNotReady) {
			return nil, halcore.ErrNotReady
		}
		return nil, err
	}
	reg := a.dev.Config()
	ts := halcore.NowMs()
	return halcore.Sample{
		{Kind: "voltage", Payload: map[string]any{
			"volts": v,
			"mv":    int32(adc.Potential(v) / physic.MilliVolt),
			"mux":   reg.Mux().String(),
			"ts_ms": ts,
		}, TsMs: ts},
	}, nil
}

// Control methods on kind "voltage":
//
//	read_config  -> current chip register as fields plus "bits"
//	set_config   {mux, gain, data_rate} -> updated cached register
//	thresholds   {low, high} raw codes written verbatim
//	ready_pin    program thresholds for ALERT/RDY conversion-ready output
//	read_now     {mux?} blocking single conversion, volts; a mux override
//	             applies to this read only
func (a *adaptor) Control(kind, method string, payload any) (any, error) {
	if kind != "voltage" {
		return nil, halcore.ErrUnsupported
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), a.controlDeadline())
	defer cancel()

	switch method {
	case "read_config":
		reg, err := a.dev.ReadConfig(ctx)
		if err != nil {
			return nil, err
		}
		return configReply(reg), nil

	case "set_config":
		var p params
		if err := util.DecodeJSON(payload, &p); err != nil {
			return nil, &errcode.E{C: errcode.InvalidParams, Op: method, Err: err}
		}
		p.Addr = 0
		cfg, err := p.config()
		if err != nil {
			return nil, err
		}
		err = a.dev.SetConfig(ctx, func(c adc.ConfigReg) adc.ConfigReg {
			if p.Mux != "" {
				c = c.WithMux(cfg.Reg.Mux())
			}
			if p.Gain != "" {
				c = c.WithGain(cfg.Reg.Gain())
			}
			if p.DataRate != 0 {
				c = c.WithDataRate(cfg.Reg.DataRate())
			}
			// Writing OS=0 would start a conversion outside the worker's cycle.
			return c.WithStatus(adc.StatusNotBusy)
		})
		if err != nil {
			return nil, err
		}
		return configReply(a.dev.Config()), nil

	case "thresholds":
		var p struct {
			Low  *int16 `json:"low"`
			High *int16 `json:"high"`
		}
		if err := util.DecodeJSON(payload, &p); err != nil || p.Low == nil || p.High == nil {
			return nil, &errcode.E{C: errcode.InvalidParams, Op: method, Msg: "low and high required"}
		}
		if err := a.dev.WriteLowThreshold(ctx, *p.Low); err != nil {
			return nil, err
		}
		if err := a.dev.WriteHighThreshold(ctx, *p.High); err != nil {
			return nil, err
		}
		return map[string]any{"low": *p.Low, "high": *p.High}, nil

	case "ready_pin":
		if err := a.dev.EnableConversionReadyPin(ctx); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil

	case "read_now":
		var p struct {
			Mux string `json:"mux"`
		}
		if err := util.DecodeJSON(payload, &p); err != nil {
			return nil, &errcode.E{C: errcode.InvalidParams, Op: method, Err: err}
		}
		var mux []adc.Mux
		if p.Mux != "" {
			m, ok := adc.ParseMux(p.Mux)
			if !ok {
				return nil, &errcode.E{C: errcode.InvalidParams, Op: method, Msg: "mux " + p.Mux}
			}
			mux = append(mux, m)
		}
		prev := a.dev.Config().Mux()
		v, err := a.dev.ReadSingle(ctx, mux...)
		if err != nil {
			return nil, err
		}
		read := a.dev.Config().Mux()
		if read != prev {
			// Put the periodic input back; status NotBusy so no conversion starts.
			err = a.dev.SetConfig(ctx, func(c adc.ConfigReg) adc.ConfigReg {
				return c.WithMux(prev).WithStatus(adc.StatusNotBusy)
			})
			if err != nil {
				return nil, err
			}
		}
		return map[string]any{"volts": v, "mux": read.String()}, nil
	}
	return nil, halcore.ErrUnsupported
}

func configReply(reg adc.ConfigReg) map[string]any {
	f := reg.Fields()
	return map[string]any{
		"bits":      reg.Bits(),
		"status":    f.Status.String(),
		"mux":       f.Mux.String(),
		"gain":      f.Gain.String(),
		"mode":      f.Mode.String(),
		"data_rate": f.DataRate.SamplesPerSecond(),
		"comp_mode": f.CompMode.String(),
		"comp_pol":  f.CompPolarity.String(),
		"comp_lat":  f.CompLatch.String(),
		"comp_que":  f.CompQueue.String(),
	}
}

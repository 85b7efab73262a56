// services/hal/cmd/adc-read/main.go
//
// adc-read samples one ADS111x input through the HAL measurement worker and
// prints each reading. Settings come from defaults, an optional JSON file
// (-c / --config-file), ADCREAD_* environment variables and --key=value
// flags, later sources winning.
//
//	adc-read --bus=sim --sim.volts=1.2 --count=3
//	ADCREAD_BUS=/dev/i2c-1 adc-read --mux=ain1_gnd --gain=4.096V --rate=860
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"ads111x-go/drivers/ads111x/sim"
	"ads111x-go/errcode"
	_ "ads111x-go/services/hal/internal/devices/ads111x"
	"ads111x-go/services/hal/internal/halcore"
	"ads111x-go/services/hal/internal/registry"
	"ads111x-go/services/hal/internal/worker"

	"github.com/warthog618/config"
	"github.com/warthog618/config/blob"
	"github.com/warthog618/config/blob/decoder/json"
	"github.com/warthog618/config/dict"
	"github.com/warthog618/config/env"
	"github.com/warthog618/config/pflag"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
)

const busID = "i2c0"

func main() {
	cfg := loadConfig()

	bus, closeBus, err := openBus(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "adc-read: %s\n", err)
		os.Exit(1)
	}
	defer closeBus()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out, err := registry.Build(registry.BuildInput{
		Ctx:        ctx,
		Buses:      halcore.BusMap{busID: bus},
		DeviceID:   "adc0",
		Type:       "ads111x",
		ParamsJSON: deviceParams(cfg),
		BusRefType: "i2c",
		BusRefID:   busID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "adc-read: %s (%s)\n", err, errcode.Of(err))
		os.Exit(1)
	}
	ad := out.Adaptor
	for _, c := range ad.Capabilities() {
		println("[adc-read] capability", c.Kind, fmt.Sprint(c.Info))
	}

	if cfg.MustGet("readypin").Bool() {
		if _, err := ad.Control("voltage", "ready_pin", nil); err != nil {
			println("[adc-read] ready_pin failed:", err.Error())
		}
	}

	results := make(chan halcore.Result, 4)
	w := worker.New(halcore.WorkerConfig{
		TriggerTimeout: 50 * time.Millisecond,
		CollectTimeout: 50 * time.Millisecond,
		RetryBackoff:   time.Millisecond,
		MaxRetries:     200,
	}, results)
	w.Start(ctx)
	p := worker.NewPoller(w.Submit)
	go p.Run(ctx)
	p.Upsert(ad, out.SampleEvery, 0)

	count := cfg.MustGet("count").Int()
	for n := 0; count <= 0 || n < count; n++ {
		select {
		case <-ctx.Done():
			println("[adc-read] interrupted")
			return
		case r := <-results:
			if r.Err != nil {
				println("[adc-read]", r.ID, "error:", r.Err.Error(), "code:", string(errcode.Of(r.Err)))
				continue
			}
			for _, rd := range r.Sample {
				m := rd.Payload.(map[string]any)
				fmt.Printf("%s %s %s=%.6fV (%dmV) retries=%d\n",
					time.UnixMilli(rd.TsMs).Format(time.RFC3339Nano), r.ID, m["mux"], m["volts"], m["mv"], r.Retries)
			}
		}
	}

	if reg, err := ad.Control("voltage", "read_config", nil); err == nil {
		println("[adc-read] final config", fmt.Sprint(reg))
	}
}

// openBus returns the simulator for bus "sim", otherwise the named host
// I2C bus ("" selects the first one periph finds).
func openBus(cfg *config.Config) (drivers.I2C, func(), error) {
	name := cfg.MustGet("bus").String()
	if name == "sim" {
		chip := sim.New(uint16(cfg.MustGet("addr").Int()))
		volts := cfg.MustGet("sim.volts").Float()
		for mux := 0; mux < 8; mux++ {
			chip.SetInput(mux, volts)
		}
		chip.SetBusyPolls(cfg.MustGet("sim.busy").Int())
		println("[adc-read] using simulated chip")
		return chip, func() {}, nil
	}
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, nil, err
	}
	println("[adc-read] opened", b.String())
	return b, func() { b.Close() }, nil
}

// deviceParams maps command settings onto the ads111x builder params.
func deviceParams(cfg *config.Config) map[string]any {
	return map[string]any{
		"addr":            cfg.MustGet("addr").Int(),
		"mux":             cfg.MustGet("mux").String(),
		"gain":            cfg.MustGet("gain").String(),
		"data_rate":       cfg.MustGet("rate").Int(),
		"sample_every_ms": cfg.MustGet("period").Duration().Milliseconds(),
		"timeout_ms":      cfg.MustGet("timeout").Duration().Milliseconds(),
	}
}

func defaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"bus":      "sim",
		"addr":     0x48,
		"mux":      "ain0_gnd",
		"gain":     "2.048V",
		"rate":     128,
		"period":   "500ms",
		"timeout":  "250ms",
		"count":    5,
		"readypin": false,
		"sim": map[string]interface{}{
			"volts": 1.25,
			"busy":  2,
		},
	}
}

func loadConfig() *config.Config {
	def := dict.New(dict.WithMap(defaultConfig()))
	flags := []pflag.Flag{
		{Short: 'c', Name: "config-file"},
		{Short: 'n', Name: "count"},
	}
	cfg := config.New(
		pflag.New(pflag.WithFlags(flags)),
		env.New(env.WithEnvPrefix("ADCREAD_")),
		config.WithDefault(def))
	cfg.Append(
		blob.NewConfigFile(cfg, "config.file", "adc-read.json", json.NewDecoder()))
	cfg = cfg.GetConfig("", config.WithMust)
	return cfg
}

// services/hal/internal/registry/registry.go
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ads111x-go/services/hal/internal/halcore"
)

// BuildInput is passed to a device builder.
type BuildInput struct {
	Ctx        context.Context
	Buses      halcore.I2CBusFactory
	DeviceID   string
	Type       string
	ParamsJSON interface{}
	BusRefType string // e.g. "i2c"
	BusRefID   string // e.g. "i2c0"
}

// BuildOutput describes a constructed device.
type BuildOutput struct {
	Adaptor     halcore.Adaptor
	BusID       string        // "" if not on a shared bus
	SampleEvery time.Duration // 0 if not a periodic producer
}

// Builder creates an adaptor from config and factories.
type Builder interface {
	Build(in BuildInput) (BuildOutput, error)
}

var (
	mu       sync.RWMutex
	builders = map[string]Builder{}
)

func RegisterBuilder(deviceType string, b Builder) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := builders[deviceType]; exists {
		panic(fmt.Sprintf("device builder already registered for type %q", deviceType))
	}
	builders[deviceType] = b
}

func Lookup(deviceType string) (Builder, bool) {
	mu.RLock()
	defer mu.RUnlock()
	b, ok := builders[deviceType]
	return b, ok
}

// Types lists the registered device types in order.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(builders))
	for k := range builders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build looks up in.Type and runs its builder.
func Build(in BuildInput) (BuildOutput, error) {
	b, ok := Lookup(in.Type)
	if !ok {
		return BuildOutput{}, fmt.Errorf("no builder for device type %q", in.Type)
	}
	return b.Build(in)
}

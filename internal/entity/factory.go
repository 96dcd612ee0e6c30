package entity

import (
	"sync"

	"github.com/nerrad567/gray-logic-miot/internal/converter"
	"github.com/nerrad567/gray-logic-miot/internal/device"
)

// Constructor returns a fresh behaviour for one entity.
type Constructor func() Behavior

// Host domains with built-in platforms.
const (
	DomainSensor       = "sensor"
	DomainBinarySensor = "binary_sensor"
	DomainSwitch       = "switch"
	DomainButton       = "button"
)

// Factory maps converter kinds and host domains to behaviour constructors.
// Kind registrations win over domain registrations; anything unregistered
// gets BaseBehavior.
type Factory struct {
	mu      sync.RWMutex
	kinds   map[converter.Kind]Constructor
	domains map[string]Constructor
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{
		kinds:   make(map[converter.Kind]Constructor),
		domains: make(map[string]Constructor),
	}
}

// DefaultFactory creates a factory with the built-in platforms registered.
func DefaultFactory() *Factory {
	f := NewFactory()
	f.Register(DomainSensor, func() Behavior { return &Sensor{} })
	f.Register(DomainBinarySensor, func() Behavior { return &BinarySensor{} })
	f.Register(DomainSwitch, func() Behavior { return &Switch{} })
	f.Register(DomainButton, func() Behavior { return &Button{} })
	f.RegisterKind(converter.KindInfo, func() Behavior { return &Diagnostic{} })
	return f
}

// Register binds a host domain to a constructor, replacing any previous one.
func (f *Factory) Register(domain string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.domains[domain] = ctor
}

// RegisterKind binds a converter kind to a constructor.
func (f *Factory) RegisterKind(kind converter.Kind, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds[kind] = ctor
}

// Domains returns the registered domain names.
func (f *Factory) Domains() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.domains))
	for d := range f.domains {
		out = append(out, d)
	}
	return out
}

// Build constructs an entity with the behaviour registered for conv.
// Options given here are applied after the behaviour, so WithBehavior
// still wins.
func (f *Factory) Build(dev *device.Device, conv *converter.Converter, opts ...Option) (*Entity, error) {
	var b Behavior = BaseBehavior{}
	if conv != nil {
		if ctor := f.lookup(conv); ctor != nil {
			b = ctor()
		}
	}
	return New(dev, conv, append([]Option{WithBehavior(b)}, opts...)...)
}

func (f *Factory) lookup(conv *converter.Converter) Constructor {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if ctor, ok := f.kinds[conv.Kind]; ok {
		return ctor
	}
	return f.domains[conv.Domain]
}

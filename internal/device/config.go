package device

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-miot/internal/converter"
	"github.com/nerrad567/gray-logic-miot/internal/spec"
)

// File is the YAML device declaration file.
type File struct {
	Devices []DeviceConfig `yaml:"devices"`
}

// DeviceConfig declares one device: its identity, spec tree and converters.
type DeviceConfig struct {
	UniqueID     string            `yaml:"unique_id"`
	Model        string            `yaml:"model"`
	Name         string            `yaml:"name"`
	Manufacturer string            `yaml:"manufacturer"`
	Info         Info              `yaml:",inline"`
	Services     []ServiceConfig   `yaml:"services"`
	Converters   []ConverterConfig `yaml:"converters"`
}

// ServiceConfig declares a spec service.
type ServiceConfig struct {
	IID         int              `yaml:"iid"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Properties  []PropertyConfig `yaml:"properties"`
	Actions     []ActionConfig   `yaml:"actions"`
}

// PropertyConfig declares a spec property.
type PropertyConfig struct {
	IID         int      `yaml:"iid"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Format      string   `yaml:"format"`
	Unit        string   `yaml:"unit"`
	Access      []string `yaml:"access"`
}

// ActionConfig declares a spec action.
type ActionConfig struct {
	IID         int    `yaml:"iid"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	In          []int  `yaml:"in"`
}

// ConverterConfig declares a converter. Prop and Action are full names
// ("service:name") resolved against the device's spec tree.
type ConverterConfig struct {
	Kind   string         `yaml:"kind"`
	Attr   string         `yaml:"attr"`
	Domain string         `yaml:"domain"`
	Prop   string         `yaml:"prop"`
	Action string         `yaml:"action"`
	Option map[string]any `yaml:"option"`
}

// LoadConfig reads a YAML device file.
func LoadConfig(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config
	if err != nil {
		return nil, fmt.Errorf("reading device file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing device file: %w", err)
	}
	return &f, nil
}

// Build turns the declarations into devices. All errors are collected so a
// broken file reports every problem at once.
func (f *File) Build() ([]*Device, error) {
	devices := make([]*Device, 0, len(f.Devices))
	var errs []error
	for i := range f.Devices {
		d, err := f.Devices[i].build()
		if err != nil {
			errs = append(errs, fmt.Errorf("devices[%d]: %w", i, err))
			continue
		}
		devices = append(devices, d)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return devices, nil
}

func (dc *DeviceConfig) build() (*Device, error) {
	if dc.UniqueID == "" {
		return nil, errors.New("unique_id is required")
	}
	if dc.Model == "" {
		return nil, fmt.Errorf("%s: model is required", dc.UniqueID)
	}

	tree := spec.New(dc.Model)
	for _, sc := range dc.Services {
		svc := spec.NewService(sc.IID, sc.Name, sc.Description)
		if err := tree.AddService(svc); err != nil {
			return nil, fmt.Errorf("%s: %w", dc.UniqueID, err)
		}
		for _, pc := range sc.Properties {
			p := svc.AddProperty(spec.NewProperty(pc.IID, pc.Name, pc.Description))
			p.Format = pc.Format
			p.Unit = pc.Unit
			p.Access = pc.Access
		}
		for _, ac := range sc.Actions {
			a := svc.AddAction(spec.NewAction(ac.IID, ac.Name, ac.Description))
			a.In = ac.In
		}
	}

	name := dc.Name
	if name == "" {
		name = dc.Model
	}
	dev := New(dc.UniqueID, dc.Model, tree, dc.Info, &HostInfo{
		Identifiers:  []string{dc.UniqueID},
		Name:         name,
		Manufacturer: dc.Manufacturer,
		Model:        dc.Model,
		SWVersion:    dc.Info.FirmwareVersion,
	})

	for i, cc := range dc.Converters {
		conv, err := cc.build(tree)
		if err != nil {
			return nil, fmt.Errorf("%s: converters[%d]: %w", dc.UniqueID, i, err)
		}
		dev.Converters = append(dev.Converters, conv)
	}
	return dev, nil
}

func (cc *ConverterConfig) build(tree *spec.Spec) (*converter.Converter, error) {
	kind, err := converter.ParseKind(cc.Kind)
	if err != nil {
		return nil, err
	}

	var mods []converter.Modifier
	if cc.Attr != "" {
		mods = append(mods, converter.WithAttr(cc.Attr))
	}
	for k, v := range cc.Option {
		mods = append(mods, converter.WithOption(k, v))
	}

	var prop *spec.Property
	if cc.Prop != "" {
		if prop, err = tree.Property(cc.Prop); err != nil {
			return nil, err
		}
	}

	var conv *converter.Converter
	switch kind {
	case converter.KindProperty:
		conv = converter.NewProperty(prop, cc.Domain, mods...)
	case converter.KindAction:
		action, err := tree.Action(cc.Action)
		if err != nil {
			return nil, err
		}
		conv = converter.NewAction(action, prop, cc.Domain, mods...)
	case converter.KindInfo:
		conv = converter.NewInfo(cc.Attr, cc.Domain, mods...)
	default:
		conv = converter.NewGeneric(cc.Attr, cc.Domain, mods...)
	}

	if err := conv.Validate(); err != nil {
		return nil, err
	}
	return conv, nil
}

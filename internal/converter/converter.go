// Package converter describes how a device capability maps onto a host
// entity: which key of the device's update dictionary to read, which host
// domain the entity belongs to, and which spec element (if any) backs it.
//
// Converters are plain data. The entity package switches on Kind to pick a
// construction path; nothing here has behaviour beyond naming.
package converter

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-miot/internal/spec"
)

// Kind tags the variant a converter represents.
type Kind int

// Converter variants.
const (
	KindGeneric Kind = iota
	KindProperty
	KindAction
	KindInfo
)

var kindNames = map[Kind]string{
	KindGeneric:  "generic",
	KindProperty: "property",
	KindAction:   "action",
	KindInfo:     "info",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Converter maps one spec element, or a raw attribute key, onto a host entity.
type Converter struct {
	Kind   Kind
	Attr   string
	Domain string
	Option map[string]any

	// Prop is set for property converters and optionally for action
	// converters, where it names the companion property.
	Prop *spec.Property

	// Action is set for action converters only.
	Action *spec.Action
}

// Modifier adjusts a converter during construction.
type Modifier func(*Converter)

// WithAttr overrides the default attribute key.
func WithAttr(attr string) Modifier {
	return func(c *Converter) { c.Attr = attr }
}

// WithOption sets a single free-form option such as "icon".
func WithOption(key string, value any) Modifier {
	return func(c *Converter) {
		if c.Option == nil {
			c.Option = make(map[string]any)
		}
		c.Option[key] = value
	}
}

// NewProperty wraps a property. The attribute key defaults to the
// property's full name.
func NewProperty(prop *spec.Property, domain string, mods ...Modifier) *Converter {
	c := &Converter{Kind: KindProperty, Domain: domain, Prop: prop}
	if prop != nil {
		c.Attr = prop.FullName()
	}
	return c.apply(mods)
}

// NewAction wraps an action with an optional companion property.
func NewAction(action *spec.Action, prop *spec.Property, domain string, mods ...Modifier) *Converter {
	c := &Converter{Kind: KindAction, Domain: domain, Action: action, Prop: prop}
	if action != nil {
		c.Attr = action.FullName()
	}
	return c.apply(mods)
}

// NewInfo creates a diagnostic converter that mirrors every update field.
func NewInfo(attr, domain string, mods ...Modifier) *Converter {
	return (&Converter{Kind: KindInfo, Attr: attr, Domain: domain}).apply(mods)
}

// NewGeneric creates a converter keyed purely by attr.
func NewGeneric(attr, domain string, mods ...Modifier) *Converter {
	return (&Converter{Kind: KindGeneric, Attr: attr, Domain: domain}).apply(mods)
}

func (c *Converter) apply(mods []Modifier) *Converter {
	for _, m := range mods {
		m(c)
	}
	return c
}

// Validate checks the converter is usable for entity construction.
func (c *Converter) Validate() error {
	if c.Attr == "" {
		return ErrEmptyAttr
	}
	switch c.Kind {
	case KindProperty:
		if c.Prop == nil {
			return fmt.Errorf("%w: property converter %s", ErrMissingElement, c.Attr)
		}
	case KindAction:
		if c.Action == nil {
			return fmt.Errorf("%w: action converter %s", ErrMissingElement, c.Attr)
		}
	case KindInfo, KindGeneric:
	default:
		return fmt.Errorf("%w: %d", ErrUnknownKind, int(c.Kind))
	}
	return nil
}

// String returns a short diagnostic identifier, e.g. "PropertyConverter(fan:speed)".
func (c *Converter) String() string {
	var prefix string
	switch c.Kind {
	case KindProperty:
		prefix = "PropertyConverter"
	case KindAction:
		prefix = "ActionConverter"
	case KindInfo:
		prefix = "InfoConverter"
	default:
		prefix = "Converter"
	}
	return prefix + "(" + c.Attr + ")"
}

// Icon returns the configured icon, or "" if none.
func (c *Converter) Icon() string {
	icon, _ := c.Option["icon"].(string)
	return icon
}

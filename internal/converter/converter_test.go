package converter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-miot/internal/spec"
)

func fanElements(t *testing.T) (*spec.Property, *spec.Action) {
	t.Helper()
	s := spec.New("brand.fan.v1")
	fan := spec.NewService(2, "fan", "")
	require.NoError(t, s.AddService(fan))
	on := fan.AddProperty(spec.NewProperty(1, "on", ""))
	toggle := fan.AddAction(spec.NewAction(1, "toggle", ""))
	return on, toggle
}

func TestNewProperty(t *testing.T) {
	on, _ := fanElements(t)

	c := NewProperty(on, "switch")
	assert.Equal(t, KindProperty, c.Kind)
	assert.Equal(t, "fan:on", c.Attr)
	assert.Equal(t, "PropertyConverter(fan:on)", c.String())
	assert.NoError(t, c.Validate())

	c = NewProperty(on, "switch", WithAttr("power"), WithOption("icon", "mdi:fan"))
	assert.Equal(t, "power", c.Attr)
	assert.Equal(t, "mdi:fan", c.Icon())
}

func TestNewAction(t *testing.T) {
	on, toggle := fanElements(t)

	c := NewAction(toggle, on, "button")
	assert.Equal(t, KindAction, c.Kind)
	assert.Equal(t, "fan:toggle", c.Attr)
	assert.Same(t, on, c.Prop)
	assert.Equal(t, "ActionConverter(fan:toggle)", c.String())
	assert.NoError(t, c.Validate())

	bare := NewAction(toggle, nil, "button")
	assert.Nil(t, bare.Prop)
	assert.NoError(t, bare.Validate())
}

func TestInfoAndGeneric(t *testing.T) {
	info := NewInfo("info", "sensor")
	assert.Equal(t, KindInfo, info.Kind)
	assert.Equal(t, "InfoConverter(info)", info.String())
	assert.Empty(t, info.Icon())

	gen := NewGeneric("power_cost", "sensor")
	assert.Equal(t, "Converter(power_cost)", gen.String())
	assert.NoError(t, gen.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		conv *Converter
		want error
	}{
		{"empty attr", NewGeneric("", "sensor"), ErrEmptyAttr},
		{"property without prop", NewProperty(nil, "sensor", WithAttr("x")), ErrMissingElement},
		{"action without action", NewAction(nil, nil, "button", WithAttr("x")), ErrMissingElement},
		{"unknown kind", &Converter{Kind: Kind(42), Attr: "x"}, ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.conv.Validate(), tt.want)
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindGeneric, KindProperty, KindAction, KindInfo} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	got, err := ParseKind("Property")
	require.NoError(t, err)
	assert.Equal(t, KindProperty, got)

	_, err = ParseKind("select")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

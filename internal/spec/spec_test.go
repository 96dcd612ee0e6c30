package spec

import (
	"errors"
	"testing"
)

type fakeOwner string

func (f fakeOwner) UniqueMAC() string { return string(f) }

func fanSpec(t *testing.T) (*Spec, *Property, *Action) {
	t.Helper()
	s := New("brand.fan.v1")
	fan := NewService(2, "fan", "Fan")
	if err := s.AddService(fan); err != nil {
		t.Fatalf("AddService() error = %v", err)
	}
	speed := fan.AddProperty(NewProperty(2, "speed", ""))
	speed.Format = "uint8"
	speed.Access = []string{AccessRead, AccessWrite, AccessNotify}
	toggle := fan.AddAction(NewAction(1, "toggle", "Toggle"))
	return s, speed, toggle
}

func TestElementNames(t *testing.T) {
	_, speed, toggle := fanSpec(t)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"property full name", speed.FullName(), "fan:speed"},
		{"property unique name", speed.UniqueName(), "fan.speed"},
		{"property friendly name", speed.FriendlyName(), "fan.speed"},
		{"property friendly desc", speed.FriendlyDesc(), "Fan Speed"},
		{"action full name", toggle.FullName(), "fan:toggle"},
		{"action unique name", toggle.UniqueName(), "fan.toggle"},
		{"action friendly desc", toggle.FriendlyDesc(), "Toggle"},
		{"property string", speed.String(), "Property(fan:speed)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestPropertyAccess(t *testing.T) {
	_, speed, _ := fanSpec(t)
	if !speed.Readable() || !speed.Writable() {
		t.Errorf("speed access = %v, want readable and writable", speed.Access)
	}
	ro := NewProperty(3, "mode", "")
	ro.Access = []string{AccessRead}
	if ro.Writable() {
		t.Error("read-only property reported writable")
	}
}

func TestInfoServiceFriendlyName(t *testing.T) {
	s := New("brand.fan.v1")
	info := NewService(1, InfoServiceName, "")
	if err := s.AddService(info); err != nil {
		t.Fatalf("AddService() error = %v", err)
	}
	fw := info.AddProperty(NewProperty(4, "firmware_revision", ""))
	if got := fw.FriendlyName(); got != "firmware_revision" {
		t.Errorf("FriendlyName() = %q, want firmware_revision", got)
	}
	if got := fw.FriendlyDesc(); got != "Firmware Revision" {
		t.Errorf("FriendlyDesc() = %q, want Firmware Revision", got)
	}
}

func TestFriendlyDescMultiByteName(t *testing.T) {
	s := New("brand.lamp.v1")
	light := NewService(2, "éclairage", "")
	if err := s.AddService(light); err != nil {
		t.Fatalf("AddService() error = %v", err)
	}
	p := light.AddProperty(NewProperty(1, "état", ""))
	if got := p.FriendlyDesc(); got != "Éclairage État" {
		t.Errorf("FriendlyDesc() = %q, want Éclairage État", got)
	}
}

func TestUniqueNameDisambiguation(t *testing.T) {
	s := New("brand.switch.v2")
	left := NewService(2, "switch", "")
	right := NewService(3, "switch", "")
	if err := s.AddService(left); err != nil {
		t.Fatalf("AddService() error = %v", err)
	}
	on1 := left.AddProperty(NewProperty(1, "on", ""))
	if got := on1.UniqueName(); got != "switch.on" {
		t.Fatalf("UniqueName() before duplicate = %q", got)
	}

	if err := s.AddService(right); err != nil {
		t.Fatalf("AddService() error = %v", err)
	}
	on2 := right.AddProperty(NewProperty(1, "on", ""))

	if got := on1.UniqueName(); got != "switch.on-2-1" {
		t.Errorf("left UniqueName() = %q, want switch.on-2-1", got)
	}
	if got := on2.UniqueName(); got != "switch.on-3-1" {
		t.Errorf("right UniqueName() = %q, want switch.on-3-1", got)
	}
	if on1.FullName() != on2.FullName() {
		t.Error("full names should stay equal")
	}
}

func TestAddServiceDuplicateIID(t *testing.T) {
	s := New("m")
	if err := s.AddService(NewService(1, "a", "")); err != nil {
		t.Fatalf("AddService() error = %v", err)
	}
	err := s.AddService(NewService(1, "b", ""))
	if !errors.Is(err, ErrDuplicateService) {
		t.Errorf("AddService() error = %v, want ErrDuplicateService", err)
	}
}

func TestLookup(t *testing.T) {
	s, speed, toggle := fanSpec(t)

	p, err := s.Property("fan:speed")
	if err != nil || p != speed {
		t.Errorf("Property() = %v, %v", p, err)
	}
	a, err := s.Action("fan:toggle")
	if err != nil || a != toggle {
		t.Errorf("Action() = %v, %v", a, err)
	}
	if _, err := s.Property("fan:missing"); !errors.Is(err, ErrElementNotFound) {
		t.Errorf("Property(missing) error = %v, want ErrElementNotFound", err)
	}
}

func TestGenerateEntityID(t *testing.T) {
	s, speed, _ := fanSpec(t)
	owner := fakeOwner("AA:BB:CC:DD:EE:FF")

	tests := []struct {
		name    string
		owner   Owner
		key     string
		domain  string
		want    string
		wantErr error
	}{
		{"full", owner, "fan.speed", "sensor", "sensor.brand_fan_v1_eeff_fan_speed", nil},
		{"no owner", nil, "power", "switch", "switch.brand_fan_v1_power", nil},
		{"empty mac", fakeOwner(""), "power", "switch", "switch.brand_fan_v1_power", nil},
		{"empty key", owner, "", "sensor", "", ErrEmptyKey},
		{"symbol-only key", owner, "::", "sensor", "", ErrEmptyKey},
		{"empty domain", owner, "power", "", "", ErrInvalidDomain},
		{"bad domain", owner, "power", "Sensor!", "", ErrInvalidDomain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.GenerateEntityID(tt.owner, tt.key, tt.domain)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("GenerateEntityID() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GenerateEntityID() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("GenerateEntityID() = %q, want %q", got, tt.want)
			}
		})
	}

	got, err := speed.GenerateEntityID(owner, "number")
	if err != nil {
		t.Fatalf("Property.GenerateEntityID() error = %v", err)
	}
	if got != "number.brand_fan_v1_eeff_fan_speed" {
		t.Errorf("Property.GenerateEntityID() = %q", got)
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Fan Speed":     "fan_speed",
		"brand.fan.v1":  "brand_fan_v1",
		"--a--b--":      "a_b",
		"":              "",
		"switch.on-2-1": "switch_on_2_1",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

package entity

import (
	"strconv"
	"strings"
	"time"
)

// Behavior supplies the platform-specific parts of an entity.
type Behavior interface {
	// OnInit runs once during construction, before the entity goes live.
	OnInit(e *Entity)

	// SetState projects a data update (or restore data) into s.
	SetState(s *State, data map[string]any)

	// GetState returns the persistable view of s.
	GetState(s *State) map[string]any
}

// BaseBehavior takes data[attr] as the primary state and persists nothing.
type BaseBehavior struct{}

// OnInit does nothing.
func (BaseBehavior) OnInit(*Entity) {}

// SetState copies data[s.Attr] into the primary state when present.
func (BaseBehavior) SetState(s *State, data map[string]any) {
	if v, ok := data[s.Attr]; ok {
		s.Value = v
	}
}

// GetState returns an empty map.
func (BaseBehavior) GetState(*State) map[string]any {
	return map[string]any{}
}

// Sensor reports a value with an optional unit.
type Sensor struct {
	BaseBehavior
}

// Platform returns "sensor".
func (*Sensor) Platform() string { return "sensor" }

// OnInit takes the unit from the property unless overridden per model.
func (*Sensor) OnInit(e *Entity) {
	unit := ""
	if p := e.Property(); p != nil && p.Unit != "none" {
		unit = p.Unit
	}
	if u, ok := e.CustomConfig("unit_of_measurement", unit).(string); ok {
		unit = u
	}
	e.SetUnit(unit)
}

// GetState persists the primary value.
func (*Sensor) GetState(s *State) map[string]any {
	return map[string]any{s.Attr: s.Value}
}

// BinarySensor reports an on/off value coerced from device data.
type BinarySensor struct {
	BaseBehavior
}

// Platform returns "binary_sensor".
func (*BinarySensor) Platform() string { return "binary_sensor" }

// SetState coerces data[s.Attr] to a bool.
func (*BinarySensor) SetState(s *State, data map[string]any) {
	if v, ok := data[s.Attr]; ok {
		s.Value = Truthy(v)
	}
}

// GetState persists the primary value.
func (*BinarySensor) GetState(s *State) map[string]any {
	return map[string]any{s.Attr: s.Value}
}

// Switch reports the on/off state of a writable boolean property.
type Switch struct {
	BinarySensor
}

// Platform returns "switch".
func (*Switch) Platform() string { return "switch" }

// Button exposes an action. It also listens to the action's companion
// property and records when the device last reported a press.
type Button struct {
	BaseBehavior

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Platform returns "button".
func (*Button) Platform() string { return "button" }

// OnInit widens the listen set with the companion property.
func (*Button) OnInit(e *Entity) {
	if p := e.Property(); p != nil {
		e.AddListenAttrs(p.FullName())
	}
}

// SetState records the press time when the action key is present.
// Restore data carries the previous RFC 3339 timestamp, which is kept.
func (b *Button) SetState(s *State, data map[string]any) {
	v, ok := data[s.Attr]
	if !ok {
		return
	}
	if str, isStr := v.(string); isStr {
		if _, err := time.Parse(time.RFC3339, str); err == nil {
			s.Value = str
			return
		}
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	s.Value = now().UTC().Format(time.RFC3339)
}

// GetState persists the last press time.
func (*Button) GetState(s *State) map[string]any {
	return map[string]any{s.Attr: s.Value}
}

// Diagnostic backs info converters. All update fields are mirrored into
// the attributes by the entity; the primary state follows data[attr].
type Diagnostic struct {
	BaseBehavior
}

// Platform returns "diagnostic".
func (*Diagnostic) Platform() string { return "diagnostic" }

// GetState persists the primary value.
func (*Diagnostic) GetState(s *State) map[string]any {
	return map[string]any{s.Attr: s.Value}
}

// Truthy coerces device values to a bool: non-zero numbers, and the
// strings "on", "true", "yes" and "1" are true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int:
		return t != 0
	case int32:
		return t != 0
	case int64:
		return t != 0
	case uint:
		return t != 0
	case uint8:
		return t != 0
	case uint32:
		return t != 0
	case uint64:
		return t != 0
	case float64:
		return t != 0
	case float32:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "on", "true", "yes", "1":
			return true
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f != 0
		}
		return false
	default:
		return false
	}
}

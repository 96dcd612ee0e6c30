package entity

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-miot/internal/converter"
	"github.com/nerrad567/gray-logic-miot/internal/customize"
	"github.com/nerrad567/gray-logic-miot/internal/device"
	"github.com/nerrad567/gray-logic-miot/internal/spec"
)

// CategoryDiagnostic marks entities that expose device internals.
const CategoryDiagnostic = "diagnostic"

// Phase is the attachment state of an entity.
type Phase int

// Entity phases.
const (
	PhaseUnattached Phase = iota
	PhaseAttached
	PhaseDetached
)

func (p Phase) String() string {
	switch p {
	case PhaseUnattached:
		return "unattached"
	case PhaseAttached:
		return "attached"
	case PhaseDetached:
		return "detached"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Host is the runtime that owns attached entities.
type Host interface {
	// ScheduleStateWrite asks the host to persist and publish the entity's
	// current state. It must not block; the host may coalesce requests.
	ScheduleStateWrite(e *Entity)

	// LastExtraData returns the restore data persisted for uniqueID, or
	// nil when there is none.
	LastExtraData(ctx context.Context, uniqueID string) (map[string]any, error)
}

// Overrides answers per-model configuration lookups.
type Overrides interface {
	Lookup(keys []string, option string, def any) any
}

// Logger defines the logging interface used by entities.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// State is the host-visible state of an entity.
type State struct {
	// Attr is the primary key into device updates.
	Attr string

	// Value is the primary state.
	Value any

	Unit string

	// Attributes holds the extra state attributes.
	Attributes map[string]any
}

// Option configures an Entity.
type Option func(*Entity)

// WithBehavior sets the platform behaviour. Defaults to BaseBehavior.
func WithBehavior(b Behavior) Option {
	return func(e *Entity) { e.behavior = b }
}

// WithLogger sets the entity logger.
func WithLogger(l Logger) Option {
	return func(e *Entity) { e.logger = l }
}

// WithOverrides sets the per-model override lookup.
func WithOverrides(o Overrides) Option {
	return func(e *Entity) { e.overrides = o }
}

// Entity is the adapter between one device converter and the host.
type Entity struct {
	dev       *device.Device
	conv      *converter.Converter
	attr      string
	behavior  Behavior
	overrides Overrides
	logger    Logger

	uniqueID       string
	name           string
	translationKey string
	icon           string
	category       string
	hostInfo       *device.HostInfo
	service        *spec.Service
	prop           *spec.Property
	action         *spec.Action

	mu          sync.RWMutex
	entityID    string
	listenAttrs map[string]struct{}
	phase       Phase
	host        Host
	available   bool
	live        bool
	state       State

	keysOnce      sync.Once
	customizeKeys []string
}

// New builds an entity adapter for conv on dev and registers it as a device
// listener. Registration is the last step: any error leaves the device
// untouched.
func New(dev *device.Device, conv *converter.Converter, opts ...Option) (*Entity, error) {
	if dev == nil || dev.Spec == nil {
		return nil, ErrInvalidDevice
	}
	if conv == nil {
		return nil, ErrInvalidConverter
	}
	if err := conv.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConverter, err)
	}

	e := &Entity{
		dev:      dev,
		conv:     conv,
		attr:     conv.Attr,
		behavior: BaseBehavior{},
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}

	var (
		entityID string
		err      error
	)
	switch conv.Kind {
	case converter.KindProperty:
		e.prop = conv.Prop
		e.service = conv.Prop.Service
		entityID, err = conv.Prop.GenerateEntityID(e, conv.Domain)
		e.name = conv.Prop.FriendlyDesc()
		e.translationKey = conv.Prop.FriendlyName()
	case converter.KindAction:
		e.action = conv.Action
		e.prop = conv.Prop
		e.service = conv.Action.Service
		entityID, err = dev.Spec.GenerateEntityID(e, conv.Action.Name, conv.Domain)
		e.name = conv.Action.FriendlyDesc()
		e.translationKey = conv.Action.FriendlyName()
		e.available = true
	default:
		entityID, err = dev.Spec.GenerateEntityID(e, conv.Attr, conv.Domain)
		e.translationKey = conv.Attr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIdentity, conv, err)
	}
	e.entityID = entityID

	e.listenAttrs = map[string]struct{}{e.attr: {}}
	e.uniqueID = dev.UniqueID + "-" + e.derivedID()
	e.hostInfo = dev.HostInfo
	e.state = State{
		Attr:       e.attr,
		Attributes: map[string]any{"converter": conv.String()},
	}

	e.icon = conv.Icon()
	if icon, ok := e.CustomConfig("icon", e.icon).(string); ok {
		e.icon = icon
	}

	if conv.Kind == converter.KindInfo {
		e.available = true
		e.category = CategoryDiagnostic
	}

	e.behavior.OnInit(e)

	dev.AddListener(e)

	e.logger.Debug("entity created",
		"unique_id", e.uniqueID,
		"entity_id", e.entityID,
		"converter", conv.String(),
	)
	return e, nil
}

// derivedID is the action unique name, else the property unique name,
// else the raw attribute key.
func (e *Entity) derivedID() string {
	switch {
	case e.action != nil:
		return e.action.UniqueName()
	case e.prop != nil:
		return e.prop.UniqueName()
	default:
		return e.attr
	}
}

// OnDeviceUpdate handles a keyed data update from the device.
func (e *Entity) OnDeviceUpdate(data map[string]any) {
	e.mu.Lock()
	if e.phase == PhaseDetached {
		e.mu.Unlock()
		return
	}

	e.available = true

	if e.conv.Kind == converter.KindInfo {
		for k, v := range data {
			e.state.Attributes[k] = v
		}
	}

	changed := false
	if matched := e.matchedKeys(data); len(matched) > 0 {
		e.behavior.SetState(&e.state, data)
		e.live = true
		changed = true
		for _, k := range matched {
			if k != e.attr {
				e.state.Attributes[k] = data[k]
			}
		}
	}

	host := e.host
	attached := e.phase == PhaseAttached
	e.mu.Unlock()

	if changed && attached {
		host.ScheduleStateWrite(e)
	}
}

// matchedKeys returns the keys of data present in the listen set.
// Caller must hold e.mu.
func (e *Entity) matchedKeys(data map[string]any) []string {
	var matched []string
	for k := range data {
		if _, ok := e.listenAttrs[k]; ok {
			matched = append(matched, k)
		}
	}
	sort.Strings(matched)
	return matched
}

// Attach confirms the entity with the host, enabling state writes, and
// replays persisted restore data that overlaps the listen set. Restore data
// never replaces state already set by a live update.
// Attaching twice is a no-op. Attaching a detached entity returns ErrDetached.
func (e *Entity) Attach(ctx context.Context, host Host) error {
	e.mu.Lock()
	switch e.phase {
	case PhaseDetached:
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDetached, e.uniqueID)
	case PhaseAttached:
		e.mu.Unlock()
		return nil
	}
	e.phase = PhaseAttached
	e.host = host
	e.mu.Unlock()

	data, err := host.LastExtraData(ctx, e.uniqueID)
	if err != nil {
		e.logger.Warn("restore data unavailable", "unique_id", e.uniqueID, "error", err)
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseAttached || e.live {
		return nil
	}
	if len(e.matchedKeys(data)) > 0 {
		e.behavior.SetState(&e.state, data)
		e.logger.Debug("entity state restored", "unique_id", e.uniqueID)
	}
	return nil
}

// Detach removes the entity from its device's listener set. It is final
// and idempotent.
func (e *Entity) Detach() {
	e.mu.Lock()
	if e.phase == PhaseDetached {
		e.mu.Unlock()
		return
	}
	e.phase = PhaseDetached
	e.host = nil
	e.mu.Unlock()

	e.dev.RemoveListener(e)
	e.logger.Debug("entity detached", "unique_id", e.uniqueID)
}

// GetState returns the behaviour's persistable view of the state.
func (e *Entity) GetState() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.behavior.GetState(&e.state)
}

// ExtraRestoreData returns the state to persist with nil values dropped.
// The boolean is false when there is nothing to persist.
func (e *Entity) ExtraRestoreData() (map[string]any, bool) {
	out := make(map[string]any)
	for k, v := range e.GetState() {
		if v != nil {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// CustomizeKeys returns the override lookup keys, most specific first.
// The result is computed once.
func (e *Entity) CustomizeKeys() []string {
	e.keysOnce.Do(func() {
		for _, mod := range customize.WildcardModels(e.dev.Model) {
			if e.action != nil {
				e.customizeKeys = append(e.customizeKeys,
					mod+":"+e.action.FullName(),
					mod+":"+e.action.Name,
				)
			}
			if e.prop != nil {
				e.customizeKeys = append(e.customizeKeys,
					mod+":"+e.prop.FullName(),
					mod+":"+e.prop.Name,
				)
			}
			if e.action == nil && e.prop == nil && e.attr != "" {
				e.customizeKeys = append(e.customizeKeys, mod+":"+e.attr)
			}
		}
	})
	return append([]string(nil), e.customizeKeys...)
}

// CustomConfig returns the override configured for option, or def.
func (e *Entity) CustomConfig(option string, def any) any {
	if e.overrides == nil {
		return def
	}
	return e.overrides.Lookup(e.CustomizeKeys(), option, def)
}

// AddListenAttrs widens the listen set. Intended for Behavior.OnInit.
func (e *Entity) AddListenAttrs(keys ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, k := range keys {
		if k != "" {
			e.listenAttrs[k] = struct{}{}
		}
	}
}

// ListenAttrs returns the listen set, sorted.
func (e *Entity) ListenAttrs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.listenAttrs))
	for k := range e.listenAttrs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SetUnit sets the unit of measurement.
func (e *Entity) SetUnit(unit string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Unit = unit
}

// SetEntityID replaces the derived entity ID, e.g. with one the host
// registry already knows.
func (e *Entity) SetEntityID(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entityID = id
}

// UniqueMAC returns the device's hardware identifier.
func (e *Entity) UniqueMAC() string { return e.dev.Info.UniqueID }

// UniqueID returns "{device unique id}-{derived id}".
func (e *Entity) UniqueID() string { return e.uniqueID }

// EntityID returns the host entity ID, e.g. "sensor.brand_fan_v1_eeff_fan_speed".
func (e *Entity) EntityID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.entityID
}

// Attr returns the primary attribute key.
func (e *Entity) Attr() string { return e.attr }

// Domain returns the host domain.
func (e *Entity) Domain() string { return e.conv.Domain }

// Device returns the owning device.
func (e *Entity) Device() *device.Device { return e.dev }

// Converter returns the converter the entity was built from.
func (e *Entity) Converter() *converter.Converter { return e.conv }

// Property returns the backing property, if any.
func (e *Entity) Property() *spec.Property { return e.prop }

// Action returns the backing action, if any.
func (e *Entity) Action() *spec.Action { return e.action }

// Service returns the owning service, if any.
func (e *Entity) Service() *spec.Service { return e.service }

// HostInfo returns the device metadata shared with the host.
func (e *Entity) HostInfo() *device.HostInfo { return e.hostInfo }

// Name returns the display name, falling back to the translation key.
func (e *Entity) Name() string {
	if e.name != "" {
		return e.name
	}
	return e.translationKey
}

// TranslationKey returns the translation key.
func (e *Entity) TranslationKey() string { return e.translationKey }

// Icon returns the icon.
func (e *Entity) Icon() string { return e.icon }

// Category returns the entity category, "" for primary entities.
func (e *Entity) Category() string { return e.category }

// Platform returns the behaviour's platform name.
func (e *Entity) Platform() string {
	if p, ok := e.behavior.(interface{ Platform() string }); ok {
		return p.Platform()
	}
	return "generic"
}

// Available reports whether the entity has live data.
func (e *Entity) Available() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.available
}

// Phase returns the attachment phase.
func (e *Entity) Phase() Phase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phase
}

// Value returns the primary state.
func (e *Entity) Value() any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Value
}

// Attributes returns a copy of the extra state attributes.
func (e *Entity) Attributes() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyMap(e.state.Attributes)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

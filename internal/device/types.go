package device

import (
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-miot/internal/converter"
	"github.com/nerrad567/gray-logic-miot/internal/spec"
)

// Info is the hardware identity reported by the device itself.
type Info struct {
	// UniqueID is the stable hardware identifier, normally the MAC address.
	UniqueID        string `json:"unique_id" yaml:"mac"`
	Host            string `json:"host,omitempty" yaml:"host"`
	FirmwareVersion string `json:"firmware_version,omitempty" yaml:"firmware"`
}

// HostInfo is the metadata the host shows for the device. Entities copy a
// reference to it; the bridge never interprets it.
type HostInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// State is the merged view of every key the device has pushed.
type State map[string]any

// Listener receives keyed data updates pushed by a device.
//
// Listeners are compared by identity, so implementations should use
// pointer receivers.
type Listener interface {
	OnDeviceUpdate(data map[string]any)
}

// Device is a physical or virtual unit exposing a spec tree and pushing
// keyed updates to its listeners.
type Device struct {
	UniqueID   string
	Model      string
	Spec       *spec.Spec
	Info       Info
	HostInfo   *HostInfo
	Converters []*converter.Converter

	mu             sync.RWMutex
	listeners      []Listener
	state          State
	stateUpdatedAt time.Time

	// dispatchMu serialises deliveries so listeners observe updates in order.
	dispatchMu sync.Mutex
}

// New creates a device. The host info defaults to the model and hardware
// identity when nil.
func New(uniqueID, model string, s *spec.Spec, info Info, hostInfo *HostInfo) *Device {
	if hostInfo == nil {
		hostInfo = &HostInfo{
			Identifiers: []string{uniqueID},
			Name:        model,
			Model:       model,
			SWVersion:   info.FirmwareVersion,
		}
	}
	return &Device{
		UniqueID: uniqueID,
		Model:    model,
		Spec:     s,
		Info:     info,
		HostInfo: hostInfo,
		state:    make(State),
	}
}

// AddListener registers l. Adding the same listener twice is a no-op.
func (d *Device) AddListener(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.listeners {
		if existing == l {
			return
		}
	}
	d.listeners = append(d.listeners, l)
}

// RemoveListener unregisters l. Removing an absent listener is a no-op.
func (d *Device) RemoveListener(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.listeners {
		if existing == l {
			d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of registered listeners.
func (d *Device) ListenerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners)
}

// Dispatch merges data into the device state and delivers it to every
// listener in registration order.
//
// Deliveries for one device never overlap. The listener list is copied
// before delivery, so a listener removed from inside a callback still
// finishes the current round.
func (d *Device) Dispatch(data map[string]any) {
	if len(data) == 0 {
		return
	}

	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()

	d.mu.Lock()
	if d.state == nil {
		d.state = make(State, len(data))
	}
	for k, v := range data {
		d.state[k] = v
	}
	d.stateUpdatedAt = time.Now().UTC()
	listeners := make([]Listener, len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.Unlock()

	for _, l := range listeners {
		l.OnDeviceUpdate(data)
	}
}

// State returns a copy of the merged device state and when it last changed.
func (d *Device) State() (State, time.Time) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cpy := make(State, len(d.state))
	for k, v := range d.state {
		cpy[k] = v
	}
	return cpy, d.stateUpdatedAt
}

// Summary is a read-only snapshot of a device for listing.
type Summary struct {
	UniqueID       string     `json:"unique_id"`
	Model          string     `json:"model"`
	Info           Info       `json:"info"`
	HostInfo       *HostInfo  `json:"host_info"`
	Converters     int        `json:"converters"`
	Listeners      int        `json:"listeners"`
	State          State      `json:"state"`
	StateUpdatedAt *time.Time `json:"state_updated_at,omitempty"`
}

// Summary snapshots the device.
func (d *Device) Summary() Summary {
	state, updated := d.State()
	s := Summary{
		UniqueID:   d.UniqueID,
		Model:      d.Model,
		Info:       d.Info,
		HostInfo:   d.HostInfo,
		Converters: len(d.Converters),
		Listeners:  d.ListenerCount(),
		State:      state,
	}
	if !updated.IsZero() {
		s.StateUpdatedAt = &updated
	}
	return s
}

package device

import (
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the in-memory catalogue of live devices, keyed by unique ID.
//
// Devices are not copied: callers receive the live *Device so they can
// register listeners on it. All public methods are thread-safe.
type Registry struct {
	devices map[string]*Device
	mu      sync.RWMutex
	logger  Logger
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register adds a device.
// Returns ErrInvalidDevice for a nil device or empty ID, ErrDeviceExists
// when the ID is taken.
func (r *Registry) Register(d *Device) error {
	if d == nil || d.UniqueID == "" {
		return ErrInvalidDevice
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[d.UniqueID]; ok {
		return fmt.Errorf("%w: %s", ErrDeviceExists, d.UniqueID)
	}
	r.devices[d.UniqueID] = d

	r.logger.Info("device registered", "id", d.UniqueID, "model", d.Model, "converters", len(d.Converters))
	return nil
}

// Unregister removes a device and returns it.
func (r *Registry) Unregister(id string) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	delete(r.devices, id)

	r.logger.Info("device unregistered", "id", id)
	return d, nil
}

// GetDevice retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) GetDevice(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return d, nil
}

// ListDevices returns all devices ordered by unique ID.
func (r *Registry) ListDevices() []*Device {
	r.mu.RLock()
	devices := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, d)
	}
	r.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool { return devices[i].UniqueID < devices[j].UniqueID })
	return devices
}

// GetDeviceCount returns the number of registered devices.
func (r *Registry) GetDeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Dispatch delivers a data update to the device with the given ID.
// This is the entry point for protocol bridges.
func (r *Registry) Dispatch(id string, data map[string]any) error {
	d, err := r.GetDevice(id)
	if err != nil {
		return err
	}

	d.Dispatch(data)

	r.logger.Debug("device update dispatched", "id", id, "keys", len(data))
	return nil
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices   int
	TotalListeners int
	ByModel        map[string]int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		TotalDevices: len(r.devices),
		ByModel:      make(map[string]int),
	}
	for _, d := range r.devices {
		stats.ByModel[d.Model]++
		stats.TotalListeners += d.ListenerCount()
	}
	return stats
}

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-miot/internal/device"
	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/mqtt"
)

// subscribeQoS is the QoS used for the device state subscription.
const subscribeQoS = 1

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests; *mqtt.Client satisfies it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Dispatcher delivers a device update. *device.Registry satisfies it.
type Dispatcher interface {
	Dispatch(deviceID string, data map[string]any) error
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// BridgeID names the bridge in health messages. Default: "miot".
	BridgeID string

	// Version is the software version reported in health messages.
	Version string

	// StateTopic is the subscription filter for device state.
	// Default: graylogic/state/miot/+
	StateTopic string

	MQTTClient MQTTClient
	Devices    Dispatcher

	// Health configures the reporter; Publisher defaults to MQTTClient.
	Health HealthReporterConfig

	// Logger and Metrics are optional.
	Logger  Logger
	Metrics *metrics.Collector
}

// Bridge subscribes to device state and dispatches each update to the
// device registry.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	id         string
	stateTopic string
	mqtt       MQTTClient
	devices    Dispatcher
	health     *HealthReporter
	metrics    *metrics.Collector

	received atomic.Uint64
	dropped  atomic.Uint64

	started  atomic.Bool
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Devices == nil {
		return nil, fmt.Errorf("device dispatcher is required")
	}
	if opts.BridgeID == "" {
		opts.BridgeID = mqtt.Protocol
	}
	if opts.StateTopic == "" {
		opts.StateTopic = mqtt.Topics{}.AllDeviceStates()
	}

	b := &Bridge{
		id:         opts.BridgeID,
		stateTopic: opts.StateTopic,
		mqtt:       opts.MQTTClient,
		devices:    opts.Devices,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}

	hcfg := opts.Health
	hcfg.BridgeID = opts.BridgeID
	hcfg.Version = opts.Version
	if hcfg.Publisher == nil {
		hcfg.Publisher = opts.MQTTClient
	}
	hcfg.Counters = b.counters
	b.health = NewHealthReporter(hcfg)
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to device state and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	if err := b.mqtt.Subscribe(b.stateTopic, subscribeQoS, b.HandleMessage); err != nil {
		return fmt.Errorf("subscribe to device state: %w", err)
	}
	b.started.Store(true)
	b.logInfo("subscribed to device state", "topic", b.stateTopic)

	b.health.Start(ctx)

	b.logInfo("bridge started", "bridge_id", b.id)
	return nil
}

// Stop unsubscribes and stops health reporting, which publishes a final
// "stopping" status. Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.started.Load() {
			if err := b.mqtt.Unsubscribe(b.stateTopic); err != nil {
				b.logError("failed to unsubscribe from device state", err)
			}
		}
		b.health.Stop()
		b.logInfo("bridge stopped",
			"received", b.received.Load(),
			"dropped", b.dropped.Load())
	})
}

// HandleMessage decodes a state message and dispatches it. Malformed
// messages and unknown devices are counted and reported as errors; they
// never affect other devices.
func (b *Bridge) HandleMessage(topic string, payload []byte) error {
	b.received.Add(1)

	msg, err := ParseStateMessage(topic, payload)
	if err != nil {
		b.dropped.Add(1)
		b.metrics.DeviceUpdate("invalid")
		return err
	}
	if len(msg.Data) == 0 {
		b.logDebug("empty state message", "device_id", msg.DeviceID)
		return nil
	}

	if err := b.devices.Dispatch(msg.DeviceID, msg.Data); err != nil {
		b.dropped.Add(1)
		if errors.Is(err, device.ErrDeviceNotFound) {
			b.metrics.DeviceUpdate("unknown_device")
		} else {
			b.metrics.DeviceUpdate("error")
		}
		return fmt.Errorf("dispatching to %s: %w", msg.DeviceID, err)
	}

	b.metrics.DeviceUpdate("dispatched")
	b.logDebug("device update dispatched", "device_id", msg.DeviceID, "keys", len(msg.Data))
	return nil
}

func (b *Bridge) counters() (received, dropped uint64) {
	return b.received.Load(), b.dropped.Load()
}

// Stats contains bridge counters for the API.
type Stats struct {
	Connected        bool   `json:"connected"`
	Status           string `json:"status"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesDropped  uint64 `json:"messages_dropped"`
}

// GetStats returns current bridge counters.
func (b *Bridge) GetStats() Stats {
	status, _ := b.health.determineStatus()
	return Stats{
		Connected:        b.mqtt.IsConnected(),
		Status:           string(status),
		MessagesReceived: b.received.Load(),
		MessagesDropped:  b.dropped.Load(),
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	b.health.SetLogger(logger)
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/mqtt"
)

// StateMessage is a keyed data update for one device.
type StateMessage struct {
	DeviceID string         `json:"device_id,omitempty"`
	Data     map[string]any `json:"data"`
}

// ParseStateMessage decodes a state payload received on topic. A bare
// object is taken as the data itself, less a string device_id key. Without
// a device ID in the payload it comes from the last topic segment. Numbers decode as float64, as they would from any
// JSON source.
func ParseStateMessage(topic string, payload []byte) (StateMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return StateMessage{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if raw == nil {
		return StateMessage{}, fmt.Errorf("%w: null", ErrInvalidPayload)
	}

	var msg StateMessage
	if dataRaw, ok := raw["data"]; ok && isObject(dataRaw) {
		if err := json.Unmarshal(payload, &msg); err != nil {
			return StateMessage{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	} else {
		if err := json.Unmarshal(payload, &msg.Data); err != nil {
			return StateMessage{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		if id, ok := msg.Data["device_id"].(string); ok {
			msg.DeviceID = id
			delete(msg.Data, "device_id")
		}
	}

	if msg.DeviceID == "" {
		msg.DeviceID = mqtt.LastSegment(topic)
	}
	if msg.DeviceID == "" || msg.DeviceID == "+" || msg.DeviceID == "#" {
		return StateMessage{}, fmt.Errorf("%w: topic %s", ErrMissingDeviceID, topic)
	}
	return msg, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/miot
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Reason        string       `json:"reason,omitempty"`

	Devices  int `json:"devices"`
	Entities int `json:"entities"`

	MessagesReceived uint64 `json:"messages_received"`
	MessagesDropped  uint64 `json:"messages_dropped"`
}

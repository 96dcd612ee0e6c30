package mqtt

import (
	"fmt"
	"strings"
)

// Topic hierarchy used by the bridge.
//
//	graylogic/state/miot/{device_id}         device pushes (inbound)
//	graylogic/core/entity/{unique_id}/state  entity state (outbound, retained)
//	graylogic/core/event/{event}             entity events (outbound)
//	graylogic/health/miot                    bridge health (retained)
//	graylogic/system/{client_id}/status      online/offline + LWT (retained)
const (
	TopicPrefix       = "graylogic"
	TopicPrefixCore   = "graylogic/core"
	TopicPrefixSystem = "graylogic/system"

	// Protocol is the protocol segment used in bridge topics.
	Protocol = "miot"
)

// Topics provides builders for the bridge's MQTT topics.
type Topics struct{}

// DeviceState returns the topic a device pushes its raw updates to.
//
// Example: graylogic/state/miot/a1b2c3
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, deviceID)
}

// AllDeviceStates matches every device update topic.
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefix, Protocol)
}

// EntityState returns the retained state topic for an entity.
//
// Example: graylogic/core/entity/a1b2c3-fan:speed/state
func (Topics) EntityState(uniqueID string) string {
	return fmt.Sprintf("%s/entity/%s/state", TopicPrefixCore, uniqueID)
}

// AllEntityStates matches every entity state topic.
func (Topics) AllEntityStates() string {
	return fmt.Sprintf("%s/entity/+/state", TopicPrefixCore)
}

// CoreEvent returns the topic for an entity event type.
//
// Example: graylogic/core/event/entity_attached
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// BridgeHealth returns the bridge health topic.
func (Topics) BridgeHealth() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// BridgeStatus returns the online/offline status topic for a client.
//
// Example: graylogic/system/graylogic-miot/status
func (Topics) BridgeStatus(clientID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixSystem, clientID)
}

// AllTopics matches all Gray Logic traffic.
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// LastSegment returns the final level of topic ("" for an empty topic or a
// trailing slash).
func LastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// Match reports whether topic matches the subscription filter, honouring
// the + and # wildcards.
func Match(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")

	for i, f := range fs {
		if f == "#" {
			return i == len(fs)-1
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}

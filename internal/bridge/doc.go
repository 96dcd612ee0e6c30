// Package bridge feeds device state from MQTT into the device registry.
//
// Devices (or the gateway that polls them) publish keyed updates to
// graylogic/state/miot/{device_id}. The payload is either a bare JSON
// object of key/value pairs or an envelope:
//
//	{"device_id": "dev1", "data": {"fan:speed": 3}}
//
// The bridge decodes each message and dispatches it to the device, which
// fans it out to its entities. It also publishes a retained health message
// to graylogic/health/miot on a fixed interval.
package bridge

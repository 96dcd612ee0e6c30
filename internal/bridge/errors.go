package bridge

import "errors"

// Domain-specific errors for the bridge.
var (
	// ErrInvalidPayload is returned when a state message is not a JSON object.
	ErrInvalidPayload = errors.New("bridge: invalid state payload")

	// ErrMissingDeviceID is returned when neither the payload nor the topic
	// names a device.
	ErrMissingDeviceID = errors.New("bridge: missing device id")
)

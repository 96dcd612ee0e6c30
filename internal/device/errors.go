package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when registering a device ID twice.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when a device is nil or has no unique ID.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidConfig is returned when a device file cannot be built.
	ErrInvalidConfig = errors.New("device: invalid config")
)

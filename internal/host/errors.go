package host

import "errors"

// Domain-specific errors for the host runtime.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDuplicateEntity is returned when two converters derive the same unique ID.
	ErrDuplicateEntity = errors.New("host: duplicate entity unique id")

	// ErrEntityNotFound is returned when an entity lookup fails.
	ErrEntityNotFound = errors.New("host: entity not found")

	// ErrDeviceNotFound is returned when removing a device the runtime never added.
	ErrDeviceNotFound = errors.New("host: device not found")

	// ErrClosed is returned by operations on a closed runtime.
	ErrClosed = errors.New("host: runtime closed")

	// ErrInvalidEntry is returned when a registry entry is missing required fields.
	ErrInvalidEntry = errors.New("host: invalid registry entry")
)

package entity

import "errors"

// Domain errors for the entity package.
var (
	// ErrIdentity is returned when the entity ID cannot be derived.
	// Construction aborts and no listener is registered.
	ErrIdentity = errors.New("entity: identity derivation failed")

	// ErrInvalidConverter is returned when the converter fails validation.
	ErrInvalidConverter = errors.New("entity: invalid converter")

	// ErrInvalidDevice is returned for a nil device or one without a spec.
	ErrInvalidDevice = errors.New("entity: invalid device")

	// ErrDetached is returned when attaching an entity that was detached.
	ErrDetached = errors.New("entity: detached")
)

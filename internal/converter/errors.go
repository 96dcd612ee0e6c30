package converter

import "errors"

// Domain errors for the converter package.
var (
	// ErrEmptyAttr is returned when a converter has no attribute key.
	ErrEmptyAttr = errors.New("converter: attr is empty")

	// ErrUnknownKind is returned for an unrecognised converter kind.
	ErrUnknownKind = errors.New("converter: unknown kind")

	// ErrMissingElement is returned when a property or action converter has
	// no spec element to wrap.
	ErrMissingElement = errors.New("converter: missing spec element")
)

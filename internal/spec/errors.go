package spec

import "errors"

// Domain errors for the spec package.
var (
	// ErrEmptyKey is returned when an entity ID is requested for an empty key.
	ErrEmptyKey = errors.New("spec: entity id key is empty")

	// ErrInvalidDomain is returned when the entity domain is empty or malformed.
	ErrInvalidDomain = errors.New("spec: invalid entity domain")

	// ErrDuplicateService is returned when a service IID is added twice.
	ErrDuplicateService = errors.New("spec: duplicate service iid")

	// ErrElementNotFound is returned when a lookup by full name fails.
	ErrElementNotFound = errors.New("spec: element not found")
)

// Package spec models the capability tree a device publishes: services,
// and the properties and actions that live inside them.
//
// The tree is read-only once built. Entity adapters read names and
// descriptions from it and ask it to derive host entity identifiers, but
// never mutate it.
//
// # Naming
//
// Every element carries several names used by different consumers:
//
//	Name         speed               element name inside its service
//	FullName     fan:speed           service-qualified, used for customisation keys
//	UniqueName   fan.speed           globally unique inside the tree, used for unique IDs
//	FriendlyName fan.speed           translation key
//	FriendlyDesc Fan Speed           display name
//
// When two services share a name (two "switch" channels, say), the unique
// names of their elements are disambiguated with the service and element
// instance IDs: "switch.on-2-1", "switch.on-3-1".
package spec

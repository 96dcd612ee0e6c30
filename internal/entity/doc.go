// Package entity implements the entity adapter: the live, host-facing
// object built from a device and one of its converters.
//
// An Entity registers itself as a listener on its device, filters incoming
// data updates against its listen set, projects matches into its State and
// asks the host to write that state once the host has attached it.
//
// # Lifecycle
//
//	New ──▶ unattached ──Attach──▶ attached ──Detach──▶ detached
//	            │                                          ▲
//	            └──────────────────Detach──────────────────┘
//
// While unattached, updates change the in-memory state but never reach the
// host. Attach replays persisted restore data when it overlaps the listen
// set. Detach removes the device listener and is idempotent.
//
// # Behaviours
//
// Platform specifics (sensor, switch, button, ...) are supplied as a
// Behavior rather than by subclassing. A Factory maps host domains and
// converter kinds to behaviour constructors.
//
// OnInit runs during construction, before the listener is registered, and
// may widen the listen set or set the unit. SetState and GetState run with
// the entity lock held and receive the State directly; they must not call
// back into the Entity.
package entity

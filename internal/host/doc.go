// Package host is the runtime that owns entities.
//
// It turns each device's converters into entities, registers them in the
// persistent entity registry, attaches them (replaying restore data) and
// writes their state whenever they ask for it. A state write fans out to:
//
//   - MQTT, retained, on graylogic/core/entity/{unique_id}/state
//   - the websocket hub, channel "entity.state_changed"
//   - the SQLite entity state history
//   - InfluxDB, for numeric and boolean states
//
// ScheduleStateWrite never blocks the caller. Writes for the same entity
// are coalesced until the writer goroutine picks them up, so a burst of
// device updates results in one write of the latest state.
//
// Restore data is persisted when an entity is removed and on a cron
// schedule; history older than the retention period is pruned nightly.
package host

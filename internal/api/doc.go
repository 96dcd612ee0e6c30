// Package api implements the HTTP REST API and WebSocket server for the
// MIoT bridge.
//
// This package provides:
//   - Read endpoints for devices, entities, the entity registry and state history
//   - A device update endpoint that feeds the same path as MQTT state messages
//   - A WebSocket hub broadcasting entity state changes
//   - Prometheus metrics and a system metrics summary
//   - Middleware stack (request ID, logging, recovery, CORS, metrics)
//
// # Graceful Degradation
//
// The server operates without MQTT or InfluxDB. Entity reads, history and
// WebSocket broadcasts only depend on the host runtime.
package api

// Package config loads and validates the MIoT bridge configuration.
//
// Values are layered: built-in defaults, then the YAML file, then
// GRAYLOGIC_* environment variables. Validate collects every problem into
// one error so a broken file is fixed in a single pass.
//
// Keep the MQTT password and InfluxDB token out of the file and set them
// through GRAYLOGIC_MQTT_PASSWORD and GRAYLOGIC_INFLUXDB_TOKEN.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	interval := cfg.GetHealthInterval()
//
// Sections:
//   - site, database, mqtt, api, websocket, influxdb, logging: infrastructure
//   - devices: device declaration file and the MQTT topic updates arrive on
//   - customize: per-model override file
//   - host: entity runtime (write queue, restore snapshots, history pruning)
//   - metrics: Prometheus exposition
package config

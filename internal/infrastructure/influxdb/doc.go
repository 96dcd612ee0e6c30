// Package influxdb writes entity state telemetry to InfluxDB v2.
//
// Every numeric (or boolean) entity state the host writes becomes a point
// in the entity_state measurement, tagged by unique_id, entity_id, domain
// and unit. Writes are batched per config.yaml (batch_size,
// flush_interval) and never block the state writer.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
package influxdb

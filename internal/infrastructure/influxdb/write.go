package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementEntityState is the measurement entity state points go to.
const MeasurementEntityState = "entity_state"

// EntityPoint describes one numeric entity state sample.
type EntityPoint struct {
	UniqueID string
	EntityID string
	Domain   string
	Unit     string
	Value    float64
	Time     time.Time
}

// WriteEntityState writes a numeric entity state sample. The write is
// non-blocking; points are batched and sent asynchronously.
//
//	if v, ok := influxdb.NumericValue(state.Value); ok {
//	    client.WriteEntityState(influxdb.EntityPoint{UniqueID: id, EntityID: eid, Value: v})
//	}
func (c *Client) WriteEntityState(p EntityPoint) {
	tags := map[string]string{
		"unique_id": p.UniqueID,
		"entity_id": p.EntityID,
		"domain":    p.Domain,
	}
	if p.Unit != "" {
		tags["unit"] = p.Unit
	}
	ts := p.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	c.WritePointWithTime(MeasurementEntityState, tags, map[string]any{"value": p.Value}, ts)
}

// WritePoint writes a custom point timestamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() || c.writeAPI == nil {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

// NumericValue converts an entity state value to a float sample.
// Booleans map to 0/1; strings and nil are not numeric.
func NumericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

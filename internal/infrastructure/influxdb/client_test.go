package influxdb

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-miot/internal/infrastructure/config"
)

// fakeWriter records points instead of sending them.
type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (f *fakeWriter) WritePoint(p *write.Point) {
	f.mu.Lock()
	f.points = append(f.points, p)
	f.mu.Unlock()
}

func (f *fakeWriter) Flush() {
	f.mu.Lock()
	f.flushes++
	f.mu.Unlock()
}

func newFakeClient() (*Client, *fakeWriter) {
	w := &fakeWriter{}
	return &Client{writeAPI: w, connected: true}, w
}

func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "graylogic-dev-token",
		Org:           "graylogic",
		Bucket:        "metrics",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Live(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("set RUN_INTEGRATION to test against a local InfluxDB")
	}
	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteEntityState(EntityPoint{UniqueID: "it-1", EntityID: "sensor.it", Domain: "sensor", Value: 1})
	client.Flush()
}

func TestWriteEntityState(t *testing.T) {
	client, w := newFakeClient()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	client.WriteEntityState(EntityPoint{
		UniqueID: "aabb-fan:speed",
		EntityID: "sensor.brand_fan_v1_eeff_fan_speed",
		Domain:   "sensor",
		Unit:     "rpm",
		Value:    1200,
		Time:     at,
	})

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.Name() != MeasurementEntityState {
		t.Errorf("measurement = %q", p.Name())
	}
	if !p.Time().Equal(at) {
		t.Errorf("time = %v, want %v", p.Time(), at)
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	for k, want := range map[string]string{
		"unique_id": "aabb-fan:speed",
		"entity_id": "sensor.brand_fan_v1_eeff_fan_speed",
		"domain":    "sensor",
		"unit":      "rpm",
	} {
		if tags[k] != want {
			t.Errorf("tag %s = %q, want %q", k, tags[k], want)
		}
	}

	fields := p.FieldList()
	if len(fields) != 1 || fields[0].Key != "value" || fields[0].Value != 1200.0 {
		t.Errorf("fields = %+v", fields)
	}
}

func TestWriteEntityState_OmitsEmptyUnit(t *testing.T) {
	client, w := newFakeClient()
	client.WriteEntityState(EntityPoint{UniqueID: "u", EntityID: "binary_sensor.x", Domain: "binary_sensor", Value: 1})

	for _, tag := range w.points[0].TagList() {
		if tag.Key == "unit" {
			t.Error("unit tag should be omitted when empty")
		}
	}
	if w.points[0].Time().IsZero() {
		t.Error("zero time should default to now")
	}
}

func TestWrite_DisconnectedIsNoop(t *testing.T) {
	client, w := newFakeClient()
	client.connected = false

	client.WritePoint("m", nil, map[string]any{"v": 1})
	client.WriteEntityState(EntityPoint{UniqueID: "u", Value: 1})
	client.Flush()

	if len(w.points) != 0 || w.flushes != 0 {
		t.Errorf("points=%d flushes=%d, want none", len(w.points), w.flushes)
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	client := &Client{}
	if err := client.HealthCheck(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
}

func TestClose_Nil(t *testing.T) {
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestHandleWriteErrors(t *testing.T) {
	client, _ := newFakeClient()

	var got []error
	var mu sync.Mutex
	client.SetOnError(func(err error) {
		mu.Lock()
		got = append(got, err)
		mu.Unlock()
	})

	ch := make(chan error, 2)
	ch <- errors.New("bucket not found")
	ch <- errors.New("unauthorized")
	close(ch)
	client.handleWriteErrors(ch)

	if len(got) != 2 || !errors.Is(got[0], ErrWriteFailed) {
		t.Errorf("errors = %v", got)
	}
}

func TestNumericValue(t *testing.T) {
	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{21.5, 21.5, true},
		{float32(2.5), 2.5, true},
		{42, 42, true},
		{int64(-3), -3, true},
		{uint8(7), 7, true},
		{json.Number("12.75"), 12.75, true},
		{json.Number("nope"), 0, false},
		{true, 1, true},
		{false, 0, true},
		{"on", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := NumericValue(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("NumericValue(%#v) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestPositiveOr(t *testing.T) {
	if got := positiveOr(0, 100); got != 100 {
		t.Errorf("positiveOr(0, 100) = %d", got)
	}
	if got := positiveOr(-5, 10); got != 10 {
		t.Errorf("positiveOr(-5, 10) = %d", got)
	}
	if got := positiveOr(25, 100); got != 25 {
		t.Errorf("positiveOr(25, 100) = %d", got)
	}
}
